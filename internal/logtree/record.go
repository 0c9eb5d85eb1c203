package logtree

import "strings"

// FlatRecord is one entry of a flattened experiment log. Records whose
// segment carried no key/value delimiter are raw-only: Keyed is false
// and the trimmed segment lives in Raw.
type FlatRecord struct {
	Key   string
	Value string
	Raw   string
	Keyed bool
}

// ParseEntries splits a raw log payload into flat records. The payload
// is split on entryDelim; empty segments are dropped, the rest are
// trimmed. Each segment is split on the first occurrence of kvDelim
// into a (key, value) pair, both trimmed; segments without the
// delimiter become raw-only records. Empty input yields no records.
func ParseEntries(payload, entryDelim, kvDelim string) []FlatRecord {
	if entryDelim == "" {
		entryDelim = "\n"
	}

	var records []FlatRecord
	for _, seg := range strings.Split(payload, entryDelim) {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if kvDelim != "" {
			if i := strings.Index(seg, kvDelim); i >= 0 {
				records = append(records, FlatRecord{
					Key:   strings.TrimSpace(seg[:i]),
					Value: strings.TrimSpace(seg[i+len(kvDelim):]),
					Raw:   seg,
					Keyed: true,
				})
				continue
			}
		}
		records = append(records, FlatRecord{Raw: seg})
	}
	return records
}
