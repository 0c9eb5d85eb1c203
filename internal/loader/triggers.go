package loader

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/psylab/epochsync/internal/clocksync"
)

// SupportedTriggerExtensions lists the trigger-stream formats this
// service can load.
var SupportedTriggerExtensions = map[string]bool{
	".csv":    true,
	".tsv":    true,
	".json":   true,
	".ndjson": true,
	".edf":    true,
}

// IsSupportedTriggerFile checks whether the filename carries a loadable
// trigger-stream extension.
func IsSupportedTriggerFile(filename string) bool {
	return SupportedTriggerExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ReadTriggers loads a trigger stream, choosing the format by file
// extension. edfSignal selects the channel for EDF recordings and is
// ignored otherwise.
func ReadTriggers(filename string, data []byte, edfSignal string) ([]clocksync.TriggerRecord, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return ReadTriggersCSV(bytes.NewReader(data), ',')
	case ".tsv":
		return ReadTriggersCSV(bytes.NewReader(data), '\t')
	case ".json", ".ndjson":
		return ReadTriggersJSON(data)
	case ".edf":
		return ReadTriggersEDF(bytes.NewReader(data), edfSignal)
	default:
		return nil, fmt.Errorf("unsupported trigger file extension: %s", filepath.Ext(filename))
	}
}
