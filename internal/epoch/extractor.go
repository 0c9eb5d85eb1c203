// Package epoch finds condition windows in a finished log tree.
package epoch

import (
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/psylab/epochsync/internal/logtree"
)

// Spec is one condition window expressed in the experiment log's own
// clock: the trigger codes and onsets delimiting the window.
type Spec struct {
	Condition    string  `json:"condition"`
	StartTrigger string  `json:"start_trigger"`
	StartOnset   float64 `json:"start_onset"`
	StopTrigger  string  `json:"stop_trigger"`
	StopOnset    float64 `json:"stop_onset"`
}

// Extractor matches condition markers against glob patterns and
// resolves their start and stop boundaries. Markers whose boundaries
// cannot all be resolved are skipped and counted, never fatal: some
// branches are incomplete by design, e.g. truncated sessions.
type Extractor struct {
	patterns []string
	log      *slog.Logger
	skipped  int
}

// NewExtractor returns an extractor for the given glob patterns
// (path.Match syntax, e.g. "POS*"). A nil logger discards diagnostics.
func NewExtractor(patterns []string, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{patterns: patterns, log: log}
}

// Skipped reports how many matched markers were dropped for missing
// boundaries during the last Extract call.
func (e *Extractor) Skipped() int { return e.skipped }

// Extract walks the tree in pre-order and emits one Spec per condition
// marker with a complete start trigger, start onset, stop trigger and
// stop onset.
func (e *Extractor) Extract(root *logtree.Node) []Spec {
	e.skipped = 0
	var specs []Spec
	e.walk(root, &specs)
	return specs
}

func (e *Extractor) walk(n *logtree.Node, specs *[]Spec) {
	for i, c := range n.Children {
		if c.Kind == logtree.KindLeaf {
			if pattern, ok := e.match(c.Value); ok {
				if spec, ok := resolve(n.Children, i, pattern, c.Value); ok {
					*specs = append(*specs, spec)
				} else {
					e.skipped++
					e.log.Debug("condition marker skipped, incomplete boundaries",
						"value", c.Value, "pattern", pattern)
				}
			}
			continue
		}
		e.walk(c, specs)
	}
}

func (e *Extractor) match(value string) (string, bool) {
	if value == "" {
		return "", false
	}
	for _, p := range e.patterns {
		if ok, err := path.Match(p, value); err == nil && ok {
			return p, true
		}
	}
	return "", false
}

// resolve locates the marker's boundaries among its siblings: the start
// trigger is the first later sibling trigger leaf, the start onset the
// first onset leaf anywhere in the sibling list, and the stop pair
// comes from the first sibling container after the start trigger that
// carries both a trigger and an onset among its direct children.
func resolve(siblings []*logtree.Node, marker int, pattern, value string) (Spec, bool) {
	startTrigger := ""
	triggerAt := -1
	for j := marker + 1; j < len(siblings); j++ {
		if code, ok := triggerLeaf(siblings[j]); ok {
			startTrigger = code
			triggerAt = j
			break
		}
	}
	if triggerAt < 0 {
		return Spec{}, false
	}

	startOnset, okOnset := onsetAmong(siblings)
	if !okOnset {
		return Spec{}, false
	}

	for j := triggerAt + 1; j < len(siblings); j++ {
		sub := siblings[j]
		if !sub.IsContainer() {
			continue
		}
		stopTrigger, okTrig := triggerAmong(sub.Children)
		stopOnset, okStop := onsetAmong(sub.Children)
		if okTrig && okStop {
			return Spec{
				Condition:    conditionName(pattern, value),
				StartTrigger: startTrigger,
				StartOnset:   startOnset,
				StopTrigger:  stopTrigger,
				StopOnset:    stopOnset,
			}, true
		}
	}
	return Spec{}, false
}

func triggerLeaf(n *logtree.Node) (string, bool) {
	if n.Kind != logtree.KindLeaf {
		return "", false
	}
	if !strings.Contains(strings.ToLower(n.Entry), "trigger") {
		return "", false
	}
	v := strings.TrimSpace(n.Value)
	if _, err := strconv.ParseFloat(v, 64); err != nil {
		return "", false
	}
	return v, true
}

func triggerAmong(nodes []*logtree.Node) (string, bool) {
	for _, n := range nodes {
		if code, ok := triggerLeaf(n); ok {
			return code, true
		}
	}
	return "", false
}

func onsetAmong(nodes []*logtree.Node) (float64, bool) {
	for _, n := range nodes {
		if n.Kind != logtree.KindLeaf || !logtree.IsOnsetEntry(n.Entry) {
			continue
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(n.Value), 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// conditionName derives the emitted condition from the pattern that
// matched: wildcards stripped and upper-cased, falling back to the raw
// matched value when nothing remains.
func conditionName(pattern, value string) string {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case '*', '?', '[', ']':
			return -1
		}
		return r
	}, pattern)
	if stripped == "" {
		return value
	}
	return strings.ToUpper(stripped)
}
