// Package report renders human-readable summaries of a synchronization
// run for the API's report endpoint.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/psylab/epochsync/internal/clocksync"
)

// Markdown builds a session summary: one section per condition with its
// aligned windows, plus extraction diagnostics.
func Markdown(sessionID string, epochs map[string][]clocksync.Window, skippedMarkers int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n\n", sessionID)

	conditions := make([]string, 0, len(epochs))
	total := 0
	for c, ws := range epochs {
		conditions = append(conditions, c)
		total += len(ws)
	}
	sort.Strings(conditions)

	fmt.Fprintf(&b, "%d aligned epochs across %d conditions.\n\n", total, len(conditions))
	if skippedMarkers > 0 {
		fmt.Fprintf(&b, "%d condition markers were skipped for incomplete boundaries.\n\n", skippedMarkers)
	}

	for _, c := range conditions {
		windows := epochs[c]
		fmt.Fprintf(&b, "## %s\n\n", c)
		fmt.Fprintf(&b, "| # | start (s) | stop (s) |\n|---|-----------|----------|\n")
		for i, w := range windows {
			fmt.Fprintf(&b, "| %d | %.3f | %.3f |\n", i+1, w.Start, w.Stop)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// HTML renders the markdown summary to HTML.
func HTML(sessionID string, epochs map[string][]clocksync.Window, skippedMarkers int) ([]byte, error) {
	md := Markdown(sessionID, epochs, skippedMarkers)
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}
