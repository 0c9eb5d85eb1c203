package report

import (
	"strings"
	"testing"

	"github.com/psylab/epochsync/internal/clocksync"
)

func TestMarkdown(t *testing.T) {
	epochs := map[string][]clocksync.Window{
		"POS": {{Start: 1.0, Stop: 1.02}},
		"NEG": {{Start: 2.0, Stop: 2.5}, {Start: 3.0, Stop: 3.5}},
	}

	md := Markdown("abc123", epochs, 1)

	if !strings.Contains(md, "# Session abc123") {
		t.Errorf("missing title:\n%s", md)
	}
	if !strings.Contains(md, "3 aligned epochs across 2 conditions") {
		t.Errorf("missing summary line:\n%s", md)
	}
	if !strings.Contains(md, "1 condition markers were skipped") {
		t.Errorf("missing skip diagnostics:\n%s", md)
	}
	// Conditions render in sorted order, so output is deterministic.
	if strings.Index(md, "## NEG") > strings.Index(md, "## POS") {
		t.Errorf("conditions not sorted:\n%s", md)
	}
	if !strings.Contains(md, "| 1 | 1.000 | 1.020 |") {
		t.Errorf("missing POS window row:\n%s", md)
	}
}

func TestHTML(t *testing.T) {
	epochs := map[string][]clocksync.Window{
		"POS": {{Start: 1.0, Stop: 1.02}},
	}
	html, err := HTML("abc123", epochs, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(html), "<h1") {
		t.Errorf("expected rendered heading, got:\n%s", html)
	}
}
