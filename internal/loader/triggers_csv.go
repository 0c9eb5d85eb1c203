package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/psylab/epochsync/internal/clocksync"
)

// ReadTriggersCSV parses a two-column (time, code) trigger table split
// on comma, or on whatever rune comma says (tab for .tsv files). A
// first row whose time column does not parse is treated as a header and
// skipped; any later unparsable row is an error.
func ReadTriggersCSV(r io.Reader, comma rune) ([]clocksync.TriggerRecord, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse trigger csv: %w", err)
	}

	var triggers []clocksync.TriggerRecord
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("trigger csv row %d: expected 2 columns, got %d", i+1, len(row))
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(row[0]), 64)
		if err != nil {
			if i == 0 {
				continue // header row
			}
			return nil, fmt.Errorf("trigger csv row %d: bad time %q", i+1, row[0])
		}
		triggers = append(triggers, clocksync.TriggerRecord{
			Time: t,
			Code: strings.TrimSpace(row[1]),
		})
	}
	return triggers, nil
}
