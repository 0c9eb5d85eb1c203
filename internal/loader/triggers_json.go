package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/psylab/epochsync/internal/clocksync"
)

// ReadTriggersJSON parses a trigger stream from either a JSON array of
// objects or newline-delimited JSON objects of the form
// {"time": 1.02, "code": "5"}. Codes may be JSON strings or numbers.
func ReadTriggersJSON(data []byte) ([]clocksync.TriggerRecord, error) {
	var p fastjson.Parser

	v, err := p.ParseBytes(data)
	if err == nil && v.Type() == fastjson.TypeArray {
		items, _ := v.Array()
		triggers := make([]clocksync.TriggerRecord, 0, len(items))
		for i, item := range items {
			tr, err := triggerFromValue(item)
			if err != nil {
				return nil, fmt.Errorf("trigger %d: %w", i, err)
			}
			triggers = append(triggers, tr)
		}
		return triggers, nil
	}

	// Fall back to newline-delimited objects.
	var triggers []clocksync.TriggerRecord
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		v, err := p.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("trigger line %d: %w", i+1, err)
		}
		tr, err := triggerFromValue(v)
		if err != nil {
			return nil, fmt.Errorf("trigger line %d: %w", i+1, err)
		}
		triggers = append(triggers, tr)
	}
	return triggers, nil
}

func triggerFromValue(v *fastjson.Value) (clocksync.TriggerRecord, error) {
	tv := v.Get("time")
	if tv == nil {
		return clocksync.TriggerRecord{}, fmt.Errorf("missing time field")
	}
	t, err := tv.Float64()
	if err != nil {
		return clocksync.TriggerRecord{}, fmt.Errorf("bad time: %w", err)
	}

	cv := v.Get("code")
	if cv == nil {
		return clocksync.TriggerRecord{}, fmt.Errorf("missing code field")
	}
	var code string
	switch cv.Type() {
	case fastjson.TypeString:
		code = string(cv.GetStringBytes())
	case fastjson.TypeNumber:
		f, _ := cv.Float64()
		code = strconv.FormatFloat(f, 'g', -1, 64)
	default:
		return clocksync.TriggerRecord{}, fmt.Errorf("code must be a string or number")
	}
	return clocksync.TriggerRecord{Time: t, Code: code}, nil
}
