// Package clocksync reconciles epoch windows expressed in the
// experiment log's clock against the trigger pulses observed in the
// physiological recording, producing windows in the recording's clock.
package clocksync

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/psylab/epochsync/internal/epoch"
)

// TriggerRecord is one observed trigger pulse in the recording's clock.
type TriggerRecord struct {
	Time float64 `json:"time"`
	Code string  `json:"code"`
}

// AlignedEpoch is one condition window in the recording's clock.
type AlignedEpoch struct {
	Condition string  `json:"condition"`
	Start     float64 `json:"start"`
	Stop      float64 `json:"stop"`
}

// Window is one (start, stop) pair in the recording's clock.
type Window struct {
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
}

var (
	// ErrNoTriggersInRecording means no start-trigger code of any epoch
	// spec was observed in the recording, so no clock offset exists.
	ErrNoTriggersInRecording = errors.New("clocksync: no log trigger code present in the recording")
	// ErrAlignmentFailed means a boundary could not be matched to any
	// recorded time, even via neighbor search.
	ErrAlignmentFailed = errors.New("clocksync: boundary could not be aligned")
	// ErrTimestampCollision means two boundaries resolved to the same
	// recorded time; the source data is inconsistent.
	ErrTimestampCollision = errors.New("clocksync: boundary resolved to an already-used recorded time")
)

// NormalizeCode canonicalizes a trigger code so integer-valued numeric
// spellings compare equal: "1", "1.0" and "01" all become "1".
// Non-numeric codes are trimmed and kept as-is.
func NormalizeCode(code string) string {
	s := strings.TrimSpace(code)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

type scaledTrigger struct {
	time float64
	code string
}

type aligner struct {
	times       map[string][]float64 // code -> scaled times, recording order
	all         []scaledTrigger
	onsetByCode map[string]float64
	offset      float64
	used        map[int64]struct{}
}

// Align estimates the offset between the two clocks and resolves every
// epoch boundary to a distinct recorded time, in spec order. The whole
// batch fails on the first unresolvable boundary or collision: a
// silently partial alignment would slice signals at wrong boundaries
// downstream.
func Align(specs []epoch.Spec, triggers []TriggerRecord, log *slog.Logger) ([]AlignedEpoch, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(specs) == 0 {
		return nil, nil
	}

	// Unit heuristic, best effort: logs commonly stamp in milliseconds
	// while recordings count seconds. Compare the first spec's start
	// onset against the recording span and scale when they disagree by
	// more than two orders of magnitude.
	scale := 1.0
	maxRec := 0.0
	for _, tr := range triggers {
		if tr.Time > maxRec {
			maxRec = tr.Time
		}
	}
	if maxRec > 0 && specs[0].StartOnset/maxRec > 100 {
		scale = 1000
		log.Info("treating recording clock as seconds, log clock as milliseconds")
	}

	a := &aligner{
		times:       make(map[string][]float64),
		onsetByCode: make(map[string]float64),
		used:        make(map[int64]struct{}),
	}
	for _, tr := range triggers {
		c := NormalizeCode(tr.Code)
		t := tr.Time * scale
		a.times[c] = append(a.times[c], t)
		a.all = append(a.all, scaledTrigger{time: t, code: c})
	}
	for _, sp := range specs {
		for _, ref := range []struct {
			code  string
			onset float64
		}{
			{sp.StartTrigger, sp.StartOnset},
			{sp.StopTrigger, sp.StopOnset},
		} {
			c := NormalizeCode(ref.code)
			if _, ok := a.onsetByCode[c]; !ok {
				a.onsetByCode[c] = ref.onset
			}
		}
	}

	// Global offset from the first spec whose start trigger was
	// actually recorded.
	found := false
	for _, sp := range specs {
		if ts := a.times[NormalizeCode(sp.StartTrigger)]; len(ts) > 0 {
			a.offset = sp.StartOnset - ts[0]
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w (%d specs, %d recorded pulses)",
			ErrNoTriggersInRecording, len(specs), len(triggers))
	}
	log.Info("clock offset estimated", "offset", a.offset, "scale", scale)

	out := make([]AlignedEpoch, 0, len(specs))
	for _, sp := range specs {
		start, err := a.resolve(sp.StartTrigger, sp.StartOnset)
		if err != nil {
			return nil, fmt.Errorf("condition %s start: %w", sp.Condition, err)
		}
		stop, err := a.resolve(sp.StopTrigger, sp.StopOnset)
		if err != nil {
			return nil, fmt.Errorf("condition %s stop: %w", sp.Condition, err)
		}

		sk, pk := timeKey(start), timeKey(stop)
		if sk == pk {
			return nil, fmt.Errorf("%w: condition %s start and stop both at %g",
				ErrTimestampCollision, sp.Condition, start/scale)
		}
		if _, taken := a.used[sk]; taken {
			return nil, fmt.Errorf("%w: condition %s start at %g",
				ErrTimestampCollision, sp.Condition, start/scale)
		}
		if _, taken := a.used[pk]; taken {
			return nil, fmt.Errorf("%w: condition %s stop at %g",
				ErrTimestampCollision, sp.Condition, stop/scale)
		}
		a.used[sk] = struct{}{}
		a.used[pk] = struct{}{}

		out = append(out, AlignedEpoch{
			Condition: sp.Condition,
			Start:     start / scale,
			Stop:      stop / scale,
		})
	}
	return out, nil
}

// resolve picks the unused recorded time for the code nearest to the
// expected position. When the code has no unused time, neighbor search
// re-estimates the position from the globally nearest pulse of any
// code whose own onset is known from the spec list.
func (a *aligner) resolve(code string, onset float64) (float64, error) {
	target := onset - a.offset
	c := NormalizeCode(code)

	best := math.NaN()
	for _, t := range a.times[c] {
		if _, taken := a.used[timeKey(t)]; taken {
			continue
		}
		if math.IsNaN(best) || math.Abs(t-target) < math.Abs(best-target) {
			best = t
		}
	}
	if !math.IsNaN(best) {
		return best, nil
	}

	if len(a.all) == 0 {
		return 0, fmt.Errorf("%w: trigger %q has no recorded pulse", ErrAlignmentFailed, code)
	}
	ni := 0
	for i := 1; i < len(a.all); i++ {
		if math.Abs(a.all[i].time-target) < math.Abs(a.all[ni].time-target) {
			ni = i
		}
	}
	neighbor := a.all[ni]
	refOnset, ok := a.onsetByCode[neighbor.code]
	if !ok {
		return 0, fmt.Errorf("%w: trigger %q exhausted and neighbor %q unknown to the log",
			ErrAlignmentFailed, code, neighbor.code)
	}
	local := refOnset - neighbor.time
	return onset - local, nil
}

// GroupByCondition buckets aligned epochs by condition name, preserving
// emission order within each condition.
func GroupByCondition(epochs []AlignedEpoch) map[string][]Window {
	out := make(map[string][]Window, len(epochs))
	for _, e := range epochs {
		out[e.Condition] = append(out[e.Condition], Window{Start: e.Start, Stop: e.Stop})
	}
	return out
}

// timeKey maps a recorded time onto a microsecond grid so equality, not
// float identity, decides collisions.
func timeKey(t float64) int64 {
	return int64(math.Round(t * 1e6))
}
