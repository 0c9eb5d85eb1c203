package clocksync

import (
	"errors"
	"math"
	"testing"

	"github.com/psylab/epochsync/internal/epoch"
)

func TestAlign_SingleEpoch(t *testing.T) {
	triggers := []TriggerRecord{{Time: 1.000, Code: "5"}, {Time: 1.020, Code: "6"}}
	specs := []epoch.Spec{{
		Condition:    "POS",
		StartTrigger: "5", StartOnset: 100.0,
		StopTrigger: "6", StopOnset: 120.0,
	}}

	aligned, err := Align(specs, triggers, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(aligned) != 1 {
		t.Fatalf("expected 1 epoch, got %d", len(aligned))
	}
	got := aligned[0]
	if got.Condition != "POS" || got.Start != 1.000 || got.Stop != 1.020 {
		t.Errorf("expected (POS, 1.000, 1.020), got %+v", got)
	}
}

func TestAlign_MillisecondHeuristic(t *testing.T) {
	// Log stamped in milliseconds against a 1.02 s recording.
	triggers := []TriggerRecord{{Time: 1.000, Code: "5"}, {Time: 1.020, Code: "6"}}
	specs := []epoch.Spec{{
		Condition:    "POS",
		StartTrigger: "5", StartOnset: 100000,
		StopTrigger: "6", StopOnset: 100020,
	}}

	aligned, err := Align(specs, triggers, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := aligned[0]
	if math.Abs(got.Start-1.000) > 1e-9 || math.Abs(got.Stop-1.020) > 1e-9 {
		t.Errorf("expected recording-clock output (1.000, 1.020), got %+v", got)
	}
}

func TestAlign_CollisionIsFatal(t *testing.T) {
	triggers := []TriggerRecord{{Time: 1.000, Code: "5"}, {Time: 2.000, Code: "6"}}
	spec := epoch.Spec{
		Condition:    "POS",
		StartTrigger: "5", StartOnset: 100.0,
		StopTrigger: "6", StopOnset: 1100.0,
	}
	specs := []epoch.Spec{spec, spec}

	_, err := Align(specs, triggers, nil)
	if err == nil {
		t.Fatal("expected collision error")
	}
	if !errors.Is(err, ErrTimestampCollision) {
		t.Fatalf("expected ErrTimestampCollision, got %v", err)
	}
}

func TestAlign_NoTriggersInRecording(t *testing.T) {
	triggers := []TriggerRecord{{Time: 1.000, Code: "99"}}
	specs := []epoch.Spec{{
		Condition:    "POS",
		StartTrigger: "5", StartOnset: 100.0,
		StopTrigger: "6", StopOnset: 120.0,
	}}

	_, err := Align(specs, triggers, nil)
	if !errors.Is(err, ErrNoTriggersInRecording) {
		t.Fatalf("expected ErrNoTriggersInRecording, got %v", err)
	}
}

func TestAlign_NeighborSearch(t *testing.T) {
	// The second epoch's triggers were never recorded; its boundaries
	// are re-estimated from the nearest recorded pulse via a local
	// offset.
	triggers := []TriggerRecord{{Time: 1.0, Code: "5"}, {Time: 2.0, Code: "6"}}
	specs := []epoch.Spec{
		{Condition: "POS", StartTrigger: "5", StartOnset: 100.0, StopTrigger: "6", StopOnset: 101.0},
		{Condition: "NEG", StartTrigger: "9", StartOnset: 102.5, StopTrigger: "9", StopOnset: 103.0},
	}

	aligned, err := Align(specs, triggers, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(aligned) != 2 {
		t.Fatalf("expected 2 epochs, got %d", len(aligned))
	}
	// Neighbor is the pulse for code 6 at 2.0, whose log onset is
	// 101.0: local offset 99.0 places the unrecorded boundaries.
	neg := aligned[1]
	if math.Abs(neg.Start-3.5) > 1e-9 || math.Abs(neg.Stop-4.0) > 1e-9 {
		t.Errorf("expected (3.5, 4.0), got %+v", neg)
	}
}

func TestAlign_NeighborWithoutSpecOnsetFails(t *testing.T) {
	// The second epoch's code was never recorded, and the pulse nearest
	// its expected position carries a code no spec mentions, so neighbor
	// search has no onset to re-estimate from.
	triggers := []TriggerRecord{
		{Time: 1.0, Code: "5"}, {Time: 2.0, Code: "6"}, {Time: 9.0, Code: "42"},
	}
	specs := []epoch.Spec{
		{Condition: "POS", StartTrigger: "5", StartOnset: 100.0, StopTrigger: "6", StopOnset: 101.0},
		{Condition: "NEG", StartTrigger: "7", StartOnset: 107.5, StopTrigger: "7", StopOnset: 108.0},
	}

	_, err := Align(specs, triggers, nil)
	if !errors.Is(err, ErrAlignmentFailed) {
		t.Fatalf("expected ErrAlignmentFailed, got %v", err)
	}
}

func TestAlign_StartStopSameTimeIsCollision(t *testing.T) {
	// Both boundaries of one epoch share a code with a single recorded
	// pulse: the stop lands on the start's time and the batch fails.
	triggers := []TriggerRecord{{Time: 1.0, Code: "5"}, {Time: 9.0, Code: "42"}}
	specs := []epoch.Spec{
		{Condition: "POS", StartTrigger: "5", StartOnset: 100.0, StopTrigger: "5", StopOnset: 120.0},
	}

	_, err := Align(specs, triggers, nil)
	if !errors.Is(err, ErrTimestampCollision) {
		t.Fatalf("expected ErrTimestampCollision, got %v", err)
	}
}

func TestAlign_ExclusivityAndDeterminism(t *testing.T) {
	triggers := []TriggerRecord{
		{Time: 1.0, Code: "5"}, {Time: 2.0, Code: "6"},
		{Time: 3.0, Code: "5"}, {Time: 4.0, Code: "6"},
	}
	specs := []epoch.Spec{
		{Condition: "POS", StartTrigger: "5", StartOnset: 100, StopTrigger: "6", StopOnset: 1100},
		{Condition: "NEG", StartTrigger: "5", StartOnset: 2100, StopTrigger: "6", StopOnset: 3100},
	}

	first, err := Align(specs, triggers, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[float64]bool)
	for _, e := range first {
		for _, v := range []float64{e.Start, e.Stop} {
			if seen[v] {
				t.Fatalf("time %g assigned twice", v)
			}
			seen[v] = true
		}
	}

	second, err := Align(specs, triggers, nil)
	if err != nil {
		t.Fatalf("unexpected error on rerun: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("non-deterministic alignment: %+v vs %+v", first[i], second[i])
		}
	}
}

func TestAlign_CodeNormalization(t *testing.T) {
	triggers := []TriggerRecord{{Time: 1.0, Code: "5.0"}, {Time: 2.0, Code: "6.0"}}
	specs := []epoch.Spec{{
		Condition:    "POS",
		StartTrigger: "5", StartOnset: 100.0,
		StopTrigger: "6", StopOnset: 1100.0,
	}}

	aligned, err := Align(specs, triggers, nil)
	if err != nil {
		t.Fatalf("expected '5.0' to match '5': %v", err)
	}
	if aligned[0].Start != 1.0 || aligned[0].Stop != 2.0 {
		t.Errorf("unexpected alignment: %+v", aligned[0])
	}
}

func TestNormalizeCode(t *testing.T) {
	cases := map[string]string{
		"1":     "1",
		"1.0":   "1",
		" 01 ":  "1",
		"1.5":   "1.5",
		"S  12": "S  12",
	}
	for in, want := range cases {
		if got := NormalizeCode(in); got != want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGroupByCondition(t *testing.T) {
	epochs := []AlignedEpoch{
		{Condition: "POS", Start: 1, Stop: 2},
		{Condition: "NEG", Start: 3, Stop: 4},
		{Condition: "POS", Start: 5, Stop: 6},
	}
	groups := GroupByCondition(epochs)
	if len(groups) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(groups))
	}
	if len(groups["POS"]) != 2 || groups["POS"][1].Start != 5 {
		t.Errorf("unexpected POS windows: %+v", groups["POS"])
	}
}
