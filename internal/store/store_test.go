package store

import (
	"errors"
	"os"
	"testing"
)

type fakeResult struct {
	SessionID string               `json:"session_id"`
	Epochs    map[string][]float64 `json:"epochs"`
}

func TestStore_RoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	in := fakeResult{
		SessionID: "abc",
		Epochs:    map[string][]float64{"POS": {1.0, 1.02}},
	}
	if err := s.Save("abc", in); err != nil {
		t.Fatalf("save: %v", err)
	}

	var out fakeResult
	if err := s.Load("abc", &out); err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.SessionID != "abc" || len(out.Epochs["POS"]) != 2 {
		t.Errorf("unexpected round trip: %+v", out)
	}
}

func TestStore_MissingSession(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	var out fakeResult
	if err := s.Load("nope", &out); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestStore_PathSanitization(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	if err := s.Save("../escape", fakeResult{SessionID: "x"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected result inside the store dir, got %d entries", len(entries))
	}
}
