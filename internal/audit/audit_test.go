package audit

import (
	"path/filepath"
	"testing"

	"cortex-engine/internal/types"
)

func TestRecordAndGet(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	steps := []types.ReasoningStep{{Kind: types.ReasoningVectorSearch, Description: "found 1"}}
	runID, err := l.Record("what is x", "x is y", 0.9, steps, 1000)
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	rec, err := l.Get(runID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Query != "what is x" || rec.ResponseText != "x is y" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(rec.ReasoningSteps) != 1 {
		t.Fatalf("expected 1 reasoning step, got %d", len(rec.ReasoningSteps))
	}
}

func TestGetMissingReturnsError(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	if _, err := l.Get("does-not-exist"); err == nil {
		t.Fatalf("expected error for missing run id")
	}
}

func TestRecentOrdersByTimestampDescending(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	l.Record("q1", "r1", 0.5, nil, 100)
	l.Record("q2", "r2", 0.5, nil, 300)
	l.Record("q3", "r3", 0.5, nil, 200)

	recent, err := l.Recent(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recent))
	}
	if recent[0].Query != "q2" || recent[1].Query != "q3" {
		t.Fatalf("expected descending timestamp order, got %+v", recent)
	}
}
