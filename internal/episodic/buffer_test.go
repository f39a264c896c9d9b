package episodic

import (
	"os"
	"path/filepath"
	"testing"

	"cortex-engine/internal/types"
)

func TestRingEviction(t *testing.T) {
	buf := NewBuffer(3, 4, nil)
	buf.Add("q1", "r1", types.Embedding{1, 0, 0, 0}, nil)
	buf.Add("q2", "r2", types.Embedding{0, 1, 0, 0}, nil)
	buf.Add("q3", "r3", types.Embedding{0, 0, 1, 0}, nil)
	buf.Add("q4", "r4", types.Embedding{0, 0, 0, 1}, nil)

	if buf.Size() != 3 {
		t.Fatalf("expected size 3, got %d", buf.Size())
	}

	recent := buf.GetRecent(3)
	if len(recent) != 3 {
		t.Fatalf("expected 3 recent episodes, got %d", len(recent))
	}
	want := []string{"q2", "q3", "q4"}
	for i, e := range recent {
		if e.Query != want[i] {
			t.Fatalf("recent[%d] = %q, want %q", i, e.Query, want[i])
		}
	}

	similar := buf.RetrieveSimilar(types.Embedding{1, 0, 0, 0}, 5, 0)
	for _, e := range similar {
		if e.Query == "q1" {
			t.Fatalf("evicted episode q1 should not be retrievable")
		}
	}
}

func TestRetrieveSimilarFiltersByThreshold(t *testing.T) {
	buf := NewBuffer(10, 3, nil)
	buf.Add("q1", "r1", types.Embedding{1, 0, 0}, nil)
	buf.Add("q2", "r2", types.Embedding{-1, 0, 0}, nil)

	results := buf.RetrieveSimilar(types.Embedding{1, 0, 0}, 5, 0.5)
	if len(results) != 1 {
		t.Fatalf("expected 1 result above threshold, got %d", len(results))
	}
	if results[0].Query != "q1" {
		t.Fatalf("expected q1, got %q", results[0].Query)
	}
}

func TestIsFull(t *testing.T) {
	buf := NewBuffer(2, 2, nil)
	if buf.IsFull() {
		t.Fatalf("expected not full initially")
	}
	buf.Add("q1", "r1", types.Embedding{1, 0}, nil)
	buf.Add("q2", "r2", types.Embedding{0, 1}, nil)
	if !buf.IsFull() {
		t.Fatalf("expected full at capacity")
	}
}

func TestClear(t *testing.T) {
	buf := NewBuffer(5, 2, nil)
	buf.Add("q1", "r1", types.Embedding{1, 0}, nil)
	buf.Clear()
	if buf.Size() != 0 {
		t.Fatalf("expected size 0 after clear")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	buf := NewBuffer(5, 3, nil)
	buf.Add("q1", "hello", types.Embedding{1, 0, 0}, map[string]string{"k": "v"})
	buf.Add("q2", "world", types.Embedding{0, 1, 0}, nil)

	path := filepath.Join(t.TempDir(), "episodes.csv")
	if err := buf.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	buf2 := NewBuffer(5, 3, nil)
	if err := buf2.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	recent := buf2.GetRecent(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 episodes after load, got %d", len(recent))
	}
	if recent[0].Query != "q1" || recent[1].Query != "q2" {
		t.Fatalf("unexpected order after load: %+v", recent)
	}
	if recent[0].Metadata["k"] != "v" {
		t.Fatalf("expected metadata to round-trip, got %+v", recent[0].Metadata)
	}
	if recent[0].EmbeddingZeroFilled {
		t.Fatalf("expected embedding to be recovered, not zero-filled")
	}
}

func TestLoadZeroFillsMissingEmbedding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episodes.csv")
	content := "format_version,query,response,timestamp_ms,embedding_dim,embedding,metadata\n" +
		"1,q1,r1,1000,0,,\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	buf := NewBuffer(5, 4, nil)
	if err := buf.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	recent := buf.GetRecent(1)
	if len(recent) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(recent))
	}
	if !recent[0].EmbeddingZeroFilled {
		t.Fatalf("expected EmbeddingZeroFilled to be set")
	}
	if len(recent[0].Embedding) != 4 {
		t.Fatalf("expected zero-filled embedding of declared dim 4, got %d", len(recent[0].Embedding))
	}
}
