package vectorindex

import (
	"path/filepath"
	"testing"

	"cortex-engine/internal/types"
	"cortex-engine/internal/vecstore"
)

func newTestIndex(t *testing.T, dim int) *Index {
	t.Helper()
	store, err := vecstore.NewMmapStore(filepath.Join(t.TempDir(), "vectors.bin"), dim)
	if err != nil {
		t.Fatalf("failed to create vector store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(DefaultConfig(dim), store, nil)
}

func TestEmptyIndexSearchReturnsEmpty(t *testing.T) {
	idx := newTestIndex(t, 4)
	results, err := idx.Search(types.Embedding{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("search on empty index: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestIdentityRetrieval(t *testing.T) {
	idx := newTestIndex(t, 4)
	inserted, err := idx.Add("doc1", types.Embedding{1, 0, 0, 0}, "hello world", nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !inserted {
		t.Fatalf("expected inserted=true")
	}

	results, err := idx.Search(types.Embedding{1, 0, 0, 0}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Content != "hello world" {
		t.Fatalf("unexpected content: %q", results[0].Content)
	}
	if results[0].Score < 0.99 {
		t.Fatalf("expected similarity >= 0.99, got %f", results[0].Score)
	}
}

func TestAddDuplicateDocIDReturnsFalse(t *testing.T) {
	idx := newTestIndex(t, 3)
	if _, err := idx.Add("doc1", types.Embedding{1, 0, 0}, "a", nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	inserted, err := idx.Add("doc1", types.Embedding{0, 1, 0}, "b", nil)
	if err != nil {
		t.Fatalf("add duplicate: %v", err)
	}
	if inserted {
		t.Fatalf("expected inserted=false for duplicate doc_id")
	}
}

func TestAddDimensionMismatch(t *testing.T) {
	idx := newTestIndex(t, 4)
	_, err := idx.Add("doc1", types.Embedding{1, 0, 0}, "a", nil)
	if err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestRemoveTombstonesAndHidesFromResults(t *testing.T) {
	idx := newTestIndex(t, 3)
	idx.Add("doc1", types.Embedding{1, 0, 0}, "one", nil)
	idx.Add("doc2", types.Embedding{0, 1, 0}, "two", nil)

	if !idx.Remove("doc1") {
		t.Fatalf("expected remove to succeed")
	}
	if idx.HasDocument("doc1") {
		t.Fatalf("expected doc1 to be gone")
	}
	if idx.Remove("doc1") {
		t.Fatalf("expected second remove to return false")
	}

	results, err := idx.Search(types.Embedding{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, r := range results {
		if r.Content == "one" {
			t.Fatalf("tombstoned document leaked into results")
		}
	}
}

func TestSizeTracksAddAndRemove(t *testing.T) {
	idx := newTestIndex(t, 2)
	idx.Add("a", types.Embedding{1, 0}, "a", nil)
	idx.Add("b", types.Embedding{0, 1}, "b", nil)
	idx.Add("c", types.Embedding{1, 1}, "c", nil)
	if idx.Size() != 3 {
		t.Fatalf("expected size 3, got %d", idx.Size())
	}
	idx.Remove("b")
	if idx.Size() != 2 {
		t.Fatalf("expected size 2 after remove, got %d", idx.Size())
	}
}

func TestCapacityExceeded(t *testing.T) {
	store, err := vecstore.NewMmapStore(filepath.Join(t.TempDir(), "vectors.bin"), 2)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer store.Close()

	cfg := DefaultConfig(2)
	cfg.MaxElements = 1
	idx := New(cfg, store, nil)

	if _, err := idx.Add("a", types.Embedding{1, 0}, "a", nil); err != nil {
		t.Fatalf("first add: %v", err)
	}
	_, err = idx.Add("b", types.Embedding{0, 1}, "b", nil)
	if err == nil {
		t.Fatalf("expected capacity exceeded error")
	}
}

func TestClearResetsIndex(t *testing.T) {
	idx := newTestIndex(t, 2)
	idx.Add("a", types.Embedding{1, 0}, "a", nil)
	idx.Clear()
	if idx.Size() != 0 {
		t.Fatalf("expected size 0 after clear")
	}
	results, err := idx.Search(types.Embedding{1, 0}, 5)
	if err != nil {
		t.Fatalf("search after clear: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results after clear")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	vecPath := filepath.Join(dir, "vectors.bin")
	snapshotPath := filepath.Join(dir, "index.snap")

	store, err := vecstore.NewMmapStore(vecPath, 3)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	idx := New(DefaultConfig(3), store, nil)

	idx.Add("doc1", types.Embedding{1, 0, 0}, "one", types.Metadata{"k": "v"})
	idx.Add("doc2", types.Embedding{0, 1, 0}, "two", nil)
	idx.Add("doc3", types.Embedding{0, 0, 1}, "three", nil)

	before, err := idx.Search(types.Embedding{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("search before save: %v", err)
	}

	if err := idx.Save(snapshotPath); err != nil {
		t.Fatalf("save: %v", err)
	}
	store.Close()

	store2, err := vecstore.NewMmapStore(filepath.Join(dir, "vectors2.bin"), 3)
	if err != nil {
		t.Fatalf("create fresh store: %v", err)
	}
	defer store2.Close()
	idx2 := New(DefaultConfig(3), store2, nil)

	if err := idx2.Load(snapshotPath); err != nil {
		t.Fatalf("load: %v", err)
	}

	after, err := idx2.Search(types.Embedding{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("search after load: %v", err)
	}

	if len(before) != len(after) {
		t.Fatalf("result count mismatch: before=%d after=%d", len(before), len(after))
	}
	for i := range before {
		if before[i].Content != after[i].Content {
			t.Fatalf("content mismatch at %d: %q vs %q", i, before[i].Content, after[i].Content)
		}
		if diff := before[i].Score - after[i].Score; diff > 1e-5 || diff < -1e-5 {
			t.Fatalf("score mismatch at %d: %f vs %f", i, before[i].Score, after[i].Score)
		}
	}

	if idx2.Size() != 3 {
		t.Fatalf("expected size 3 after load, got %d", idx2.Size())
	}
}

func TestLoadMissingSidecarFails(t *testing.T) {
	dir := t.TempDir()
	store, err := vecstore.NewMmapStore(filepath.Join(dir, "vectors.bin"), 2)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer store.Close()
	idx := New(DefaultConfig(2), store, nil)

	if err := idx.Load(filepath.Join(dir, "nonexistent.snap")); err == nil {
		t.Fatalf("expected error loading missing snapshot")
	}
	if idx.Size() != 0 {
		t.Fatalf("expected index to remain empty after failed load")
	}
}
