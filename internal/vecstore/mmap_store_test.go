package vecstore

import (
	"path/filepath"
	"testing"

	"cortex-engine/internal/types"
)

func TestMmapStoreAppendAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")

	store, err := NewMmapStore(path, 2)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	id1, err := store.Append(types.Embedding{1.0, 2.0})
	if err != nil {
		t.Fatalf("append vec1: %v", err)
	}
	if id1 != 0 {
		t.Errorf("expected id 0, got %d", id1)
	}

	id2, err := store.Append(types.Embedding{3.0, 4.0})
	if err != nil {
		t.Fatalf("append vec2: %v", err)
	}
	if id2 != 1 {
		t.Errorf("expected id 1, got %d", id2)
	}

	if got := store.Count(); got != 2 {
		t.Errorf("expected count 2, got %d", got)
	}

	v1, err := store.Get(0)
	if err != nil {
		t.Fatalf("get vec1: %v", err)
	}
	if v1[0] != 1.0 || v1[1] != 2.0 {
		t.Errorf("vec1 mismatch: %v", v1)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store2, err := NewMmapStore(path, 2)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store2.Close()

	if got := store2.Count(); got != 2 {
		t.Errorf("reopened count mismatch: expected 2, got %d", got)
	}
	v2, err := store2.Get(1)
	if err != nil {
		t.Fatalf("get vec2 after reopen: %v", err)
	}
	if v2[0] != 3.0 || v2[1] != 4.0 {
		t.Errorf("vec2 mismatch after reopen: %v", v2)
	}
}

func TestMmapStoreDimMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")

	store, err := NewMmapStore(path, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Append(types.Embedding{1, 2}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := NewMmapStore(path, 3); err == nil {
		t.Fatalf("expected error on dim mismatch, got nil")
	}
}

func TestMmapStoreAppendDimMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	store, err := NewMmapStore(path, 4)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer store.Close()

	if _, err := store.Append(types.Embedding{1, 2}); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestMmapStoreGrowsPastInitialCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	store, err := NewMmapStore(path, 3)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer store.Close()

	for i := 0; i < 5000; i++ {
		if _, err := store.Append(types.Embedding{float32(i), 0, 0}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if got := store.Count(); got != 5000 {
		t.Fatalf("expected count 5000, got %d", got)
	}

	v, err := store.Get(4999)
	if err != nil {
		t.Fatalf("get last: %v", err)
	}
	if v[0] != 4999 {
		t.Fatalf("last vector mismatch: %v", v)
	}
}

func TestMmapStoreOutOfBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	store, err := NewMmapStore(path, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer store.Close()

	if _, err := store.Get(0); err == nil {
		t.Fatalf("expected out-of-bounds error on empty store")
	}
}
