// Package vecstore holds the raw, append-only vector storage that
// backs the HNSW index: a flat array of fixed-dimension float32
// vectors addressed by a monotonically assigned uint64 id.
package vecstore

import "cortex-engine/internal/types"

// Store is the append-only raw vector storage the vector index layers
// its graph structure on top of. Ids are assigned by Append and are
// never reused, matching the index's internal_id contract.
type Store interface {
	// Append adds a vector and returns its assigned id.
	Append(vector types.Embedding) (uint64, error)

	// Get retrieves a vector by id.
	Get(id uint64) (types.Embedding, error)

	// Count returns the number of vectors ever appended.
	Count() uint64

	// Close flushes and closes the store.
	Close() error
}
