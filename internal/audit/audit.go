// Package audit persists a query audit log keyed by a generated run
// ID, one bbolt record per processed query. Grounded on the teacher's
// metadata store (internal/storage.BoltMetadataStore in the pack):
// same bucket-per-kind, JSON-marshaled-value approach over
// go.etcd.io/bbolt, repurposed here since document/chunk metadata
// moved into the vector index's own snapshot sidecar.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"cortex-engine/internal/types"
)

var bucketQueries = []byte("queries")

// Record is one logged query pass: the inputs, the response text, and
// the reasoning trace produced.
type Record struct {
	RunID          string                `json:"run_id"`
	Query          string                `json:"query"`
	ResponseText   string                `json:"response_text"`
	EvidenceScore  float32               `json:"evidence_score"`
	ReasoningSteps []types.ReasoningStep `json:"reasoning_steps"`
	TimestampMs    int64                 `json:"timestamp_ms"`
}

// Log is a bbolt-backed append-only query audit log.
type Log struct {
	db *bbolt.DB
}

// Open creates or opens the audit log at path, creating the queries
// bucket if absent.
func Open(path string) (*Log, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketQueries)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Log{db: db}, nil
}

// Record writes one query record under a freshly generated run ID and
// returns it.
func (l *Log) Record(query, responseText string, evidenceScore float32, steps []types.ReasoningStep, timestampMs int64) (string, error) {
	runID := uuid.NewString()
	rec := Record{
		RunID:          runID,
		Query:          query,
		ResponseText:   responseText,
		EvidenceScore:  evidenceScore,
		ReasoningSteps: steps,
		TimestampMs:    timestampMs,
	}
	err := l.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQueries)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(runID), data)
	})
	if err != nil {
		return "", err
	}
	return runID, nil
}

// Get returns the record for a run ID.
func (l *Log) Get(runID string) (*Record, error) {
	var rec Record
	err := l.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQueries)
		data := b.Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("audit record not found: %s", runID)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Recent returns up to n most recently written records, newest first.
// bbolt buckets are ordered by key, and uuid v4 keys carry no temporal
// ordering, so Recent scans the full bucket and sorts by TimestampMs;
// callers with large logs should prefer Get by known run ID.
func (l *Log) Recent(n int) ([]Record, error) {
	var records []Record
	err := l.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQueries)
		return b.ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			if records[j].TimestampMs > records[i].TimestampMs {
				records[i], records[j] = records[j], records[i]
			}
		}
	}
	if len(records) > n {
		records = records[:n]
	}
	return records, nil
}

// Close closes the underlying database file.
func (l *Log) Close() error {
	return l.db.Close()
}
