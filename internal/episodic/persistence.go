package episodic

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"cortex-engine/internal/cortexerr"
	"cortex-engine/internal/types"
)

// formatVersion is written as the first column of every record so a
// later reader can tell on-disk episode dialects apart; Load does not
// check it. Version 2 replaces an earlier lossy, unquoted comma split
// with a proper quoted-CSV encoding (encoding/csv) and folds the
// embedding into one space-separated field instead of one column per
// dimension.
const formatVersion = "2"

var header = []string{"format_version", "query", "response", "timestamp_ms", "embedding_dim", "embedding", "metadata"}

// Save writes the buffer to a line-oriented, quoted-CSV file: a header
// row naming the columns, then one record per episode.
func (b *Buffer) Save(path string) error {
	b.mu.Lock()
	snapshot := make([]Episode, len(b.episodes))
	copy(snapshot, b.episodes)
	b.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return cortexerr.Wrap(cortexerr.PersistenceError, "failed to create episode file", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return cortexerr.Wrap(cortexerr.PersistenceError, "failed to write episode header", err)
	}

	for _, e := range snapshot {
		metaJSON, err := json.Marshal(e.Metadata)
		if err != nil {
			return cortexerr.Wrap(cortexerr.PersistenceError, "failed to encode episode metadata", err)
		}

		embeddingFields := make([]string, len(e.Embedding))
		for i, v := range e.Embedding {
			embeddingFields[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
		}

		record := []string{
			formatVersion,
			e.Query,
			e.Response,
			strconv.FormatInt(e.TimestampMs, 10),
			strconv.Itoa(len(e.Embedding)),
			strings.Join(embeddingFields, " "),
			string(metaJSON),
		}
		if err := w.Write(record); err != nil {
			return cortexerr.Wrap(cortexerr.PersistenceError, "failed to write episode record", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return cortexerr.Wrap(cortexerr.PersistenceError, "failed to flush episode file", err)
	}
	return nil
}

// Load replaces the buffer's contents from a file written by Save.
// Idempotent with Save: loading immediately after saving reproduces
// the same episodes in the same order. Episodes whose embedding_dim
// declares no vector (or whose recorded dim mismatches the buffer's
// configured dim) are filled with a zero vector of the buffer's
// declared dimension and flagged EmbeddingZeroFilled.
func (b *Buffer) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return cortexerr.Wrap(cortexerr.PersistenceError, "failed to open episode file", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return cortexerr.Wrap(cortexerr.PersistenceError, "failed to parse episode file", err)
	}
	if len(rows) == 0 {
		return cortexerr.New(cortexerr.PersistenceError, "empty episode file (missing header)")
	}

	loaded := make([]Episode, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 7 {
			return cortexerr.New(cortexerr.PersistenceError, fmt.Sprintf("malformed episode record: %d fields", len(row)))
		}

		tsMs, err := strconv.ParseInt(row[3], 10, 64)
		if err != nil {
			return cortexerr.Wrap(cortexerr.PersistenceError, "invalid timestamp_ms", err)
		}
		declaredDim, err := strconv.Atoi(row[4])
		if err != nil {
			return cortexerr.Wrap(cortexerr.PersistenceError, "invalid embedding_dim", err)
		}

		var embedding types.Embedding
		zeroFilled := false
		fields := strings.Fields(row[5])
		if declaredDim == 0 || declaredDim != b.dim || len(fields) != declaredDim {
			embedding = make(types.Embedding, b.dim)
			zeroFilled = true
		} else {
			embedding = make(types.Embedding, declaredDim)
			for i, s := range fields {
				v, err := strconv.ParseFloat(s, 32)
				if err != nil {
					return cortexerr.Wrap(cortexerr.PersistenceError, "invalid embedding component", err)
				}
				embedding[i] = float32(v)
			}
		}

		var metadata map[string]string
		if row[6] != "" && row[6] != "null" {
			if err := json.Unmarshal([]byte(row[6]), &metadata); err != nil {
				return cortexerr.Wrap(cortexerr.PersistenceError, "invalid episode metadata JSON", err)
			}
		}

		loaded = append(loaded, Episode{
			Query:               row[1],
			Response:            row[2],
			Embedding:           embedding,
			TimestampMs:         tsMs,
			Metadata:            metadata,
			EmbeddingZeroFilled: zeroFilled,
		})
	}

	if len(loaded) > b.capacity {
		loaded = loaded[len(loaded)-b.capacity:]
	}

	b.mu.Lock()
	b.episodes = loaded
	b.mu.Unlock()

	b.logger.Info("episodic buffer loaded", "path", path, "episodes", len(loaded))
	return nil
}
