package vectorindex

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"cortex-engine/internal/cortexerr"
	"cortex-engine/internal/types"
)

var indexFileMagic = [8]byte{'C', 'O', 'R', 'I', 'D', 'X', '0', '1'}

type metaDocument struct {
	DocID      string          `json:"doc_id"`
	Content    string          `json:"content"`
	Metadata   types.Metadata  `json:"metadata"`
	InternalID uint64          `json:"internal_id"`
}

type sidecarMeta struct {
	Dim            int            `json:"dim"`
	MaxElements    uint64         `json:"max_elements"`
	M              int            `json:"m"`
	EfConstruction int            `json:"ef_construction"`
	EfSearch       int            `json:"ef_search"`
	SpaceType      string         `json:"space_type"`
	NextInternalID uint64         `json:"next_internal_id"`
	Documents      []metaDocument `json:"documents"`
}

// Save writes the index as an atomic pair: <path> holds the binary
// graph structure and vectors, <path>.meta holds the JSON sidecar.
// The binary file is written first, then the sidecar, so a load that
// finds a missing sidecar knows the snapshot never completed.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := idx.writeBinary(path); err != nil {
		return cortexerr.Wrap(cortexerr.PersistenceError, "failed to write index binary", err)
	}
	if err := idx.writeMeta(path + ".meta"); err != nil {
		return cortexerr.Wrap(cortexerr.PersistenceError, "failed to write index sidecar", err)
	}
	idx.logger.Info("vector index snapshot saved", "path", path, "live_documents", idx.liveCount)
	return nil
}

func (idx *Index) writeBinary(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	nextID := idx.vecs.Count()

	header := make([]byte, 0, 8+8*4)
	header = append(header, indexFileMagic[:]...)
	header = binary.LittleEndian.AppendUint64(header, uint64(idx.cfg.Dim))
	header = binary.LittleEndian.AppendUint64(header, nextID)
	header = binary.LittleEndian.AppendUint64(header, idx.entryPoint)
	header = binary.LittleEndian.AppendUint64(header, uint64(int64(idx.currentMaxLevel)))
	if _, err := w.Write(header); err != nil {
		return err
	}

	for id := uint64(0); id < nextID; id++ {
		n := idx.nodes[id]
		level := 0
		if n != nil {
			level = n.Level
		}
		tomb := byte(0)
		if idx.tombstoned[id] {
			tomb = 1
		}

		rec := make([]byte, 0, 8+1+4)
		rec = binary.LittleEndian.AppendUint64(rec, id)
		rec = append(rec, tomb)
		rec = binary.LittleEndian.AppendUint32(rec, uint32(level))
		if _, err := w.Write(rec); err != nil {
			return err
		}

		vec, err := idx.vecs.Get(id)
		if err != nil {
			return fmt.Errorf("missing vector for internal id %d: %w", id, err)
		}
		vecBuf := make([]byte, len(vec)*4)
		for i, x := range vec {
			binary.LittleEndian.PutUint32(vecBuf[i*4:], math.Float32bits(x))
		}
		if _, err := w.Write(vecBuf); err != nil {
			return err
		}

		if n != nil {
			for l := 0; l <= n.Level; l++ {
				neighbors := n.Neighbors[l]
				lenBuf := make([]byte, 4)
				binary.LittleEndian.PutUint32(lenBuf, uint32(len(neighbors)))
				if _, err := w.Write(lenBuf); err != nil {
					return err
				}
				nbBuf := make([]byte, len(neighbors)*8)
				for i, nb := range neighbors {
					binary.LittleEndian.PutUint64(nbBuf[i*8:], nb)
				}
				if _, err := w.Write(nbBuf); err != nil {
					return err
				}
			}
		} else {
			// A stored vector with no graph node (left behind by Clear)
			// is written as level 0 with an empty neighbor list, the
			// record shape Load reads for every id.
			if _, err := w.Write(make([]byte, 4)); err != nil {
				return err
			}
		}
	}

	return w.Flush()
}

func (idx *Index) writeMeta(path string) error {
	docs := make([]metaDocument, 0, len(idx.internalToDoc))
	for _, d := range idx.internalToDoc {
		docs = append(docs, metaDocument{DocID: d.DocID, Content: d.Content, Metadata: d.Metadata, InternalID: d.InternalID})
	}

	meta := sidecarMeta{
		Dim:            idx.cfg.Dim,
		MaxElements:    idx.cfg.MaxElements,
		M:              idx.cfg.M,
		EfConstruction: idx.cfg.EfConstruction,
		EfSearch:       idx.cfg.EfSearch,
		SpaceType:      idx.cfg.Space.String(),
		NextInternalID: idx.vecs.Count(),
		Documents:      docs,
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load replaces the index's state from a snapshot pair written by
// Save. The underlying vector store passed to New must be empty: Load
// replays vectors into it in id order to reconstruct the monotonic
// internal_id sequence. On any failure the index's in-memory graph,
// document mappings, and config are left unchanged; a failure while
// replaying vectors leaves the already-appended vectors in the store
// (see the note on the replay loop below).
func (idx *Index) Load(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.vecs.Count() != 0 {
		return cortexerr.New(cortexerr.PersistenceError, "vector store must be empty before load")
	}

	metaPath := path + ".meta"
	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return cortexerr.Wrap(cortexerr.PersistenceError, "missing or unreadable sidecar", err)
	}
	var meta sidecarMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return cortexerr.Wrap(cortexerr.PersistenceError, "invalid sidecar JSON", err)
	}
	if meta.Dim != idx.cfg.Dim {
		return cortexerr.New(cortexerr.DimensionMismatch, "snapshot dim does not match index dim")
	}

	f, err := os.Open(path)
	if err != nil {
		return cortexerr.Wrap(cortexerr.PersistenceError, "missing or unreadable binary snapshot", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	header := make([]byte, 8+8*4)
	if _, err := io.ReadFull(r, header); err != nil {
		return cortexerr.Wrap(cortexerr.PersistenceError, "truncated snapshot header", err)
	}
	var magic [8]byte
	copy(magic[:], header[:8])
	if magic != indexFileMagic {
		return cortexerr.New(cortexerr.PersistenceError, "invalid snapshot magic")
	}
	dim := binary.LittleEndian.Uint64(header[8:16])
	count := binary.LittleEndian.Uint64(header[16:24])
	entryPoint := binary.LittleEndian.Uint64(header[24:32])
	currentMaxLevel := int(int64(binary.LittleEndian.Uint64(header[32:40])))

	if int(dim) != idx.cfg.Dim {
		return cortexerr.New(cortexerr.DimensionMismatch, "snapshot binary dim does not match index dim")
	}

	newNodes := make(map[uint64]*node, count)
	newTombstoned := make(map[uint64]bool)
	vectors := make([]types.Embedding, count)

	for id := uint64(0); id < count; id++ {
		rec := make([]byte, 8+1+4)
		if _, err := io.ReadFull(r, rec); err != nil {
			return cortexerr.Wrap(cortexerr.PersistenceError, "truncated node record", err)
		}
		recID := binary.LittleEndian.Uint64(rec[0:8])
		tomb := rec[8] != 0
		level := int(binary.LittleEndian.Uint32(rec[9:13]))
		if recID != id {
			return cortexerr.New(cortexerr.PersistenceError, "snapshot node id out of order")
		}

		vecBuf := make([]byte, int(dim)*4)
		if _, err := io.ReadFull(r, vecBuf); err != nil {
			return cortexerr.Wrap(cortexerr.PersistenceError, "truncated vector data", err)
		}
		vec := make(types.Embedding, dim)
		for i := range vec {
			vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(vecBuf[i*4:]))
		}
		vectors[id] = vec

		n := &node{ID: id, Level: level, Neighbors: make([][]uint64, level+1)}
		for l := 0; l <= level; l++ {
			lenBuf := make([]byte, 4)
			if _, err := io.ReadFull(r, lenBuf); err != nil {
				return cortexerr.Wrap(cortexerr.PersistenceError, "truncated neighbor count", err)
			}
			nCount := binary.LittleEndian.Uint32(lenBuf)
			nbBuf := make([]byte, int(nCount)*8)
			if nCount > 0 {
				if _, err := io.ReadFull(r, nbBuf); err != nil {
					return cortexerr.Wrap(cortexerr.PersistenceError, "truncated neighbor list", err)
				}
			}
			neighbors := make([]uint64, nCount)
			for i := range neighbors {
				neighbors[i] = binary.LittleEndian.Uint64(nbBuf[i*8:])
			}
			n.Neighbors[l] = neighbors
		}
		newNodes[id] = n
		if tomb {
			newTombstoned[id] = true
		}
	}

	newDocIDToInternal := make(map[string]uint64, len(meta.Documents))
	newInternalToDoc := make(map[uint64]*types.Document, len(meta.Documents))
	for _, d := range meta.Documents {
		doc := &types.Document{DocID: d.DocID, Content: d.Content, Metadata: d.Metadata, InternalID: d.InternalID}
		newDocIDToInternal[d.DocID] = d.InternalID
		newInternalToDoc[d.InternalID] = doc
	}

	// Every node record and vector has already been read and validated
	// above into newNodes/vectors; nothing here can fail on malformed
	// input anymore. The one remaining failure mode is the underlying
	// mmap store itself refusing an Append (disk full, remap failure).
	// vecs is append-only, so a failure partway through this loop
	// leaves it holding the vectors written so far even though idx's
	// own maps are untouched until the state-commit block below: the
	// index and its store end up disagreeing on count, and the
	// vecs.Count() != 0 precondition at the top of Load means the
	// caller cannot simply retry against the same store. A caller that
	// hits this error must discard the store and reopen a fresh one
	// before calling Load again.
	for id := uint64(0); id < count; id++ {
		assigned, err := idx.vecs.Append(vectors[id])
		if err != nil {
			return cortexerr.Wrap(cortexerr.PersistenceError, "failed replaying vectors into store, store must be recreated before retrying", err)
		}
		if assigned != id {
			return cortexerr.New(cortexerr.PersistenceError, "vector store assigned unexpected id during replay")
		}
	}

	idx.cfg.MaxElements = meta.MaxElements
	idx.cfg.M = meta.M
	idx.cfg.EfConstruction = meta.EfConstruction
	idx.cfg.EfSearch = meta.EfSearch
	idx.cfg.Space = spaceFromString(meta.SpaceType)
	idx.nodes = newNodes
	idx.tombstoned = newTombstoned
	idx.docIDToInternal = newDocIDToInternal
	idx.internalToDoc = newInternalToDoc
	idx.entryPoint = entryPoint
	idx.currentMaxLevel = currentMaxLevel
	idx.liveCount = uint64(len(newDocIDToInternal))

	idx.logger.Info("vector index snapshot loaded", "path", path, "live_documents", idx.liveCount)
	return nil
}
