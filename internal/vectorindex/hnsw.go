package vectorindex

import (
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync"

	"cortex-engine/internal/cortexerr"
	"cortex-engine/internal/types"
	"cortex-engine/internal/vecstore"
)

// node is one entry in the layered proximity graph: a level and a
// per-level list of neighbor ids, indexed by internal id.
type node struct {
	ID        uint64
	Level     int
	Neighbors [][]uint64
}

// Index is the HNSW-style ANN index. All mutating and searching
// operations share a single exclusive lock: the underlying graph is
// not safe for concurrent read/write interleaving (spec §5).
type Index struct {
	mu     sync.RWMutex
	cfg    Config
	vecs   vecstore.Store
	logger *slog.Logger

	nodes           map[uint64]*node
	tombstoned      map[uint64]bool
	docIDToInternal map[string]uint64
	internalToDoc   map[uint64]*types.Document

	entryPoint      uint64
	currentMaxLevel int
	liveCount       uint64

	rng *rand.Rand
}

// New builds an empty index over vecs, which must already be a
// dim-dimensional vector store per cfg.
func New(cfg Config, vecs vecstore.Store, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		cfg:             cfg,
		vecs:            vecs,
		logger:          logger,
		nodes:           make(map[uint64]*node),
		tombstoned:      make(map[uint64]bool),
		docIDToInternal: make(map[string]uint64),
		internalToDoc:   make(map[uint64]*types.Document),
		currentMaxLevel: -1,
		rng:             rand.New(rand.NewSource(rand.Int63())),
	}
}

// Add inserts a new document. It returns false (not an error) when
// doc_id already exists.
func (idx *Index) Add(docID string, embedding types.Embedding, content string, metadata types.Metadata) (bool, error) {
	if len(embedding) != idx.cfg.Dim {
		return false, cortexerr.New(cortexerr.DimensionMismatch, "embedding length does not match index dimension")
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.docIDToInternal[docID]; exists {
		return false, nil
	}
	if idx.liveCount >= idx.cfg.MaxElements {
		return false, cortexerr.New(cortexerr.CapacityExceeded, "index is at max_elements capacity")
	}

	vec := normalize(embedding)
	internalID, err := idx.vecs.Append(vec)
	if err != nil {
		return false, cortexerr.Wrap(cortexerr.PersistenceError, "failed to append vector", err)
	}

	idx.insertNode(internalID, vec)

	doc := &types.Document{DocID: docID, Content: content, Metadata: metadata, InternalID: internalID}
	idx.docIDToInternal[docID] = internalID
	idx.internalToDoc[internalID] = doc
	idx.liveCount++

	return true, nil
}

func (idx *Index) insertNode(id uint64, vec types.Embedding) {
	level := idx.randomLevel()
	n := &node{ID: id, Level: level, Neighbors: make([][]uint64, level+1)}
	idx.nodes[id] = n

	if idx.currentMaxLevel == -1 {
		idx.entryPoint = id
		idx.currentMaxLevel = level
		return
	}

	currEntry := idx.entryPoint

	for l := idx.currentMaxLevel; l > level; l-- {
		epVec, _ := idx.vecs.Get(currEntry)
		currEntry, _ = idx.greedyClosest(vec, currEntry, epVec, l)
	}

	for l := min(level, idx.currentMaxLevel); l >= 0; l-- {
		candidates := idx.searchLayer(vec, currEntry, idx.cfg.EfConstruction, l)
		selected := idx.selectNeighborsHeuristic(vec, candidates, idx.cfg.maxConnections(l))
		selectedIDs := make([]uint64, len(selected))
		for i, c := range selected {
			selectedIDs[i] = c.id
		}
		n.Neighbors[l] = selectedIDs

		for _, neighborID := range selectedIDs {
			idx.connect(neighborID, id, l)
		}

		if len(selectedIDs) > 0 {
			currEntry = selectedIDs[0]
		}
	}

	if level > idx.currentMaxLevel {
		idx.entryPoint = id
		idx.currentMaxLevel = level
	}
}

// connect adds a bidirectional edge from neighborID to id at level l,
// pruning neighborID's adjacency back down to its connection budget
// with the same diversity heuristic used at insert time.
func (idx *Index) connect(neighborID, id uint64, level int) {
	neighbor := idx.nodes[neighborID]
	if neighbor == nil || level > neighbor.Level {
		return
	}
	neighbor.Neighbors[level] = append(neighbor.Neighbors[level], id)

	limit := idx.cfg.maxConnections(level)
	if len(neighbor.Neighbors[level]) <= limit {
		return
	}

	neighborVec, _ := idx.vecs.Get(neighborID)
	cands := make([]candidate, 0, len(neighbor.Neighbors[level]))
	for _, nid := range neighbor.Neighbors[level] {
		nVec, err := idx.vecs.Get(nid)
		if err != nil {
			continue
		}
		cands = append(cands, candidate{id: nid, dist: idx.distance(neighborVec, nVec)})
	}
	selected := idx.selectNeighborsHeuristic(neighborVec, cands, limit)
	ids := make([]uint64, len(selected))
	for i, c := range selected {
		ids[i] = c.id
	}
	neighbor.Neighbors[level] = ids
}

type candidate struct {
	id   uint64
	dist float32
}

// greedyClosest performs the single-best-neighbor descent HNSW uses
// through the upper layers.
func (idx *Index) greedyClosest(query types.Embedding, entry uint64, entryVec types.Embedding, level int) (uint64, float32) {
	curr := entry
	currDist := idx.distance(query, entryVec)

	changed := true
	for changed {
		changed = false
		n := idx.nodes[curr]
		if n == nil || level > n.Level {
			break
		}
		for _, neighborID := range n.Neighbors[level] {
			nVec, err := idx.vecs.Get(neighborID)
			if err != nil {
				continue
			}
			d := idx.distance(query, nVec)
			if d < currDist {
				currDist = d
				curr = neighborID
				changed = true
			}
		}
	}
	return curr, currDist
}

// searchLayer runs the ef-bounded best-first expansion at one level
// and returns up to ef candidates sorted by ascending distance,
// including tombstoned nodes (so the graph stays traversable through
// them; callers filter tombstones out of final results).
func (idx *Index) searchLayer(query types.Embedding, entry uint64, ef int, level int) []candidate {
	entryVec, err := idx.vecs.Get(entry)
	if err != nil {
		return nil
	}

	visited := map[uint64]bool{entry: true}
	entryDist := idx.distance(query, entryVec)

	candidates := []candidate{{entry, entryDist}}
	results := []candidate{{entry, entryDist}}

	for len(candidates) > 0 {
		c := candidates[0]
		candidates = candidates[1:]

		if len(results) >= ef && c.dist > results[len(results)-1].dist {
			continue
		}

		n := idx.nodes[c.id]
		if n == nil || level > n.Level {
			continue
		}
		for _, neighborID := range n.Neighbors[level] {
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true

			nVec, err := idx.vecs.Get(neighborID)
			if err != nil {
				continue
			}
			d := idx.distance(query, nVec)

			if len(results) < ef || d < results[len(results)-1].dist {
				res := candidate{neighborID, d}
				candidates = append(candidates, res)
				results = append(results, res)

				sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
				if len(results) > ef {
					results = results[:ef]
				}
				sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
			}
		}
	}

	return results
}

// selectNeighborsHeuristic implements the diversity-preferring
// neighbor selection: a candidate is kept only if it is closer to the
// query than to every neighbor already selected, which avoids
// clustering all connections in one direction.
func (idx *Index) selectNeighborsHeuristic(query types.Embedding, candidates []candidate, m int) []candidate {
	sorted := make([]candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].dist < sorted[j].dist })

	selected := make([]candidate, 0, m)
	for _, c := range sorted {
		if len(selected) >= m {
			break
		}
		cVec, err := idx.vecs.Get(c.id)
		if err != nil {
			continue
		}
		good := true
		for _, r := range selected {
			rVec, err := idx.vecs.Get(r.id)
			if err != nil {
				continue
			}
			if idx.distance(cVec, rVec) < c.dist {
				good = false
				break
			}
		}
		if good {
			selected = append(selected, c)
		}
	}

	// Backfill with the closest leftovers if the heuristic pruned too
	// aggressively, so a node is never left with fewer neighbors than
	// candidates available.
	if len(selected) < m {
		have := make(map[uint64]bool, len(selected))
		for _, s := range selected {
			have[s.id] = true
		}
		for _, c := range sorted {
			if len(selected) >= m {
				break
			}
			if !have[c.id] {
				selected = append(selected, c)
			}
		}
	}

	return selected
}

// Search returns up to k results in descending similarity. An empty
// index returns an empty slice, not an error.
func (idx *Index) Search(query types.Embedding, k int) ([]types.ScoredResult, error) {
	if len(query) != idx.cfg.Dim {
		return nil, cortexerr.New(cortexerr.DimensionMismatch, "query embedding length does not match index dimension")
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.currentMaxLevel == -1 {
		return []types.ScoredResult{}, nil
	}

	q := normalize(query)

	currEntry := idx.entryPoint
	for l := idx.currentMaxLevel; l > 0; l-- {
		epVec, err := idx.vecs.Get(currEntry)
		if err != nil {
			break
		}
		currEntry, _ = idx.greedyClosest(q, currEntry, epVec, l)
	}

	ef := idx.cfg.EfSearch
	if ef < k {
		ef = k
	}
	candidates := idx.searchLayer(q, currEntry, ef, 0)

	results := make([]types.ScoredResult, 0, k)
	for _, c := range candidates {
		if idx.tombstoned[c.id] {
			continue
		}
		doc := idx.internalToDoc[c.id]
		if doc == nil {
			continue
		}
		results = append(results, types.ScoredResult{
			Content: doc.Content,
			Score:   idx.similarity(c.dist),
			Source:  types.SourceVector,
		})
		if len(results) == k {
			break
		}
	}

	return results, nil
}

// Remove soft-deletes a document: the doc_id mapping is dropped and
// its ANN node is tombstoned in place.
func (idx *Index) Remove(docID string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	internalID, ok := idx.docIDToInternal[docID]
	if !ok {
		return false
	}
	delete(idx.docIDToInternal, docID)
	delete(idx.internalToDoc, internalID)
	idx.tombstoned[internalID] = true
	idx.liveCount--
	return true
}

// HasDocument reports whether doc_id is currently live (not removed).
func (idx *Index) HasDocument(docID string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.docIDToInternal[docID]
	return ok
}

// Get returns the live document record for doc_id, if any.
func (idx *Index) Get(docID string) (*types.Document, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	internalID, ok := idx.docIDToInternal[docID]
	if !ok {
		return nil, false
	}
	doc := idx.internalToDoc[internalID]
	if doc == nil {
		return nil, false
	}
	cp := *doc
	return &cp, true
}

// Size returns the live document count.
func (idx *Index) Size() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.liveCount
}

// Statistics reports a point-in-time snapshot of index shape.
func (idx *Index) Statistics() Statistics {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Statistics{
		LiveDocuments:   idx.liveCount,
		TotalNodes:      len(idx.nodes),
		Tombstoned:      len(idx.tombstoned),
		CurrentMaxLevel: idx.currentMaxLevel,
		EfSearch:        idx.cfg.EfSearch,
		Dim:             idx.cfg.Dim,
	}
}

// SetEfSearch adjusts the search-time expansion factor.
func (idx *Index) SetEfSearch(ef int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.cfg.EfSearch = ef
}

// Clear resets the in-memory graph and document mappings. It does not
// truncate the underlying vector store; internal ids keep advancing
// from wherever that store's Count() is.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.nodes = make(map[uint64]*node)
	idx.tombstoned = make(map[uint64]bool)
	idx.docIDToInternal = make(map[string]uint64)
	idx.internalToDoc = make(map[uint64]*types.Document)
	idx.entryPoint = 0
	idx.currentMaxLevel = -1
	idx.liveCount = 0
}

func (idx *Index) randomLevel() int {
	mL := 1.0 / math.Log(float64(idx.cfg.M))
	level := int(math.Floor(-math.Log(idx.rng.Float64()+1e-12) * mL))
	const capLevel = 32
	if level > capLevel {
		level = capLevel
	}
	return level
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
