// Package fusion combines the vector, episodic, and semantic result
// streams into a single ranked list via a content-keyed weighted sum.
// See spec §4.4.
package fusion

import (
	"sort"
	"sync"

	"cortex-engine/internal/cortexerr"
	"cortex-engine/internal/types"
)

const learningRate = 0.1

// Fusion holds the current source weights and the lock guarding
// updates to them. Fuse itself is stateless per call; only weight
// mutation is synchronized.
type Fusion struct {
	mu      sync.Mutex
	weights types.FusionWeights
}

// New creates a Fusion with equal starting weights.
func New() *Fusion {
	return &Fusion{weights: types.FusionWeights{Vector: 1.0 / 3, Episodic: 1.0 / 3, Semantic: 1.0 / 3}}
}

// GetWeights returns the current normalized weights.
func (f *Fusion) GetWeights() types.FusionWeights {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.weights
}

// SetWeights normalizes the supplied weights to sum to 1. Negative
// weights are clamped to 0 before normalizing. A zero-sum input falls
// back to equal weights.
func (f *Fusion) SetWeights(w types.FusionWeights) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.weights = normalize(w)
}

func normalize(w types.FusionWeights) types.FusionWeights {
	if w.Vector < 0 {
		w.Vector = 0
	}
	if w.Episodic < 0 {
		w.Episodic = 0
	}
	if w.Semantic < 0 {
		w.Semantic = 0
	}
	sum := w.Vector + w.Episodic + w.Semantic
	if sum <= 0 {
		return types.FusionWeights{Vector: 1.0 / 3, Episodic: 1.0 / 3, Semantic: 1.0 / 3}
	}
	return types.FusionWeights{Vector: w.Vector / sum, Episodic: w.Episodic / sum, Semantic: w.Semantic / sum}
}

type entry struct {
	content string
	v, e, s float32
	hasV, hasE, hasS bool
}

// Fuse builds a content-keyed map of per-source scores, computes the
// weighted sum for each distinct content, and returns the top k
// sorted descending by fused score, breaking ties by descending
// vector score then episodic score then lexicographic content.
func (f *Fusion) Fuse(vector, episodic, semantic []types.ScoredResult, k int) []types.ScoredResult {
	w := f.GetWeights()

	byContent := make(map[string]*entry)
	order := make([]string, 0)
	get := func(content string) *entry {
		if e, ok := byContent[content]; ok {
			return e
		}
		e := &entry{content: content}
		byContent[content] = e
		order = append(order, content)
		return e
	}

	for _, r := range vector {
		e := get(r.Content)
		e.v = r.Score
		e.hasV = true
	}
	for _, r := range episodic {
		e := get(r.Content)
		e.e = r.Score
		e.hasE = true
	}
	for _, r := range semantic {
		e := get(r.Content)
		e.s = r.Score
		e.hasS = true
	}

	results := make([]types.ScoredResult, 0, len(order))
	for _, content := range order {
		e := byContent[content]
		fused := w.Vector*e.v + w.Episodic*e.e + w.Semantic*e.s
		per := map[string]float32{}
		if e.hasV {
			per["vector"] = e.v
		}
		if e.hasE {
			per["episodic"] = e.e
		}
		if e.hasS {
			per["semantic"] = e.s
		}
		results = append(results, types.ScoredResult{
			Content:         content,
			Score:           fused,
			Source:          types.SourceFused,
			PerSourceScores: per,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if av, bv := a.PerSourceScores["vector"], b.PerSourceScores["vector"]; av != bv {
			return av > bv
		}
		if ae, be := a.PerSourceScores["episodic"], b.PerSourceScores["episodic"]; ae != be {
			return ae > be
		}
		return a.Content < b.Content
	})

	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

// LearnWeights performs a single correlation-update pass: for each
// result i with feedback f_i, accumulate per-source corr_x += x_i *
// f_i / n, then w_x += eta * corr_x, clamp negatives to 0, and
// renormalize. This preserves the source's known bias toward the
// largest raw per-source scores (no mean centering) — see the design
// notes decision to keep the documented behavior as-is.
func (f *Fusion) LearnWeights(results []types.ScoredResult, feedback []float32) error {
	if len(results) != len(feedback) {
		return cortexerr.New(cortexerr.InvalidWeights, "results and feedback length mismatch")
	}
	if len(results) == 0 {
		return nil
	}

	n := float32(len(results))
	var corrV, corrE, corrS float32
	for i, r := range results {
		fb := feedback[i]
		corrV += r.PerSourceScores["vector"] * fb / n
		corrE += r.PerSourceScores["episodic"] * fb / n
		corrS += r.PerSourceScores["semantic"] * fb / n
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	updated := types.FusionWeights{
		Vector:   f.weights.Vector + learningRate*corrV,
		Episodic: f.weights.Episodic + learningRate*corrE,
		Semantic: f.weights.Semantic + learningRate*corrS,
	}
	f.weights = normalize(updated)
	return nil
}
