package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cortex-engine/internal/types"
)

func TestFuseDedup(t *testing.T) {
	f := New()
	f.SetWeights(types.FusionWeights{Vector: 0.6, Episodic: 0.2, Semantic: 0.2})

	vector := []types.ScoredResult{{Content: "x", Score: 0.9}}
	episodic := []types.ScoredResult{{Content: "x", Score: 0.8}}
	semantic := []types.ScoredResult{}

	out := f.Fuse(vector, episodic, semantic, 10)
	require.Len(t, out, 1)
	want := float32(0.6*0.9 + 0.2*0.8)
	assert.InDelta(t, want, out[0].Score, 1e-6)
}

func TestFuseSortedNonIncreasing(t *testing.T) {
	f := New()
	vector := []types.ScoredResult{
		{Content: "a", Score: 0.5},
		{Content: "b", Score: 0.9},
		{Content: "c", Score: 0.1},
	}
	out := f.Fuse(vector, nil, nil, 10)
	for i := 1; i < len(out); i++ {
		assert.LessOrEqualf(t, out[i].Score, out[i-1].Score, "expected non-increasing scores, got %+v", out)
	}
}

func TestFuseTieBreakDeterministic(t *testing.T) {
	f := New()
	f.SetWeights(types.FusionWeights{Vector: 1, Episodic: 0, Semantic: 0})
	vector := []types.ScoredResult{
		{Content: "zeta", Score: 0.5},
		{Content: "alpha", Score: 0.5},
	}
	out := f.Fuse(vector, nil, nil, 10)
	require.Len(t, out, 2)
	assert.Equal(t, "alpha", out[0].Content)
	assert.Equal(t, "zeta", out[1].Content)
}

func TestFuseTruncatesToK(t *testing.T) {
	f := New()
	vector := []types.ScoredResult{
		{Content: "a", Score: 0.9},
		{Content: "b", Score: 0.8},
		{Content: "c", Score: 0.7},
	}
	out := f.Fuse(vector, nil, nil, 2)
	assert.Len(t, out, 2)
}

func TestSetWeightsNormalizes(t *testing.T) {
	f := New()
	f.SetWeights(types.FusionWeights{Vector: 2, Episodic: 2, Semantic: 0})
	w := f.GetWeights()
	sum := w.Vector + w.Episodic + w.Semantic
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.InDelta(t, 0.5, w.Vector, 1e-6)
	assert.InDelta(t, 0.5, w.Episodic, 1e-6)
}

func TestSetWeightsZeroSumFallsBackToEqual(t *testing.T) {
	f := New()
	f.SetWeights(types.FusionWeights{Vector: 0, Episodic: 0, Semantic: 0})
	w := f.GetWeights()
	assert.InDelta(t, 1.0/3, w.Vector, 1e-6)
	assert.InDelta(t, 1.0/3, w.Episodic, 1e-6)
	assert.InDelta(t, 1.0/3, w.Semantic, 1e-6)
}

func TestSetWeightsClampsNegative(t *testing.T) {
	f := New()
	f.SetWeights(types.FusionWeights{Vector: -1, Episodic: 1, Semantic: 1})
	w := f.GetWeights()
	assert.Zero(t, w.Vector)
	assert.InDelta(t, 0.5, w.Episodic, 1e-6)
}

func TestLearnWeightsLengthMismatch(t *testing.T) {
	f := New()
	err := f.LearnWeights([]types.ScoredResult{{Content: "a"}}, nil)
	assert.Error(t, err)
}

func TestLearnWeightsAdjustsTowardFeedback(t *testing.T) {
	f := New()
	before := f.GetWeights()

	results := []types.ScoredResult{
		{Content: "a", PerSourceScores: map[string]float32{"vector": 1.0, "episodic": 0.1, "semantic": 0.1}},
	}
	require.NoError(t, f.LearnWeights(results, []float32{1.0}))

	after := f.GetWeights()
	assert.Greaterf(t, after.Vector, before.Vector, "expected vector weight to increase, before=%f after=%f", before.Vector, after.Vector)
	sum := after.Vector + after.Episodic + after.Semantic
	assert.InDelta(t, 1.0, sum, 1e-6)
}
