package handler

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cortex-engine/internal/episodic"
	"cortex-engine/internal/fusion"
	"cortex-engine/internal/graph"
	"cortex-engine/internal/types"
	"cortex-engine/internal/vecstore"
	"cortex-engine/internal/vectorindex"
)

func newTestHandler(t *testing.T, dim int) *Handler {
	t.Helper()
	store, err := vecstore.NewMmapStore(filepath.Join(t.TempDir(), "vectors.bin"), dim)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	idx := vectorindex.New(vectorindex.DefaultConfig(dim), store, nil)
	buf := episodic.NewBuffer(10, dim, nil)
	g := graph.New()
	f := fusion.New()
	return New(idx, buf, g, f, nil)
}

func stepKinds(steps []types.ReasoningStep) []types.ReasoningKind {
	kinds := make([]types.ReasoningKind, len(steps))
	for i, s := range steps {
		kinds[i] = s.Kind
	}
	return kinds
}

func TestProcessQueryEmptyIndexReturnsNoResults(t *testing.T) {
	h := newTestHandler(t, 4)
	resp := h.ProcessQuery("hello", types.Embedding{1, 0, 0, 0}, DefaultQueryConfig())

	assert.Equal(t, noResultsText, resp.ResponseText)
	assert.Zero(t, resp.EvidenceScore)
	assert.NotContains(t, stepKinds(resp.ReasoningSteps), types.ReasoningVectorSearch)
}

func TestProcessQueryReturnsTopFusedResult(t *testing.T) {
	h := newTestHandler(t, 4)
	_, err := h.IndexDocument("doc1", types.Embedding{1, 0, 0, 0}, "the answer is 42", nil)
	require.NoError(t, err)

	resp := h.ProcessQuery("what is the answer", types.Embedding{1, 0, 0, 0}, DefaultQueryConfig())
	assert.Equal(t, "the answer is 42", resp.ResponseText)
	assert.Contains(t, stepKinds(resp.ReasoningSteps), types.ReasoningVectorSearch)
}

func TestBatchIndexDocumentsReportsFirstError(t *testing.T) {
	h := newTestHandler(t, 3)
	docs := []BatchDocument{
		{DocID: "a", Embedding: types.Embedding{1, 0, 0}, Content: "a"},
		{DocID: "b", Embedding: types.Embedding{0, 1}, Content: "bad dim"},
		{DocID: "c", Embedding: types.Embedding{0, 0, 1}, Content: "c"},
	}
	count, err := h.BatchIndexDocuments(docs)
	assert.Equal(t, 2, count)
	assert.Error(t, err)
}

func TestPopulateSemanticNetworkAndActivation(t *testing.T) {
	h := newTestHandler(t, 3)
	h.PopulateSemanticNetwork(
		map[string]types.Embedding{"database": nil, "storage": nil},
		[]ConceptRelation{{Source: "database", Target: "storage", Weight: 1.0}},
	)
	resp := h.ProcessQuery("tell me about database systems", types.Embedding{1, 0, 0}, DefaultQueryConfig())

	assert.Containsf(t, stepKinds(resp.ReasoningSteps), types.ReasoningSemanticActivation,
		"expected semantic_activation reasoning step, got %+v", resp.ReasoningSteps)
}

func TestAddEpisodePersistsToBuffer(t *testing.T) {
	h := newTestHandler(t, 2)
	h.AddEpisode("q", "r", types.Embedding{1, 0}, nil)
	assert.Equal(t, 1, h.Episodes.Size())
}
