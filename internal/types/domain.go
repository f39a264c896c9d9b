// Package types holds the data model shared across every core
// component: embeddings, documents, episodes, concept nodes, and the
// value types that cross the fusion and validation boundaries.
package types

// Embedding is a fixed-dimension dense vector. The vector index
// L2-normalizes on ingest and on query; the episodic buffer and the
// concept graph store embeddings as given and compare them by cosine
// similarity.
type Embedding []float32

// Metadata is opaque, caller-supplied JSON attached to a document.
type Metadata map[string]any

// Document is a caller-assigned record indexed by the vector index.
// InternalID is assigned once on first insert and never reused.
type Document struct {
	DocID      string   `json:"doc_id"`
	Content    string   `json:"content"`
	Metadata   Metadata `json:"metadata"`
	InternalID uint64   `json:"internal_id"`
}

// SourceTag identifies which memory produced a ScoredResult or Evidence.
type SourceTag string

const (
	SourceVector   SourceTag = "vector"
	SourceEpisodic SourceTag = "episodic"
	SourceSemantic SourceTag = "semantic"
	SourceFused    SourceTag = "fused"
)

// ScoredResult crosses the fusion boundary: a piece of content with a
// score from one source, or the fused score and per-source breakdown.
type ScoredResult struct {
	Content         string             `json:"content"`
	Score           float32            `json:"score"`
	Source          SourceTag          `json:"source"`
	PerSourceScores map[string]float32 `json:"per_source_scores,omitempty"`
}

// Evidence is what the Handler collects from each source for the
// validator to weigh.
type Evidence struct {
	Source     SourceTag `json:"source"`
	Confidence float32   `json:"confidence"`
	Content    string    `json:"content"`
}

// ReasoningKind names one step of the Handler's query state machine.
type ReasoningKind string

const (
	ReasoningVectorSearch       ReasoningKind = "vector_search"
	ReasoningEpisodicRetrieval  ReasoningKind = "episodic_retrieval"
	ReasoningSemanticActivation ReasoningKind = "semantic_activation"
	ReasoningHybridFusion       ReasoningKind = "hybrid_fusion"
	ReasoningHallucinationCheck ReasoningKind = "hallucination_check"
	ReasoningError              ReasoningKind = "error"
)

// ReasoningStep is one entry in the ordered trace the Handler produces
// per query.
type ReasoningStep struct {
	Kind        ReasoningKind     `json:"kind"`
	Description string            `json:"description"`
	Details     map[string]string `json:"details,omitempty"`
	Confidence  float32           `json:"confidence"`
}

// FusionWeights are the non-negative per-source weights fusion combines
// scores with. They are kept normalized to sum to 1.
type FusionWeights struct {
	Vector   float32 `json:"w_v"`
	Episodic float32 `json:"w_e"`
	Semantic float32 `json:"w_s"`
}

// ValidationResult is the value the hallucination validator returns.
type ValidationResult struct {
	IsHallucination bool       `json:"is_hallucination"`
	ConfidenceScore float32    `json:"confidence_score"`
	Flags           []string   `json:"flags"`
	Evidence        []Evidence `json:"evidence"`
}
