// Package handler implements the query-processing state machine that
// orchestrates the vector index, episodic buffer, concept graph,
// fusion, and validator into a single process_query call. See spec
// §4.6.
package handler

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"cortex-engine/internal/cortexerr"
	"cortex-engine/internal/episodic"
	"cortex-engine/internal/fusion"
	"cortex-engine/internal/graph"
	"cortex-engine/internal/types"
	"cortex-engine/internal/validator"
	"cortex-engine/internal/vectorindex"
)

const noResultsText = "No results found."

// Response is the value process_query returns.
type Response struct {
	Query                string
	ResponseText         string
	Results              []types.ScoredResult
	EvidenceScore        float32
	HallucinationResult  types.ValidationResult
	ReasoningSteps       []types.ReasoningStep
}

// Handler owns the five components and coordinates a single query's
// pass through them. It holds no lock of its own beyond what each
// component already serializes internally; concurrent process_query
// calls are safe because every component is independently safe for
// concurrent read/write interleaving at its own boundary (spec §5).
type Handler struct {
	Index    *vectorindex.Index
	Episodes *episodic.Buffer
	Graph    *graph.Graph
	Fusion   *fusion.Fusion

	logger *slog.Logger

	mu               sync.Mutex
	validatorOptions validator.Options
}

// New assembles a Handler from already-constructed components.
func New(index *vectorindex.Index, episodes *episodic.Buffer, g *graph.Graph, f *fusion.Fusion, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Index: index, Episodes: episodes, Graph: g, Fusion: f, logger: logger}
}

// ProcessQuery runs the full state machine: Idle -> VectorSearching ->
// EpisodicRetrieval -> SemanticActivation -> Fusing -> Validating ->
// Explaining -> Idle. Each enabled subsystem appends at most one
// reasoning step. Fusion always runs. Validation runs only if enabled
// and the response text is non-empty. A failed subsystem call does not
// abort the query: it is recovered as an empty result with no
// reasoning step, except a genuine query-processing error, which
// truncates the trace with a terminal error step and returns a
// "No results found." response.
func (h *Handler) ProcessQuery(query string, queryEmbedding types.Embedding, cfg QueryConfig) Response {
	var steps []types.ReasoningStep
	var vectorResults, episodicResults, semanticResults []types.ScoredResult

	if cfg.EnableVectorSearch {
		results, err := h.Index.Search(queryEmbedding, cfg.VectorK)
		if err != nil {
			return h.failQuery(query, steps, cortexerr.Wrap(cortexerr.QueryProcessingErr, "vector search failed", err))
		}
		vectorResults = results
		if len(results) > 0 {
			steps = append(steps, types.ReasoningStep{
				Kind:        types.ReasoningVectorSearch,
				Description: fmt.Sprintf("vector search returned %d result(s)", len(results)),
				Details:     map[string]string{"count": fmt.Sprintf("%d", len(results))},
				Confidence:  results[0].Score,
			})
		}
	}

	if cfg.EnableEpisodicRetrieval {
		scored := h.Episodes.RetrieveSimilarScored(queryEmbedding, cfg.EpisodicK, cfg.EpisodicThreshold)
		episodicResults = make([]types.ScoredResult, 0, len(scored))
		zeroFilledSeen := false
		for _, s := range scored {
			episodicResults = append(episodicResults, types.ScoredResult{
				Content: s.Episode.Response,
				Score:   s.Score,
				Source:  types.SourceEpisodic,
			})
			if s.Episode.EmbeddingZeroFilled {
				zeroFilledSeen = true
			}
		}
		if len(episodicResults) > 0 {
			details := map[string]string{"count": fmt.Sprintf("%d", len(episodicResults))}
			if zeroFilledSeen {
				details["warning"] = "one or more retrieved episodes had a zero-filled embedding recovered from disk"
			}
			steps = append(steps, types.ReasoningStep{
				Kind:        types.ReasoningEpisodicRetrieval,
				Description: fmt.Sprintf("episodic retrieval returned %d result(s)", len(episodicResults)),
				Details:     details,
				Confidence:  episodicResults[0].Score,
			})
		}
	}

	if cfg.EnableSemanticActivation {
		concepts := extractConcepts(query)
		activated := h.Graph.SpreadActivation(concepts, cfg.SemanticMaxHops, cfg.SemanticDecay, cfg.SemanticThreshold)
		semanticResults = make([]types.ScoredResult, 0, len(activated))
		for _, a := range activated {
			semanticResults = append(semanticResults, types.ScoredResult{
				Content: a.Name,
				Score:   a.Activation,
				Source:  types.SourceSemantic,
			})
		}
		if len(semanticResults) > 0 {
			steps = append(steps, types.ReasoningStep{
				Kind:        types.ReasoningSemanticActivation,
				Description: fmt.Sprintf("spreading activation reached %d concept(s)", len(semanticResults)),
				Details:     map[string]string{"seeds": strings.Join(concepts, ",")},
				Confidence:  semanticResults[0].Score,
			})
		}
	}

	fused := h.Fusion.Fuse(vectorResults, episodicResults, semanticResults, cfg.FusionK)
	steps = append(steps, types.ReasoningStep{
		Kind:        types.ReasoningHybridFusion,
		Description: fmt.Sprintf("fusion produced %d ranked result(s)", len(fused)),
		Details:     map[string]string{"count": fmt.Sprintf("%d", len(fused))},
		Confidence:  topScore(fused),
	})

	responseText := noResultsText
	if len(fused) > 0 {
		responseText = fused[0].Content
	}

	var validation types.ValidationResult
	if cfg.EnableValidation && responseText != "" && responseText != noResultsText {
		evidence := evidenceFromResults(fused)
		validation = validator.Validate(query, responseText, evidence, cfg.ValidationThreshold, h.validatorOptions)
		steps = append(steps, types.ReasoningStep{
			Kind:        types.ReasoningHallucinationCheck,
			Description: fmt.Sprintf("hallucination check: is_hallucination=%v", validation.IsHallucination),
			Details:     map[string]string{"flags": strings.Join(validation.Flags, ",")},
			Confidence:  validation.ConfidenceScore,
		})
	}

	return Response{
		Query:               query,
		ResponseText:        responseText,
		Results:             fused,
		EvidenceScore:       validation.ConfidenceScore,
		HallucinationResult: validation,
		ReasoningSteps:      steps,
	}
}

func (h *Handler) failQuery(query string, completed []types.ReasoningStep, err error) Response {
	kind := cortexerr.QueryProcessingErr
	if cerr, ok := err.(*cortexerr.Error); ok {
		kind = cerr.Kind
	}
	steps := append(completed, types.ReasoningStep{
		Kind:        types.ReasoningError,
		Description: err.Error(),
		Details:     map[string]string{"kind": string(kind)},
		Confidence:  0,
	})
	h.logger.Error("query processing failed", "error", err)
	return Response{
		Query:          query,
		ResponseText:   noResultsText,
		Results:        nil,
		EvidenceScore:  0,
		ReasoningSteps: steps,
	}
}

func topScore(results []types.ScoredResult) float32 {
	if len(results) == 0 {
		return 0
	}
	return results[0].Score
}

func evidenceFromResults(results []types.ScoredResult) []types.Evidence {
	out := make([]types.Evidence, len(results))
	for i, r := range results {
		out[i] = types.Evidence{Source: r.Source, Confidence: r.Score, Content: r.Content}
	}
	return out
}

// AddEpisode records the (query, response, embedding) pair post-response,
// per spec §4.6.
func (h *Handler) AddEpisode(query, response string, embedding types.Embedding, metadata map[string]string) {
	h.Episodes.Add(query, response, embedding, metadata)
}

// IndexDocument delegates a single insert to the vector index.
func (h *Handler) IndexDocument(docID string, embedding types.Embedding, content string, metadata types.Metadata) (bool, error) {
	return h.Index.Add(docID, embedding, content, metadata)
}

// BatchDocument is one item of a BatchIndexDocuments call.
type BatchDocument struct {
	DocID     string
	Embedding types.Embedding
	Content   string
	Metadata  types.Metadata
}

// BatchIndexDocuments inserts every document, continuing past
// individual failures so the handler never silently drops the rest of
// the batch. It reports the number of successful inserts and the
// first error encountered, if any.
func (h *Handler) BatchIndexDocuments(docs []BatchDocument) (successCount int, firstErr error) {
	for _, d := range docs {
		inserted, err := h.Index.Add(d.DocID, d.Embedding, d.Content, d.Metadata)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if inserted {
			successCount++
		}
	}
	return successCount, firstErr
}

// ConceptRelation is one directed, weighted edge for
// PopulateSemanticNetwork.
type ConceptRelation struct {
	Source string
	Target string
	Weight float32
}

// PopulateSemanticNetwork seeds the concept graph with nodes (with
// optional embeddings) and relations in one call.
func (h *Handler) PopulateSemanticNetwork(concepts map[string]types.Embedding, relations []ConceptRelation) {
	for name, emb := range concepts {
		h.Graph.AddNode(name, emb)
	}
	for _, r := range relations {
		h.Graph.AddEdge(r.Source, r.Target, r.Weight)
	}
}

func tokenizeFold(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
