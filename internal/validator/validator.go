// Package validator scores a response's support in the collected
// evidence and flags likely hallucination. See spec §4.5.
package validator

import (
	"strings"

	"cortex-engine/internal/types"
)

const (
	defaultMinEvidenceConfidence = 0.6
	defaultMinEvidenceCount      = 2
)

var defaultHedgePhrases = []string{
	"i think", "maybe", "possibly", "i'm not sure", "i believe", "it seems", "probably",
}

var factualIndicators = []string{
	"according to", "research shows", "studies indicate", "it is known that", "the fact is",
}

// Options configures the thresholds Validate applies. Zero-value
// options fall back to the spec's documented defaults.
type Options struct {
	MinEvidenceConfidence float32
	MinEvidenceCount      int
	HedgePhrases          []string
}

func (o Options) withDefaults() Options {
	if o.MinEvidenceConfidence == 0 {
		o.MinEvidenceConfidence = defaultMinEvidenceConfidence
	}
	if o.MinEvidenceCount == 0 {
		o.MinEvidenceCount = defaultMinEvidenceCount
	}
	if o.HedgePhrases == nil {
		o.HedgePhrases = defaultHedgePhrases
	}
	return o
}

// Validate scores response against evidence per the seven-step
// algorithm: strong-evidence filtering, flag detection, lexical
// overlap support, and a threshold-gated hallucination verdict.
func Validate(query, response string, evidence []types.Evidence, threshold float32, opts Options) types.ValidationResult {
	opts = opts.withDefaults()
	lowerResponse := strings.ToLower(response)

	strong := make([]types.Evidence, 0, len(evidence))
	for _, e := range evidence {
		if e.Confidence >= opts.MinEvidenceConfidence {
			strong = append(strong, e)
		}
	}

	var flags []string
	if len(strong) < opts.MinEvidenceCount {
		flags = append(flags, "insufficient_evidence")
	}
	if containsAny(lowerResponse, opts.HedgePhrases) {
		flags = append(flags, "hedging")
	}
	if len(evidence) == 0 && containsAny(lowerResponse, factualIndicators) {
		flags = append(flags, "unsubstantiated_claims")
	}

	support := computeSupport(lowerResponse, strong)

	confidence := support - 0.2*float32(len(flags))
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return types.ValidationResult{
		IsHallucination: confidence < threshold,
		ConfidenceScore: confidence,
		Flags:           flags,
		Evidence:        evidence,
	}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// computeSupport tokenizes response and each strong evidence's content
// into case-folded words of length > 3, weights each evidence's
// confidence by its token overlap ratio, and falls back to the mean
// confidence of strong evidence when no overlap exists anywhere.
func computeSupport(lowerResponse string, strong []types.Evidence) float32 {
	if len(strong) == 0 {
		return 0
	}

	responseTokens := tokenize(lowerResponse)
	responseSet := make(map[string]struct{}, len(responseTokens))
	for _, t := range responseTokens {
		responseSet[t] = struct{}{}
	}

	var weightedSum, overlapSum float32
	for _, e := range strong {
		evidenceTokens := tokenize(strings.ToLower(e.Content))
		common := 0
		seen := make(map[string]struct{})
		for _, t := range evidenceTokens {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			if _, ok := responseSet[t]; ok {
				common++
			}
		}
		if len(responseTokens) == 0 {
			continue
		}
		overlap := float32(common) / float32(len(responseTokens))
		weightedSum += e.Confidence * overlap
		overlapSum += overlap
	}

	if overlapSum == 0 {
		var meanConf float32
		for _, e := range strong {
			meanConf += e.Confidence
		}
		return meanConf / float32(len(strong))
	}
	return weightedSum / overlapSum
}

func tokenize(s string) []string {
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()")
		if len(f) > 3 {
			out = append(out, f)
		}
	}
	return out
}
