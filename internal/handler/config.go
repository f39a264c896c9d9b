package handler

// QueryConfig toggles which subsystems a given process_query call
// exercises. Fusion always runs; validation runs only when Enabled and
// the fused response text is non-empty.
type QueryConfig struct {
	EnableVectorSearch      bool
	EnableEpisodicRetrieval bool
	EnableSemanticActivation bool
	EnableValidation        bool

	VectorK             int
	EpisodicK           int
	EpisodicThreshold   float32
	SemanticMaxHops     int
	SemanticDecay       float32
	SemanticThreshold   float32
	FusionK             int
	ValidationThreshold float32
}

// DefaultQueryConfig enables every subsystem with the spec's documented
// defaults.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		EnableVectorSearch:       true,
		EnableEpisodicRetrieval:  true,
		EnableSemanticActivation: true,
		EnableValidation:         true,
		VectorK:                  5,
		EpisodicK:                5,
		EpisodicThreshold:        0,
		SemanticMaxHops:          2,
		SemanticDecay:            0.7,
		SemanticThreshold:        0.1,
		FusionK:                  10,
		ValidationThreshold:      0.5,
	}
}
