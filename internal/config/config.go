// Package config loads the YAML configuration for the cmd/ entry
// points: index sizing, data directory layout, and per-query
// subsystem toggles. Grounded on the teacher's flag-based main.go
// (data dir, dim, addr), expanded to a YAML file the way the pack's
// other services externalize configuration with gopkg.in/yaml.v3.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"cortex-engine/internal/handler"
	"cortex-engine/internal/vectorindex"
)

// IndexConfig configures the vector index and its backing store.
type IndexConfig struct {
	Dim            int    `yaml:"dim"`
	MaxElements    uint64 `yaml:"max_elements"`
	M              int    `yaml:"m"`
	EfConstruction int    `yaml:"ef_construction"`
	EfSearch       int    `yaml:"ef_search"`
	Space          string `yaml:"space"`
}

// ToVectorIndexConfig converts to the vectorindex package's Config,
// falling back to vectorindex.DefaultConfig(dim) for zero fields.
func (c IndexConfig) ToVectorIndexConfig() vectorindex.Config {
	cfg := vectorindex.DefaultConfig(c.Dim)
	if c.MaxElements > 0 {
		cfg.MaxElements = c.MaxElements
	}
	if c.M > 0 {
		cfg.M = c.M
	}
	if c.EfConstruction > 0 {
		cfg.EfConstruction = c.EfConstruction
	}
	if c.EfSearch > 0 {
		cfg.EfSearch = c.EfSearch
	}
	if c.Space != "" {
		cfg.Space = vectorindex.ParseSpace(c.Space)
	}
	return cfg
}

// EpisodicConfig configures the episodic ring buffer.
type EpisodicConfig struct {
	Capacity int `yaml:"capacity"`
}

// QueryConfig mirrors handler.QueryConfig for YAML unmarshaling.
type QueryConfig struct {
	EnableVectorSearch       bool    `yaml:"enable_vector_search"`
	EnableEpisodicRetrieval  bool    `yaml:"enable_episodic_retrieval"`
	EnableSemanticActivation bool    `yaml:"enable_semantic_activation"`
	EnableValidation         bool    `yaml:"enable_validation"`
	VectorK                  int     `yaml:"vector_k"`
	EpisodicK                int     `yaml:"episodic_k"`
	EpisodicThreshold        float32 `yaml:"episodic_threshold"`
	SemanticMaxHops          int     `yaml:"semantic_max_hops"`
	SemanticDecay            float32 `yaml:"semantic_decay"`
	SemanticThreshold        float32 `yaml:"semantic_threshold"`
	FusionK                  int     `yaml:"fusion_k"`
	ValidationThreshold      float32 `yaml:"validation_threshold"`
}

// ToHandlerQueryConfig converts to handler.QueryConfig. Subsystem
// toggles are copied as given (a toggle left unset is false); numeric
// fields left at the zero value fall back to
// handler.DefaultQueryConfig()'s values.
func (c QueryConfig) ToHandlerQueryConfig() handler.QueryConfig {
	def := handler.DefaultQueryConfig()
	return handler.QueryConfig{
		EnableVectorSearch:       c.EnableVectorSearch,
		EnableEpisodicRetrieval:  c.EnableEpisodicRetrieval,
		EnableSemanticActivation: c.EnableSemanticActivation,
		EnableValidation:         c.EnableValidation,
		VectorK:                  orDefaultInt(c.VectorK, def.VectorK),
		EpisodicK:                orDefaultInt(c.EpisodicK, def.EpisodicK),
		EpisodicThreshold:        c.EpisodicThreshold,
		SemanticMaxHops:          orDefaultInt(c.SemanticMaxHops, def.SemanticMaxHops),
		SemanticDecay:            orDefaultFloat(c.SemanticDecay, def.SemanticDecay),
		SemanticThreshold:        orDefaultFloat(c.SemanticThreshold, def.SemanticThreshold),
		FusionK:                  orDefaultInt(c.FusionK, def.FusionK),
		ValidationThreshold:      orDefaultFloat(c.ValidationThreshold, def.ValidationThreshold),
	}
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultFloat(v, def float32) float32 {
	if v == 0 {
		return def
	}
	return v
}

// Config is the top-level YAML document for cmd/server and cmd/cli.
type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Address  string         `yaml:"address"`
	LogLevel string         `yaml:"log_level"`
	Index    IndexConfig    `yaml:"index"`
	Episodic EpisodicConfig `yaml:"episodic"`
	Query    QueryConfig    `yaml:"query"`
}

// Default returns a Config with sane defaults for a given embedding
// dimension.
func Default(dim int) Config {
	return Config{
		DataDir:  "data",
		Address:  ":8080",
		LogLevel: "info",
		Index: IndexConfig{
			Dim:            dim,
			MaxElements:    100000,
			M:              16,
			EfConstruction: 200,
			EfSearch:       50,
			Space:          "inner_product",
		},
		Episodic: EpisodicConfig{Capacity: 500},
		Query: QueryConfig{
			EnableVectorSearch:       true,
			EnableEpisodicRetrieval:  true,
			EnableSemanticActivation: true,
			EnableValidation:         true,
		},
	}
}

// Load reads and parses a YAML config file at path. Fields the
// document omits are left at their Go zero value; callers combine the
// result with Merge to fall back to sane defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Merge overlays loaded onto defaults: any top-level, index, or
// episodic field left at its zero value in loaded falls back to the
// corresponding value in defaults, so a YAML document that only sets
// one section (say, index:) doesn't zero out the rest of the
// configuration. The query section is taken as a whole: if loaded sets
// any query field, loaded.Query replaces the defaults' query section
// unchanged, including any toggle it leaves false.
func Merge(defaults, loaded Config) Config {
	merged := defaults
	if loaded.DataDir != "" {
		merged.DataDir = loaded.DataDir
	}
	if loaded.Address != "" {
		merged.Address = loaded.Address
	}
	if loaded.LogLevel != "" {
		merged.LogLevel = loaded.LogLevel
	}
	merged.Index = mergeIndexConfig(defaults.Index, loaded.Index)
	if loaded.Episodic.Capacity > 0 {
		merged.Episodic.Capacity = loaded.Episodic.Capacity
	}
	if loaded.Query != (QueryConfig{}) {
		merged.Query = loaded.Query
	}
	return merged
}

func mergeIndexConfig(defaults, loaded IndexConfig) IndexConfig {
	merged := defaults
	if loaded.Dim > 0 {
		merged.Dim = loaded.Dim
	}
	if loaded.MaxElements > 0 {
		merged.MaxElements = loaded.MaxElements
	}
	if loaded.M > 0 {
		merged.M = loaded.M
	}
	if loaded.EfConstruction > 0 {
		merged.EfConstruction = loaded.EfConstruction
	}
	if loaded.EfSearch > 0 {
		merged.EfSearch = loaded.EfSearch
	}
	if loaded.Space != "" {
		merged.Space = loaded.Space
	}
	return merged
}
