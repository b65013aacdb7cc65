// Package config loads the engine's declarative configuration document
// (spec §6). The document is YAML on disk, struct-tag validated, and
// hot-reloaded via fsnotify in every environment except production.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment names the deployment tier, mirroring the teacher's three-way
// split.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the top-level document; each field corresponds to one section
// of spec §6's configuration table.
type Config struct {
	Environment Environment `yaml:"environment" validate:"required,oneof=development staging production"`

	Storage   Storage   `yaml:"storage" validate:"required"`
	Cache     Cache     `yaml:"cache"`
	Vector    Vector    `yaml:"vector" validate:"required"`
	LLM       LLM       `yaml:"llm" validate:"required"`
	Embedder  Embedder  `yaml:"embedder" validate:"required"`
	Engine    Engine    `yaml:"engine"`
	Retrieval Retrieval `yaml:"retrieval"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Storage configures the C1 relational substrate and its connection pool.
type Storage struct {
	URL               string        `yaml:"url" validate:"required"`
	APIKey            string        `yaml:"api_key"`
	MinConnections    int           `yaml:"min_connections" validate:"min=0"`
	MaxConnections    int           `yaml:"max_connections" validate:"min=1"`
	AcquireTimeout    time.Duration `yaml:"acquire_timeout" validate:"required"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" validate:"required"`
	MaxLifetime       time.Duration `yaml:"max_lifetime" validate:"required"`
	ProbeBeforeUse    bool          `yaml:"probe_before_use"`
	SSL               bool          `yaml:"ssl"`
	SlowQueryMillis   int64         `yaml:"slow_query_millis" validate:"min=1"`
}

// EvictionPolicy selects the C2 cache's eviction strategy.
type EvictionPolicy string

const (
	EvictLRU  EvictionPolicy = "LRU"
	EvictLFU  EvictionPolicy = "LFU"
	EvictFIFO EvictionPolicy = "FIFO"
)

// Cache configures the C2 multi-tier cache.
type Cache struct {
	Enabled        bool           `yaml:"enabled"`
	DefaultTTL     time.Duration  `yaml:"default_ttl"`
	MaxSize        int            `yaml:"max_size" validate:"min=1"`
	EvictionPolicy EvictionPolicy `yaml:"eviction_policy" validate:"omitempty,oneof=LRU LFU FIFO"`
	L2Table        string         `yaml:"l2_table"`
	L2Region       string         `yaml:"l2_region"`
}

// Vector configures the C3 vector adapter.
type Vector struct {
	Provider  string `yaml:"provider" validate:"required,oneof=memory sqlite"`
	Dimension int    `yaml:"dimension" validate:"required,min=1"`
	Metric    string `yaml:"metric" validate:"required,oneof=cosine euclidean dot"`
	IndexType string `yaml:"index_type"`
	Path      string `yaml:"path"` // sqlite provider only
}

// LLM configures the LLM adapter consumed by C5/C6.
type LLM struct {
	Provider    string        `yaml:"provider" validate:"required"`
	Model       string        `yaml:"model" validate:"required"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float64       `yaml:"temperature" validate:"min=0,max=2"`
	MaxTokens   int           `yaml:"max_tokens" validate:"min=1"`
	Timeout     time.Duration `yaml:"timeout" validate:"required"`
}

// Embedder configures the embedding adapter.
type Embedder struct {
	Provider  string `yaml:"provider" validate:"required"`
	Model     string `yaml:"model" validate:"required"`
	Dimension int    `yaml:"dimension" validate:"required,min=1"`
	APIKey    string `yaml:"api_key"`
}

// ImportanceWeights is the single coherent default weighting for spec
// §4.7's importance blend (recency, frequency, relevance, interaction).
type ImportanceWeights struct {
	Recency     float64 `yaml:"recency"`
	Frequency   float64 `yaml:"frequency"`
	Relevance   float64 `yaml:"relevance"`
	Interaction float64 `yaml:"interaction"`
}

// PromoteThreshold names the importance/access-count gate for one promotion
// step (spec §4.7).
type PromoteThreshold struct {
	Importance float64 `yaml:"importance"`
	AccessCount int64  `yaml:"access_count"`
}

// Engine configures C7's dynamics.
type Engine struct {
	ImportanceWeights       ImportanceWeights `yaml:"importance_weights"`
	PromoteOperationalToTactical PromoteThreshold `yaml:"promote_operational_to_tactical"`
	PromoteTacticalToStrategic   PromoteThreshold `yaml:"promote_tactical_to_strategic"`
	DecayHalfLife           time.Duration     `yaml:"decay_half_life"`
	AutoRewriteThreshold    float64           `yaml:"auto_rewrite_threshold" validate:"min=0,max=1"`
	DuplicateJaccardThreshold float64         `yaml:"duplicate_jaccard_threshold" validate:"min=0,max=1"`
	AutoResolveConfidence   float64           `yaml:"auto_resolve_confidence" validate:"min=0,max=1"`
}

// FusionWeights is the caller-overridable weighting for C8 (spec §4.8).
type FusionWeights struct {
	Text       float64 `yaml:"text"`
	Vector     float64 `yaml:"vector"`
	Graph      float64 `yaml:"graph"`
	Importance float64 `yaml:"importance"`
}

// Retrieval configures C8.
type Retrieval struct {
	FusionWeights          FusionWeights `yaml:"fusion_weights"`
	DefaultLimit           int           `yaml:"default_limit" validate:"min=1"`
	PersonalizationWeight  float64       `yaml:"personalization_weight" validate:"min=0,max=0.5"`
}

// Telemetry configures C10.
type Telemetry struct {
	SlowMillis int64   `yaml:"slow_millis" validate:"min=1"`
	SampleRate float64 `yaml:"sample_rate" validate:"min=0,max=1"`
}

// Default returns a complete, valid configuration suitable for local
// development and as the base that LoadFile overlays the YAML document onto.
func Default() *Config {
	return &Config{
		Environment: Development,
		Storage: Storage{
			URL:             "http://localhost:54321",
			MinConnections:  1,
			MaxConnections:  5,
			AcquireTimeout:  5 * time.Second,
			IdleTimeout:     5 * time.Minute,
			MaxLifetime:     30 * time.Minute,
			SlowQueryMillis: 50,
		},
		Cache: Cache{
			Enabled:        true,
			DefaultTTL:     5 * time.Minute,
			MaxSize:        10000,
			EvictionPolicy: EvictLRU,
			L2Table:        "memory-engine-cache",
			L2Region:       "us-west-2",
		},
		Vector: Vector{
			Provider:  "memory",
			Dimension: 768,
			Metric:    "cosine",
		},
		LLM: LLM{
			Provider:    "genai",
			Model:       "gemini-2.0-flash",
			Temperature: 0.2,
			MaxTokens:   2048,
			Timeout:     30 * time.Second,
		},
		Embedder: Embedder{
			Provider:  "genai",
			Model:     "text-embedding-004",
			Dimension: 768,
		},
		Engine: Engine{
			ImportanceWeights: ImportanceWeights{Recency: 0.3, Frequency: 0.2, Relevance: 0.3, Interaction: 0.2},
			PromoteOperationalToTactical: PromoteThreshold{Importance: 0.7, AccessCount: 5},
			PromoteTacticalToStrategic:   PromoteThreshold{Importance: 0.85, AccessCount: 20},
			DecayHalfLife:             72 * time.Hour,
			AutoRewriteThreshold:      0.9,
			DuplicateJaccardThreshold: 0.8,
			AutoResolveConfidence:     0.9,
		},
		Retrieval: Retrieval{
			FusionWeights: FusionWeights{Text: 0.3, Vector: 0.4, Graph: 0.2, Importance: 0.1},
			DefaultLimit:  20,
		},
		Telemetry: Telemetry{
			SlowMillis: 200,
			SampleRate: 1.0,
		},
	}
}

var validate = validator.New()

// Validate runs struct-tag validation over the document.
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}

// LoadFile overlays a YAML document on top of Default() and validates the
// result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}
