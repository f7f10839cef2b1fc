// Package memconfig loads and validates the memory service's
// configuration: hardcoded defaults, an optional YAML file, then
// TRIBAL_MEMORY_* environment overrides, per spec.md §6.
package memconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete memory service configuration.
type Config struct {
	InstanceID string         `yaml:"instance_id" json:"instance_id"`
	Debug      bool           `yaml:"debug" json:"debug"`
	Embeddings EmbeddingsCfg  `yaml:"embeddings" json:"embeddings"`
	Store      StoreCfg       `yaml:"store" json:"store"`
	Dedup      DedupCfg       `yaml:"dedup" json:"dedup"`
	Hybrid     HybridCfg      `yaml:"hybrid" json:"hybrid"`
	Sessions   SessionsCfg    `yaml:"sessions" json:"sessions"`
	Server     ServerCfg      `yaml:"server" json:"server"`
}

// EmbeddingsCfg configures the embedding provider (spec.md §4.1).
type EmbeddingsCfg struct {
	Provider   string `yaml:"provider" json:"provider"` // "http", "local", "mock"
	Model      string `yaml:"model" json:"model"`
	APIKey     string `yaml:"api_key" json:"api_key"`
	APIBase    string `yaml:"api_base" json:"api_base"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	TimeoutMS  int    `yaml:"timeout_ms" json:"timeout_ms"`
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`
}

// StoreCfg configures the vector/BM25/graph store backends (spec.md §4.2-§4.3, §4.8).
type StoreCfg struct {
	Provider   string `yaml:"provider" json:"provider"` // "memory" or "persistent"
	Path       string `yaml:"path" json:"path"`
	URI        string `yaml:"uri" json:"uri"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
}

// DedupCfg configures the deduplication gate (spec.md §4.6).
type DedupCfg struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	ExactThreshold float64 `yaml:"exact_threshold" json:"exact_threshold"`
	NearThreshold  float64 `yaml:"near_threshold" json:"near_threshold"`
}

// HybridCfg configures merge weights and candidate pool sizing (spec.md §4.4-§4.5).
type HybridCfg struct {
	VectorWeight    float64 `yaml:"vector_weight" json:"vector_weight"`
	TextWeight      float64 `yaml:"text_weight" json:"text_weight"`
	CandidateMult   int     `yaml:"candidate_multiplier" json:"candidate_multiplier"`
	GraphHops       int     `yaml:"graph_hops" json:"graph_hops"`
	Graph2HopScore  float64 `yaml:"graph_2hop_score" json:"graph_2hop_score"`
	RerankerMode    string  `yaml:"reranker_mode" json:"reranker_mode"` // none|heuristic|cross_encoder|auto
}

// SessionsCfg configures the session chunker/store (spec.md §4.10).
type SessionsCfg struct {
	StoragePath   string `yaml:"storage_path" json:"storage_path"`
	RetentionDays int    `yaml:"retention_days" json:"retention_days"`
}

// ServerCfg configures ambient transport-adjacent concerns.
type ServerCfg struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Default returns the configuration with spec-mandated defaults.
func Default() *Config {
	return &Config{
		InstanceID: "default",
		Debug:      false,
		Embeddings: EmbeddingsCfg{
			Provider:   "mock",
			Model:      "mock-v1",
			Dimensions: 256,
			BatchSize:  32,
			TimeoutMS:  30_000,
			MaxRetries: 3,
		},
		Store: StoreCfg{
			Provider:   "memory",
			Path:       defaultStorePath(),
			Dimensions: 256,
		},
		Dedup: DedupCfg{
			Enabled:        true,
			ExactThreshold: 0.98,
			NearThreshold:  0.90,
		},
		Hybrid: HybridCfg{
			VectorWeight:   0.6,
			TextWeight:     0.4,
			CandidateMult:  4,
			GraphHops:      2,
			Graph2HopScore: 0.70,
			RerankerMode:   "heuristic",
		},
		Sessions: SessionsCfg{
			StoragePath:   defaultSessionsPath(),
			RetentionDays: 30,
		},
		Server: ServerCfg{
			LogLevel: "info",
		},
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".tribalmemory", "store")
	}
	return filepath.Join(home, ".tribalmemory", "store")
}

func defaultSessionsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".tribalmemory", "sessions")
	}
	return filepath.Join(home, ".tribalmemory", "sessions")
}

// Load builds a Config from defaults, an optional YAML file at path
// (ignored if it doesn't exist), then TRIBAL_MEMORY_* env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			var parsed Config
			if err := yaml.Unmarshal(data, &parsed); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			cfg.mergeWith(&parsed)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeWith(o *Config) {
	if o.InstanceID != "" {
		c.InstanceID = o.InstanceID
	}
	if o.Debug {
		c.Debug = o.Debug
	}
	if o.Embeddings.Provider != "" {
		c.Embeddings.Provider = o.Embeddings.Provider
	}
	if o.Embeddings.Model != "" {
		c.Embeddings.Model = o.Embeddings.Model
	}
	if o.Embeddings.APIKey != "" {
		c.Embeddings.APIKey = o.Embeddings.APIKey
	}
	if o.Embeddings.APIBase != "" {
		c.Embeddings.APIBase = o.Embeddings.APIBase
	}
	if o.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = o.Embeddings.Dimensions
		c.Store.Dimensions = o.Embeddings.Dimensions
	}
	if o.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = o.Embeddings.BatchSize
	}
	if o.Embeddings.TimeoutMS != 0 {
		c.Embeddings.TimeoutMS = o.Embeddings.TimeoutMS
	}
	if o.Embeddings.MaxRetries != 0 {
		c.Embeddings.MaxRetries = o.Embeddings.MaxRetries
	}
	if o.Store.Provider != "" {
		c.Store.Provider = o.Store.Provider
	}
	if o.Store.Path != "" {
		c.Store.Path = o.Store.Path
	}
	if o.Store.URI != "" {
		c.Store.URI = o.Store.URI
	}
	if o.Store.Dimensions != 0 {
		c.Store.Dimensions = o.Store.Dimensions
	}
	if o.Dedup.ExactThreshold != 0 {
		c.Dedup.ExactThreshold = o.Dedup.ExactThreshold
	}
	if o.Dedup.NearThreshold != 0 {
		c.Dedup.NearThreshold = o.Dedup.NearThreshold
	}
	if o.Hybrid.VectorWeight != 0 {
		c.Hybrid.VectorWeight = o.Hybrid.VectorWeight
	}
	if o.Hybrid.TextWeight != 0 {
		c.Hybrid.TextWeight = o.Hybrid.TextWeight
	}
	if o.Hybrid.CandidateMult != 0 {
		c.Hybrid.CandidateMult = o.Hybrid.CandidateMult
	}
	if o.Hybrid.GraphHops != 0 {
		c.Hybrid.GraphHops = o.Hybrid.GraphHops
	}
	if o.Hybrid.Graph2HopScore != 0 {
		c.Hybrid.Graph2HopScore = o.Hybrid.Graph2HopScore
	}
	if o.Hybrid.RerankerMode != "" {
		c.Hybrid.RerankerMode = o.Hybrid.RerankerMode
	}
	if o.Sessions.StoragePath != "" {
		c.Sessions.StoragePath = o.Sessions.StoragePath
	}
	if o.Sessions.RetentionDays != 0 {
		c.Sessions.RetentionDays = o.Sessions.RetentionDays
	}
	if o.Server.LogLevel != "" {
		c.Server.LogLevel = o.Server.LogLevel
	}
}

// applyEnvOverrides applies TRIBAL_MEMORY_* environment variables,
// the highest-precedence override per spec.md §6.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TRIBAL_MEMORY_INSTANCE_ID"); v != "" {
		c.InstanceID = v
	}
	if v := os.Getenv("TRIBAL_MEMORY_DEBUG"); v != "" {
		c.Debug = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("TRIBAL_MEMORY_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("TRIBAL_MEMORY_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("TRIBAL_MEMORY_EMBEDDINGS_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Embeddings.Provider == "http" {
		// Falls back to the provider's canonical env var per spec.md §6.
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("TRIBAL_MEMORY_EMBEDDINGS_API_BASE"); v != "" {
		c.Embeddings.APIBase = v
	}
	if v := os.Getenv("TRIBAL_MEMORY_EMBEDDINGS_DIMENSIONS"); v != "" {
		if d, err := strconv.Atoi(v); err == nil {
			c.Embeddings.Dimensions = d
			c.Store.Dimensions = d
		}
	}
	if v := os.Getenv("TRIBAL_MEMORY_STORE_PROVIDER"); v != "" {
		c.Store.Provider = v
	}
	if v := os.Getenv("TRIBAL_MEMORY_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("TRIBAL_MEMORY_STORE_URI"); v != "" {
		c.Store.URI = v
	}
	if v := os.Getenv("TRIBAL_MEMORY_DEDUP_ENABLED"); v != "" {
		c.Dedup.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("TRIBAL_MEMORY_DEDUP_EXACT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Dedup.ExactThreshold = f
		}
	}
	if v := os.Getenv("TRIBAL_MEMORY_DEDUP_NEAR_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Dedup.NearThreshold = f
		}
	}
	if v := os.Getenv("TRIBAL_MEMORY_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate enforces spec.md §6's validation rules.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.InstanceID) == "" {
		return fmt.Errorf("instance_id must be non-empty")
	}
	if c.Embeddings.TimeoutMS <= 0 {
		return fmt.Errorf("embeddings.timeout_ms must be positive, got %d", c.Embeddings.TimeoutMS)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Store.Dimensions != c.Embeddings.Dimensions {
		return fmt.Errorf("store.dimensions (%d) must match embeddings.dimensions (%d)", c.Store.Dimensions, c.Embeddings.Dimensions)
	}
	if c.Dedup.NearThreshold < 0 || c.Dedup.ExactThreshold > 1 || c.Dedup.NearThreshold > c.Dedup.ExactThreshold {
		return fmt.Errorf("dedup thresholds must satisfy 0 <= near_threshold <= exact_threshold <= 1, got near=%.2f exact=%.2f", c.Dedup.NearThreshold, c.Dedup.ExactThreshold)
	}
	if c.Hybrid.VectorWeight < 0 || c.Hybrid.TextWeight < 0 {
		return fmt.Errorf("hybrid weights must be non-negative")
	}
	if c.Hybrid.VectorWeight == 0 && c.Hybrid.TextWeight == 0 {
		return fmt.Errorf("hybrid weights must not both be zero")
	}
	if c.Embeddings.Provider == "http" && c.Embeddings.APIKey == "" && c.Embeddings.APIBase == "" {
		return fmt.Errorf("embeddings.provider=http requires api_key or an alternate api_base")
	}
	return nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
