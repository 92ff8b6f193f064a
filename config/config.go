package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for knowflow.
type Config struct {
	Index     IndexConfig     `yaml:"index"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Chat      ChatConfig      `yaml:"chat"`
	Prompts   PromptsConfig   `yaml:"prompts"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// IndexConfig holds document loading and chunking configuration.
type IndexConfig struct {
	Includes     []string `yaml:"includes"`
	Excludes     []string `yaml:"excludes"`
	ChunkSize    int      `yaml:"chunk_size"`    // Max runes per chunk
	ChunkOverlap int      `yaml:"chunk_overlap"` // Runes shared by adjacent chunks
	TempDir      string   `yaml:"temp_dir"`      // Staging dir for uploads (empty = OS temp)
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK              int           `yaml:"top_k"`
	MMREnabled        bool          `yaml:"mmr_enabled"`
	MMRLambda         float64       `yaml:"mmr_lambda"`
	MMRDedup          float64       `yaml:"mmr_dedup"`
	FetchK            int           `yaml:"fetch_k"`
	MinScoreThreshold float64       `yaml:"min_score_threshold"` // Filter results below this score (0 = disabled)
	CacheSize         int           `yaml:"cache_size"`          // Query cache entries (0 = disabled)
	CacheTTL          time.Duration `yaml:"cache_ttl"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // "openai", "jina", "deepseek", "ollama", "compatible", "hash"
	Model             string        `yaml:"model"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	BaseURL           string        `yaml:"base_url"`
	Dimension         int           `yaml:"dimension"` // Only used by the hash provider
	BatchSize         int           `yaml:"batch_size"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Cache             bool          `yaml:"cache"` // Memoize vectors in .knowflow/embeddings.db
}

// LLMConfig holds generation configuration.
type LLMConfig struct {
	Provider          string        `yaml:"provider"` // "groq", "openai", "deepseek", "ollama"
	Model             string        `yaml:"model"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	BaseURL           string        `yaml:"base_url"`
	Temperature       float64       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// ChatConfig holds conversation configuration.
type ChatConfig struct {
	DefaultSession string        `yaml:"default_session"`
	TurnTimeout    time.Duration `yaml:"turn_timeout"`
	HistoryWindow  int           `yaml:"history_window"` // Turns sent to the model (0 = all)
}

// PromptsConfig overrides the built-in prompts. Empty keeps the default.
type PromptsConfig struct {
	Contextualize string `yaml:"contextualize"`
	Answer        string `yaml:"answer"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Includes:     []string{"**/*.pdf", "**/*.txt", "**/*.md"},
			Excludes:     []string{"**/.git/**", "**/.knowflow/**", "**/node_modules/**"},
			ChunkSize:    5000,
			ChunkOverlap: 500,
		},
		Retrieve: RetrieveConfig{
			TopK:      4,
			MMRLambda: 0.7,
			MMRDedup:  0.95,
			FetchK:    20,
			CacheSize: 100,
			CacheTTL:  5 * time.Minute,
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "all-minilm",
			BatchSize: 100,
			Timeout:   60 * time.Second,
		},
		LLM: LLMConfig{
			Provider:  "groq",
			Model:     "gemma2-9b-it",
			APIKeyEnv: "GROQ_API_KEY",
			MaxTokens: 1024,
			Timeout:   60 * time.Second,
		},
		Chat: ChatConfig{
			DefaultSession: "my_session",
			TurnTimeout:    2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for knowflow.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "knowflow.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".knowflow", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Index.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("index.chunk_size must be positive, got %d", c.Index.ChunkSize))
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		errs = append(errs, fmt.Errorf("index.chunk_overlap must be in [0, chunk_size), got %d", c.Index.ChunkOverlap))
	}
	if c.Retrieve.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieve.top_k must be positive, got %d", c.Retrieve.TopK))
	}
	if c.Retrieve.MMRLambda < 0 || c.Retrieve.MMRLambda > 1 {
		errs = append(errs, fmt.Errorf("retrieve.mmr_lambda must be in [0, 1], got %g", c.Retrieve.MMRLambda))
	}
	if c.Embedding.Provider == "" {
		errs = append(errs, errors.New("embedding.provider is required"))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.Chat.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("chat.history_window must not be negative, got %d", c.Chat.HistoryWindow))
	}
	return errors.Join(errs...)
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// EmbeddingCachePath returns the path to the embedding cache database.
func EmbeddingCachePath(dir string) string {
	return filepath.Join(dir, ".knowflow", "embeddings.db")
}
