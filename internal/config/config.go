package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig locates the SQLite database holding posts and embeddings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// EmbedderConfig selects and configures the text embedder implementation.
// Dimension is the fixed collection dimension and must not change once the
// database holds embeddings.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// VectorStoreConfig selects the native index probed at startup.
type VectorStoreConfig struct {
	// Index is one of "vptree", "qdrant" or "none".
	Index  string        `yaml:"index"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant gRPC endpoint.
type QdrantConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	Provider    string   `yaml:"provider"`
	BaseURL     string   `yaml:"base_url"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	Model       string   `yaml:"model"`
	TimeoutSecs int      `yaml:"timeout_secs"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// RetrievalConfig controls how many posts are fetched and how much of each
// is forwarded to the language model.
type RetrievalConfig struct {
	SearchLimit     int `yaml:"search_limit"`
	ContextPosts    int `yaml:"context_posts"`
	MaxCharsPerPost int `yaml:"max_chars_per_post"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Database    DatabaseConfig    `yaml:"database"`
	Source      string            `yaml:"source"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	LLM         LLMConfig         `yaml:"llm"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/forumrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/forumrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate returns human-readable warnings for settings that will make a
// component fall back or fail at startup.
func (c *AppConfig) Validate() []string {
	var warnings []string
	switch c.Embedder.Type {
	case "hashing", "openai":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown embedder type %q", c.Embedder.Type))
	}
	if c.Embedder.Type == "openai" && c.Embedder.OpenAI != nil && os.Getenv(c.Embedder.OpenAI.APIKeyEnv) == "" {
		warnings = append(warnings, fmt.Sprintf("embedder: %s is not set", c.Embedder.OpenAI.APIKeyEnv))
	}
	switch c.VectorStore.Index {
	case "vptree", "qdrant", "none":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown vector index %q; linear scan will be used", c.VectorStore.Index))
	}
	switch c.LLM.Provider {
	case "openai":
		if os.Getenv(c.LLM.APIKeyEnv) == "" {
			warnings = append(warnings, fmt.Sprintf("llm: %s is not set", c.LLM.APIKeyEnv))
		}
	case "extractive":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown llm provider %q", c.LLM.Provider))
	}
	if c.Retrieval.ContextPosts > c.Retrieval.SearchLimit {
		warnings = append(warnings, "retrieval: context_posts exceeds search_limit")
	}
	return warnings
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "forumrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Database:    DatabaseConfig{Path: "forum_posts.db"},
		Source:      "forums.iracing.com",
		Embedder:    EmbedderConfig{Type: "hashing", Dimension: 384},
		VectorStore: VectorStoreConfig{Index: "vptree"},
		LLM:         LLMConfig{Provider: "extractive"},
		Retrieval:   RetrievalConfig{SearchLimit: 5, ContextPosts: 5, MaxCharsPerPost: 500},
		Log:         LogConfig{Level: "info", Format: "text"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Database.Path == "" {
		cfg.Database.Path = "forum_posts.db"
	}
	if cfg.Source == "" {
		cfg.Source = "forums.iracing.com"
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.Dimension == 0 {
			cfg.Embedder.Dimension = 1536
		}
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 384
	}
	if cfg.VectorStore.Index == "" {
		cfg.VectorStore.Index = "vptree"
	}
	if cfg.VectorStore.Index == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.Host == "" {
			cfg.VectorStore.Qdrant.Host = "localhost"
		}
		if cfg.VectorStore.Qdrant.Port == 0 {
			cfg.VectorStore.Qdrant.Port = 6334
		}
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "forum_posts"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 5
		}
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "extractive"
	}
	if cfg.LLM.Provider == "openai" {
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.LLM.APIKeyEnv == "" {
			cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "gpt-4o-mini"
		}
		if cfg.LLM.TimeoutSecs == 0 {
			cfg.LLM.TimeoutSecs = 120
		}
	}
	if cfg.Retrieval.SearchLimit <= 0 {
		cfg.Retrieval.SearchLimit = 5
	}
	if cfg.Retrieval.ContextPosts <= 0 {
		cfg.Retrieval.ContextPosts = 5
	}
	if cfg.Retrieval.MaxCharsPerPost <= 0 {
		cfg.Retrieval.MaxCharsPerPost = 500
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
