// Package config provides configuration loading and structs for the kaiwa server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Completion CompletionConfig `yaml:"completion"`
	Session    SessionConfig    `yaml:"session"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Corpus     CorpusConfig     `yaml:"corpus"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	MaxMessageChars int    `yaml:"max_message_chars"`
	MaxBodyBytes    int64  `yaml:"max_body_bytes"`
	// AdminTokenEnv names the environment variable holding the bearer token for /admin routes.
	AdminTokenEnv string `yaml:"admin_token_env"`
	CookieSecure  bool   `yaml:"cookie_secure"`
}

// AdminToken returns the admin bearer token from the environment, or "" when unset.
func (s *ServerConfig) AdminToken() string {
	if s.AdminTokenEnv == "" {
		return ""
	}
	return os.Getenv(s.AdminTokenEnv)
}

// StorageConfig holds paths for the database and the full-text index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of "gemini", "onnx", or "mock".
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
	// ONNX settings.
	ModelPath string `yaml:"model_path"`
	MaxTokens int    `yaml:"max_tokens"`
}

// APIKey returns the provider API key from the environment.
func (e *EmbeddingConfig) APIKey() string {
	return os.Getenv(e.APIKeyEnv)
}

// CompletionConfig selects and configures the completion provider and prompt budget.
type CompletionConfig struct {
	// Provider is one of "gemini" or "mock".
	Provider      string  `yaml:"provider"`
	APIKeyEnv     string  `yaml:"api_key_env"`
	Model         string  `yaml:"model"`
	FallbackModel string  `yaml:"fallback_model"`
	SummaryModel  string  `yaml:"summary_model"`
	Temperature   float64 `yaml:"temperature"`
	// MaxTokensGrounded bounds replies that have grounding context; MaxTokensPlain bounds the rest.
	MaxTokensGrounded int           `yaml:"max_tokens_grounded"`
	MaxTokensPlain    int           `yaml:"max_tokens_plain"`
	SummaryMaxTokens  int           `yaml:"summary_max_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	Persona           string        `yaml:"persona"`
}

// APIKey returns the provider API key from the environment.
func (c *CompletionConfig) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// SessionConfig holds conversational memory settings.
type SessionConfig struct {
	// Window is the number of most recent messages kept verbatim.
	Window int `yaml:"window"`
	// SizeThreshold is the approximate transcript size, in words, that triggers summarization.
	SizeThreshold int           `yaml:"size_threshold"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RetrievalConfig holds grounding settings.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
	// MaxDistance drops hits farther than this; 0 keeps everything.
	MaxDistance float64 `yaml:"max_distance"`
}

// CorpusConfig holds content source and re-index settings.
type CorpusConfig struct {
	// Source is "directory" or "github".
	Source        string        `yaml:"source"`
	Directory     string        `yaml:"directory"`
	Include       []string      `yaml:"include"`
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
	GitHub        GitHubConfig  `yaml:"github"`

	ChunkChars             int     `yaml:"chunk_chars"`
	ChunkOverlapChars      int     `yaml:"chunk_overlap_chars"`
	ChunkWords             int     `yaml:"chunk_words"`
	ChunkOverlapWords      int     `yaml:"chunk_overlap_words"`
	EmbedBatchSize         int     `yaml:"embed_batch_size"`
	EmbedRequestsPerSecond float64 `yaml:"embed_requests_per_second"`
}

// GitHubConfig points at a repository holding the corpus.
type GitHubConfig struct {
	Owner      string `yaml:"owner"`
	Repo       string `yaml:"repo"`
	Ref        string `yaml:"ref"`
	PathPrefix string `yaml:"path_prefix"`
	TokenEnv   string `yaml:"token_env"`
}

// Token returns the GitHub token from the environment.
func (g *GitHubConfig) Token() string {
	if g.TokenEnv == "" {
		return ""
	}
	return os.Getenv(g.TokenEnv)
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Corpus.Directory != "" {
		cfg.Corpus.Directory = expandPath(cfg.Corpus.Directory, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that defaults cannot fix.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "gemini", "onnx", "mock":
	default:
		return fmt.Errorf("unknown embedding provider: %s (supported: gemini, onnx, mock)", c.Embedding.Provider)
	}
	switch c.Completion.Provider {
	case "gemini", "mock":
	default:
		return fmt.Errorf("unknown completion provider: %s (supported: gemini, mock)", c.Completion.Provider)
	}
	switch c.Corpus.Source {
	case "directory", "github":
	default:
		return fmt.Errorf("unknown corpus source: %s (supported: directory, github)", c.Corpus.Source)
	}
	if c.Corpus.Source == "github" && (c.Corpus.GitHub.Owner == "" || c.Corpus.GitHub.Repo == "") {
		return fmt.Errorf("corpus.github.owner and corpus.github.repo are required for the github source")
	}
	if c.Corpus.ChunkOverlapChars >= c.Corpus.ChunkChars {
		return fmt.Errorf("corpus.chunk_overlap_chars must be smaller than corpus.chunk_chars")
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
