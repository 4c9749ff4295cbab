package config

import "time"

// DefaultPersona is the system instruction used when none is configured.
const DefaultPersona = "You are a thoughtful assistant for this site. Answer conversationally and concisely. " +
	"If you do not know something, say so instead of guessing."

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxMessageChars == 0 {
		cfg.Server.MaxMessageChars = 4000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 64 << 10
	}
	if cfg.Server.AdminTokenEnv == "" {
		cfg.Server.AdminTokenEnv = "KAIWA_ADMIN_TOKEN"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kaiwa/data/kaiwa.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/kaiwa/data/indices/bleve"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "gemini"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "gemini-embedding-001"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "GEMINI_API_KEY"
	}
	if cfg.Embedding.Dimensions == 0 {
		if cfg.Embedding.Provider == "onnx" {
			cfg.Embedding.Dimensions = 384
		} else {
			cfg.Embedding.Dimensions = 768
		}
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}

	if cfg.Completion.Provider == "" {
		cfg.Completion.Provider = "gemini"
	}
	if cfg.Completion.APIKeyEnv == "" {
		cfg.Completion.APIKeyEnv = "GEMINI_API_KEY"
	}
	if cfg.Completion.Model == "" {
		cfg.Completion.Model = "gemini-2.5-flash"
	}
	if cfg.Completion.SummaryModel == "" {
		cfg.Completion.SummaryModel = cfg.Completion.Model
	}
	if cfg.Completion.MaxTokensGrounded == 0 {
		cfg.Completion.MaxTokensGrounded = 1024
	}
	if cfg.Completion.MaxTokensPlain == 0 {
		cfg.Completion.MaxTokensPlain = 384
	}
	if cfg.Completion.SummaryMaxTokens == 0 {
		cfg.Completion.SummaryMaxTokens = 300
	}
	if cfg.Completion.Timeout == 0 {
		cfg.Completion.Timeout = 45 * time.Second
	}
	if cfg.Completion.Persona == "" {
		cfg.Completion.Persona = DefaultPersona
	}

	if cfg.Session.Window == 0 {
		cfg.Session.Window = 20
	}
	if cfg.Session.SizeThreshold == 0 {
		cfg.Session.SizeThreshold = 3000
	}
	if cfg.Session.IdleTimeout == 0 {
		cfg.Session.IdleTimeout = 30 * time.Minute
	}
	if cfg.Session.SweepInterval == 0 {
		cfg.Session.SweepInterval = 5 * time.Minute
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}

	if cfg.Corpus.Source == "" {
		cfg.Corpus.Source = "directory"
	}
	if cfg.Corpus.Include == nil {
		cfg.Corpus.Include = []string{"**/*.md", "**/*.txt", "**/*.pdf", "**/*.docx", "**/*.xlsx"}
	}
	if cfg.Corpus.WatchDebounce == 0 {
		cfg.Corpus.WatchDebounce = 2 * time.Second
	}
	if cfg.Corpus.GitHub.Ref == "" {
		cfg.Corpus.GitHub.Ref = "main"
	}
	if cfg.Corpus.GitHub.TokenEnv == "" {
		cfg.Corpus.GitHub.TokenEnv = "GITHUB_TOKEN"
	}
	if cfg.Corpus.ChunkChars == 0 {
		cfg.Corpus.ChunkChars = 2000
	}
	if cfg.Corpus.ChunkOverlapChars == 0 {
		cfg.Corpus.ChunkOverlapChars = 200
	}
	if cfg.Corpus.ChunkWords == 0 {
		cfg.Corpus.ChunkWords = 300
	}
	if cfg.Corpus.ChunkOverlapWords == 0 {
		cfg.Corpus.ChunkOverlapWords = 40
	}
	if cfg.Corpus.EmbedBatchSize == 0 {
		cfg.Corpus.EmbedBatchSize = 32
	}
	if cfg.Corpus.EmbedRequestsPerSecond == 0 {
		cfg.Corpus.EmbedRequestsPerSecond = 5
	}
}
