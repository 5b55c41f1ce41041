package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port             int               `json:"port"`
	DBDSN            string            `json:"db_dsn"`
	MigrationsDir    string            `json:"migrations_dir"`
	JWTSecret        string            `json:"jwt_secret"`
	JWTTTLHours      int               `json:"jwt_ttl_hours"`
	APIKeyHash       string            `json:"api_key_hash"`
	RateLimitSeconds int               `json:"rate_limit_seconds"`
	LogConfig        logger.LogConfig  `json:"log_config"`
	FileStore        FileStoreConfig   `json:"file_store"`
	VectorStore      VectorStoreConfig `json:"vector_store"`
	AI               AIConfig          `json:"ai"`
	Extract          ExtractConfig     `json:"extract"`
	Chunk            ChunkConfig       `json:"chunk"`
	Query            QueryConfig       `json:"query"`
	EmbedCache       EmbedCacheConfig  `json:"embed_cache"`
	Jobs             JobsConfig        `json:"jobs"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type VectorStoreConfig struct {
	Type      string      `json:"type"`
	Dimension int         `json:"dimension"`
	Data      interface{} `json:"data"`
}

type ProviderConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Args     interface{} `json:"args"`
}

type AIConfig struct {
	Chat          []ProviderConfig `json:"chat"`
	Embed         []ProviderConfig `json:"embed"`
	Timeout       int              `json:"timeout"`
	MaxInputChars int              `json:"max_input_chars"`
	RetryAttempts int              `json:"retry_attempts"`
}

type SemanticConfig struct {
	APIKey      string `json:"api_key"`
	Model       string `json:"model"`
	Instruction string `json:"instruction"`
}

type ExtractConfig struct {
	Semantic      SemanticConfig `json:"semantic"`
	AllowFallback *bool          `json:"allow_fallback"`
}

type ChunkConfig struct {
	Size    int `json:"size"`
	Overlap int `json:"overlap"`
}

type QueryConfig struct {
	TimeoutSeconds int `json:"timeout_seconds"`
	DefaultTopK    int `json:"default_top_k"`
	MaxTopK        int `json:"max_top_k"`
}

type EmbedCacheConfig struct {
	Size       int `json:"size"`
	TTLMinutes int `json:"ttl_minutes"`
}

type JobsConfig struct {
	CleanupSpec        string `json:"cleanup_spec"`
	IngestJobMaxAgeHrs int    `json:"ingest_job_max_age_hours"`
}

// AllowFallbackDefault reports the configured fallback policy for the
// semantic extraction path; unset means fall back with a degraded tag.
func (c *ExtractConfig) AllowFallbackDefault() bool {
	if c.AllowFallback == nil {
		return true
	}
	return *c.AllowFallback
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("db_dsn is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.APIKeyHash == "" {
		return nil, fmt.Errorf("api_key_hash is required")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	// Negative disables the write-route limiter, zero takes the default.
	if cfg.RateLimitSeconds < 0 {
		cfg.RateLimitSeconds = 0
	} else if cfg.RateLimitSeconds == 0 {
		cfg.RateLimitSeconds = 1
	}
	if cfg.MigrationsDir == "" {
		cfg.MigrationsDir = "migrations"
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.FileStore.Type == "local" && cfg.FileStore.Data == nil {
		cfg.FileStore.Data = map[string]interface{}{"dir": "data/uploads"}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "pgvector"
	}
	if cfg.VectorStore.Dimension <= 0 {
		return nil, fmt.Errorf("vector_store.dimension is required")
	}
	if len(cfg.AI.Embed) == 0 {
		return nil, fmt.Errorf("ai.embed requires at least one provider")
	}
	if len(cfg.AI.Chat) == 0 {
		return nil, fmt.Errorf("ai.chat requires at least one provider")
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60
	}
	if cfg.AI.RetryAttempts <= 0 {
		cfg.AI.RetryAttempts = 3
	}
	if cfg.Chunk.Size <= 0 {
		cfg.Chunk.Size = 1024
	}
	if cfg.Chunk.Overlap < 0 {
		cfg.Chunk.Overlap = 0
	}
	if cfg.Query.TimeoutSeconds <= 0 {
		cfg.Query.TimeoutSeconds = 60
	}
	if cfg.Query.DefaultTopK <= 0 {
		cfg.Query.DefaultTopK = 5
	}
	if cfg.Query.MaxTopK <= 0 {
		cfg.Query.MaxTopK = 50
	}
	if cfg.EmbedCache.Size == 0 {
		cfg.EmbedCache.Size = 4096
	}
	if cfg.EmbedCache.TTLMinutes == 0 {
		cfg.EmbedCache.TTLMinutes = 120
	}
	if cfg.Jobs.CleanupSpec == "" {
		cfg.Jobs.CleanupSpec = "30 3 * * *"
	}
	if cfg.Jobs.IngestJobMaxAgeHrs <= 0 {
		cfg.Jobs.IngestJobMaxAgeHrs = 72
	}
	return &cfg, nil
}
