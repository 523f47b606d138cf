package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"

	"github.com/xxxsen/mdedup/internal/dedup"
)

type Config struct {
	Port        int              `json:"port"`
	JWTSecret   string           `json:"jwt_secret"`
	JWTTTLHours int              `json:"jwt_ttl_hours"`
	CORSOrigins []string         `json:"cors_origins"`
	LogConfig   logger.LogConfig `json:"log_config"`
	Database    DatabaseConfig   `json:"database"`
	Dedup       dedup.Config     `json:"dedup"`
	Embedding   EmbeddingConfig  `json:"embedding"`
	Retry       RetryConfig      `json:"retry"`
	Jobs        JobsConfig       `json:"jobs"`
	ReportStore FileStoreConfig  `json:"report_store"`
	// BatchRateLimitSeconds is the minimum gap between two batch runs of one user.
	BatchRateLimitSeconds int `json:"batch_rate_limit_seconds"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type EmbeddingProviderConfig struct {
	Name     string      `json:"name"`
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type EmbeddingConfig struct {
	// Providers are tried in order; an empty list disables embedding sync.
	Providers         []EmbeddingProviderConfig `json:"providers"`
	TaskType          string                    `json:"task_type"`
	LRUSize           int                       `json:"lru_size"`
	LRUTTLSeconds     int                       `json:"lru_ttl_seconds"`
	DBCache           bool                      `json:"db_cache"`
	SyncBatchSize     int                       `json:"sync_batch_size"`
	SyncRatePerSecond float64                   `json:"sync_rate_per_second"`
	FetchConcurrency  int                       `json:"fetch_concurrency"`
}

type RetryConfig struct {
	MaxAttempts      int     `json:"max_attempts"`
	InitialBackoffMs int     `json:"initial_backoff_ms"`
	MaxBackoffMs     int     `json:"max_backoff_ms"`
	Multiplier       float64 `json:"multiplier"`
}

type JobsConfig struct {
	DedupBatchSpec    string `json:"dedup_batch_spec"`
	EmbeddingSyncSpec string `json:"embedding_sync_spec"`
	CacheCleanupSpec  string `json:"cache_cleanup_spec"`
	CacheMaxAgeDays   int    `json:"cache_max_age_days"`
	// EmbeddingSyncDelaySeconds skips documents edited more recently than this.
	EmbeddingSyncDelaySeconds int64 `json:"embedding_sync_delay_seconds"`
}

// FileStoreConfig selects where run reports are archived. An empty type disables archiving.
type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Default returns a config with every optional field filled in.
func Default() Config {
	return Config{
		JWTTTLHours: 72,
		LogConfig:   logger.LogConfig{Level: "info"},
		Database:    DatabaseConfig{Port: 5432, SSLMode: "disable"},
		Dedup:       dedup.DefaultConfig(),
		Embedding: EmbeddingConfig{
			TaskType:          "SEMANTIC_SIMILARITY",
			LRUSize:           2048,
			LRUTTLSeconds:     3600,
			DBCache:           true,
			SyncBatchSize:     100,
			SyncRatePerSecond: 5,
			FetchConcurrency:  4,
		},
		Retry: RetryConfig{
			MaxAttempts:      3,
			InitialBackoffMs: 200,
			MaxBackoffMs:     5000,
			Multiplier:       2.0,
		},
		Jobs: JobsConfig{
			DedupBatchSpec:            "30 3 * * *",
			EmbeddingSyncSpec:         "*/10 * * * *",
			CacheCleanupSpec:          "0 4 * * 0",
			CacheMaxAgeDays:           30,
			EmbeddingSyncDelaySeconds: 60,
		},
		BatchRateLimitSeconds: 30,
	}
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

// Decode reads a JSON config over the defaults and validates it.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if err := c.Dedup.Validate(); err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	for i, p := range c.Embedding.Providers {
		if strings.TrimSpace(p.Provider) == "" || strings.TrimSpace(p.Model) == "" {
			return fmt.Errorf("embedding.providers[%d]: provider and model are required", i)
		}
	}
	if c.Embedding.SyncBatchSize <= 0 {
		return fmt.Errorf("embedding.sync_batch_size must be positive")
	}
	if c.Embedding.FetchConcurrency <= 0 {
		return fmt.Errorf("embedding.fetch_concurrency must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1")
	}
	switch strings.ToLower(strings.TrimSpace(c.ReportStore.Type)) {
	case "", "local", "s3":
	default:
		return fmt.Errorf("report_store.type must be local or s3")
	}
	return nil
}
