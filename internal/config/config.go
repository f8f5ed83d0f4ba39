// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.ragcore/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Embedding: model, vector dimension, concurrency window, retry policy
//   - Chunking: chunk size, overlap, quality thresholds
//   - Retrieval: topK, similarity floor, per-step timeouts
//   - Storage: PostgreSQL row store and SQLite column store (see storage.go)
//
// Security: sensitive values (passwords) are masked in MarshalJSON/String.
// Validation: range checks in validation.go, fail-fast at load time.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidDimension indicates the embedding dimension is out of range.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidConcurrency indicates the embedding concurrency window is out of range.
	ErrInvalidConcurrency = errors.New("invalid embedding concurrency")

	// ErrInvalidChunking indicates an inconsistent chunk size / overlap pair.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidSimilarity indicates the similarity floor is out of range.
	ErrInvalidSimilarity = errors.New("invalid similarity floor")

	// ErrInvalidTopK indicates the retrieval topK is out of range.
	ErrInvalidTopK = errors.New("invalid topK")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidSQLitePath indicates the SQLite database path is invalid.
	ErrInvalidSQLitePath = errors.New("invalid SQLite path")
)

const (
	// DefaultEmbedderModel is the default Gemini embedding model.
	// text-embedding-004 outputs 768-dimension vectors, matching the
	// pgvector column in db/migrations.
	DefaultEmbedderModel = "text-embedding-004"

	// DefaultEmbedderDimension is the vector dimension the stores are
	// provisioned for. Changing it requires a schema migration on both
	// backends.
	DefaultEmbedderDimension = 768

	// DefaultEmbedConcurrency is the embedding request window size.
	DefaultEmbedConcurrency = 5

	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 2000

	// DefaultChunkOverlap is the overlap between consecutive chunks.
	DefaultChunkOverlap = 500

	// DefaultMinSimilarity is the cosine similarity floor for retrieval.
	// Tunable per tenant and per call; this is only the fallback.
	DefaultMinSimilarity = 0.3

	// DefaultTopK is the default number of chunk matches returned.
	DefaultTopK = 5
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Embedding configuration
	EmbedderModel     string  `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDimension int     `mapstructure:"embedder_dimension" json:"embedder_dimension"`
	EmbedConcurrency  int     `mapstructure:"embed_concurrency" json:"embed_concurrency"`
	EmbedMaxRetries   int     `mapstructure:"embed_max_retries" json:"embed_max_retries"`
	EmbedTimeoutSec   int     `mapstructure:"embed_timeout_sec" json:"embed_timeout_sec"`
	EmbedRatePerSec   float64 `mapstructure:"embed_rate_per_sec" json:"embed_rate_per_sec"`

	// Chunking configuration
	ChunkSize         int     `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap      int     `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	GarbageAlnumRatio float64 `mapstructure:"garbage_alnum_ratio" json:"garbage_alnum_ratio"`
	DropGarbageChunks bool    `mapstructure:"drop_garbage_chunks" json:"drop_garbage_chunks"`

	// Retrieval configuration
	TopK             int     `mapstructure:"top_k" json:"top_k"`
	MinSimilarity    float64 `mapstructure:"min_similarity" json:"min_similarity"`
	SearchTimeoutSec int     `mapstructure:"search_timeout_sec" json:"search_timeout_sec"`

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
	SQLitePath       string `mapstructure:"sqlite_path" json:"sqlite_path"`

	// HTTP API configuration
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".ragcore")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Fail-fast: a dimension or chunking mismatch must never surface as a
	// per-record runtime error.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Embedding defaults
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embedder_dimension", DefaultEmbedderDimension)
	viper.SetDefault("embed_concurrency", DefaultEmbedConcurrency)
	viper.SetDefault("embed_max_retries", 3)
	viper.SetDefault("embed_timeout_sec", 30)
	viper.SetDefault("embed_rate_per_sec", 10.0)

	// Chunking defaults
	viper.SetDefault("chunk_size", DefaultChunkSize)
	viper.SetDefault("chunk_overlap", DefaultChunkOverlap)
	viper.SetDefault("garbage_alnum_ratio", 0.3)
	viper.SetDefault("drop_garbage_chunks", false)

	// Retrieval defaults
	viper.SetDefault("top_k", DefaultTopK)
	viper.SetDefault("min_similarity", DefaultMinSimilarity)
	viper.SetDefault("search_timeout_sec", 10)

	// PostgreSQL defaults (local development database)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "ragcore")
	viper.SetDefault("postgres_password", "ragcore_dev_password")
	viper.SetDefault("postgres_db_name", "ragcore")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// SQLite column store default location
	viper.SetDefault("sqlite_path", filepath.Join("data", "columnstore.db"))

	// HTTP API defaults
	viper.SetDefault("listen_addr", "127.0.0.1:3400")

	// Logging defaults
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)
}

// bindEnvVariables binds environment variables explicitly.
//
// GEMINI_API_KEY is read directly by the embedding client, not via viper;
// its presence is checked in Validate().
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a failure here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("embedder_model", "RAGCORE_EMBEDDER_MODEL")
	mustBind("embedder_dimension", "RAGCORE_EMBEDDER_DIMENSION")
	mustBind("min_similarity", "RAGCORE_MIN_SIMILARITY")
	mustBind("sqlite_path", "RAGCORE_SQLITE_PATH")
	mustBind("listen_addr", "RAGCORE_LISTEN_ADDR")
	mustBind("log_level", "RAGCORE_LOG_LEVEL")
	mustBind("log_json", "RAGCORE_LOG_JSON")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 characters or fewer are fully masked to prevent substring
// matching; longer secrets show the first and last 2 characters.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
