package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
//
// Everything checked here is fatal at startup: a bad chunking pair or a
// dimension mismatch must never degrade into per-record runtime failures.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// API key (required for all embedding operations)
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	// Embedding configuration
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// The stores are provisioned for a fixed dimension; both backends
	// reject vectors of any other length at write time.
	if c.EmbedderDimension < 1 || c.EmbedderDimension > 4096 {
		return fmt.Errorf("%w: must be between 1 and 4096, got %d",
			ErrInvalidDimension, c.EmbedderDimension)
	}

	if c.EmbedConcurrency < 1 || c.EmbedConcurrency > 64 {
		return fmt.Errorf("%w: must be between 1 and 64, got %d",
			ErrInvalidConcurrency, c.EmbedConcurrency)
	}

	if c.EmbedMaxRetries < 0 || c.EmbedMaxRetries > 10 {
		return fmt.Errorf("%w: embed_max_retries must be between 0 and 10, got %d",
			ErrInvalidConcurrency, c.EmbedMaxRetries)
	}

	// Chunking configuration
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d",
			ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must satisfy 0 <= overlap < chunk_size, got overlap=%d size=%d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}
	if c.GarbageAlnumRatio < 0 || c.GarbageAlnumRatio > 1 {
		return fmt.Errorf("%w: garbage_alnum_ratio must be between 0 and 1, got %.2f",
			ErrInvalidChunking, c.GarbageAlnumRatio)
	}

	// Retrieval configuration
	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidTopK, c.TopK)
	}
	if c.MinSimilarity < -1 || c.MinSimilarity > 1 {
		return fmt.Errorf("%w: must be between -1 and 1, got %.2f",
			ErrInvalidSimilarity, c.MinSimilarity)
	}

	// PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d",
			ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml",
			ErrInvalidPostgresPassword)
	}

	if c.PostgresPassword == "ragcore_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	// Modern SSL modes only - exclude deprecated allow/prefer (MITM vulnerable)
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	if c.SQLitePath == "" {
		return fmt.Errorf("%w: sqlite_path cannot be empty", ErrInvalidSQLitePath)
	}

	return nil
}
