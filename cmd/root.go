// Package cmd provides the ragcore CLI commands.
//
// Commands:
//   - serve: HTTP API server for indexing, retrieval, and migration
//   - index: run the indexing pipeline for a stored document
//   - search: one-shot retrieval with the fallback chain
//   - migrate: copy vector records to the columnar backend
//   - report: fetch the reference report from a running server
//   - version: build information
//
// All commands handle SIGINT/SIGTERM via context cancellation.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ragcore",
	Short: "Document indexing and retrieval pipeline",
	Long: `ragcore chunks documents, embeds the chunks with Gemini, and stores
the vectors in a PostgreSQL row store with an optional SQLite columnar
backend. Retrieval searches chunks by cosine similarity and falls back
to whole documents when no chunk clears the similarity floor.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
