package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatd/ragcore/internal/app"
	"github.com/chatd/ragcore/internal/indexer"
)

var indexCmd = &cobra.Command{
	Use:   "index <document-id>",
	Short: "Run the indexing pipeline for a stored document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(args[0])
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(documentID string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	doc, err := a.Documents.Get(ctx, documentID)
	if err != nil {
		return fmt.Errorf("loading document %q: %w", documentID, err)
	}

	run, err := a.Indexer.Index(ctx, indexer.Document{
		ID:         doc.ID,
		OwnerID:    doc.OwnerID,
		Name:       doc.Name,
		SourceType: doc.SourceType,
		Content:    doc.Content,
	})
	if err != nil {
		return fmt.Errorf("indexing document %q: %w", documentID, err)
	}

	if err := a.Documents.MarkIndexed(ctx, doc.ID, true); err != nil {
		return fmt.Errorf("marking document indexed: %w", err)
	}

	fmt.Printf("Indexed %s (run %s)\n", run.DocumentID, run.RunID)
	fmt.Printf("  Chunks:       %d (dropped %d)\n", run.Chunks, run.Dropped)
	fmt.Printf("  Embedded:     %d (failed %d)\n", run.Embedded, run.EmbedFailed)
	fmt.Printf("  Written:      %d (failed %d)\n", run.Written, run.WriteFailed)
	fmt.Printf("  Quality:      %.2f\n", run.Quality)
	fmt.Printf("  Duration:     %s\n", run.Duration)
	return nil
}
