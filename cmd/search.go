package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatd/ragcore/internal/app"
	"github.com/chatd/ragcore/internal/retriever"
)

var (
	searchOwner         string
	searchTopK          int
	searchMinSimilarity float64
	searchDocumentIDs   []string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Retrieve chunks for a query, falling back to documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(strings.Join(args, " "))
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchOwner, "owner", "", "owner ID to search under (required)")
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "number of chunk matches (0 = config default)")
	searchCmd.Flags().Float64Var(&searchMinSimilarity, "min-similarity", -1, "similarity floor (negative = config default)")
	searchCmd.Flags().StringSliceVar(&searchDocumentIDs, "document", nil, "restrict to document IDs (repeatable)")
	_ = searchCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(query string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	var opts []retriever.SearchOption
	if searchTopK > 0 {
		opts = append(opts, retriever.WithTopK(searchTopK))
	}
	if searchMinSimilarity >= 0 {
		opts = append(opts, retriever.WithMinSimilarity(searchMinSimilarity))
	}
	if len(searchDocumentIDs) > 0 {
		opts = append(opts, retriever.WithDocumentIDs(searchDocumentIDs))
	}

	result, err := a.Retriever.Retrieve(ctx, searchOwner, query, opts...)
	if err != nil {
		return fmt.Errorf("retrieving: %w", err)
	}

	fmt.Printf("Outcome: %s (%s)\n", result.Outcome, result.Event.Duration)
	switch result.Outcome {
	case retriever.OutcomeChunkMatch:
		for _, c := range result.Chunks {
			fmt.Printf("  [%.3f] %s #%d: %s\n", c.Similarity, c.DocumentID, c.ChunkIndex, c.TextPreview)
		}
	case retriever.OutcomeDocumentFallback:
		for _, d := range result.Documents {
			fmt.Printf("  %s: %s\n", d.ID, d.Name)
		}
	case retriever.OutcomeNoEvidence:
		fmt.Println("  no matching chunks or documents")
	}
	return nil
}
