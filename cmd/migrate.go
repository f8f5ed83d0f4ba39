package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatd/ragcore/internal/app"
	"github.com/chatd/ragcore/internal/migrator"
)

var (
	migrateDryRun      bool
	migrateBatchSize   int
	migrateDocumentIDs []string
	migrateSkipSynced  bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy vector records from the row store to the columnar store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "read and validate without writing")
	migrateCmd.Flags().IntVar(&migrateBatchSize, "batch-size", 0, "records per read batch (0 = default)")
	migrateCmd.Flags().StringSliceVar(&migrateDocumentIDs, "document", nil, "restrict to document IDs (repeatable)")
	migrateCmd.Flags().BoolVar(&migrateSkipSynced, "skip-synced", false, "skip documents whose target count matches (frozen sources only)")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	stats, err := a.Migrator.Run(ctx, migrator.Options{
		DryRun:      migrateDryRun,
		BatchSize:   migrateBatchSize,
		Dimension:   a.Config.EmbedderDimension,
		DocumentIDs: migrateDocumentIDs,
		SkipSynced:  migrateSkipSynced,
	})
	if err != nil {
		return fmt.Errorf("migrating: %w", err)
	}

	mode := "migrated"
	if stats.DryRun {
		mode = "validated (dry run)"
	}
	fmt.Printf("Documents %s: %d/%d (resumed %d)\n", mode, stats.DocumentsDone, stats.Documents, stats.Resumed)
	fmt.Printf("  Read:     %d\n", stats.Read)
	fmt.Printf("  Written:  %d\n", stats.Written)
	fmt.Printf("  Invalid:  %d\n", stats.Invalid)
	fmt.Printf("  Failed:   %d\n", stats.Failed)
	fmt.Printf("  Duration: %s (%.1f records/sec)\n", stats.Duration, stats.RecordsPerSec)
	return nil
}
