package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatd/ragcore/api"
	"github.com/chatd/ragcore/internal/app"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (host:port, overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	srv := api.NewServer(api.Deps{
		Pool:      a.Pool,
		Column:    a.Column,
		Documents: a.Documents,
		Indexer:   a.Indexer,
		Retriever: a.Retriever,
		Migrator:  a.Migrator,
		Reporter:  a.Events,
		Dimension: a.Config.EmbedderDimension,
	}, a.Logger)

	addr := serveAddr
	if addr == "" {
		addr = a.Config.ListenAddr
	}

	a.Logger.Info("starting API server", "version", Version, "addr", addr)
	return srv.Run(ctx, addr)
}
