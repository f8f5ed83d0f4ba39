package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatd/ragcore/api"
	"github.com/chatd/ragcore/internal/config"
)

var (
	reportAddr     string
	reportOwner    string
	reportDocument string
)

// Events live in the serve process, so the report is fetched over its
// API rather than rebuilt from an empty local log.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Fetch the reference report from a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport()
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportAddr, "addr", "", "server address (host:port, overrides config)")
	reportCmd.Flags().StringVar(&reportOwner, "owner", "", "limit the report to one owner")
	reportCmd.Flags().StringVar(&reportDocument, "document", "", "limit the report to one source document")
	rootCmd.AddCommand(reportCmd)
}

func runReport() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	addr := reportAddr
	if addr == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		addr = cfg.ListenAddr
	}

	query := url.Values{}
	if reportOwner != "" {
		query.Set("owner_id", reportOwner)
	}
	if reportDocument != "" {
		query.Set("document_id", reportDocument)
	}
	u := fmt.Sprintf("http://%s/api/report", addr)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching report from %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var body api.ReportResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding report: %w", err)
	}

	r := body.Report
	fmt.Printf("Retrievals: %d\n", r.Total)
	fmt.Printf("  Chunk success:      %d\n", r.ChunkSuccess)
	fmt.Printf("  Document fallback:  %d\n", r.DocumentFallback)
	fmt.Printf("  No reference:       %d\n", r.NoReference)
	fmt.Printf("  Failed:             %d\n", r.Failed)
	if r.Total > 0 {
		fmt.Printf("  Chunk hit rate:     %.1f%%\n", r.ChunkHitRate*100)
		fmt.Printf("  Fallback rate:      %.1f%%\n", r.FallbackRate*100)
	}
	if r.AvgSimilarity > 0 {
		fmt.Printf("  Avg similarity:     %.3f\n", r.AvgSimilarity)
	}
	if len(r.TopSources) > 0 {
		fmt.Println("Top sources:")
		for _, src := range r.TopSources {
			fmt.Printf("  %s: %d top matches\n", src.DocumentID, src.TopMatches)
		}
	}
	return nil
}
