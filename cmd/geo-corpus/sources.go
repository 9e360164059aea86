// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-engine/internal/store"
	"github.com/pdiddy/research-engine/pkg/types"
)

var sourcesExportPath string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Print running per-source reliability metrics",
	Long: `Sources prints the SourceMetric table: total/successful/failed requests,
average response time, and papers contributed per provider — the same
counters the adaptive policy uses to demote a low-reliability source.

With --export, the same metrics are also saved as a YAML snapshot an
operator can diff against a later run.`,
	RunE: runSources,
}

func init() {
	sourcesCmd.Flags().StringVar(&sourcesExportPath, "export", "", "save a YAML metrics snapshot to this path")
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	st, err := store.Open(runtimeConfig.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store %s: %w", runtimeConfig.Store.Path, err)
	}
	defer st.Close()

	metrics, err := st.ListSourceMetrics(context.Background())
	if err != nil {
		return err
	}
	formatSourceMetrics(metrics, os.Stdout)

	if sourcesExportPath != "" {
		if err := store.WriteMetricsSnapshot(sourcesExportPath, metrics, time.Now()); err != nil {
			return fmt.Errorf("exporting metrics snapshot: %w", err)
		}
		fmt.Fprintf(os.Stdout, "snapshot written to %s\n", sourcesExportPath)
	}
	return nil
}

func formatSourceMetrics(metrics []types.SourceMetric, w io.Writer) {
	if len(metrics) == 0 {
		fmt.Fprintln(w, "No source metrics recorded yet.")
		return
	}

	fmt.Fprintf(w, "%-20s  %-6s  %-6s  %-6s  %-9s  %-7s  %s\n",
		"Source", "Total", "OK", "Fail", "AvgSecs", "Papers", "Unique")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, m := range metrics {
		avg := 0.0
		if m.TotalRequests > 0 {
			avg = m.TotalResponseTimeSeconds / float64(m.TotalRequests)
		}
		fmt.Fprintf(w, "%-20s  %-6d  %-6d  %-6d  %-9.2f  %-7d  %d\n",
			m.Source, m.TotalRequests, m.SuccessfulRequests, m.FailedRequests, avg, m.TotalPapersReturned, m.UniquePapersContributed)
	}
}
