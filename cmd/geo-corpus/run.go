// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-engine/internal/pipeline"
	"github.com/pdiddy/research-engine/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run <dataset-id>",
	Short: "Run the acquisition pipeline for a dataset",
	Long: `Run fetches dataset metadata, discovers citing publications, collects
candidate PDF URLs, acquires PDFs in priority order, and extracts
structured content — restart-safe: publications already acquired or
extracted in a prior run are skipped rather than redone.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().Bool("skip-p1", false, "skip citation discovery; no publication is then processed, so P2-P4 do not run either")
	runCmd.Flags().Bool("skip-p2", false, "skip URL collection")
	runCmd.Flags().Bool("skip-p3", false, "skip PDF acquisition")
	runCmd.Flags().Bool("skip-p4", false, "skip content extraction")
	runCmd.Flags().Int("max-citing", 0, "cap the number of citing publications processed (0 = unlimited)")
	runCmd.Flags().Bool("full-content", false, "include full extracted section text in the run summary")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	datasetID := args[0]

	skipP1, _ := cmd.Flags().GetBool("skip-p1")
	skipP2, _ := cmd.Flags().GetBool("skip-p2")
	skipP3, _ := cmd.Flags().GetBool("skip-p3")
	skipP4, _ := cmd.Flags().GetBool("skip-p4")
	maxCiting, _ := cmd.Flags().GetInt("max-citing")
	fullContent, _ := cmd.Flags().GetBool("full-content")

	coordinator, st, err := openCoordinator(runtimeConfig)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := pipeline.RunOptions{
		DisableP1:          skipP1,
		DisableP2:          skipP2,
		DisableP3:          skipP3,
		DisableP4:          skipP4,
		MaxCitingPapers:    maxCiting,
		IncludeFullContent: fullContent,
	}

	summary, err := coordinator.RunForDataset(context.Background(), datasetID, opts)
	if err != nil {
		return fmt.Errorf("run %s: %w", datasetID, err)
	}

	printRunSummary(summary)
	return nil
}

func printRunSummary(summary pipeline.RunSummary) {
	fmt.Fprintf(os.Stdout, "dataset %s: %d publications processed (correlation %s)\n", summary.DatasetID, summary.PublicationsProcessed, summary.CorrelationID)
	for _, stage := range []types.Stage{types.StageP1, types.StageP2, types.StageP3, types.StageP4} {
		outcome := summary.Stages[stage]
		if outcome == nil {
			continue
		}
		fmt.Fprintf(os.Stdout, "  %-4s succeeded=%-4d failed=%-4d skipped=%-4d\n",
			stage, outcome.Succeeded, outcome.Failed, outcome.Skipped)
		for _, e := range outcome.Errors {
			fmt.Fprintf(os.Stdout, "        - %s\n", e)
		}
	}
}
