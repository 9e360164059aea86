// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-engine/pkg/types"
)

var viewCmd = &cobra.Command{
	Use:   "view <dataset-id>",
	Short: "Print a dataset's aggregate view",
	Long: `View prints the cached aggregate view for a dataset: dataset metadata,
original and citing publications, per-publication URLs/downloads/
extraction, and the dataset-wide derived counts.`,
	Args: cobra.ExactArgs(1),
	RunE: runView,
}

func init() {
	viewCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	datasetID := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	coordinator, st, err := openCoordinator(runtimeConfig)
	if err != nil {
		return err
	}
	defer st.Close()

	view, err := coordinator.GetCompleteView(context.Background(), datasetID)
	if err != nil {
		return fmt.Errorf("view %s: %w", datasetID, err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	printView(view)
	return nil
}

func printView(view *types.AggregateView) {
	fmt.Fprintf(os.Stdout, "%s  %s  status=%s\n", view.Dataset.ID, view.Dataset.Title, view.Dataset.Status)
	fmt.Fprintf(os.Stdout, "  publications: %d total, %d original, %d citing\n",
		view.Counts.PublicationsTotal, len(view.Publications.Original), len(view.Publications.Citing))
	fmt.Fprintf(os.Stdout, "  pdfs acquired: %d, extracted: %d\n", view.Counts.PDFsAcquired, view.Counts.PDFsExtracted)

	for _, pub := range append(append([]types.Publication{}, view.Publications.Original...), view.Publications.Citing...) {
		pv := view.PerPub[pub.ID]
		if pv == nil {
			continue
		}
		status := "no pdf"
		if pv.Extraction != nil {
			status = fmt.Sprintf("grade %s", pv.Extraction.QualityGrade)
		} else {
			for _, d := range pv.Downloads {
				if d.Status == types.DownloadSuccess {
					status = "pdf acquired"
					break
				}
			}
		}
		fmt.Fprintf(os.Stdout, "    [%d] %s (%d urls, %s)\n", pub.ID, pub.Title, len(pv.URLs), status)
	}
}
