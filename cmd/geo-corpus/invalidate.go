// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate <dataset-id>",
	Short: "Evict a dataset's cached aggregate view",
	Long: `Invalidate drops a dataset's aggregate view from both cache tiers, forcing
the next view/run to rebuild it from the store. Useful after a manual
database edit or a migration that bypassed the coordinator.`,
	Args: cobra.ExactArgs(1),
	RunE: runInvalidate,
}

func init() {
	rootCmd.AddCommand(invalidateCmd)
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	datasetID := args[0]

	coordinator, st, err := openCoordinator(runtimeConfig)
	if err != nil {
		return err
	}
	defer st.Close()

	coordinator.Invalidate(datasetID)
	fmt.Fprintf(os.Stdout, "invalidated cache entry for %s\n", datasetID)
	return nil
}
