// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-engine/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the store's schema",
	Long: `Migrate opens the configured store path and runs schema creation, the
same idempotent CREATE TABLE IF NOT EXISTS set store.Open runs on every
startup. Useful for provisioning a fresh store file without running the
pipeline.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	st, err := store.Open(runtimeConfig.Store.Path)
	if err != nil {
		return fmt.Errorf("migrating store %s: %w", runtimeConfig.Store.Path, err)
	}
	defer st.Close()

	fmt.Fprintf(os.Stdout, "schema ready at %s\n", runtimeConfig.Store.Path)
	return nil
}
