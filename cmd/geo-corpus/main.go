// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the geo-corpus CLI.
// Implements the acquisition and persistence pipeline's command-line
// surface: run, view, invalidate, sources, migrate.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pdiddy/research-engine/internal/config"
	"github.com/pdiddy/research-engine/internal/secrets"
	"github.com/pdiddy/research-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// runtimeConfig is the fully-resolved Config, built once in
// PersistentPreRunE after secrets and flags are known.
var runtimeConfig types.Config

var rootCmd = &cobra.Command{
	Use:   "geo-corpus",
	Short: "Acquisition and persistence pipeline for a citation-expanded publication corpus",
	Long: `geo-corpus turns a dataset ID and seed PMID into a corpus of publications,
PDFs, and structured extractions. It discovers citing papers, collects
candidate URLs from a dozen providers, acquires PDFs in priority order,
and extracts structured sections and references — all driven by a single
long-lived coordinator with restart-safe skip logic.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}

		runtimeConfig = config.ApplySecrets(config.Load(), loadedSecrets)
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./geo-corpus.yaml or ~/.config/geo-corpus/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	config.InitViper(cfgFile)
	if used, err := config.ReadConfigFile(); err == nil && used != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", used)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
