// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config loads geo-corpus's Config struct from a YAML file, the
// environment, and process defaults, layered with viper: a discovered
// config file first, then GEOCORPUS_-prefixed environment variables, with
// explicit defaults filled in for anything left unset.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/research-engine/pkg/types"
)

// InitViper wires config file discovery and environment overrides. cfgFile,
// when non-empty, names an explicit config file (the CLI's --config flag);
// otherwise viper searches ./geo-corpus.yaml then
// ~/.config/geo-corpus/config.yaml.
func InitViper(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("geo-corpus")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			homeConfig := filepath.Join(home, ".config", "geo-corpus", "config.yaml")
			if _, err := os.Stat("geo-corpus.yaml"); err != nil {
				if _, err := os.Stat(homeConfig); err == nil {
					viper.SetConfigFile(homeConfig)
				}
			}
		}
	}

	viper.SetEnvPrefix("GEOCORPUS")
	viper.AutomaticEnv()
}

// ReadConfigFile loads the file viper discovered via InitViper, returning
// the path used. A missing config file is not an error: geo-corpus runs
// entirely on defaults and environment variables if none is found.
func ReadConfigFile() (string, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return "", nil
		}
		return "", fmt.Errorf("reading config file: %w", err)
	}
	return viper.ConfigFileUsed(), nil
}

// defaultHostLimits mirrors the provider rate-limit table: a token bucket
// per host group, with refill rates tuned to each provider's published
// ceiling.
func defaultHostLimits() []types.HostLimit {
	return []types.HostLimit{
		{Host: "catalog", RequestsPerSecond: 3, Burst: 3},
		{Host: "pmid", RequestsPerSecond: 10, Burst: 10},
		{Host: "openalex", RequestsPerSecond: 10, Burst: 5},
		{Host: "semantic_scholar", RequestsPerSecond: 1, Burst: 1},
		{Host: "europe_pmc", RequestsPerSecond: 10, Burst: 5},
		{Host: "opencitations_meta", RequestsPerSecond: 2, Burst: 2},
		{Host: "pubmed_elink", RequestsPerSecond: 3, Burst: 3},
		{Host: "pmc", RequestsPerSecond: 5, Burst: 5},
		{Host: "unpaywall", RequestsPerSecond: 10, Burst: 5},
		{Host: "default", RequestsPerSecond: 5, Burst: 5},
	}
}

// defaultSources assigns each provider its default reliability priority.
// Catalog and PMID metadata are CRITICAL; citation sources are HIGH except
// OpenCitations (MEDIUM); the institutional proxy is LOW; the gray-area
// URL fallbacks (scihub, libgen) are FALLBACK and disabled.
func defaultSources() map[string]types.SourceConfig {
	mk := func(priority types.SourcePriority) types.SourceConfig {
		return types.SourceConfig{Enabled: true, Priority: priority, Deadline: 20 * time.Second}
	}
	return map[string]types.SourceConfig{
		"catalog":            mk(types.PriorityCritical),
		"pmid":               mk(types.PriorityCritical),
		"openalex":           mk(types.PriorityHigh),
		"semantic_scholar":   mk(types.PriorityHigh),
		"europe_pmc":         mk(types.PriorityHigh),
		"pubmed_elink":       mk(types.PriorityHigh),
		"opencitations_meta": mk(types.PriorityMedium),
		"pmc":                mk(types.PriorityHigh),
		"unpaywall":          mk(types.PriorityHigh),
		"core":               mk(types.PriorityMedium),
		"openalex_oa":        mk(types.PriorityMedium),
		"biorxiv_arxiv":      mk(types.PriorityMedium),
		"crossref":           mk(types.PriorityMedium),
		"institutional":      mk(types.PriorityLow),
		"scihub":             types.SourceConfig{Enabled: false, Priority: types.PriorityFallback, Deadline: 20 * time.Second},
		"libgen":             types.SourceConfig{Enabled: false, Priority: types.PriorityFallback, Deadline: 20 * time.Second},
	}
}

// Default returns a Config populated with the process defaults: the
// DB_PATH-equivalent store path, 3 max-parallel publications, a 1h cache
// TTL, and the source priority/rate-limit tables above.
func Default() types.Config {
	return types.Config{
		HTTP: types.HTTPConfig{
			Timeout:            30 * time.Second,
			UserAgent:          "geo-corpus/1.0",
			MaxConcurrentConns: 16,
		},
		Retry: types.RetryConfig{
			BaseDelay:  500 * time.Millisecond,
			Factor:     2,
			JitterFrac: 0.2,
			MaxRetries: 3,
		},
		RateLimits: defaultHostLimits(),
		Sources:    defaultSources(),
		Store: types.StoreConfig{
			Path: "geo-corpus.db",
		},
		PDFs: types.PDFsConfig{
			Root: "pdfs",
		},
		Cache: types.CacheConfig{
			TTL:        time.Hour,
			MaxEntries: 256,
		},
		Coordinator: types.CoordinatorConfig{
			MaxParallelPublications:          3,
			P1Deadline:                       60 * time.Second,
			P2Deadline:                       60 * time.Second,
			P3Deadline:                       90 * time.Second,
			P4Deadline:                       60 * time.Second,
			MaxDownloadAttemptsPerPublication: 10,
			AdaptiveWindow:                    20,
			AdaptiveThreshold:                 0.2,
		},
	}
}

// Load builds a Config starting from Default, layering in whatever viper
// discovered from the config file and GEOCORPUS_ environment variables.
// Call InitViper and ReadConfigFile before Load.
func Load() types.Config {
	cfg := Default()

	if v := viper.GetString("store.path"); v != "" {
		cfg.Store.Path = v
	}
	if v := viper.GetString("pdfs.root"); v != "" {
		cfg.PDFs.Root = v
	}
	if v := viper.GetInt("coordinator.max_parallel_publications"); v > 0 {
		cfg.Coordinator.MaxParallelPublications = v
	}
	if viper.GetBool("http.disable_tls_verify") {
		cfg.HTTP.DisableTLSVerify = true
	}
	if v := viper.GetString("institutional_proxy_url"); v != "" {
		cfg.InstitutionalProxyURL = v
	}
	if v := viper.GetString("unpaywall_email"); v != "" {
		cfg.UnpaywallEmail = v
	}
	if v := viper.GetString("ncbi_api_key"); v != "" {
		cfg.NCBIAPIKey = v
	}
	if viper.GetBool("coordinator.skip_low_reliability") {
		cfg.Coordinator.SkipLowReliability = true
	}
	if viper.GetBool("coordinator.probe_unknown_shapes") {
		cfg.Coordinator.ProbeUnknownShapes = true
	}
	if viper.GetBool("coordinator.enable_gray_sources") {
		cfg.Coordinator.EnableGraySources = true
		if s, ok := cfg.Sources["scihub"]; ok {
			s.Enabled = true
			cfg.Sources["scihub"] = s
		}
		if s, ok := cfg.Sources["libgen"]; ok {
			s.Enabled = true
			cfg.Sources["libgen"] = s
		}
	}

	// These operator-facing environment variables take precedence even
	// when AutomaticEnv's GEOCORPUS_ prefix doesn't match their name.
	if v := os.Getenv("PDFS_ROOT"); v != "" {
		cfg.PDFs.Root = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("NCBI_API_KEY"); v != "" {
		cfg.NCBIAPIKey = v
	}
	if v := os.Getenv("UNPAYWALL_EMAIL"); v != "" {
		cfg.UnpaywallEmail = v
	}
	if v := os.Getenv("INSTITUTIONAL_PROXY_URL"); v != "" {
		cfg.InstitutionalProxyURL = v
	}
	if os.Getenv("DISABLE_TLS_VERIFY") != "" {
		cfg.HTTP.DisableTLSVerify = true
	}
	if v := os.Getenv("MAX_PARALLEL_PUBLICATIONS"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.Coordinator.MaxParallelPublications = n
		}
	}

	return cfg
}

func parsePositiveInt(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("not positive: %s", s)
	}
	return n, nil
}

// ApplySecrets fills any credential fields left empty by Load from the
// secrets directory: an explicit config/env value always wins over a
// secrets-file value.
func ApplySecrets(cfg types.Config, secrets map[string]string) types.Config {
	cfg.UnpaywallEmail = secretDefault(secrets, "unpaywall-email", cfg.UnpaywallEmail)
	cfg.NCBIAPIKey = secretDefault(secrets, "ncbi-api-key", cfg.NCBIAPIKey)
	cfg.InstitutionalProxyURL = secretDefault(secrets, "institutional-proxy-url", cfg.InstitutionalProxyURL)

	if s, ok := cfg.Sources["semantic_scholar"]; ok {
		s.APIKey = secretDefault(secrets, "semantic-scholar-api-key", s.APIKey)
		cfg.Sources["semantic_scholar"] = s
	}
	return cfg
}

func secretDefault(secrets map[string]string, key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	return secrets[key]
}
