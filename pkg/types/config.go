// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by every stage that makes
// network requests.
type HTTPConfig struct {
	Timeout            time.Duration `json:"timeout" yaml:"timeout"`
	UserAgent          string        `json:"user_agent" yaml:"user_agent"`
	DisableTLSVerify   bool          `json:"disable_tls_verify" yaml:"disable_tls_verify"`
	MaxConcurrentConns int           `json:"max_concurrent_conns" yaml:"max_concurrent_conns"`
}

// HostLimit configures the token-bucket rate limit for one host group.
type HostLimit struct {
	Host              string  `json:"host" yaml:"host"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `json:"burst" yaml:"burst"`
}

// SourceConfig configures one external source client.
type SourceConfig struct {
	Name     string         `json:"name" yaml:"name"`
	Enabled  bool           `json:"enabled" yaml:"enabled"`
	Priority SourcePriority `json:"priority" yaml:"priority"`
	Deadline time.Duration  `json:"deadline" yaml:"deadline"`
	APIKey   string         `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// RetryConfig controls the HTTP client's exponential-backoff retry
// policy.
type RetryConfig struct {
	BaseDelay  time.Duration `json:"base_delay" yaml:"base_delay"`
	Factor     float64       `json:"factor" yaml:"factor"`
	JitterFrac float64       `json:"jitter_frac" yaml:"jitter_frac"`
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
}

// StoreConfig configures the unified relational store.
type StoreConfig struct {
	// Path is the unified store's SQLite file, typically $DB_PATH.
	Path string `json:"path" yaml:"path"`
}

// PDFsConfig configures the content-addressed PDF filesystem layout.
type PDFsConfig struct {
	// Root is the PDFs directory, typically $PDFS_ROOT.
	Root string `json:"root" yaml:"root"`
}

// CacheConfig configures the tiered cache.
type CacheConfig struct {
	TTL time.Duration `json:"ttl" yaml:"ttl"`
	// MaxEntries bounds the in-process LRU tier.
	MaxEntries int `json:"max_entries" yaml:"max_entries"`
	// DurableDir, if set, backs tier 1 with a Badger KV store so the cache
	// survives process restarts without a network hop.
	DurableDir string `json:"durable_dir,omitempty" yaml:"durable_dir,omitempty"`
}

// CoordinatorConfig configures the pipeline coordinator.
type CoordinatorConfig struct {
	MaxParallelPublications int `json:"max_parallel_publications" yaml:"max_parallel_publications"`

	P1Deadline time.Duration `json:"p1_deadline" yaml:"p1_deadline"`
	P2Deadline time.Duration `json:"p2_deadline" yaml:"p2_deadline"`
	P3Deadline time.Duration `json:"p3_deadline" yaml:"p3_deadline"`
	P4Deadline time.Duration `json:"p4_deadline" yaml:"p4_deadline"`

	MaxDownloadAttemptsPerPublication int `json:"max_download_attempts_per_publication" yaml:"max_download_attempts_per_publication"`

	// AdaptiveWindow is the rolling number of calls used to compute a
	// source's success rate for the low-reliability demotion policy.
	AdaptiveWindow int `json:"adaptive_window" yaml:"adaptive_window"`
	// AdaptiveThreshold is the success-rate floor (e.g. 0.20) below which a
	// non-CRITICAL source is marked low-reliability.
	AdaptiveThreshold float64 `json:"adaptive_threshold" yaml:"adaptive_threshold"`
	// SkipLowReliability, when true, omits low-reliability sources entirely
	// instead of merely running them after higher-priority sources finish.
	SkipLowReliability bool `json:"skip_low_reliability" yaml:"skip_low_reliability"`

	ProbeUnknownShapes bool `json:"probe_unknown_shapes" yaml:"probe_unknown_shapes"`
	EnableGraySources  bool `json:"enable_gray_sources" yaml:"enable_gray_sources"`
}

// Config groups every stage's configuration, passed down explicitly
// rather than read from globals.
type Config struct {
	HTTP        HTTPConfig              `json:"http" yaml:"http"`
	Retry       RetryConfig             `json:"retry" yaml:"retry"`
	RateLimits  []HostLimit             `json:"rate_limits" yaml:"rate_limits"`
	Sources     map[string]SourceConfig `json:"sources" yaml:"sources"`
	Store       StoreConfig             `json:"store" yaml:"store"`
	PDFs        PDFsConfig              `json:"pdfs" yaml:"pdfs"`
	Cache       CacheConfig             `json:"cache" yaml:"cache"`
	Coordinator CoordinatorConfig       `json:"coordinator" yaml:"coordinator"`

	// InstitutionalProxyURL, when set, enables proxy-rewrite mode for
	// institutional access.
	InstitutionalProxyURL string `json:"institutional_proxy_url,omitempty" yaml:"institutional_proxy_url,omitempty"`
	// UnpaywallEmail is required to use the Unpaywall source.
	UnpaywallEmail string `json:"unpaywall_email,omitempty" yaml:"unpaywall_email,omitempty"`
	// NCBIAPIKey raises the rate limit for catalog/PMID/elink calls.
	NCBIAPIKey string `json:"ncbi_api_key,omitempty" yaml:"ncbi_api_key,omitempty"`
}
