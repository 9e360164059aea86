// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/pdiddy/research-engine/internal/cache"
	"github.com/pdiddy/research-engine/internal/httpclient"
	"github.com/pdiddy/research-engine/internal/pipeline"
	"github.com/pdiddy/research-engine/internal/sources"
	"github.com/pdiddy/research-engine/internal/store"
	"github.com/pdiddy/research-engine/pkg/types"
)

// openCoordinator builds the full stack — store, cache, rate-limited
// client, source clients — and wires them into one Coordinator, assembling
// the source-client list from cfg before the coordinator's first call.
func openCoordinator(cfg types.Config) (*pipeline.Coordinator, *store.Store, error) {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening store %s: %w", cfg.Store.Path, err)
	}

	ch := cache.New(st, cfg.Cache)

	var opts []httpclient.Option
	opts = append(opts, httpclient.WithRateLimits(cfg.RateLimits), httpclient.WithRetryConfig(cfg.Retry), httpclient.WithUserAgent(cfg.HTTP.UserAgent))
	if cfg.HTTP.DisableTLSVerify {
		opts = append(opts, httpclient.WithTLSVerify(false))
	}
	if cfg.InstitutionalProxyURL != "" {
		opts = append(opts, httpclient.WithInstitutionalProxy(cfg.InstitutionalProxyURL))
	}
	client := httpclient.New(cfg.HTTP.Timeout, opts...)

	catalog := sources.NewCatalogClient(client)
	pmidClient := sources.NewPMIDClient(client, cfg.NCBIAPIKey)

	citationSources := []sources.CitationSource{
		sources.NewOpenAlexCitations(client, cfg.UnpaywallEmail),
		sources.NewSemanticScholarCitations(client, sourceAPIKey(cfg, "semantic_scholar")),
		sources.NewEuropePMCCitations(client),
		sources.NewOpenCitationsMeta(client),
		sources.NewPubMedELink(client, pmidClient, cfg.NCBIAPIKey),
	}

	urlSources := []sources.URLSource{
		sources.NewPMCSource(client),
		sources.NewUnpaywallSource(client, cfg.UnpaywallEmail),
		sources.NewCORESource(client, sourceAPIKey(cfg, "core")),
		sources.NewOpenAlexOA(client, cfg.UnpaywallEmail),
		sources.NewBiorxivArxivSource(),
		sources.NewCrossrefResolver(),
	}
	if cfg.InstitutionalProxyURL != "" {
		urlSources = append(urlSources, sources.NewInstitutionalProxySource(cfg.InstitutionalProxyURL))
	}
	if cfg.Coordinator.EnableGraySources {
		urlSources = append(urlSources,
			sources.NewSciHubSource(client, "https://sci-hub.se", cfg.Sources["scihub"].Enabled),
			sources.NewLibgenSource(client, "https://libgen.is", cfg.Sources["libgen"].Enabled),
		)
	}

	coordinator := pipeline.NewCoordinator(st, ch, client, catalog, pmidClient, citationSources, urlSources, cfg)
	return coordinator, st, nil
}

func sourceAPIKey(cfg types.Config, name string) string {
	if sc, ok := cfg.Sources[name]; ok {
		return sc.APIKey
	}
	return ""
}
