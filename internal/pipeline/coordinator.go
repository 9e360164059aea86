// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/research-engine/internal/cache"
	"github.com/pdiddy/research-engine/internal/httpclient"
	"github.com/pdiddy/research-engine/internal/sources"
	"github.com/pdiddy/research-engine/internal/store"
	"github.com/pdiddy/research-engine/pkg/types"
)

// RunOptions controls one RunForDataset invocation: per-stage enable
// flags, a citing-paper cap, and whether to keep full extracted content.
// The Disable* naming keeps the Go zero value ("run everything") sane.
type RunOptions struct {
	DisableP1          bool
	DisableP2          bool
	DisableP3          bool
	DisableP4          bool
	MaxCitingPapers    int
	IncludeFullContent bool
}

// StageOutcome summarizes one stage's results across a run: counts and
// a handful of representative error messages.
type StageOutcome struct {
	Stage     types.Stage
	Succeeded int
	Failed    int
	Skipped   int
	Errors    []string
}

func (o *StageOutcome) recordError(err string) {
	if len(o.Errors) < 5 {
		o.Errors = append(o.Errors, err)
	}
}

// RunSummary is RunForDataset's return value: the coordinator never
// propagates per-stage failures as a Go error, never throwing past its
// own boundary.
type RunSummary struct {
	DatasetID             string
	CorrelationID         string
	PublicationsProcessed int
	Stages                map[types.Stage]*StageOutcome
}

func newSummary(datasetID, correlationID string) RunSummary {
	return RunSummary{
		DatasetID:     datasetID,
		CorrelationID: correlationID,
		Stages: map[types.Stage]*StageOutcome{
			types.StageP1: {Stage: types.StageP1},
			types.StageP2: {Stage: types.StageP2},
			types.StageP3: {Stage: types.StageP3},
			types.StageP4: {Stage: types.StageP4},
		},
	}
}

// Coordinator drives discovery, collection, acquisition, and extraction
// for a dataset in sequence, owns the store's transactional API, and
// exposes the cache-backed read path. A long-lived type with bounded
// per-publication concurrency.
type Coordinator struct {
	store  *store.Store
	cache  *cache.Cache
	http   *httpclient.Client
	cfg    types.Config
	policy *AdaptivePolicy

	catalog         *sources.CatalogClient
	pmid            *sources.PMIDClient
	citationSources []sources.CitationSource
	urlSources      []sources.URLSource

	priorities   map[string]types.SourcePriority
	basePriority map[string]int
}

// NewCoordinator wires every layer into one long-lived orchestrator.
func NewCoordinator(st *store.Store, ch *cache.Cache, httpClient *httpclient.Client, catalog *sources.CatalogClient, pmidClient *sources.PMIDClient, citationSources []sources.CitationSource, urlSources []sources.URLSource, cfg types.Config) *Coordinator {
	priorities := make(map[string]types.SourcePriority, len(cfg.Sources))
	basePriority := make(map[string]int, len(cfg.Sources))
	for name, sc := range cfg.Sources {
		priorities[name] = sc.Priority
		basePriority[name] = int(sc.Priority) + 1
	}

	return &Coordinator{
		store:           st,
		cache:           ch,
		http:            httpClient,
		cfg:             cfg,
		policy:          NewAdaptivePolicy(cfg.Coordinator, priorities),
		catalog:         catalog,
		pmid:            pmidClient,
		citationSources: citationSources,
		urlSources:      urlSources,
		priorities:      priorities,
		basePriority:    basePriority,
	}
}

// GetCompleteView delegates to the tiered cache.
func (c *Coordinator) GetCompleteView(ctx context.Context, datasetID string) (*types.AggregateView, error) {
	return c.cache.Get(ctx, datasetID)
}

// Invalidate delegates to the tiered cache.
func (c *Coordinator) Invalidate(datasetID string) {
	c.cache.Invalidate(datasetID)
}

// RunForDataset executes one dataset's acquisition end to end: fetch and
// upsert dataset metadata, run citation discovery, fan out URL
// collection, PDF acquisition, and content extraction per publication
// with a bounded worker pool, recompute counters, invalidate the cache.
func (c *Coordinator) RunForDataset(ctx context.Context, datasetID string, opts RunOptions) (RunSummary, error) {
	correlationID := uuid.New().String()
	summary := newSummary(datasetID, correlationID)
	now := nowISO()

	metaResult := c.catalog.FetchDataset(ctx, datasetID)
	if !metaResult.Ok() {
		summary.Stages[types.StageP1].Failed++
		summary.Stages[types.StageP1].recordError(errString(metaResult.Err, metaResult.Skipped))
		return summary, nil
	}
	meta := metaResult.Value

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return summary, fmt.Errorf("pipeline: begin run for %s: %w", datasetID, err)
	}
	if err := tx.UpsertDataset(types.Dataset{
		ID: meta.ID, Title: meta.Title, Organism: meta.Organism, Platform: meta.Platform,
		SampleCount: meta.SampleCount, SubmissionDate: meta.SubmissionDate, Status: types.StatusDiscovering,
		ProviderMetadata: meta.ProviderMetadata, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		tx.Rollback()
		return summary, fmt.Errorf("pipeline: upsert dataset %s: %w", datasetID, err)
	}
	tx.AppendEvent(types.PipelineEvent{DatasetID: datasetID, Stage: types.StageP1, Type: types.EventStart, CreatedAt: now, CorrelationID: correlationID})
	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("pipeline: commit dataset upsert %s: %w", datasetID, err)
	}

	if opts.DisableP1 || len(meta.PMIDs) == 0 {
		c.recordSkip(ctx, datasetID, 0, types.StageP1, "no_seed_pmid", correlationID)
		summary.Stages[types.StageP1].Skipped++
		c.cache.Invalidate(datasetID)
		return summary, nil
	}

	publications, err := c.runP1(ctx, datasetID, meta.PMIDs[0], opts, &summary, correlationID)
	if err != nil {
		return summary, err
	}

	c.runPerPublication(ctx, datasetID, publications, opts, &summary, correlationID)

	status := types.StatusComplete
	if summary.Stages[types.StageP3].Failed > 0 || summary.Stages[types.StageP4].Failed > 0 {
		status = types.StatusPartial
	}
	if tx, err := c.store.Begin(ctx); err == nil {
		tx.BumpCounters(datasetID)
		tx.UpsertDataset(types.Dataset{
			ID: meta.ID, Title: meta.Title, Organism: meta.Organism, Platform: meta.Platform,
			SampleCount: meta.SampleCount, SubmissionDate: meta.SubmissionDate, Status: status,
			ProviderMetadata: meta.ProviderMetadata, CreatedAt: now, UpdatedAt: nowISO(),
		})
		tx.Commit()
	}
	c.cache.Invalidate(datasetID)

	return summary, nil
}

type classifiedPublication struct {
	pub          types.Publication
	relationship types.Relationship
}

// runP1 fetches the seed's metadata, runs citation discovery, and
// persists the resulting publications and links.
func (c *Coordinator) runP1(ctx context.Context, datasetID, seedPMID string, opts RunOptions, summary *RunSummary, correlationID string) ([]classifiedPublication, error) {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, deadlineOrDefault(c.cfg.Coordinator.P1Deadline, 30*time.Second))
	defer cancel()

	seed := types.Publication{PMID: seedPMID}
	if metaResult := c.pmid.FetchBatch(cctx, []string{seedPMID}); metaResult.Ok() && len(metaResult.Value) > 0 {
		seed = metaResult.Value[0]
	}

	discovered := Discover(cctx, seed, c.citationSources, c.priorities, c.policy, 30*time.Second)
	citing := discovered.Citing
	if opts.MaxCitingPapers > 0 && len(citing) > opts.MaxCitingPapers {
		citing = citing[:opts.MaxCitingPapers]
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: begin P1 write for %s: %w", datasetID, err)
	}
	defer tx.Rollback()

	now := nowISO()
	result := make([]classifiedPublication, 0, len(citing)+1)

	originalID, err := tx.UpsertPublication(discovered.Original)
	if err != nil {
		return nil, fmt.Errorf("pipeline: upsert seed publication: %w", err)
	}
	discovered.Original.ID = originalID
	if err := tx.Link(datasetID, originalID, types.RelationshipOriginal, "catalog"); err != nil {
		return nil, fmt.Errorf("pipeline: link seed publication: %w", err)
	}
	result = append(result, classifiedPublication{pub: discovered.Original, relationship: types.RelationshipOriginal})

	for _, pub := range citing {
		pubID, err := tx.UpsertPublication(pub)
		if err != nil {
			summary.Stages[types.StageP1].recordError(err.Error())
			continue
		}
		pub.ID = pubID
		strategy := ""
		if len(pub.Sources) > 0 {
			strategy = pub.Sources[0]
		}
		if err := tx.Link(datasetID, pubID, types.RelationshipCiting, strategy); err != nil {
			summary.Stages[types.StageP1].recordError(err.Error())
			continue
		}
		result = append(result, classifiedPublication{pub: pub, relationship: types.RelationshipCiting})
	}

	for _, m := range discovered.Metrics {
		tx.RecordSourceMetric(m.Source, m.Elapsed.Seconds(), m.PapersReturned, m.UniqueContributed, m.Success, false)
	}

	tx.AppendEvent(types.PipelineEvent{
		DatasetID: datasetID, Stage: types.StageP1, Type: types.EventSuccess,
		Message: fmt.Sprintf("discovered %d citing publications", len(citing)),
		DurationMS: time.Since(start).Milliseconds(), CreatedAt: now, CorrelationID: correlationID,
	})

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("pipeline: commit P1 results for %s: %w", datasetID, err)
	}

	summary.Stages[types.StageP1].Succeeded++
	summary.PublicationsProcessed = len(result)
	return result, nil
}

// runPerPublication fans URL collection, PDF acquisition, and content
// extraction out over publications with a bounded worker pool (semaphore
// channel of size cfg.Coordinator.MaxParallelPublications); the stage
// ordering within each publication stays strictly sequential.
func (c *Coordinator) runPerPublication(ctx context.Context, datasetID string, publications []classifiedPublication, opts RunOptions, summary *RunSummary, correlationID string) {
	concurrency := c.cfg.Coordinator.MaxParallelPublications
	if concurrency <= 0 {
		concurrency = 3
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, cp := range publications {
		wg.Add(1)
		sem <- struct{}{}
		go func(cp classifiedPublication) {
			defer wg.Done()
			defer func() { <-sem }()
			c.processPublication(ctx, datasetID, cp, opts, summary, &mu, correlationID)
		}(cp)
	}
	wg.Wait()
}

func (c *Coordinator) processPublication(ctx context.Context, datasetID string, cp classifiedPublication, opts RunOptions, summary *RunSummary, mu *sync.Mutex, correlationID string) {
	pub := cp.pub

	alreadyAcquired, err := c.store.HasSuccessfulDownload(ctx, pub.ID)
	if err != nil {
		mu.Lock()
		summary.Stages[types.StageP3].recordError(err.Error())
		mu.Unlock()
		return
	}

	if alreadyAcquired {
		c.recordSkip(ctx, datasetID, pub.ID, types.StageP2, "already_acquired", correlationID)
		mu.Lock()
		summary.Stages[types.StageP2].Skipped++
		mu.Unlock()
	} else if !opts.DisableP2 {
		c.runP2(ctx, datasetID, pub, summary, mu, correlationID)
	}

	var filePath, sha string
	switch {
	case alreadyAcquired:
		if attempt, err := c.store.LatestSuccessfulDownload(ctx, pub.ID); err == nil && attempt != nil {
			filePath = attempt.FilePath
			if filePath != "" {
				sha, _ = fileSHA256(filePath)
			}
		}
		c.recordSkip(ctx, datasetID, pub.ID, types.StageP3, "already_acquired", correlationID)
		mu.Lock()
		summary.Stages[types.StageP3].Skipped++
		mu.Unlock()
	case opts.DisableP3:
		mu.Lock()
		summary.Stages[types.StageP3].Skipped++
		mu.Unlock()
	default:
		filePath, sha = c.runP3(ctx, datasetID, cp, summary, mu, correlationID)
	}

	if filePath == "" || opts.DisableP4 {
		mu.Lock()
		summary.Stages[types.StageP4].Skipped++
		mu.Unlock()
		return
	}

	if existing, err := c.store.GetExtraction(ctx, datasetID, pub.ID); err == nil && existing != nil && existing.PDFSHA256 == sha && sha != "" {
		c.recordSkip(ctx, datasetID, pub.ID, types.StageP4, "unchanged_pdf_hash", correlationID)
		mu.Lock()
		summary.Stages[types.StageP4].Skipped++
		mu.Unlock()
		return
	}

	c.runP4(ctx, datasetID, pub.ID, filePath, sha, summary, mu, correlationID)
}

// fileSHA256 recomputes a previously-acquired PDF's hash on restart,
// since DownloadAttempt does not itself persist one (only PutExtraction
// does, as ContentExtraction.PDFSHA256).
func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func (c *Coordinator) runP2(ctx context.Context, datasetID string, pub types.Publication, summary *RunSummary, mu *sync.Mutex, correlationID string) {
	start := time.Now()
	deadline := deadlineOrDefault(c.cfg.Coordinator.P2Deadline, 30*time.Second)
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	result := Collect(cctx, pub, c.urlSources, c.policy, CollectOptions{
		BasePriority:       c.basePriority,
		ProbeUnknownShapes: c.cfg.Coordinator.ProbeUnknownShapes,
	}, c.http, deadline)

	tx, err := c.store.Begin(ctx)
	if err != nil {
		mu.Lock()
		summary.Stages[types.StageP2].recordError(err.Error())
		mu.Unlock()
		return
	}
	defer tx.Rollback()

	if len(result.URLs) > 0 {
		if err := tx.AppendURLList(pub.ID, result.URLs); err != nil {
			mu.Lock()
			summary.Stages[types.StageP2].recordError(err.Error())
			mu.Unlock()
			return
		}
	}
	for _, m := range result.Metrics {
		tx.RecordSourceMetric(m.Source, m.Elapsed.Seconds(), m.PapersReturned, m.UniqueContributed, m.Success, false)
	}
	tx.AppendEvent(types.PipelineEvent{
		DatasetID: datasetID, PublicationID: pub.ID, Stage: types.StageP2, Type: types.EventSuccess,
		Message: fmt.Sprintf("collected %d urls", len(result.URLs)), DurationMS: time.Since(start).Milliseconds(), CreatedAt: nowISO(),
		CorrelationID: correlationID,
	})
	if err := tx.Commit(); err != nil {
		mu.Lock()
		summary.Stages[types.StageP2].recordError(err.Error())
		mu.Unlock()
		return
	}

	mu.Lock()
	summary.Stages[types.StageP2].Succeeded++
	mu.Unlock()
}

func (c *Coordinator) runP3(ctx context.Context, datasetID string, cp classifiedPublication, summary *RunSummary, mu *sync.Mutex, correlationID string) (filePath, sha string) {
	start := time.Now()
	deadline := deadlineOrDefault(c.cfg.Coordinator.P3Deadline, 120*time.Second)
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	view, err := c.store.GetCompleteView(ctx, datasetID)
	var urls []types.URLDescriptor
	if err == nil && view != nil {
		if pv, ok := view.PerPub[cp.pub.ID]; ok {
			urls = pv.URLs
		}
	}

	result := Fetch(cctx, cp.pub, urls, datasetID, cp.relationship, c.cfg.PDFs.Root, c.http, 60*time.Second, c.cfg.Coordinator.MaxDownloadAttemptsPerPublication)

	tx, err := c.store.Begin(ctx)
	if err != nil {
		mu.Lock()
		summary.Stages[types.StageP3].recordError(err.Error())
		mu.Unlock()
		return "", ""
	}
	defer tx.Rollback()

	for _, a := range result.Attempts {
		a.CreatedAt = nowISO()
		a.CorrelationID = correlationID
		tx.AppendDownloadAttempt(a)
	}

	eventType, message := types.EventFailure, "no valid pdf found"
	if result.Success {
		eventType, message = types.EventSuccess, fmt.Sprintf("acquired pdf from %s", result.Source)
	}
	if len(urls) == 0 {
		eventType, message = types.EventSkip, "no_urls"
	}
	tx.AppendEvent(types.PipelineEvent{
		DatasetID: datasetID, PublicationID: cp.pub.ID, Stage: types.StageP3, Type: eventType,
		Message: message, DurationMS: time.Since(start).Milliseconds(), CreatedAt: nowISO(),
		CorrelationID: correlationID,
	})

	if err := tx.Commit(); err != nil {
		mu.Lock()
		summary.Stages[types.StageP3].recordError(err.Error())
		mu.Unlock()
		return "", ""
	}

	mu.Lock()
	if result.Success {
		summary.Stages[types.StageP3].Succeeded++
	} else if len(urls) == 0 {
		summary.Stages[types.StageP3].Skipped++
	} else {
		summary.Stages[types.StageP3].Failed++
	}
	mu.Unlock()

	if !result.Success {
		return "", ""
	}
	return result.FilePath, result.SHA256
}

func (c *Coordinator) runP4(ctx context.Context, datasetID string, publicationID int64, filePath, sha string, summary *RunSummary, mu *sync.Mutex, correlationID string) {
	start := time.Now()
	result := Extract(datasetID, publicationID, filePath, sha)
	result.Extraction.CreatedAt = nowISO()

	tx, err := c.store.Begin(ctx)
	if err != nil {
		mu.Lock()
		summary.Stages[types.StageP4].recordError(err.Error())
		mu.Unlock()
		return
	}
	defer tx.Rollback()

	if err := tx.PutExtraction(result.Extraction); err != nil {
		mu.Lock()
		summary.Stages[types.StageP4].recordError(err.Error())
		mu.Unlock()
		return
	}

	eventType := types.EventSuccess
	message := fmt.Sprintf("extracted, quality %.2f (%s)", result.Extraction.QualityScore, result.Extraction.QualityGrade)
	if result.ParseError != "" {
		eventType = types.EventFailure
		message = result.ParseError
	}
	tx.AppendEvent(types.PipelineEvent{
		DatasetID: datasetID, PublicationID: publicationID, Stage: types.StageP4, Type: eventType,
		Message: message, DurationMS: time.Since(start).Milliseconds(), CreatedAt: nowISO(),
		CorrelationID: correlationID,
	})

	if err := tx.Commit(); err != nil {
		mu.Lock()
		summary.Stages[types.StageP4].recordError(err.Error())
		mu.Unlock()
		return
	}

	mu.Lock()
	if result.ParseError == "" {
		summary.Stages[types.StageP4].Succeeded++
	} else {
		summary.Stages[types.StageP4].Failed++
	}
	mu.Unlock()
}

// recordSkip appends a skip event on its own transaction, independent of
// whatever stage transaction is or isn't running around the call site —
// every skip reason lands in the audit log even when the skip itself
// short-circuits the stage before any other write. publicationID is 0
// for a dataset-level skip.
func (c *Coordinator) recordSkip(ctx context.Context, datasetID string, publicationID int64, stage types.Stage, reason string, correlationID string) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return
	}
	tx.AppendEvent(types.PipelineEvent{
		DatasetID: datasetID, PublicationID: publicationID, Stage: stage, Type: types.EventSkip,
		Message: reason, CreatedAt: nowISO(), CorrelationID: correlationID,
	})
	tx.Commit()
}

func deadlineOrDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func errString(err error, skip string) string {
	if err != nil {
		return err.Error()
	}
	return skip
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
