// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/pdiddy/research-engine/internal/ids"
	"github.com/pdiddy/research-engine/internal/sources"
	"github.com/pdiddy/research-engine/pkg/types"
)

// SourceCallMetric is what citation discovery and URL collection feed
// into Store.Tx.RecordSourceMetric at the end of a fan-out.
type SourceCallMetric struct {
	Source            string
	PapersReturned    int
	UniqueContributed int
	Elapsed           time.Duration
	Success           bool
}

// DiscoverResult is citation discovery's output: the seed reclassified
// as original, every distinct citing publication found, and one metric
// per source consulted.
type DiscoverResult struct {
	Original types.Publication
	Citing   []types.Publication
	Metrics  []SourceCallMetric
}

// Discover runs citation discovery for seed across citationSources,
// merging and deduplicating results by canonical identifier: five
// concurrent source calls each under its own deadline, a
// richer-field-wins merge, stable output order, and adaptive source
// demotion.
func Discover(ctx context.Context, seed types.Publication, citationSources []sources.CitationSource, priorities map[string]types.SourcePriority, policy *AdaptivePolicy, deadline time.Duration) DiscoverResult {
	byName := make(map[string]sources.CitationSource, len(citationSources))
	names := make([]string, 0, len(citationSources))
	for _, s := range citationSources {
		byName[s.Name()] = s
		names = append(names, s.Name())
	}

	primary, deferred := policy.Partition(names)
	results := fanOut(ctx, deadline, citationCalls(byName, primary, seed))
	if len(deferred) > 0 {
		results = append(results, fanOut(ctx, deadline, citationCalls(byName, deferred, seed))...)
	}

	index := make(map[string]*types.Publication)
	firstSource := make(map[string]string)
	metrics := make([]SourceCallMetric, 0, len(results))

	for _, r := range results {
		success := r.Result.Err == nil
		policy.Record(r.Name, success)

		metric := SourceCallMetric{Source: r.Name, Elapsed: r.Elapsed, Success: success}
		if !r.Result.Ok() {
			metrics = append(metrics, metric)
			continue
		}

		metric.PapersReturned = len(r.Result.Value)
		for _, pub := range r.Result.Value {
			pub.Sources = []string{r.Name}
			key := ids.CanonicalKey(pub)
			existing, ok := index[key]
			if !ok {
				clone := pub
				index[key] = &clone
				firstSource[key] = r.Name
				metric.UniqueContributed++
				continue
			}
			merged := mergeIdentity(*existing, pub, priorities[firstSource[key]], priorities[r.Name])
			*existing = merged
		}
		metrics = append(metrics, metric)
	}

	seedKey := ids.CanonicalKey(seed)
	if found, ok := index[seedKey]; ok {
		seed = mergeIdentity(seed, *found, types.PriorityCritical, priorities[firstSource[seedKey]])
		delete(index, seedKey)
	}

	keys := make([]string, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	citing := make([]types.Publication, 0, len(keys))
	for _, k := range keys {
		citing = append(citing, *index[k])
	}

	for _, s := range citationSources {
		if oc, ok := s.(*sources.OpenCitationsMeta); ok {
			backfillMetadata(ctx, oc, citing, deadline)
		}
	}

	return DiscoverResult{Original: seed, Citing: citing, Metrics: metrics}
}

// openCitationsMetadataChunk mirrors OpenCitationsMeta's own per-request
// DOI ceiling; callers chunk before calling FetchBatchMetadata.
const openCitationsMetadataChunk = 10

// backfillMetadata fills in title/authors/journal/year for citing
// publications that carry only a DOI (opencitations_meta's GetCitations
// reports citing-ness, not bibliographic detail). A failed or empty
// lookup just leaves those fields blank rather than failing the stage.
func backfillMetadata(ctx context.Context, oc *sources.OpenCitationsMeta, citing []types.Publication, deadline time.Duration) {
	var bare []int
	for i, pub := range citing {
		if pub.DOI != "" && pub.Title == "" {
			bare = append(bare, i)
		}
	}
	for start := 0; start < len(bare); start += openCitationsMetadataChunk {
		end := start + openCitationsMetadataChunk
		if end > len(bare) {
			end = len(bare)
		}
		idxs := bare[start:end]
		dois := make([]string, len(idxs))
		for i, idx := range idxs {
			dois[i] = citing[idx].DOI
		}

		cctx, cancel := context.WithTimeout(ctx, deadline)
		resp := oc.FetchBatchMetadata(cctx, dois)
		cancel()
		if !resp.Ok() {
			continue
		}

		byDOI := make(map[string]types.Publication, len(resp.Value))
		for _, pub := range resp.Value {
			byDOI[pub.DOI] = pub
		}
		for _, idx := range idxs {
			if meta, ok := byDOI[citing[idx].DOI]; ok {
				citing[idx].Title = meta.Title
				citing[idx].Authors = meta.Authors
				citing[idx].Journal = meta.Journal
				citing[idx].Year = meta.Year
			}
		}
	}
}

func citationCalls(byName map[string]sources.CitationSource, names []string, seed types.Publication) []fanOutCall[[]types.Publication] {
	calls := make([]fanOutCall[[]types.Publication], 0, len(names))
	for _, name := range names {
		src := byName[name]
		calls = append(calls, fanOutCall[[]types.Publication]{
			name: name,
			run: func(ctx context.Context) sources.Result[[]types.Publication] {
				return src.GetCitations(ctx, seed)
			},
		})
	}
	return calls
}

// mergeIdentity combines two Publication records believed to be the same
// paper: an empty field is filled from the other side; a field that
// disagrees between the two is taken from whichever source has the
// higher priority class (lower SourcePriority value): CRITICAL > HIGH >
// MEDIUM > LOW.
func mergeIdentity(dst, src types.Publication, dstPriority, srcPriority types.SourcePriority) types.Publication {
	preferSrc := srcPriority < dstPriority

	merge := func(d, s string) string {
		if d == "" {
			return s
		}
		if s == "" || s == d {
			return d
		}
		if preferSrc {
			return s
		}
		return d
	}

	dst.PMID = merge(dst.PMID, src.PMID)
	dst.DOI = merge(dst.DOI, src.DOI)
	dst.PMCID = merge(dst.PMCID, src.PMCID)
	dst.ArxivID = merge(dst.ArxivID, src.ArxivID)
	dst.Title = merge(dst.Title, src.Title)
	dst.Journal = merge(dst.Journal, src.Journal)
	if dst.Year == 0 {
		dst.Year = src.Year
	}
	if len(dst.Authors) == 0 {
		dst.Authors = src.Authors
	}

	seen := make(map[string]bool, len(dst.Sources))
	merged := append([]string{}, dst.Sources...)
	for _, s := range dst.Sources {
		seen[s] = true
	}
	for _, s := range src.Sources {
		if !seen[s] {
			seen[s] = true
			merged = append(merged, s)
		}
	}
	dst.Sources = merged
	return dst
}
