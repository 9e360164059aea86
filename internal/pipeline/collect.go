// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"time"

	"github.com/pdiddy/research-engine/internal/httpclient"
	"github.com/pdiddy/research-engine/internal/ids"
	"github.com/pdiddy/research-engine/internal/sources"
	"github.com/pdiddy/research-engine/pkg/types"
)

// shapeAdjustment is the priority formula's shape component: lower
// numeric priority is better, so a direct PDF is promoted and a DOI
// resolver (one more hop from the bytes) is demoted.
func shapeAdjustment(shape types.URLShape) int {
	switch shape {
	case types.ShapePDFDirect:
		return -1
	case types.ShapeDOIResolver:
		return 2
	case types.ShapeLandingPage:
		return 1
	default:
		return 0
	}
}

// CollectResult is URL collection's output: the merged URL descriptors
// to append to a publication's URL list, plus one metric per source
// consulted.
type CollectResult struct {
	URLs    []types.URLDescriptor
	Metrics []SourceCallMetric
}

// CollectOptions bundles URL collection's tunables, carried from
// types.Config rather than threaded as separate parameters.
type CollectOptions struct {
	BasePriority       map[string]int
	ProbeUnknownShapes bool
}

// Collect runs URL collection for pub across urlSources, reusing the
// same fanOut primitive citation discovery uses. The caller is
// responsible for the skip check (any successful DownloadAttempt
// already recorded) — that is a store query, not part of this pure
// stage function.
func Collect(ctx context.Context, pub types.Publication, urlSources []sources.URLSource, policy *AdaptivePolicy, opts CollectOptions, http *httpclient.Client, deadline time.Duration) CollectResult {
	byName := make(map[string]sources.URLSource, len(urlSources))
	names := make([]string, 0, len(urlSources))
	for _, s := range urlSources {
		byName[s.Name()] = s
		names = append(names, s.Name())
	}

	primary, deferred := policy.Partition(names)
	results := fanOut(ctx, deadline, urlCalls(byName, primary, pub))
	if len(deferred) > 0 {
		results = append(results, fanOut(ctx, deadline, urlCalls(byName, deferred, pub))...)
	}

	var descriptors []types.URLDescriptor
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
		for _, d := range r.Result.Value {
			d = classifyAndPrioritize(ctx, d, r.Name, opts, http)
			descriptors = append(descriptors, d)
			metric.UniqueContributed++
		}
		metrics = append(metrics, metric)
	}

	return CollectResult{URLs: descriptors, Metrics: metrics}
}

func urlCalls(byName map[string]sources.URLSource, names []string, pub types.Publication) []fanOutCall[[]types.URLDescriptor] {
	calls := make([]fanOutCall[[]types.URLDescriptor], 0, len(names))
	for _, name := range names {
		src := byName[name]
		calls = append(calls, fanOutCall[[]types.URLDescriptor]{
			name: name,
			run: func(ctx context.Context) sources.Result[[]types.URLDescriptor] {
				return src.GetURLs(ctx, pub)
			},
		})
	}
	return calls
}

func classifyAndPrioritize(ctx context.Context, d types.URLDescriptor, source string, opts CollectOptions, http *httpclient.Client) types.URLDescriptor {
	if d.Shape == "" || d.Shape == types.ShapeUnknown {
		d.Shape = ids.ClassifyURLShape(d.URL)
	}
	if d.Shape == types.ShapeUnknown && opts.ProbeUnknownShapes && http != nil {
		if probed, ok := probeShape(ctx, d.URL, http); ok {
			d.Shape = probed
		}
	}

	base, ok := opts.BasePriority[source]
	if !ok {
		base = int(types.PriorityMedium) + 1
	}
	d.Priority = base + shapeAdjustment(d.Shape)
	return d
}

// probeShape issues a HEAD request and reclassifies an unknown-shape URL
// by its Content-Type. Only called when ProbeUnknownShapes is enabled.
func probeShape(ctx context.Context, url string, http *httpclient.Client) (types.URLShape, bool) {
	res := http.Head(ctx, url)
	if res.Err != nil || res.Header == nil {
		return "", false
	}
	ct := res.Header.Get("Content-Type")
	switch {
	case ct == "application/pdf":
		return types.ShapePDFDirect, true
	case ct == "text/html":
		return types.ShapeLandingPage, true
	default:
		return "", false
	}
}
