// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"sync"

	"github.com/pdiddy/research-engine/pkg/types"
)

// AdaptivePolicy tracks each source's rolling success rate over its last
// AdaptiveWindow calls and demotes a source below AdaptiveThreshold to
// low-reliability. CRITICAL sources are never demoted: a CRITICAL source
// failing doesn't make it optional, it makes the run degraded.
type AdaptivePolicy struct {
	mu         sync.Mutex
	window     int
	threshold  float64
	skipLow    bool
	priorities map[string]types.SourcePriority
	history    map[string][]bool
}

// NewAdaptivePolicy builds a policy from coordinator config and the
// configured priority class per source name.
func NewAdaptivePolicy(cfg types.CoordinatorConfig, priorities map[string]types.SourcePriority) *AdaptivePolicy {
	window := cfg.AdaptiveWindow
	if window <= 0 {
		window = 20
	}
	threshold := cfg.AdaptiveThreshold
	if threshold <= 0 {
		threshold = 0.20
	}
	return &AdaptivePolicy{
		window:     window,
		threshold:  threshold,
		skipLow:    cfg.SkipLowReliability,
		priorities: priorities,
		history:    make(map[string][]bool),
	}
}

// Record appends one call's outcome to source's rolling window, dropping
// the oldest entry once the window is full.
func (p *AdaptivePolicy) Record(source string, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := append(p.history[source], success)
	if len(h) > p.window {
		h = h[len(h)-p.window:]
	}
	p.history[source] = h
}

// SuccessRate returns source's rolling success rate, or 1.0 if it has no
// history yet (an untested source is not penalized).
func (p *AdaptivePolicy) SuccessRate(source string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.history[source]
	if len(h) == 0 {
		return 1.0
	}
	successes := 0
	for _, ok := range h {
		if ok {
			successes++
		}
	}
	return float64(successes) / float64(len(h))
}

// IsLowReliability reports whether source should be demoted: its rolling
// success rate is below threshold and it isn't CRITICAL.
func (p *AdaptivePolicy) IsLowReliability(source string) bool {
	if p.priorities[source] == types.PriorityCritical {
		return false
	}
	p.mu.Lock()
	h := p.history[source]
	p.mu.Unlock()
	if len(h) < p.window {
		return false
	}
	return p.SuccessRate(source) < p.threshold
}

// Partition splits sourceNames into a primary batch (run immediately)
// and a deferred batch (low-reliability sources, started only after the
// primary batch finishes). When SkipLowReliability is set, the deferred
// batch is dropped entirely rather than run at all.
func (p *AdaptivePolicy) Partition(sourceNames []string) (primary, deferred []string) {
	for _, name := range sourceNames {
		if p.IsLowReliability(name) {
			if !p.skipLow {
				deferred = append(deferred, name)
			}
			continue
		}
		primary = append(primary, name)
	}
	return primary, deferred
}
