// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"testing"

	"github.com/pdiddy/research-engine/pkg/types"
)

func newTestPolicy(window int, threshold float64, skipLow bool, priorities map[string]types.SourcePriority) *AdaptivePolicy {
	return NewAdaptivePolicy(types.CoordinatorConfig{
		AdaptiveWindow:     window,
		AdaptiveThreshold:  threshold,
		SkipLowReliability: skipLow,
	}, priorities)
}

func TestAdaptivePolicyUntestedSourceNotPenalized(t *testing.T) {
	p := newTestPolicy(20, 0.2, false, nil)
	if rate := p.SuccessRate("fresh"); rate != 1.0 {
		t.Fatalf("expected untested source rate 1.0, got %f", rate)
	}
	if p.IsLowReliability("fresh") {
		t.Fatalf("untested source should not be low-reliability")
	}
}

func TestAdaptivePolicyDemotesBelowThreshold(t *testing.T) {
	p := newTestPolicy(5, 0.5, false, nil)
	for i := 0; i < 5; i++ {
		p.Record("flaky", i < 1)
	}
	if !p.IsLowReliability("flaky") {
		t.Fatalf("expected source with 20%% success rate to be demoted at 50%% threshold")
	}
}

func TestAdaptivePolicyNeverDemotesCritical(t *testing.T) {
	priorities := map[string]types.SourcePriority{"catalog": types.PriorityCritical}
	p := newTestPolicy(5, 0.5, false, priorities)
	for i := 0; i < 5; i++ {
		p.Record("catalog", false)
	}
	if p.IsLowReliability("catalog") {
		t.Fatalf("CRITICAL sources must never be demoted")
	}
}

func TestAdaptivePolicyPartitionDefersLowReliability(t *testing.T) {
	p := newTestPolicy(3, 0.5, false, nil)
	for i := 0; i < 3; i++ {
		p.Record("bad", false)
	}

	primary, deferred := p.Partition([]string{"good", "bad"})
	if len(primary) != 1 || primary[0] != "good" {
		t.Fatalf("expected primary = [good], got %v", primary)
	}
	if len(deferred) != 1 || deferred[0] != "bad" {
		t.Fatalf("expected deferred = [bad], got %v", deferred)
	}
}

func TestAdaptivePolicySkipLowReliabilityDropsEntirely(t *testing.T) {
	p := newTestPolicy(3, 0.5, true, nil)
	for i := 0; i < 3; i++ {
		p.Record("bad", false)
	}

	primary, deferred := p.Partition([]string{"good", "bad"})
	if len(primary) != 1 || primary[0] != "good" {
		t.Fatalf("expected primary = [good], got %v", primary)
	}
	if len(deferred) != 0 {
		t.Fatalf("expected no deferred sources when SkipLowReliability is set, got %v", deferred)
	}
}

func TestAdaptivePolicyWindowSlides(t *testing.T) {
	p := newTestPolicy(3, 0.5, false, nil)
	p.Record("src", false)
	p.Record("src", false)
	p.Record("src", false)
	if rate := p.SuccessRate("src"); rate != 0.0 {
		t.Fatalf("expected rate 0.0, got %f", rate)
	}
	p.Record("src", true)
	p.Record("src", true)
	p.Record("src", true)
	if rate := p.SuccessRate("src"); rate != 1.0 {
		t.Fatalf("expected window to have slid past old failures, got rate %f", rate)
	}
}
