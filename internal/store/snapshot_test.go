// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pdiddy/research-engine/pkg/types"
)

func TestMetricsSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.yaml")
	metrics := []types.SourceMetric{
		{Source: "catalog", TotalRequests: 10, SuccessfulRequests: 9, FailedRequests: 1},
		{Source: "openalex", TotalRequests: 5, SuccessfulRequests: 5, BatchCapable: true},
	}
	generatedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := WriteMetricsSnapshot(path, metrics, generatedAt); err != nil {
		t.Fatalf("WriteMetricsSnapshot: %v", err)
	}

	snap, err := ReadMetricsSnapshot(path)
	if err != nil {
		t.Fatalf("ReadMetricsSnapshot: %v", err)
	}
	if snap.GeneratedAt != "2026-03-01T12:00:00Z" {
		t.Errorf("GeneratedAt = %q", snap.GeneratedAt)
	}
	if len(snap.Sources) != 2 {
		t.Fatalf("Sources = %d entries, want 2", len(snap.Sources))
	}
	if snap.Sources[0].Source != "catalog" || snap.Sources[0].TotalRequests != 10 {
		t.Errorf("Sources[0] = %+v", snap.Sources[0])
	}
	if !snap.Sources[1].BatchCapable {
		t.Errorf("Sources[1].BatchCapable = false, want true")
	}
}

func TestReadMetricsSnapshotNotFound(t *testing.T) {
	if _, err := ReadMetricsSnapshot(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for nonexistent file")
	}
}
