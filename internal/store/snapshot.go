// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-engine/pkg/types"
)

// MetricsSnapshot is the on-disk representation of a source-reliability
// report: an operator can save one before tuning priorities and diff it
// against a later run.
type MetricsSnapshot struct {
	GeneratedAt string               `yaml:"generated_at"`
	Sources     []types.SourceMetric `yaml:"sources"`
}

// WriteMetricsSnapshot saves metrics to path as YAML.
func WriteMetricsSnapshot(path string, metrics []types.SourceMetric, generatedAt time.Time) error {
	snap := MetricsSnapshot{
		GeneratedAt: generatedAt.UTC().Format(time.RFC3339),
		Sources:     metrics,
	}
	data, err := yaml.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("store: marshal metrics snapshot: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadMetricsSnapshot loads a previously saved metrics snapshot from disk.
func ReadMetricsSnapshot(path string) (*MetricsSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: read metrics snapshot: %w", err)
	}
	var snap MetricsSnapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("store: parse metrics snapshot: %w", err)
	}
	return &snap, nil
}
