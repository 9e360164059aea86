// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data structures persisted by the
// unified store and served through the coordinator's aggregate view.
package types

import "encoding/json"

// ProcessingStatus tracks a dataset's progress through the pipeline.
type ProcessingStatus string

const (
	StatusNew        ProcessingStatus = "new"
	StatusDiscovering ProcessingStatus = "discovering"
	StatusAcquiring  ProcessingStatus = "acquiring"
	StatusComplete   ProcessingStatus = "complete"
	StatusPartial    ProcessingStatus = "partial"
)

// Dataset is a functional-genomics catalog entry, keyed by its external
// identifier (e.g. "GSE189158").
type Dataset struct {
	// ID is the external catalog identifier and primary key.
	ID string `json:"id" yaml:"id"`

	Title          string           `json:"title" yaml:"title"`
	Organism       string           `json:"organism,omitempty" yaml:"organism,omitempty"`
	Platform       string           `json:"platform,omitempty" yaml:"platform,omitempty"`
	SampleCount    int              `json:"sample_count,omitempty" yaml:"sample_count,omitempty"`
	SubmissionDate string           `json:"submission_date,omitempty" yaml:"submission_date,omitempty"`
	Status         ProcessingStatus `json:"status" yaml:"status"`

	// Aggregate counters, materialized from row counts and always
	// rebuildable from truth.
	PublicationCount int `json:"publication_count" yaml:"publication_count"`
	PDFsDownloaded   int `json:"pdfs_downloaded" yaml:"pdfs_downloaded"`
	PDFsExtracted    int `json:"pdfs_extracted" yaml:"pdfs_extracted"`

	// ProviderMetadata is the opaque JSON blob returned by the catalog source.
	ProviderMetadata json.RawMessage `json:"provider_metadata,omitempty" yaml:"-"`

	CreatedAt string `json:"created_at" yaml:"created_at"`
	UpdatedAt string `json:"updated_at" yaml:"updated_at"`
}

// DatasetMeta is what the catalog source client returns for one dataset,
// before it becomes a persisted Dataset row.
type DatasetMeta struct {
	ID               string
	Title            string
	Organism         string
	Platform         string
	SampleCount      int
	SubmissionDate   string
	PMIDs            []string
	ProviderMetadata json.RawMessage
}
