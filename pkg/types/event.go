// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Stage identifies one of the four pipeline stages.
type Stage string

const (
	StageP1 Stage = "P1"
	StageP2 Stage = "P2"
	StageP3 Stage = "P3"
	StageP4 Stage = "P4"
)

// EventType classifies a PipelineEvent row.
type EventType string

const (
	EventStart   EventType = "start"
	EventSuccess EventType = "success"
	EventFailure EventType = "failure"
	EventSkip    EventType = "skip"
)

// PipelineEvent is one append-only audit log row. Never mutated after
// write.
type PipelineEvent struct {
	ID            int64     `json:"id" yaml:"id"`
	DatasetID     string    `json:"dataset_id" yaml:"dataset_id"`
	PublicationID int64     `json:"publication_id,omitempty" yaml:"publication_id,omitempty"`
	Stage         Stage     `json:"stage" yaml:"stage"`
	Type          EventType `json:"type" yaml:"type"`
	Message       string    `json:"message,omitempty" yaml:"message,omitempty"`
	DurationMS    int64     `json:"duration_ms" yaml:"duration_ms"`
	Error         string    `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt     string    `json:"created_at" yaml:"created_at"`

	// CorrelationID ties every event and download attempt emitted by one
	// RunForDataset call together: an opaque tag, not a foreign key, so an
	// operator can grep logs and PipelineEvent rows for one run across
	// every stage and publication it touched.
	CorrelationID string `json:"correlation_id,omitempty" yaml:"correlation_id,omitempty"`
}

// SourceMetric holds per-provider running counters, persisted across runs.
type SourceMetric struct {
	Source                   string  `json:"source" yaml:"source"`
	TotalRequests            int64   `json:"total_requests" yaml:"total_requests"`
	SuccessfulRequests       int64   `json:"successful_requests" yaml:"successful_requests"`
	FailedRequests           int64   `json:"failed_requests" yaml:"failed_requests"`
	TotalResponseTimeSeconds float64 `json:"total_response_time_seconds" yaml:"total_response_time_seconds"`
	TotalPapersReturned      int64   `json:"total_papers_returned" yaml:"total_papers_returned"`
	UniquePapersContributed  int64   `json:"unique_papers_contributed" yaml:"unique_papers_contributed"`
	BatchCapable             bool    `json:"batch_capable" yaml:"batch_capable"`
}

// SourcePriority ranks a source's importance for the adaptive skip policy.
type SourcePriority int

const (
	PriorityCritical SourcePriority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
	PriorityFallback
)

func (p SourcePriority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	case PriorityFallback:
		return "fallback"
	default:
		return "unknown"
	}
}
