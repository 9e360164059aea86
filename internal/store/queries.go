// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pdiddy/research-engine/pkg/types"
)

// HasSuccessfulDownload reports whether publicationID already has a
// successful DownloadAttempt, the skip check driving URL collection and
// PDF acquisition's restartability.
func (s *Store) HasSuccessfulDownload(ctx context.Context, publicationID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM download_attempts WHERE publication_id = ? AND status = 'success'`,
		publicationID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: has successful download %d: %w", publicationID, err)
	}
	return count > 0, nil
}

// LatestSuccessfulDownload returns the most recent successful
// DownloadAttempt for publicationID, or nil if there is none.
func (s *Store) LatestSuccessfulDownload(ctx context.Context, publicationID int64) (*types.DownloadAttempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, publication_id, url, source, status, file_path, file_size, attempt_number, created_at
		 FROM download_attempts WHERE publication_id = ? AND status = 'success' ORDER BY id DESC LIMIT 1`,
		publicationID,
	)
	var a types.DownloadAttempt
	var status string
	err := row.Scan(&a.ID, &a.PublicationID, &a.URL, &a.Source, &status, &a.FilePath, &a.FileSize, &a.AttemptNumber, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest successful download %d: %w", publicationID, err)
	}
	a.Status = types.DownloadStatus(status)
	return &a, nil
}

// ListSourceMetrics returns every SourceMetric row, ordered by source name,
// for the `geo-corpus sources` command's table report.
func (s *Store) ListSourceMetrics(ctx context.Context) ([]types.SourceMetric, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, total_requests, successful_requests, failed_requests,
			total_response_time_seconds, total_papers_returned, unique_papers_contributed, batch_capable
		 FROM source_metrics ORDER BY source`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list source metrics: %w", err)
	}
	defer rows.Close()

	var metrics []types.SourceMetric
	for rows.Next() {
		var m types.SourceMetric
		if err := rows.Scan(&m.Source, &m.TotalRequests, &m.SuccessfulRequests, &m.FailedRequests,
			&m.TotalResponseTimeSeconds, &m.TotalPapersReturned, &m.UniquePapersContributed, &m.BatchCapable); err != nil {
			return nil, fmt.Errorf("store: list source metrics: scan: %w", err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list source metrics: rows: %w", err)
	}
	return metrics, nil
}

// GetExtraction returns the ContentExtraction for (datasetID,
// publicationID), or nil if none exists — the skip check for content
// extraction's restartability: skipped if the PDF SHA-256 is unchanged.
func (s *Store) GetExtraction(ctx context.Context, datasetID string, publicationID int64) (*types.ContentExtraction, error) {
	tx, err := s.db.BeginTx(ctx, &sqlReadOnly)
	if err != nil {
		return nil, fmt.Errorf("store: get extraction: begin: %w", err)
	}
	defer tx.Rollback()
	return queryExtraction(ctx, tx, datasetID, publicationID)
}
