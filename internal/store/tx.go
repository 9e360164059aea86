// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pdiddy/research-engine/pkg/types"
)

// UpsertDataset inserts or updates a dataset row.
func (t *Tx) UpsertDataset(d types.Dataset) error {
	raw := d.ProviderMetadata
	if raw == nil {
		raw = json.RawMessage("null")
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO datasets (id, title, organism, platform, sample_count, submission_date, status, provider_metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, organism=excluded.organism, platform=excluded.platform,
			sample_count=excluded.sample_count, submission_date=excluded.submission_date,
			status=excluded.status, provider_metadata=excluded.provider_metadata,
			updated_at=excluded.updated_at`,
		d.ID, d.Title, d.Organism, d.Platform, d.SampleCount, d.SubmissionDate,
		string(d.Status), string(raw), d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert dataset %s: %w", d.ID, err)
	}
	return nil
}

// UpsertPublication inserts or updates a publication keyed by PMID when
// present, else inserts a new row. Returns the surrogate ID.
func (t *Tx) UpsertPublication(p types.Publication) (int64, error) {
	authorsJSON, _ := json.Marshal(p.Authors)
	raw := p.ProviderMetadata
	if raw == nil {
		raw = json.RawMessage("null")
	}

	if p.PMID != "" {
		var existingID int64
		err := t.tx.QueryRowContext(t.ctx, `SELECT id FROM publications WHERE pmid = ?`, p.PMID).Scan(&existingID)
		if err == nil {
			_, err := t.tx.ExecContext(t.ctx,
				`UPDATE publications SET doi=COALESCE(NULLIF(?, ''), doi), pmc_id=COALESCE(NULLIF(?, ''), pmc_id),
					arxiv_id=COALESCE(NULLIF(?, ''), arxiv_id), title=COALESCE(NULLIF(?, ''), title),
					authors=?, journal=COALESCE(NULLIF(?, ''), journal), year=COALESCE(NULLIF(?, 0), year),
					provider_metadata=? WHERE id=?`,
				p.DOI, p.PMCID, p.ArxivID, p.Title, string(authorsJSON), p.Journal, p.Year, string(raw), existingID,
			)
			if err != nil {
				return 0, fmt.Errorf("store: update publication pmid=%s: %w", p.PMID, err)
			}
			return existingID, nil
		}
	}

	res, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO publications (pmid, doi, pmc_id, arxiv_id, title, authors, journal, year, provider_metadata)
		 VALUES (NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.PMID, p.DOI, p.PMCID, p.ArxivID, p.Title, string(authorsJSON), p.Journal, p.Year, string(raw),
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert publication: %w", err)
	}
	return res.LastInsertId()
}

// Link records a DatasetPublicationLink. At most one link per
// (dataset, publication) pair.
func (t *Tx) Link(datasetID string, publicationID int64, relationship types.Relationship, strategy string) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO dataset_publications (dataset_id, publication_id, relationship, strategy)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(dataset_id, publication_id) DO UPDATE SET
			relationship=excluded.relationship, strategy=excluded.strategy`,
		datasetID, publicationID, string(relationship), strategy,
	)
	if err != nil {
		return fmt.Errorf("store: link dataset=%s publication=%d: %w", datasetID, publicationID, err)
	}
	return nil
}

// AppendURLList merges new descriptors into a publication's URL list:
// existing URL kept, priority set to min(old, new), shape promoted if
// the previous entry was unknown.
// Bounded at types.MaxURLsPerPublication, discarding lowest-priority
// entries past the cap.
func (t *Tx) AppendURLList(publicationID int64, additions []types.URLDescriptor) error {
	var current string
	if err := t.tx.QueryRowContext(t.ctx, `SELECT url_list FROM publications WHERE id = ?`, publicationID).Scan(&current); err != nil {
		return fmt.Errorf("store: append url list: load publication %d: %w", publicationID, err)
	}

	var existing []types.URLDescriptor
	if current != "" {
		if err := json.Unmarshal([]byte(current), &existing); err != nil {
			return fmt.Errorf("store: append url list: decode publication %d: %w", publicationID, err)
		}
	}

	byURL := make(map[string]int, len(existing))
	for i, d := range existing {
		byURL[d.URL] = i
	}

	for _, add := range additions {
		if idx, ok := byURL[add.URL]; ok {
			cur := existing[idx]
			if add.Priority < cur.Priority {
				cur.Priority = add.Priority
			}
			if cur.Shape == types.ShapeUnknown && add.Shape != types.ShapeUnknown {
				cur.Shape = add.Shape
			}
			existing[idx] = cur
			continue
		}
		byURL[add.URL] = len(existing)
		existing = append(existing, add)
	}

	if len(existing) > types.MaxURLsPerPublication {
		sort.SliceStable(existing, func(i, j int) bool { return existing[i].Priority < existing[j].Priority })
		existing = existing[:types.MaxURLsPerPublication]
	}

	merged, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("store: append url list: encode publication %d: %w", publicationID, err)
	}
	if _, err := t.tx.ExecContext(t.ctx, `UPDATE publications SET url_list = ? WHERE id = ?`, string(merged), publicationID); err != nil {
		return fmt.Errorf("store: append url list: write publication %d: %w", publicationID, err)
	}
	return nil
}

// AppendDownloadAttempt writes one append-only DownloadAttempt row.
func (t *Tx) AppendDownloadAttempt(a types.DownloadAttempt) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO download_attempts (publication_id, url, source, status, file_path, file_size, error, attempt_number, created_at, correlation_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.PublicationID, a.URL, a.Source, string(a.Status), a.FilePath, a.FileSize, a.Error, a.AttemptNumber, a.CreatedAt, a.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("store: append download attempt: %w", err)
	}
	return nil
}

// PutExtraction writes a ContentExtraction row, replacing any prior
// extraction for the same (dataset, publication) wholesale.
func (t *Tx) PutExtraction(e types.ContentExtraction) error {
	sections, _ := json.Marshal(e.Sections)
	tables, _ := json.Marshal(e.Tables)
	refs, _ := json.Marshal(e.References)
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO content_extractions (dataset_id, publication_id, sections, tables, "references", page_count, word_count, quality_score, quality_grade, pdf_sha256, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(dataset_id, publication_id) DO UPDATE SET
			sections=excluded.sections, tables=excluded.tables, "references"=excluded."references",
			page_count=excluded.page_count, word_count=excluded.word_count,
			quality_score=excluded.quality_score, quality_grade=excluded.quality_grade,
			pdf_sha256=excluded.pdf_sha256, created_at=excluded.created_at`,
		e.DatasetID, e.PublicationID, string(sections), string(tables), string(refs),
		e.PageCount, e.WordCount, e.QualityScore, string(e.QualityGrade), e.PDFSHA256, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: put extraction dataset=%s publication=%d: %w", e.DatasetID, e.PublicationID, err)
	}
	return nil
}

// AppendEvent writes one append-only PipelineEvent row.
func (t *Tx) AppendEvent(e types.PipelineEvent) error {
	var pubID any
	if e.PublicationID != 0 {
		pubID = e.PublicationID
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO pipeline_events (dataset_id, publication_id, stage, type, message, duration_ms, error, created_at, correlation_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.DatasetID, pubID, string(e.Stage), string(e.Type), e.Message, e.DurationMS, e.Error, e.CreatedAt, e.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("store: append event dataset=%s: %w", e.DatasetID, err)
	}
	return nil
}

// BumpCounters recomputes a dataset's materialized aggregate counters
// from row counts; they may always be rebuilt from truth.
func (t *Tx) BumpCounters(datasetID string) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE datasets SET
			publication_count = (SELECT COUNT(*) FROM dataset_publications WHERE dataset_id = datasets.id),
			pdfs_downloaded = (SELECT COUNT(*) FROM download_attempts da
				JOIN dataset_publications dp ON dp.publication_id = da.publication_id
				WHERE dp.dataset_id = datasets.id AND da.status = 'success'),
			pdfs_extracted = (SELECT COUNT(*) FROM content_extractions ce WHERE ce.dataset_id = datasets.id)
		 WHERE id = ?`,
		datasetID,
	)
	if err != nil {
		return fmt.Errorf("store: bump counters %s: %w", datasetID, err)
	}
	return nil
}

// RecordSourceMetric accumulates one call's outcome into the running
// per-source counters, updated atomically at the end of each source
// call.
func (t *Tx) RecordSourceMetric(source string, responseTimeSeconds float64, papersReturned, uniqueContributed int, success, batchCapable bool) error {
	successN, failN := 0, 0
	if success {
		successN = 1
	} else {
		failN = 1
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO source_metrics (source, total_requests, successful_requests, failed_requests, total_response_time_seconds, total_papers_returned, unique_papers_contributed, batch_capable)
		 VALUES (?, 1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source) DO UPDATE SET
			total_requests = total_requests + 1,
			successful_requests = successful_requests + ?,
			failed_requests = failed_requests + ?,
			total_response_time_seconds = total_response_time_seconds + ?,
			total_papers_returned = total_papers_returned + ?,
			unique_papers_contributed = unique_papers_contributed + ?,
			batch_capable = ?`,
		source, successN, failN, responseTimeSeconds, papersReturned, uniqueContributed, batchCapable,
		successN, failN, responseTimeSeconds, papersReturned, uniqueContributed, batchCapable,
	)
	if err != nil {
		return fmt.Errorf("store: record source metric %s: %w", source, err)
	}
	return nil
}
