// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pdiddy/research-engine/pkg/types"
)

// sqlReadOnly hints SQLite that GetCompleteView never writes.
var sqlReadOnly = sql.TxOptions{ReadOnly: true}

// querier is satisfied by *sql.Tx, narrowed so the query helpers below
// don't need to know whether they're inside a transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// sqlNullString adapts a nullable TEXT column without dragging
// database/sql.NullString's JSON-unfriendly zero value through the rest
// of the package.
type sqlNullString struct{ s string }

func (n *sqlNullString) Scan(src any) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case string:
		n.s = v
	case []byte:
		n.s = string(v)
	}
	return nil
}

type sqlNullInt64 struct{ i int64 }

func (n *sqlNullInt64) Scan(src any) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case int64:
		n.i = v
	}
	return nil
}

// GetCompleteView returns, in one read transaction, the dataset row,
// both original and citing publications with their URL lists, every
// download attempt per publication (failed ones included), and the extraction
// record if one exists — the single object tree every reader needs.
func (s *Store) GetCompleteView(ctx context.Context, datasetID string) (*types.AggregateView, error) {
	tx, err := s.db.BeginTx(ctx, &sqlReadOnly)
	if err != nil {
		return nil, fmt.Errorf("store: get complete view: begin: %w", err)
	}
	defer tx.Rollback()

	dataset, err := queryDataset(ctx, tx, datasetID)
	if err != nil {
		return nil, err
	}
	if dataset == nil {
		return nil, fmt.Errorf("store: dataset %s not found", datasetID)
	}

	original, err := queryLinkedPublications(ctx, tx, datasetID, types.RelationshipOriginal)
	if err != nil {
		return nil, err
	}
	citing, err := queryLinkedPublications(ctx, tx, datasetID, types.RelationshipCiting)
	if err != nil {
		return nil, err
	}

	perPub := make(map[int64]*types.PerPublicationView)
	for _, p := range append(append([]types.Publication{}, original...), citing...) {
		view, err := queryPerPublicationView(ctx, tx, datasetID, p)
		if err != nil {
			return nil, err
		}
		perPub[p.ID] = view
	}

	return &types.AggregateView{
		Dataset: *dataset,
		Publications: types.AggregatePublications{
			Original: original,
			Citing:   citing,
		},
		PerPub: perPub,
		Counts: types.AggregateCounts{
			PublicationsTotal: len(original) + len(citing),
			PDFsAcquired:      dataset.PDFsDownloaded,
			PDFsExtracted:     dataset.PDFsExtracted,
		},
	}, nil
}

func queryDataset(ctx context.Context, tx querier, datasetID string) (*types.Dataset, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT id, title, organism, platform, sample_count, submission_date, status,
			publication_count, pdfs_downloaded, pdfs_extracted, provider_metadata, created_at, updated_at
		 FROM datasets WHERE id = ?`, datasetID)

	var d types.Dataset
	var providerMetadata string
	err := row.Scan(&d.ID, &d.Title, &d.Organism, &d.Platform, &d.SampleCount, &d.SubmissionDate,
		&d.Status, &d.PublicationCount, &d.PDFsDownloaded, &d.PDFsExtracted, &providerMetadata, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: query dataset %s: %w", datasetID, err)
	}
	if providerMetadata != "" && providerMetadata != "null" {
		d.ProviderMetadata = json.RawMessage(providerMetadata)
	}
	return &d, nil
}

func queryLinkedPublications(ctx context.Context, tx querier, datasetID string, relationship types.Relationship) ([]types.Publication, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT p.id, p.pmid, p.doi, p.pmc_id, p.arxiv_id, p.title, p.authors, p.journal, p.year, p.provider_metadata, p.url_list
		 FROM publications p
		 JOIN dataset_publications dp ON dp.publication_id = p.id
		 WHERE dp.dataset_id = ? AND dp.relationship = ?
		 ORDER BY p.id`, datasetID, string(relationship))
	if err != nil {
		return nil, fmt.Errorf("store: query %s publications for %s: %w", relationship, datasetID, err)
	}
	defer rows.Close()

	var out []types.Publication
	for rows.Next() {
		var p types.Publication
		var pmid, doi, pmcID, arxivID, authorsJSON, providerMetadata, urlListJSON sqlNullString
		if err := rows.Scan(&p.ID, &pmid, &doi, &pmcID, &arxivID, &p.Title, &authorsJSON, &p.Journal, &p.Year, &providerMetadata, &urlListJSON); err != nil {
			return nil, fmt.Errorf("store: scan publication: %w", err)
		}
		p.PMID, p.DOI, p.PMCID, p.ArxivID = pmid.s, doi.s, pmcID.s, arxivID.s
		if authorsJSON.s != "" {
			json.Unmarshal([]byte(authorsJSON.s), &p.Authors)
		}
		if providerMetadata.s != "" && providerMetadata.s != "null" {
			p.ProviderMetadata = json.RawMessage(providerMetadata.s)
		}
		if urlListJSON.s != "" {
			json.Unmarshal([]byte(urlListJSON.s), &p.URLs)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func queryPerPublicationView(ctx context.Context, tx querier, datasetID string, pub types.Publication) (*types.PerPublicationView, error) {
	view := &types.PerPublicationView{URLs: pub.URLs}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, publication_id, url, source, status, file_path, file_size, error, attempt_number, created_at, correlation_id
		 FROM download_attempts WHERE publication_id = ? ORDER BY id`, pub.ID)
	if err != nil {
		return nil, fmt.Errorf("store: query download attempts for publication %d: %w", pub.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var a types.DownloadAttempt
		var status string
		var filePath, errMsg, correlationID sqlNullString
		var fileSize sqlNullInt64
		if err := rows.Scan(&a.ID, &a.PublicationID, &a.URL, &a.Source, &status, &filePath, &fileSize, &errMsg, &a.AttemptNumber, &a.CreatedAt, &correlationID); err != nil {
			return nil, fmt.Errorf("store: scan download attempt: %w", err)
		}
		a.Status = types.DownloadStatus(status)
		a.FilePath, a.Error, a.FileSize = filePath.s, errMsg.s, fileSize.i
		a.CorrelationID = correlationID.s
		view.Downloads = append(view.Downloads, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	extraction, err := queryExtraction(ctx, tx, datasetID, pub.ID)
	if err != nil {
		return nil, err
	}
	view.Extraction = extraction
	return view, nil
}

func queryExtraction(ctx context.Context, tx querier, datasetID string, publicationID int64) (*types.ContentExtraction, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT sections, tables, "references", page_count, word_count, quality_score, quality_grade, pdf_sha256, created_at
		 FROM content_extractions WHERE dataset_id = ? AND publication_id = ?`, datasetID, publicationID)

	var e types.ContentExtraction
	var sectionsJSON, tablesJSON, refsJSON string
	var grade string
	err := row.Scan(&sectionsJSON, &tablesJSON, &refsJSON, &e.PageCount, &e.WordCount, &e.QualityScore, &grade, &e.PDFSHA256, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: query extraction dataset=%s publication=%d: %w", datasetID, publicationID, err)
	}
	e.DatasetID = datasetID
	e.PublicationID = publicationID
	e.QualityGrade = types.QualityGrade(grade)
	json.Unmarshal([]byte(sectionsJSON), &e.Sections)
	json.Unmarshal([]byte(tablesJSON), &e.Tables)
	json.Unmarshal([]byte(refsJSON), &e.References)
	return &e, nil
}
