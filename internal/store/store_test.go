// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/pdiddy/research-engine/pkg/types"
)

func testSetup(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "corpus.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertDatasetAndGetCompleteView(t *testing.T) {
	s := testSetup(t)
	ctx := t.Context()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.UpsertDataset(types.Dataset{
		ID:        "GSE189158",
		Title:     "Expression profiling",
		Status:    types.StatusNew,
		CreatedAt: "2026-01-01T00:00:00Z",
		UpdatedAt: "2026-01-01T00:00:00Z",
	}); err != nil {
		t.Fatal(err)
	}

	pubID, err := tx.UpsertPublication(types.Publication{PMID: "28393431", Title: "Seed Paper"})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Link("GSE189158", pubID, types.RelationshipOriginal, "catalog"); err != nil {
		t.Fatal(err)
	}
	if err := tx.BumpCounters("GSE189158"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	view, err := s.GetCompleteView(ctx, "GSE189158")
	if err != nil {
		t.Fatal(err)
	}
	if view.Dataset.Title != "Expression profiling" {
		t.Errorf("Dataset.Title = %q", view.Dataset.Title)
	}
	if len(view.Publications.Original) != 1 || view.Publications.Original[0].PMID != "28393431" {
		t.Fatalf("Publications.Original = %+v", view.Publications.Original)
	}
	if view.Counts.PublicationsTotal != 1 {
		t.Errorf("Counts.PublicationsTotal = %d, want 1", view.Counts.PublicationsTotal)
	}
}

func TestUpsertPublicationDedupsByPMID(t *testing.T) {
	s := testSetup(t)
	ctx := t.Context()

	tx, _ := s.Begin(ctx)
	id1, err := tx.UpsertPublication(types.Publication{PMID: "1", Title: "First pass"})
	if err != nil {
		t.Fatal(err)
	}
	id2, err := tx.UpsertPublication(types.Publication{PMID: "1", Title: "Second pass", DOI: "10.1/x"})
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Fatalf("expected same surrogate id for repeated pmid, got %d and %d", id1, id2)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestAppendURLListMergesByURL(t *testing.T) {
	s := testSetup(t)
	ctx := t.Context()

	tx, _ := s.Begin(ctx)
	pubID, err := tx.UpsertPublication(types.Publication{PMID: "1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.AppendURLList(pubID, []types.URLDescriptor{
		{URL: "https://example.com/a.pdf", Source: "pmc", Priority: 3, Shape: types.ShapeUnknown},
	}); err != nil {
		t.Fatal(err)
	}
	if err := tx.AppendURLList(pubID, []types.URLDescriptor{
		{URL: "https://example.com/a.pdf", Source: "unpaywall", Priority: 1, Shape: types.ShapePDFDirect},
		{URL: "https://example.com/b.pdf", Source: "core", Priority: 2, Shape: types.ShapePDFDirect},
	}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	tx2, _ := s.Begin(ctx)
	var raw string
	if err := tx2.tx.QueryRowContext(ctx, `SELECT url_list FROM publications WHERE id = ?`, pubID).Scan(&raw); err != nil {
		t.Fatal(err)
	}
	tx2.Rollback()

	var pub types.Publication
	if err := json.Unmarshal([]byte(raw), &pub.URLs); err != nil {
		t.Fatal(err)
	}

	if len(pub.URLs) != 2 {
		t.Fatalf("URLs = %+v, want 2 entries", pub.URLs)
	}
	for _, u := range pub.URLs {
		if u.URL == "https://example.com/a.pdf" {
			if u.Priority != 1 {
				t.Errorf("merged priority = %d, want 1 (min of 3 and 1)", u.Priority)
			}
			if u.Shape != types.ShapePDFDirect {
				t.Errorf("merged shape = %v, want pdf_direct (promoted from unknown)", u.Shape)
			}
		}
	}
}

func TestAppendDownloadAttemptAndExtraction(t *testing.T) {
	s := testSetup(t)
	ctx := t.Context()

	tx, _ := s.Begin(ctx)
	pubID, _ := tx.UpsertPublication(types.Publication{PMID: "1"})
	if err := tx.AppendDownloadAttempt(types.DownloadAttempt{
		PublicationID: pubID,
		URL:           "https://example.com/a.pdf",
		Source:        "pmc",
		Status:        types.DownloadSuccess,
		FilePath:      "/pdfs/GSE1/original/1.pdf",
		FileSize:      2048,
		AttemptNumber: 1,
		CreatedAt:     "2026-01-01T00:00:00Z",
	}); err != nil {
		t.Fatal(err)
	}
	if err := tx.PutExtraction(types.ContentExtraction{
		DatasetID:     "GSE1",
		PublicationID: pubID,
		Sections:      map[string]string{"abstract": "text"},
		QualityScore:  0.9,
		QualityGrade:  types.GradeA,
		CreatedAt:     "2026-01-01T00:00:00Z",
	}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	tx2, _ := s.Begin(ctx)
	extraction, err := queryExtraction(ctx, tx2.tx, "GSE1", pubID)
	tx2.Rollback()
	if err != nil {
		t.Fatal(err)
	}
	if extraction == nil || extraction.QualityGrade != types.GradeA {
		t.Fatalf("extraction = %+v", extraction)
	}
}

func TestCommitRollbackSafety(t *testing.T) {
	s := testSetup(t)
	ctx := t.Context()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.UpsertPublication(types.Publication{PMID: "99"}); err != nil {
		t.Fatal(err)
	}
	tx.Rollback()

	tx2, _ := s.Begin(ctx)
	var count int
	row := tx2.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM publications WHERE pmid = '99'`)
	if err := row.Scan(&count); err != nil {
		t.Fatal(err)
	}
	tx2.Rollback()
	if count != 0 {
		t.Errorf("expected rolled-back insert to be absent, found %d rows", count)
	}
}
