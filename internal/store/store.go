// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store is the unified relational store: schema, transactional
// write API, and the aggregate-view reader. Every other component writes
// through the coordinator's Tx; readers (the cache and any future HTTP
// surface) only ever call GetCompleteView.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store owns the single SQLite file backing the whole corpus.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the unified store at path and ensures
// its schema exists: WAL + foreign keys in the DSN, createSchema() run
// unconditionally on open.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS datasets (
			id TEXT PRIMARY KEY,
			title TEXT,
			organism TEXT,
			platform TEXT,
			sample_count INTEGER,
			submission_date TEXT,
			status TEXT NOT NULL DEFAULT 'new',
			publication_count INTEGER NOT NULL DEFAULT 0,
			pdfs_downloaded INTEGER NOT NULL DEFAULT 0,
			pdfs_extracted INTEGER NOT NULL DEFAULT 0,
			provider_metadata TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS publications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pmid TEXT UNIQUE,
			doi TEXT,
			pmc_id TEXT,
			arxiv_id TEXT,
			title TEXT,
			authors TEXT,
			journal TEXT,
			year INTEGER,
			provider_metadata TEXT,
			url_list TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_publications_pmid ON publications(pmid)`,
		`CREATE INDEX IF NOT EXISTS idx_publications_doi ON publications(doi)`,
		`CREATE TABLE IF NOT EXISTS dataset_publications (
			dataset_id TEXT NOT NULL REFERENCES datasets(id),
			publication_id INTEGER NOT NULL REFERENCES publications(id),
			relationship TEXT NOT NULL,
			strategy TEXT,
			PRIMARY KEY (dataset_id, publication_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dataset_publications_dataset_id ON dataset_publications(dataset_id)`,
		`CREATE INDEX IF NOT EXISTS idx_dataset_publications_relationship ON dataset_publications(relationship)`,
		`CREATE TABLE IF NOT EXISTS download_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			publication_id INTEGER NOT NULL REFERENCES publications(id),
			url TEXT NOT NULL,
			source TEXT NOT NULL,
			status TEXT NOT NULL,
			file_path TEXT,
			file_size INTEGER,
			error TEXT,
			attempt_number INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			correlation_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_download_attempts_publication_id ON download_attempts(publication_id)`,
		`CREATE INDEX IF NOT EXISTS idx_download_attempts_status ON download_attempts(status)`,
		`CREATE TABLE IF NOT EXISTS content_extractions (
			dataset_id TEXT NOT NULL,
			publication_id INTEGER NOT NULL REFERENCES publications(id),
			sections TEXT NOT NULL,
			tables TEXT,
			"references" TEXT,
			page_count INTEGER,
			word_count INTEGER,
			quality_score REAL,
			quality_grade TEXT,
			pdf_sha256 TEXT,
			created_at TEXT NOT NULL,
			PRIMARY KEY (dataset_id, publication_id)
		)`,
		`CREATE TABLE IF NOT EXISTS pipeline_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			dataset_id TEXT NOT NULL,
			publication_id INTEGER,
			stage TEXT NOT NULL,
			type TEXT NOT NULL,
			message TEXT,
			duration_ms INTEGER,
			error TEXT,
			created_at TEXT NOT NULL,
			correlation_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_events_dataset_id ON pipeline_events(dataset_id)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_events_correlation_id ON pipeline_events(correlation_id)`,
		`CREATE TABLE IF NOT EXISTS source_metrics (
			source TEXT PRIMARY KEY,
			total_requests INTEGER NOT NULL DEFAULT 0,
			successful_requests INTEGER NOT NULL DEFAULT 0,
			failed_requests INTEGER NOT NULL DEFAULT 0,
			total_response_time_seconds REAL NOT NULL DEFAULT 0,
			total_papers_returned INTEGER NOT NULL DEFAULT 0,
			unique_papers_contributed INTEGER NOT NULL DEFAULT 0,
			batch_capable INTEGER NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Tx is the coordinator-facing transactional handle. Every method maps
// to one write operation: upsert_dataset, upsert_publication, link,
// append_url_list, append_download_attempt, put_extraction,
// append_event, bump_counters.
type Tx struct {
	tx  *sql.Tx
	ctx context.Context
}

// Begin starts a transaction for the coordinator. Callers should defer
// tx.Rollback() immediately, then call tx.Commit() explicitly on
// success.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	return &Tx{tx: tx, ctx: ctx}, nil
}

// Rollback aborts the transaction. Safe to call after Commit (no-op).
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// Commit finalizes the transaction. A constraint-violation error here
// is a programming error and is the caller's responsibility to treat as
// fatal, not to retry.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
