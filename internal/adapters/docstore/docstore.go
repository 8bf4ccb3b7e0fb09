// Package docstore is the document store's persistence layer: the
// metadata table backing AllDocuments/AddDocuments/Remove/Stats, using
// modernc.org/sqlite (pure Go, no cgo) with WAL mode for concurrent
// readers alongside the single writer.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/aman-cerp/ragmcp/internal/document"
)

// Store persists documents for a single collection.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// New opens or creates a document store at path. An empty path opens an
// in-memory database, used for tests and ephemeral collections.
func New(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	} else {
		dsn += "?_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: open: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}'
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("docstore: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// AddDocuments inserts or replaces documents.
func (s *Store) AddDocuments(ctx context.Context, docs []document.Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("docstore: store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("docstore: begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, content, metadata) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, metadata = excluded.metadata
	`)
	if err != nil {
		return fmt.Errorf("docstore: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("docstore: marshal metadata for %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Content, string(meta)); err != nil {
			return fmt.Errorf("docstore: insert %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

// Remove deletes documents by ID.
func (s *Store) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("docstore: store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("docstore: begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM documents WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("docstore: prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("docstore: delete %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// AllDocuments returns every document in the store. Callers needing a
// subset (e.g. to rebuild the keyword index after a restart) filter in
// memory; the document count a single collection holds is expected to be
// small enough that this is not a bottleneck.
func (s *Store) AllDocuments(ctx context.Context) ([]document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("docstore: store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("docstore: query all: %w", err)
	}
	defer rows.Close()

	var out []document.Document
	for rows.Next() {
		var d document.Document
		var metaJSON string
		if err := rows.Scan(&d.ID, &d.Content, &metaJSON); err != nil {
			return nil, fmt.Errorf("docstore: scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &d.Metadata); err != nil {
			return nil, fmt.Errorf("docstore: unmarshal metadata for %s: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Stats summarizes the store for the collection:// resource.
type Stats struct {
	DocumentCount int
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, fmt.Errorf("docstore: store is closed")
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("docstore: count: %w", err)
	}
	return Stats{DocumentCount: count}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
