// Package bleveindex is the inverted-index, BM25-scoring backing store for
// the keyword retrieval strategy. It wraps blevesearch/bleve/v2 with a
// standard-English analyzer (prose documents, not source code) and guards
// on-disk rebuilds with an advisory file lock so a single writer and many
// readers can share an index directory safely.
package bleveindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/gofrs/flock"
)

// indexedDocument is the document shape bleve actually stores. Only Content
// is analyzed; metadata stays in the caller's document store.
type indexedDocument struct {
	Content string `json:"content"`
}

// Result is a single BM25 match.
type Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// Stats summarizes the index for the strategies:// and collection://
// resources.
type Stats struct {
	DocumentCount int
}

// ErrClosed is returned by any operation on a closed index.
var ErrClosed = fmt.Errorf("bleveindex: index is closed")

// Index is a BM25 keyword index over a single collection.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	lock   *flock.Flock
	closed bool
}

// New opens or creates a BM25 index. An empty path produces an in-memory
// index (used for tests and small ephemeral collections); a non-empty path
// persists to disk and is guarded by an advisory lock file alongside it, so
// a concurrent rebuild from another process can't race this one's writes.
func New(path string) (*Index, error) {
	mapping := bleve.NewIndexMapping()

	var idx bleve.Index
	var lock *flock.Flock
	var err error

	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("bleveindex: create directory: %w", mkErr)
		}
		lock = flock.New(path + ".lock")
		locked, lockErr := lock.TryLock()
		if lockErr != nil {
			return nil, fmt.Errorf("bleveindex: acquire rebuild lock: %w", lockErr)
		}
		if !locked {
			return nil, fmt.Errorf("bleveindex: index %s is locked by another writer", path)
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, fmt.Errorf("bleveindex: open/create index: %w", err)
	}

	return &Index{index: idx, path: path, lock: lock}, nil
}

// Add inserts or replaces documents by ID, analyzing Content for search.
func (b *Index) Add(ctx context.Context, ids []string, contents []string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(contents) {
		return fmt.Errorf("bleveindex: ids and contents length mismatch: %d vs %d", len(ids), len(contents))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	batch := b.index.NewBatch()
	for i, id := range ids {
		if err := batch.Index(id, indexedDocument{Content: contents[i]}); err != nil {
			return fmt.Errorf("bleveindex: index document %s: %w", id, err)
		}
	}
	return b.index.Batch(batch)
}

// Search returns up to limit BM25 matches for query, highest score first.
func (b *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	if strings.TrimSpace(query) == "" {
		return []Result{}, nil
	}

	match := bleve.NewMatchQuery(query)
	match.SetField("content")

	req := bleve.NewSearchRequest(match)
	req.Size = limit
	req.IncludeLocations = true

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleveindex: search: %w", err)
	}

	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, Result{
			DocID:        hit.ID,
			Score:        hit.Score,
			MatchedTerms: matchedTerms(hit),
		})
	}
	return out, nil
}

// Delete removes documents by ID.
func (b *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

// Stats returns the current document count.
func (b *Index) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return Stats{}
	}
	count, _ := b.index.DocCount()
	return Stats{DocumentCount: int(count)}
}

// Close releases the index and, for on-disk indices, the rebuild lock.
func (b *Index) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var err error
	if b.index != nil {
		err = b.index.Close()
	}
	if b.lock != nil {
		_ = b.lock.Unlock()
	}
	return err
}

func matchedTerms(hit *search.DocumentMatch) []string {
	seen := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field != "content" {
			continue
		}
		for term := range locations {
			seen[term] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for term := range seen {
		out = append(out, term)
	}
	return out
}
