package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/aman-cerp/ragmcp/internal/adapters/bleveindex"
	"github.com/aman-cerp/ragmcp/internal/adapters/docstore"
	"github.com/aman-cerp/ragmcp/internal/document"
)

// KeywordStrategy implements sparse BM25 retrieval over a lazily built
// bleve index. The index is built on first use from the document store
// and updated in place, under the write lock, by AddDocuments and
// DeleteDocuments, so concurrent retrievals either see the index as it was
// before a mutation or block briefly until the mutation completes.
type KeywordStrategy struct {
	mu    sync.RWMutex
	index *bleveindex.Index
	docs  *docstore.Store
	built bool
}

var _ Strategy = (*KeywordStrategy)(nil)
var _ AddDeleter = (*KeywordStrategy)(nil)

// NewKeywordStrategy builds a strategy backed by an in-memory bleve index,
// lazily populated from docs.
func NewKeywordStrategy(docs *docstore.Store) (*KeywordStrategy, error) {
	idx, err := bleveindex.New("")
	if err != nil {
		return nil, fmt.Errorf("keyword strategy: create index: %w", err)
	}
	return &KeywordStrategy{index: idx, docs: docs}, nil
}

func (k *KeywordStrategy) Name() document.StrategyName { return document.StrategyKeyword }

// Index returns the underlying bleve index, for the collection stats
// resource's document-count introspection.
func (k *KeywordStrategy) Index() *bleveindex.Index { return k.index }

func (k *KeywordStrategy) ensureBuilt(ctx context.Context) error {
	k.mu.RLock()
	built := k.built
	k.mu.RUnlock()
	if built {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.built {
		return nil
	}

	all, err := k.docs.AllDocuments(ctx)
	if err != nil {
		return fmt.Errorf("keyword strategy: load documents: %w", err)
	}

	ids := make([]string, len(all))
	contents := make([]string, len(all))
	for i, d := range all {
		ids[i] = d.ID
		contents[i] = d.Content
	}
	if err := k.index.Add(ctx, ids, contents); err != nil {
		return fmt.Errorf("keyword strategy: build index: %w", err)
	}

	k.built = true
	return nil
}

func (k *KeywordStrategy) Retrieve(ctx context.Context, query string, kResults int, params map[string]any) ([]document.Document, error) {
	if err := k.ensureBuilt(ctx); err != nil {
		// An index build failure is a recoverable adapter condition, not a
		// fatal one: degrade to an empty result rather than failing the
		// whole retrieve call.
		return []document.Document{}, nil
	}

	k.mu.RLock()
	results, err := k.index.Search(ctx, query, kResults)
	k.mu.RUnlock()
	if err != nil {
		return []document.Document{}, nil
	}

	all, err := k.docs.AllDocuments(ctx)
	if err != nil {
		return []document.Document{}, nil
	}
	byID := make(map[string]document.Document, len(all))
	for _, d := range all {
		byID[d.ID] = d
	}

	out := make([]document.Document, 0, len(results))
	for _, r := range results {
		if r.Score <= 0 {
			continue
		}
		d, ok := byID[r.DocID]
		if !ok {
			continue
		}
		out = append(out, d.WithMeta(document.MetaBM25Score, fmt.Sprintf("%g", r.Score)))
	}
	return out, nil
}

// AddDocuments pushes new or updated documents into the keyword index,
// building it first if this is the first mutation.
func (k *KeywordStrategy) AddDocuments(ctx context.Context, docs []document.Document) error {
	if err := k.ensureBuilt(ctx); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	ids := make([]string, len(docs))
	contents := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
		contents[i] = d.Content
	}
	return k.index.Add(ctx, ids, contents)
}

// DeleteDocuments removes documents from the keyword index by ID.
func (k *KeywordStrategy) DeleteDocuments(ctx context.Context, ids []string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.index.Delete(ctx, ids)
}
