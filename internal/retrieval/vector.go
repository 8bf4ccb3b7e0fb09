package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/aman-cerp/ragmcp/internal/adapters/docstore"
	"github.com/aman-cerp/ragmcp/internal/adapters/embedder"
	"github.com/aman-cerp/ragmcp/internal/adapters/hnswstore"
	"github.com/aman-cerp/ragmcp/internal/document"
)

// VectorStrategy performs cosine-similarity nearest-neighbor search over an
// in-process HNSW graph. Documents are embedded and pushed into the graph
// lazily on first use, the same way the keyword strategy lazily builds its
// inverted index.
type VectorStrategy struct {
	mu          sync.RWMutex
	store       *hnswstore.Store
	embed       embedder.Embedder
	docs        *docstore.Store
	minScore    float32
	built       bool
}

var _ Strategy = (*VectorStrategy)(nil)
var _ AddDeleter = (*VectorStrategy)(nil)

// NewVectorStrategy builds a strategy over a fresh HNSW graph dimensioned
// to match embed. minScore filters out matches below a similarity floor
// (0.0 keeps everything).
func NewVectorStrategy(embed embedder.Embedder, docs *docstore.Store, minScore float32) (*VectorStrategy, error) {
	store, err := hnswstore.New(hnswstore.DefaultConfig(embed.Dimensions()))
	if err != nil {
		return nil, fmt.Errorf("vector strategy: create store: %w", err)
	}
	return &VectorStrategy{store: store, embed: embed, docs: docs, minScore: minScore}, nil
}

func (v *VectorStrategy) Name() document.StrategyName { return document.StrategyVector }

// Store returns the underlying HNSW graph, for the collection stats
// resource's vector-count introspection.
func (v *VectorStrategy) Store() *hnswstore.Store { return v.store }

func (v *VectorStrategy) ensureBuilt(ctx context.Context) error {
	v.mu.RLock()
	built := v.built
	v.mu.RUnlock()
	if built {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.built {
		return nil
	}

	all, err := v.docs.AllDocuments(ctx)
	if err != nil {
		return fmt.Errorf("vector strategy: load documents: %w", err)
	}
	if len(all) == 0 {
		v.built = true
		return nil
	}

	contents := make([]string, len(all))
	for i, d := range all {
		contents[i] = d.Content
	}
	vectors, err := v.embed.EmbedBatch(ctx, contents)
	if err != nil {
		return fmt.Errorf("vector strategy: embed documents: %w", err)
	}

	ids := make([]string, len(all))
	for i, d := range all {
		ids[i] = d.ID
	}
	if err := v.store.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("vector strategy: populate store: %w", err)
	}

	v.built = true
	return nil
}

func (v *VectorStrategy) Retrieve(ctx context.Context, query string, k int, params map[string]any) ([]document.Document, error) {
	if err := v.ensureBuilt(ctx); err != nil {
		return []document.Document{}, nil
	}

	vec, err := v.embed.Embed(ctx, query)
	if err != nil {
		return []document.Document{}, nil
	}

	v.mu.RLock()
	results, err := v.store.Search(ctx, vec, k)
	v.mu.RUnlock()
	if err != nil {
		return []document.Document{}, nil
	}

	all, err := v.docs.AllDocuments(ctx)
	if err != nil {
		return []document.Document{}, nil
	}
	byID := make(map[string]document.Document, len(all))
	for _, d := range all {
		byID[d.ID] = d
	}

	out := make([]document.Document, 0, len(results))
	for _, r := range results {
		if r.Score < v.minScore {
			continue
		}
		d, ok := byID[r.ID]
		if !ok {
			continue
		}
		out = append(out, d.WithMeta(document.MetaSimilarityScore, fmt.Sprintf("%g", r.Score)))
	}
	return out, nil
}

// AddDocuments embeds and pushes new or updated documents into the vector
// store, building it first if this is the first mutation.
func (v *VectorStrategy) AddDocuments(ctx context.Context, docs []document.Document) error {
	if err := v.ensureBuilt(ctx); err != nil {
		return err
	}

	contents := make([]string, len(docs))
	ids := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.Content
		ids[i] = d.ID
	}

	vectors, err := v.embed.EmbedBatch(ctx, contents)
	if err != nil {
		return fmt.Errorf("vector strategy: embed documents: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.store.Add(ctx, ids, vectors)
}

// DeleteDocuments removes documents from the vector store by ID.
func (v *VectorStrategy) DeleteDocuments(ctx context.Context, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.store.Delete(ctx, ids)
}
