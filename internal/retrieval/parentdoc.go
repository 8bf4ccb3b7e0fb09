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

const (
	// DefaultParentChunkSize is the character length of a large parent chunk.
	DefaultParentChunkSize = 2000
	// DefaultChildChunkSize is the character length of a small, embedded
	// child chunk.
	DefaultChildChunkSize = 400
	// DefaultChunkOverlap is the overlap, in characters, between
	// consecutive chunks at either level.
	DefaultChunkOverlap = 50

	// childFetchMultiplier requests more child hits than k so that,
	// after deduping to parents, at least k distinct parents usually
	// survive.
	childFetchMultiplier = 3
)

// MappingStats summarizes the parent/child mapping for introspection.
type MappingStats struct {
	NumParents          int
	NumChildren         int
	AvgChildrenPerParent float64
}

// ParentDocStrategy retrieves by searching small, densely embedded child
// chunks and returning their larger parent chunk, trading embedding
// precision (short chunks embed more faithfully) for retrieved context
// (long chunks give the caller more to work with). The parent/child
// mapping is an in-process map rebuilt from the document store on
// startup; it is deliberately not persisted across restarts (see
// DESIGN.md).
type ParentDocStrategy struct {
	mu sync.RWMutex

	childStore *hnswstore.Store
	embed      embedder.Embedder
	docs       *docstore.Store

	parentChunkSize int
	childChunkSize  int
	overlap         int

	parentContent  map[string]string
	childContent   map[string]string
	childToParent  map[string]string
	parentChildren map[string][]string

	built bool
}

var _ Strategy = (*ParentDocStrategy)(nil)

// NewParentDocStrategy builds a strategy with the given chunk sizes. Zero
// values fall back to the package defaults.
func NewParentDocStrategy(embed embedder.Embedder, docs *docstore.Store, parentChunkSize, childChunkSize, overlap int) (*ParentDocStrategy, error) {
	if parentChunkSize <= 0 {
		parentChunkSize = DefaultParentChunkSize
	}
	if childChunkSize <= 0 {
		childChunkSize = DefaultChildChunkSize
	}
	if overlap <= 0 {
		overlap = DefaultChunkOverlap
	}

	store, err := hnswstore.New(hnswstore.DefaultConfig(embed.Dimensions()))
	if err != nil {
		return nil, fmt.Errorf("parent-doc strategy: create child store: %w", err)
	}

	return &ParentDocStrategy{
		childStore:      store,
		embed:           embed,
		docs:            docs,
		parentChunkSize: parentChunkSize,
		childChunkSize:  childChunkSize,
		overlap:         overlap,
		parentContent:   make(map[string]string),
		childContent:    make(map[string]string),
		childToParent:   make(map[string]string),
		parentChildren:  make(map[string][]string),
	}, nil
}

func (p *ParentDocStrategy) Name() document.StrategyName { return document.StrategyParentDoc }

func (p *ParentDocStrategy) ensureBuilt(ctx context.Context) error {
	p.mu.RLock()
	built := p.built
	p.mu.RUnlock()
	if built {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.built {
		return nil
	}

	all, err := p.docs.AllDocuments(ctx)
	if err != nil {
		return fmt.Errorf("parent-doc strategy: load documents: %w", err)
	}

	for _, d := range all {
		if err := p.indexDocumentLocked(ctx, d); err != nil {
			return err
		}
	}

	p.built = true
	return nil
}

// indexDocumentLocked splits d into parent and child chunks and embeds the
// children. Callers must hold p.mu for writing.
func (p *ParentDocStrategy) indexDocumentLocked(ctx context.Context, d document.Document) error {
	parents := splitChunks(d.Content, p.parentChunkSize, p.overlap)

	var childIDs []string
	var childTexts []string

	for pi, parentText := range parents {
		parentID := fmt.Sprintf("%s#p%d", d.ID, pi)
		p.parentContent[parentID] = parentText
		p.parentChildren[parentID] = nil

		children := splitChunks(parentText, p.childChunkSize, p.overlap)
		for ci, childText := range children {
			childID := fmt.Sprintf("%s#c%d", parentID, ci)
			p.childContent[childID] = childText
			p.childToParent[childID] = parentID
			p.parentChildren[parentID] = append(p.parentChildren[parentID], childID)
			childIDs = append(childIDs, childID)
			childTexts = append(childTexts, childText)
		}
	}

	if len(childIDs) == 0 {
		return nil
	}

	vectors, err := p.embed.EmbedBatch(ctx, childTexts)
	if err != nil {
		return fmt.Errorf("parent-doc strategy: embed children of %s: %w", d.ID, err)
	}
	return p.childStore.Add(ctx, childIDs, vectors)
}

func (p *ParentDocStrategy) Retrieve(ctx context.Context, query string, k int, params map[string]any) ([]document.Document, error) {
	if err := p.ensureBuilt(ctx); err != nil {
		return []document.Document{}, nil
	}

	vec, err := p.embed.Embed(ctx, query)
	if err != nil {
		return []document.Document{}, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	hits, err := p.childStore.Search(ctx, vec, k*childFetchMultiplier)
	if err != nil {
		return []document.Document{}, nil
	}

	seen := make(map[string]struct{})
	out := make([]document.Document, 0, k)
	for _, hit := range hits {
		parentID, ok := p.childToParent[hit.ID]
		if !ok {
			continue
		}
		if _, dup := seen[parentID]; dup {
			continue
		}
		seen[parentID] = struct{}{}

		content, ok := p.parentContent[parentID]
		if !ok {
			continue
		}

		d := document.Document{ID: parentID, Content: content, Metadata: map[string]string{}}
		d = d.WithMeta(document.MetaChunkType, "parent")
		d = d.WithMeta(document.MetaParentDocumentID, parentID)
		d = d.WithMeta(document.MetaParentChunkSize, fmt.Sprintf("%d", p.parentChunkSize))
		d = d.WithMeta(document.MetaChildChunkSize, fmt.Sprintf("%d", p.childChunkSize))
		out = append(out, d)

		if len(out) >= k {
			break
		}
	}
	return out, nil
}

// ChildChunks returns the child chunks currently mapped under parentID, a
// debug-only helper for diagnosing bad chunk boundaries.
func (p *ParentDocStrategy) ChildChunks(parentID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	childIDs := p.parentChildren[parentID]
	out := make([]string, 0, len(childIDs))
	for _, id := range childIDs {
		out = append(out, p.childContent[id])
	}
	return out
}

// MappingStats reports parent/child counts for the strategies://info and
// collection:// resources.
func (p *ParentDocStrategy) MappingStats() MappingStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	numParents := len(p.parentChildren)
	numChildren := len(p.childToParent)
	avg := 0.0
	if numParents > 0 {
		avg = float64(numChildren) / float64(numParents)
	}
	return MappingStats{NumParents: numParents, NumChildren: numChildren, AvgChildrenPerParent: avg}
}

// splitChunks splits text into chunks of at most size characters with the
// given overlap between consecutive chunks. A non-positive size returns
// the whole text as a single chunk.
func splitChunks(text string, size, overlap int) []string {
	if size <= 0 || len(text) <= size {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	if overlap >= size {
		overlap = size / 2
	}

	var chunks []string
	step := size - overlap
	for start := 0; start < len(text); start += step {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}
	return chunks
}
