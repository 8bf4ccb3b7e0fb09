package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/aman-cerp/ragmcp/internal/document"
)

// DefaultRRFConstant is the C in weight/(r+C), matching the conventional
// RRF default.
const DefaultRRFConstant = 60

// ensembleFetchCap bounds how many results are requested from each
// sub-strategy, independent of k.
const ensembleFetchCap = 15

// identityContentChars is how many leading characters of content are
// hashed, alongside metadata.source, for ensemble document identity.
const identityContentChars = 1000

// subStrategy pairs a named sub-strategy with its RRF weight.
type subStrategy struct {
	name     document.StrategyName
	strategy Strategy
	weight   float64
}

// EnsembleStrategy fuses the results of several sub-strategies with
// Reciprocal Rank Fusion. Sub-strategies run concurrently and are
// isolated: one failing contributes an empty list rather than failing
// the ensemble. Membership can be changed at runtime via AddStrategy,
// RemoveStrategy and UpdateWeights; each forces a rebuild on the next
// Retrieve call.
type EnsembleStrategy struct {
	mu    sync.Mutex
	subs  []subStrategy
	rrfC  int
}

var _ Strategy = (*EnsembleStrategy)(nil)

// NewEnsembleStrategy builds an ensemble over subs, each weighted 1.0.
func NewEnsembleStrategy(subs map[document.StrategyName]Strategy) *EnsembleStrategy {
	e := &EnsembleStrategy{rrfC: DefaultRRFConstant}
	for name, s := range subs {
		e.subs = append(e.subs, subStrategy{name: name, strategy: s, weight: 1.0})
	}
	e.sortSubs()
	return e
}

func (e *EnsembleStrategy) sortSubs() {
	sort.Slice(e.subs, func(i, j int) bool { return e.subs[i].name < e.subs[j].name })
}

func (e *EnsembleStrategy) Name() document.StrategyName { return document.StrategyEnsemble }

// SetRRFConstant overrides the RRF C constant (default DefaultRRFConstant),
// letting the configured search.rrf_constant take effect.
func (e *EnsembleStrategy) SetRRFConstant(c int) {
	if c <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rrfC = c
}

// AddStrategy registers or replaces a sub-strategy under name with the
// given weight, effective on the next Retrieve call.
func (e *EnsembleStrategy) AddStrategy(name document.StrategyName, strategy Strategy, weight float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if weight <= 0 {
		weight = 1.0
	}
	for i, s := range e.subs {
		if s.name == name {
			e.subs[i].strategy = strategy
			e.subs[i].weight = weight
			return
		}
	}
	e.subs = append(e.subs, subStrategy{name: name, strategy: strategy, weight: weight})
	e.sortSubs()
}

// RemoveStrategy drops name from the sub-strategy set, effective on the
// next Retrieve call.
func (e *EnsembleStrategy) RemoveStrategy(name document.StrategyName) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.subs[:0]
	for _, s := range e.subs {
		if s.name != name {
			out = append(out, s)
		}
	}
	e.subs = out
}

// UpdateWeights overwrites the weight of every named sub-strategy
// currently registered; unknown names are ignored.
func (e *EnsembleStrategy) UpdateWeights(weights map[document.StrategyName]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, s := range e.subs {
		if w, ok := weights[s.name]; ok && w > 0 {
			e.subs[i].weight = w
		}
	}
}

func (e *EnsembleStrategy) snapshot() []subStrategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]subStrategy, len(e.subs))
	copy(out, e.subs)
	return out
}

type scoredDoc struct {
	doc          document.Document
	score        float64
	contributors map[document.StrategyName]struct{}
}

func (e *EnsembleStrategy) Retrieve(ctx context.Context, query string, k int, params map[string]any) ([]document.Document, error) {
	subs := e.snapshot()
	if len(subs) == 0 {
		return []document.Document{}, nil
	}

	fetchK := 3 * k
	if fetchK > ensembleFetchCap {
		fetchK = ensembleFetchCap
	}

	results := make([][]document.Document, len(subs))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range subs {
		i, s := i, s
		g.Go(func() error {
			docs, err := s.strategy.Retrieve(gctx, query, fetchK, params)
			if err != nil {
				// Isolated failure: contribute nothing, never fail the ensemble.
				results[i] = nil
				return nil
			}
			results[i] = docs
			return nil
		})
	}
	_ = g.Wait()

	scored := make(map[string]*scoredDoc)
	order := make([]string, 0)

	for i, s := range subs {
		for rank, d := range results[i] {
			id := documentIdentity(d)
			contribution := s.weight / float64(rank+1+e.rrfC)

			sd, ok := scored[id]
			if !ok {
				sd = &scoredDoc{doc: d, contributors: make(map[document.StrategyName]struct{})}
				scored[id] = sd
				order = append(order, id)
			} else if len(d.Metadata) > len(sd.doc.Metadata) {
				sd.doc = d
			}
			sd.score += contribution
			sd.contributors[s.name] = struct{}{}
		}
	}

	final := make([]*scoredDoc, 0, len(order))
	for _, id := range order {
		final = append(final, scored[id])
	}

	sort.SliceStable(final, func(i, j int) bool {
		if final[i].score != final[j].score {
			return final[i].score > final[j].score
		}
		if len(final[i].contributors) != len(final[j].contributors) {
			return len(final[i].contributors) > len(final[j].contributors)
		}
		return final[i].doc.ID < final[j].doc.ID
	})

	if len(final) > k {
		final = final[:k]
	}

	out := make([]document.Document, 0, len(final))
	for _, sd := range final {
		names := make([]string, 0, len(sd.contributors))
		for _, s := range subs {
			if _, ok := sd.contributors[s.name]; ok {
				names = append(names, string(s.name))
			}
		}
		d := sd.doc.WithMeta(document.MetaRRFScore, fmt.Sprintf("%g", sd.score))
		d = d.WithMeta(document.MetaContributingStrategy, joinStrings(names, ","))
		out = append(out, d)
	}
	return out, nil
}

// documentIdentity hashes the first identityContentChars of content
// combined with metadata.source, the ensemble's notion of "same
// document" across sub-strategies that may chunk differently.
func documentIdentity(d document.Document) string {
	content := d.Content
	if len(content) > identityContentChars {
		content = content[:identityContentChars]
	}
	h := sha256.New()
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(d.Metadata["source"]))
	return hex.EncodeToString(h.Sum(nil))
}

func joinStrings(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}
