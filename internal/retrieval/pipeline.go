package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aman-cerp/ragmcp/internal/adapters/cache"
	"github.com/aman-cerp/ragmcp/internal/document"
	ragerrors "github.com/aman-cerp/ragmcp/internal/errors"
)

// DefaultCacheTTL is used when the pipeline is constructed with a
// non-positive TTL.
const DefaultCacheTTL = time.Hour

// MetricsRecorder receives one RetrievalMetrics per completed Retrieve
// call. Recording is fire-and-forget: a recorder must not block the
// caller, and the pipeline never lets a recorder failure fail a retrieval.
type MetricsRecorder interface {
	Record(document.RetrievalMetrics)
}

// noopRecorder discards metrics; used when no recorder is configured.
type noopRecorder struct{}

func (noopRecorder) Record(document.RetrievalMetrics) {}

// Pipeline wraps any Strategy with uniform cache lookups, timing, k
// capping + rank stamping, and metrics emission. Strategies should never
// duplicate this work themselves.
type Pipeline struct {
	strategy Strategy
	cache    cache.Cache
	ttl      time.Duration
	metrics  MetricsRecorder
	logger   *slog.Logger

	cacheEnabled bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCache enables cache read/write around the wrapped strategy.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(p *Pipeline) {
		p.cache = c
		p.cacheEnabled = c != nil
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithMetrics installs a MetricsRecorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithLogger installs a structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline wraps strategy with the given options.
func NewPipeline(strategy Strategy, opts ...Option) *Pipeline {
	p := &Pipeline{
		strategy: strategy,
		ttl:      DefaultCacheTTL,
		metrics:  noopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// cacheKey computes a stable cache key over the exact query bytes, per
// §4.0: "stable hash over exact query bytes — SHA-256, not a
// language-level map hash".
func cacheKey(strategy document.StrategyName, query string, k int) string {
	h := sha256.Sum256([]byte(query))
	return fmt.Sprintf("retrieval:%s:%s:%d", strategy, hex.EncodeToString(h[:]), k)
}

type cachedResult struct {
	Documents []document.Document
}

// Retrieve is the single entry point every caller (strategies, the
// research_deep/strategy_compare tools, the retriever:// resource) uses.
// It is the only place that touches the cache, measures latency, caps to
// k, and emits RetrievalMetrics.
func (p *Pipeline) Retrieve(ctx context.Context, query string, k int, params map[string]any) (document.RetrievalResult, error) {
	start := time.Now()
	name := p.strategy.Name()

	if k < 1 {
		k = 1
	}

	key := cacheKey(name, query, k)

	if p.cacheEnabled {
		if raw, ok := p.cache.Get(ctx, key); ok {
			if docs, err := decodeCachedResult(raw); err == nil {
				result := document.RetrievalResult{Documents: stampRanks(docs, k), CacheHit: true}
				p.emitMetrics(name, query, result, start, false)
				return result, nil
			}
			// Corrupt cache entry: fall through to a fresh computation.
		}
	}

	docs, err := p.strategy.Retrieve(ctx, query, k, params)
	if err != nil {
		p.logger.Warn("retrieval strategy failed",
			slog.String("strategy", string(name)),
			slog.String("error", err.Error()))
		p.emitMetrics(name, query, document.RetrievalResult{}, start, true)
		return document.RetrievalResult{}, ragerrors.Wrap(ragerrors.ErrCodeInternal, err)
	}

	result := document.RetrievalResult{Documents: stampRanks(docs, k)}

	if p.cacheEnabled {
		if encoded, err := encodeCachedResult(result.Documents); err == nil {
			p.cache.Set(ctx, key, encoded, p.ttl)
		}
	}

	p.emitMetrics(name, query, result, start, false)
	return result, nil
}

func (p *Pipeline) emitMetrics(name document.StrategyName, query string, result document.RetrievalResult, start time.Time, errored bool) {
	m := document.RetrievalMetrics{
		Strategy:   name,
		Query:      query,
		NumResults: len(result.Documents),
		LatencyMS:  float64(time.Since(start).Microseconds()) / 1000.0,
		TokenCount: document.TokenCount(result.Documents),
		CacheHit:   result.CacheHit,
		Errored:    errored,
	}
	p.metrics.Record(m)
	p.logger.Debug("retrieval completed",
		slog.String("strategy", string(name)),
		slog.Int("query_len", len(query)),
		slog.Float64("latency_ms", m.LatencyMS),
		slog.Bool("cache_hit", m.CacheHit))
}

// stampRanks truncates docs to k and assigns a contiguous 1-based rank to
// each, overwriting whatever the strategy set (strategies must not stamp
// rank themselves).
func stampRanks(docs []document.Document, k int) []document.Document {
	if len(docs) > k {
		docs = docs[:k]
	}
	out := make([]document.Document, len(docs))
	for i, d := range docs {
		out[i] = d.WithMeta(document.MetaRank, fmt.Sprintf("%d", i+1))
	}
	return out
}

func encodeCachedResult(docs []document.Document) ([]byte, error) {
	var buf strings.Builder
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(cachedResult{Documents: docs}); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

func decodeCachedResult(raw []byte) ([]document.Document, error) {
	dec := gob.NewDecoder(strings.NewReader(string(raw)))
	var cr cachedResult
	if err := dec.Decode(&cr); err != nil {
		return nil, err
	}
	return cr.Documents, nil
}
