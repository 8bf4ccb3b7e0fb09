package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aman-cerp/ragmcp/internal/document"
)

// registerResources wires the six read-only "query" resources from §4.9.
// Unlike the tools, these skip synthesis and evaluation entirely so they
// stay on the fast path the spec calls for.
func (s *Server) registerResources() {
	mcp.AddResourceTemplate(s.mcp, &mcp.ResourceTemplate{
		Name:        "retriever",
		URITemplate: "retriever://{strategy}/{query}",
		Description: "Raw top-10 documents from one strategy for a percent-encoded query, with timing but no synthesis or evaluation.",
		MIMEType:    "application/json",
	}, s.retrieverResourceHandler)

	mcp.AddResource(s.mcp, &mcp.Resource{
		Name:        "strategies_info",
		URI:         "strategies://info",
		Description: "Static catalog of the six retrieval strategies, their traits, and the factory's auto-selection recommendation.",
		MIMEType:    "application/json",
	}, s.strategiesInfoHandler)

	mcp.AddResourceTemplate(s.mcp, &mcp.ResourceTemplate{
		Name:        "collection_stats",
		URITemplate: "collection://{name}/stats",
		Description: "Vector-store and document-store statistics for a collection.",
		MIMEType:    "application/json",
	}, s.collectionStatsHandler)

	mcp.AddResource(s.mcp, &mcp.Resource{
		Name:        "cache_stats",
		URI:         "cache://stats",
		Description: "Cache hit rate, entry count, and a derived sizing recommendation.",
		MIMEType:    "application/json",
	}, s.cacheStatsHandler)

	mcp.AddResourceTemplate(s.mcp, &mcp.ResourceTemplate{
		Name:        "strategy_metrics",
		URITemplate: "metrics://{strategy}",
		Description: "Per-strategy performance metrics (call count, latency, cache hit rate) over the recent call window.",
		MIMEType:    "application/json",
	}, s.metricsResourceHandler)

	mcp.AddResource(s.mcp, &mcp.Resource{
		Name:        "query_patterns",
		URI:         "telemetry://query-patterns",
		Description: "Query-pattern telemetry across all strategies: lexical/semantic/mixed mix, top terms, zero-result queries, latency histogram, and repetition rate.",
		MIMEType:    "application/json",
	}, s.queryPatternsHandler)

	s.deps.Logger.Info("mcp resources registered", slog.Int("count", 6))
}

// jsonResource builds a ReadResourceResult wrapping v as pretty JSON.
func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: uri, MIMEType: "application/json", Text: string(body)},
		},
	}, nil
}

// parseSchemeSuffix splits a "scheme://rest" URI into its path segments.
func parseSchemeSuffix(uri string) []string {
	idx := strings.Index(uri, "://")
	if idx < 0 {
		return nil
	}
	rest := uri[idx+3:]
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// --- retriever://{strategy}/{query} -------------------------------------

type retrieverResourceOutput struct {
	Strategy   document.StrategyName `json:"strategy"`
	Query      string                 `json:"query"`
	NumResults int                    `json:"num_results"`
	LatencyMS  float64                `json:"latency_ms"`
	Documents  []SourceOutput         `json:"documents"`
}

func (s *Server) retrieverResourceHandler(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	segments := parseSchemeSuffix(req.Params.URI)
	if len(segments) < 2 {
		return nil, fmt.Errorf("mcpserver: malformed retriever:// uri %q", req.Params.URI)
	}
	strategyName := document.StrategyName(segments[0])
	encodedQuery := strings.Join(segments[1:], "/")
	query, err := url.QueryUnescape(encodedQuery)
	if err != nil {
		query = encodedQuery
	}

	pipeline := s.deps.pipelineFor(strategyName)
	if pipeline == nil {
		return nil, fmt.Errorf("mcpserver: unknown strategy %q", strategyName)
	}

	start := time.Now()
	result, err := pipeline.Retrieve(ctx, query, 10, nil)
	if err != nil {
		return nil, err
	}

	docs := make([]SourceOutput, 0, len(result.Documents))
	for _, d := range result.Documents {
		docs = append(docs, SourceOutput{ID: d.ID, Content: d.Content, Metadata: d.Metadata})
	}

	return jsonResource(req.Params.URI, retrieverResourceOutput{
		Strategy:   strategyName,
		Query:      query,
		NumResults: len(docs),
		LatencyMS:  float64(time.Since(start).Microseconds()) / 1000.0,
		Documents:  docs,
	})
}

// --- strategies://info ---------------------------------------------------

type StrategyCatalogEntry struct {
	Name  document.StrategyName `json:"name"`
	Traits string                `json:"traits"`
}

type strategiesInfoOutput struct {
	Strategies []StrategyCatalogEntry `json:"strategies"`
}

var strategyTraits = map[document.StrategyName]string{
	document.StrategyKeyword:    "exact-term/BM25 matching; best for short factual or API-symbol queries",
	document.StrategyVector:     "dense semantic similarity; best for paraphrased or mid-length queries",
	document.StrategyParentDoc:  "retrieves small-chunk hits but returns their full parent document for context",
	document.StrategyMultiQuery: "expands the query into several phrasings via an LLM, then unions a base strategy's results",
	document.StrategyRerank:     "over-fetches with a base strategy, then has an LLM reorder the candidates",
	document.StrategyEnsemble:   "fuses several strategies with reciprocal rank fusion; best for long or open-ended questions",
}

func (s *Server) strategiesInfoHandler(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(req.Params.URI, strategiesInfoOutput{Strategies: StrategyCatalog()})
}

// StrategyCatalog returns the static strategy catalog backing both the
// strategies://info resource and the `strategies` CLI subcommand.
func StrategyCatalog() []StrategyCatalogEntry {
	entries := make([]StrategyCatalogEntry, 0, len(document.AllStrategies))
	for _, name := range document.AllStrategies {
		entries = append(entries, StrategyCatalogEntry{Name: name, Traits: strategyTraits[name]})
	}
	return entries
}

// --- collection://{name}/stats --------------------------------------------

type collectionStatsOutput struct {
	Collection    string `json:"collection"`
	DocumentCount int    `json:"document_count"`
	VectorCount   int    `json:"vector_count,omitempty"`
	KeywordCount  int    `json:"keyword_count,omitempty"`
}

func (s *Server) collectionStatsHandler(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	segments := parseSchemeSuffix(req.Params.URI)
	name := "default"
	if len(segments) > 0 {
		name = segments[0]
	}

	output := collectionStatsOutput{Collection: name}
	if s.deps.DocStore != nil {
		if stats, err := s.deps.DocStore.Stats(ctx); err == nil {
			output.DocumentCount = stats.DocumentCount
		}
	}
	if s.deps.VectorStore != nil {
		output.VectorCount = s.deps.VectorStore.Stats().ValidIDs
	}
	if s.deps.KeywordIndex != nil {
		output.KeywordCount = s.deps.KeywordIndex.Stats().DocumentCount
	}

	return jsonResource(req.Params.URI, output)
}

// --- cache://stats ---------------------------------------------------------

type cacheStatsOutput struct {
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	Entries        int     `json:"entries"`
	Evictions      int64   `json:"evictions"`
	HitRate        float64 `json:"hit_rate"`
	Recommendation string  `json:"recommendation"`
}

func (s *Server) cacheStatsHandler(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if s.deps.Cache == nil {
		return jsonResource(req.Params.URI, cacheStatsOutput{Recommendation: "no cache configured"})
	}
	stats := s.deps.Cache.Stats()
	output := cacheStatsOutput{
		Hits:      stats.Hits,
		Misses:    stats.Misses,
		Entries:   stats.Entries,
		Evictions: stats.Evictions,
		HitRate:   stats.HitRate(),
	}
	switch {
	case stats.Hits+stats.Misses == 0:
		output.Recommendation = "no lookups recorded yet"
	case output.HitRate < 0.2:
		output.Recommendation = "hit rate is low; consider a longer TTL or a larger cache size"
	case stats.Evictions > stats.Entries:
		output.Recommendation = "eviction churn exceeds current size; consider raising cache.size"
	default:
		output.Recommendation = "cache is performing within expected range"
	}
	return jsonResource(req.Params.URI, output)
}

// --- metrics://{strategy} ---------------------------------------------------

func (s *Server) metricsResourceHandler(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	segments := parseSchemeSuffix(req.Params.URI)
	if len(segments) < 1 {
		return nil, fmt.Errorf("mcpserver: malformed metrics:// uri %q", req.Params.URI)
	}
	strategyName := document.StrategyName(segments[0])

	if s.deps.Recorder == nil {
		return jsonResource(req.Params.URI, map[string]any{"strategy": strategyName, "available": false})
	}
	summary := s.deps.Recorder.Summary(strategyName)
	return jsonResource(req.Params.URI, summary)
}

// --- telemetry://query-patterns --------------------------------------------

func (s *Server) queryPatternsHandler(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if s.deps.QueryMetrics == nil {
		return jsonResource(req.Params.URI, map[string]any{"available": false})
	}
	return jsonResource(req.Params.URI, s.deps.QueryMetrics.Snapshot())
}
