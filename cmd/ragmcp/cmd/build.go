package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	_ "modernc.org/sqlite"

	"github.com/aman-cerp/ragmcp/internal/adapters/bleveindex"
	"github.com/aman-cerp/ragmcp/internal/adapters/cache"
	"github.com/aman-cerp/ragmcp/internal/adapters/docstore"
	"github.com/aman-cerp/ragmcp/internal/adapters/embedder"
	"github.com/aman-cerp/ragmcp/internal/adapters/golden"
	"github.com/aman-cerp/ragmcp/internal/adapters/hnswstore"
	"github.com/aman-cerp/ragmcp/internal/adapters/llm"
	"github.com/aman-cerp/ragmcp/internal/adapters/rediscache"
	"github.com/aman-cerp/ragmcp/internal/config"
	"github.com/aman-cerp/ragmcp/internal/document"
	"github.com/aman-cerp/ragmcp/internal/eval"
	"github.com/aman-cerp/ragmcp/internal/logging"
	"github.com/aman-cerp/ragmcp/internal/mcpserver"
	"github.com/aman-cerp/ragmcp/internal/retrieval"
	"github.com/aman-cerp/ragmcp/internal/telemetry"
)

// dataDirName is the project-local directory holding the document store
// database.
const dataDirName = ".ragmcp"

// buildDependencies loads configuration and constructs every process-wide
// singleton the server needs, wiring the six retrieval strategies into
// one Pipeline each. This is the only place in the program that touches
// concrete adapter constructors; everything downstream depends on the
// Strategy/Cache/Client interfaces instead.
func buildDependencies() (*mcpserver.Dependencies, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determine working directory: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.New(cfg.Server.LogLevel)

	dataDir := filepath.Join(root, dataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	docs, err := docstore.New(filepath.Join(dataDir, "documents.db"))
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	embed := buildEmbedder(cfg, logger)

	keywordIndex, keywordStrategy, err := buildKeywordStrategy(docs)
	if err != nil {
		return nil, err
	}

	vectorStore, vectorStrategy, err := buildVectorStrategy(embed, docs, cfg)
	if err != nil {
		return nil, err
	}

	parentDocStrategy, err := retrieval.NewParentDocStrategy(embed, docs, 0, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("build parent-doc strategy: %w", err)
	}

	llmClient := buildLLMClient(cfg)

	ensembleStrategy := retrieval.NewEnsembleStrategy(map[document.StrategyName]retrieval.Strategy{
		document.StrategyKeyword: keywordStrategy,
		document.StrategyVector:  vectorStrategy,
	})
	ensembleStrategy.SetRRFConstant(cfg.Search.RRFConstant)

	resultCache := buildCache(cfg, logger)

	registry := prometheus.NewRegistry()
	recorder := telemetry.NewRecorder(registry)
	queryMetrics := buildQueryMetrics(dataDir, logger)

	strategies := map[document.StrategyName]retrieval.Strategy{
		document.StrategyKeyword:   keywordStrategy,
		document.StrategyVector:    vectorStrategy,
		document.StrategyParentDoc: parentDocStrategy,
		document.StrategyEnsemble:  ensembleStrategy,
	}
	// multi-query and rerank both require an LLM to produce anything beyond
	// the base strategy's own results; without one they're left unregistered
	// rather than built against a client that would panic on first call.
	if llmClient != nil {
		strategies[document.StrategyMultiQuery] = retrieval.NewMultiQueryStrategy(llmClient, vectorStrategy, 0)
		strategies[document.StrategyRerank] = retrieval.NewRerankStrategy(llmClient, vectorStrategy, 0)
	}

	pipelines := make(map[document.StrategyName]*retrieval.Pipeline, len(strategies))
	for name, strategy := range strategies {
		pipelines[name] = retrieval.NewPipeline(
			strategy,
			retrieval.WithCache(resultCache, cfg.Cache.TTL),
			retrieval.WithMetrics(combinedRecorder{prom: recorder, query: queryMetrics}),
			retrieval.WithLogger(logger),
		)
	}

	factory := retrieval.NewFactory()
	for name, strategy := range strategies {
		strategy := strategy
		factory.Register(name, func(retrieval.Config) (retrieval.Strategy, error) { return strategy, nil })
	}

	var evaluator *eval.Evaluator
	if llmClient != nil {
		evaluator = eval.NewEvaluator(llmClient)
	}

	return &mcpserver.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Factory:      factory,
		Pipelines:    pipelines,
		Cache:        resultCache,
		DocStore:     docs,
		LLM:          llmClient,
		Evaluator:    evaluator,
		Dataset:      golden.New(cfg.Eval.RequireDataset),
		Recorder:     recorder,
		QueryMetrics: queryMetrics,
		VectorStore:  vectorStore,
		KeywordIndex: keywordIndex,
	}, nil
}

// combinedRecorder fans a completed retrieval call out to both the
// Prometheus-backed Recorder and the query-pattern QueryMetrics collector,
// so one pipeline option covers both the metrics:// and
// telemetry://query-patterns resources.
type combinedRecorder struct {
	prom  *telemetry.Recorder
	query *telemetry.QueryMetrics
}

func (c combinedRecorder) Record(m document.RetrievalMetrics) {
	c.prom.Record(m)
	if c.query != nil {
		c.query.RecordRetrieval(m)
	}
}

// buildQueryMetrics opens a dedicated SQLite database for query-pattern
// telemetry (term frequency, zero-result queries, latency histogram) and
// wraps it in a QueryMetrics collector. Falls back to an in-memory-only
// collector (nil store) if the database can't be opened, since telemetry
// must never block retrieval from working.
func buildQueryMetrics(dataDir string, logger *slog.Logger) *telemetry.QueryMetrics {
	db, err := sql.Open("sqlite", filepath.Join(dataDir, "telemetry.db")+"?_pragma=journal_mode(WAL)")
	if err != nil {
		logger.Warn("open telemetry database failed, query metrics will not persist", slog.String("error", err.Error()))
		return telemetry.NewQueryMetrics(nil)
	}
	if err := telemetry.InitTelemetrySchema(db); err != nil {
		logger.Warn("init telemetry schema failed, query metrics will not persist", slog.String("error", err.Error()))
		db.Close()
		return telemetry.NewQueryMetrics(nil)
	}
	store, err := telemetry.NewSQLiteMetricsStore(db)
	if err != nil {
		db.Close()
		return telemetry.NewQueryMetrics(nil)
	}
	return telemetry.NewQueryMetrics(store)
}

func buildEmbedder(cfg *config.Config, logger *slog.Logger) embedder.Embedder {
	ollama := embedder.NewOllamaEmbedder(embedder.OllamaConfig{
		Host:       cfg.Embeddings.OllamaHost,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
	})

	var base embedder.Embedder = ollama
	if !ollama.Available(context.Background()) {
		logger.Warn("ollama embedding endpoint unavailable, falling back to static embedder",
			slog.String("ollama_host", cfg.Embeddings.OllamaHost))
		base = embedder.NewStaticEmbedder()
	}

	return embedder.NewCachedEmbedder(base, cfg.Embeddings.CacheSize)
}

func buildKeywordStrategy(docs *docstore.Store) (*bleveindex.Index, *retrieval.KeywordStrategy, error) {
	strategy, err := retrieval.NewKeywordStrategy(docs)
	if err != nil {
		return nil, nil, fmt.Errorf("build keyword strategy: %w", err)
	}
	return strategy.Index(), strategy, nil
}

func buildVectorStrategy(embed embedder.Embedder, docs *docstore.Store, cfg *config.Config) (*hnswstore.Store, *retrieval.VectorStrategy, error) {
	strategy, err := retrieval.NewVectorStrategy(embed, docs, cfg.VectorStore.MinScore)
	if err != nil {
		return nil, nil, fmt.Errorf("build vector strategy: %w", err)
	}
	return strategy.Store(), strategy, nil
}

func buildLLMClient(cfg *config.Config) llm.Client {
	if cfg.LLM.APIKey == "" {
		return nil
	}
	opts := []llm.Option{}
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, llm.WithBaseURL(cfg.LLM.BaseURL))
	}
	client, err := llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.Model, opts...)
	if err != nil {
		return nil
	}
	return client
}

func buildCache(cfg *config.Config, logger *slog.Logger) cache.Cache {
	if cfg.Cache.Backend == "redis" {
		return rediscache.New(rediscache.Config{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		}, logger)
	}
	return cache.New(cfg.Cache.Size)
}
