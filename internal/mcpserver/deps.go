// Package mcpserver wires the retrieval core to the Model Context
// Protocol: tool/resource registration, transport selection, and the
// health/server-info probes a deployer queries at startup.
package mcpserver

import (
	"log/slog"

	"github.com/aman-cerp/ragmcp/internal/adapters/bleveindex"
	"github.com/aman-cerp/ragmcp/internal/adapters/cache"
	"github.com/aman-cerp/ragmcp/internal/adapters/docstore"
	"github.com/aman-cerp/ragmcp/internal/adapters/golden"
	"github.com/aman-cerp/ragmcp/internal/adapters/hnswstore"
	"github.com/aman-cerp/ragmcp/internal/adapters/llm"
	"github.com/aman-cerp/ragmcp/internal/config"
	"github.com/aman-cerp/ragmcp/internal/document"
	"github.com/aman-cerp/ragmcp/internal/eval"
	"github.com/aman-cerp/ragmcp/internal/retrieval"
	"github.com/aman-cerp/ragmcp/internal/telemetry"
)

// Dependencies bundles every process-wide singleton the server needs: built
// once by the serve command's startup sequence and passed in explicitly, not
// reached for as package globals.
type Dependencies struct {
	Config    *config.Config
	Logger    *slog.Logger
	Factory   *retrieval.Factory
	Pipelines map[document.StrategyName]*retrieval.Pipeline // built eagerly at startup, one per concrete strategy
	Cache     cache.Cache
	DocStore  *docstore.Store
	LLM       llm.Client // nil when no LLM key is configured; research_deep falls back to an extractive answer
	Evaluator *eval.Evaluator
	Dataset   *golden.Loader
	Recorder  *telemetry.Recorder

	// QueryMetrics tracks query-pattern telemetry (type mix, zero-result
	// queries, latency histogram, repetition) behind the
	// telemetry://query-patterns resource. The startup sequence always sets
	// it, falling back to an in-memory collector when its SQLite-backed store
	// fails to open; when it is nil the resource reports unavailable.
	QueryMetrics *telemetry.QueryMetrics

	// Present only when the corresponding strategy was constructed; used
	// for the collection://{name}/stats resource's index-level counters.
	VectorStore  *hnswstore.Store
	KeywordIndex *bleveindex.Index
}

// pipelineFor returns the pipeline registered for name, or nil if it wasn't
// built (e.g. a deployment that never constructs the rerank strategy because
// no LLM key is configured).
func (d *Dependencies) pipelineFor(name document.StrategyName) *retrieval.Pipeline {
	return d.Pipelines[name]
}
