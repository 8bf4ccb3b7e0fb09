// Package document defines the data shapes shared by every retrieval
// strategy, the pipeline wrapper, and the MCP surface: documents, queries,
// retrieval requests/results, metrics, and evaluation samples.
package document

import "strings"

// Reserved metadata keys written by the core. Strategies must not overwrite
// ingestion metadata under any other key.
const (
	MetaRetrievalStrategy    = "retrieval_strategy"
	MetaRank                 = "rank"
	MetaSimilarityScore      = "similarity_score"
	MetaBM25Score            = "bm25_score"
	MetaRRFScore             = "rrf_score"
	MetaContributingStrategy = "contributing_strategies"
	MetaRerankScore          = "rerank_score"
	MetaChunkType            = "chunk_type"
	MetaParentDocumentID     = "parent_document_id"
	MetaParentChunkSize      = "parent_chunk_size"
	MetaChildChunkSize       = "child_chunk_size"
	MetaCollection           = "collection"
)

// Document is an opaque textual payload plus an open, string-keyed metadata
// map. Documents are externally owned; strategies borrow them and annotate
// metadata, they never mutate the caller's copy of Content.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// WithMeta returns a shallow copy of the document with key set to value in
// its metadata map. The original document's map is left untouched.
func (d Document) WithMeta(key, value string) Document {
	out := Document{ID: d.ID, Content: d.Content, Metadata: make(map[string]string, len(d.Metadata)+1)}
	for k, v := range d.Metadata {
		out.Metadata[k] = v
	}
	out.Metadata[key] = value
	return out
}

// TokenCount returns the whitespace-split token count of the document's
// content, used by the pipeline wrapper to populate RetrievalMetrics.
func TokenCount(docs []Document) int {
	total := 0
	for _, d := range docs {
		total += len(strings.Fields(d.Content))
	}
	return total
}

// StrategyName identifies one of the six retrieval strategies, or "auto" for
// factory-driven selection.
type StrategyName string

const (
	StrategyKeyword    StrategyName = "keyword"
	StrategyVector     StrategyName = "vector"
	StrategyParentDoc  StrategyName = "parent_doc"
	StrategyMultiQuery StrategyName = "multi_query"
	StrategyRerank     StrategyName = "rerank"
	StrategyEnsemble   StrategyName = "ensemble"
	StrategyAuto       StrategyName = "auto"
)

// AllStrategies lists the six concrete strategies, in the order the factory
// registers them. It excludes "auto", which is a selector, not a strategy.
var AllStrategies = []StrategyName{
	StrategyKeyword,
	StrategyVector,
	StrategyParentDoc,
	StrategyMultiQuery,
	StrategyRerank,
	StrategyEnsemble,
}

// RetrievalRequest is the uniform input to the pipeline wrapper.
type RetrievalRequest struct {
	Query    string
	Strategy StrategyName
	K        int
	Params   map[string]any
}

// RetrievalResult is an ordered sequence of at most K documents, each
// carrying a 1-based, contiguous Rank.
type RetrievalResult struct {
	Documents []Document
	CacheHit  bool
}

// Len returns the number of documents in the result.
func (r RetrievalResult) Len() int { return len(r.Documents) }

// RetrievalMetrics is emitted exactly once per completed retrieve call.
type RetrievalMetrics struct {
	Strategy    StrategyName
	Query       string
	NumResults  int
	LatencyMS   float64
	TokenCount  int
	CacheHit    bool
	Errored     bool
}

// EvalSample is one unit of reference-free evaluation input.
type EvalSample struct {
	Question     string
	Answer       string
	Contexts     []string
	GroundTruth  string // optional; empty means "not supplied"
}

// RAGASScores holds the four reference-free quality metrics plus their mean.
type RAGASScores struct {
	AnswerRelevancy  float64
	ContextPrecision float64
	ContextRecall    float64
	Faithfulness     float64
	OverallScore     float64
}

// Mean computes OverallScore as the unweighted mean of the four metrics and
// returns a copy of s with OverallScore populated.
func (s RAGASScores) Mean() RAGASScores {
	s.OverallScore = (s.AnswerRelevancy + s.ContextPrecision + s.ContextRecall + s.Faithfulness) / 4.0
	return s
}
