package mcpserver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/aman-cerp/ragmcp/internal/document"
	ragerrors "github.com/aman-cerp/ragmcp/internal/errors"
	"github.com/aman-cerp/ragmcp/internal/retrieval"
)

const (
	defaultMaxResults      = 5
	synthesisContextChars  = 800
	answerSynthesisPrompt  = "Answer the question using only the information in the numbered contexts below. Be concise.\n\nQuestion: %s\n\nContexts:\n%s\n\nAnswer:"
)

// --- research_deep ---------------------------------------------------

// ResearchDeepInput is the research_deep tool's argument shape.
type ResearchDeepInput struct {
	Question          string `json:"question" jsonschema:"the natural-language question to research"`
	Strategy          string `json:"strategy,omitempty" jsonschema:"retrieval strategy to use, default auto"`
	MaxResults        int    `json:"max_results,omitempty" jsonschema:"maximum number of source documents, default 5"`
	IncludeSources    *bool  `json:"include_sources,omitempty" jsonschema:"include the retrieved source documents in the response, default true"`
	EnableEvaluation  *bool  `json:"enable_evaluation,omitempty" jsonschema:"score the answer with the RAGAS-style evaluator, default true"`
}

// SourceOutput is one retrieved document surfaced in a tool response.
type SourceOutput struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ResearchDeepOutput is the research_deep tool's result shape.
type ResearchDeepOutput struct {
	Answer                  string               `json:"answer,omitempty"`
	Question                string               `json:"question"`
	StrategyUsed            document.StrategyName `json:"strategy_used,omitempty"`
	NumSources              int                  `json:"num_sources"`
	ProcessingTimeSeconds   float64              `json:"processing_time_seconds"`
	Sources                 []SourceOutput       `json:"sources,omitempty"`
	RagasScores             *document.RAGASScores `json:"ragas_scores,omitempty"`
	ToolError               *toolError           `json:"error,omitempty"`
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func (s *Server) researchDeepHandler(ctx context.Context, _ *mcp.CallToolRequest, input ResearchDeepInput) (
	*mcp.CallToolResult,
	ResearchDeepOutput,
	error,
) {
	start := time.Now()

	if strings.TrimSpace(input.Question) == "" {
		e := mapError(ragerrors.ValidationError("question is required", nil))
		return nil, ResearchDeepOutput{Question: input.Question, ToolError: &e}, nil
	}

	strategyName := document.StrategyName(input.Strategy)
	if strategyName == "" {
		strategyName = document.StrategyAuto
	}
	maxResults := input.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	includeSources := boolOr(input.IncludeSources, true)
	enableEval := boolOr(input.EnableEvaluation, true)

	resolved := strategyName
	if resolved == document.StrategyAuto {
		resolved = selectStrategyName(s.deps.Factory, input.Question)
	}

	pipeline := s.deps.pipelineFor(resolved)
	if pipeline == nil {
		e := mapError(ragerrors.StrategyUnknownError(string(resolved), knownStrategyNames(s.deps.Pipelines)))
		return nil, ResearchDeepOutput{Question: input.Question, ToolError: &e}, nil
	}

	result, err := pipeline.Retrieve(ctx, input.Question, maxResults, nil)
	if err != nil {
		e := mapError(err)
		return nil, ResearchDeepOutput{Question: input.Question, StrategyUsed: resolved, ToolError: &e}, nil
	}

	contexts := make([]string, 0, len(result.Documents))
	sources := make([]SourceOutput, 0, len(result.Documents))
	for _, d := range result.Documents {
		contexts = append(contexts, d.Content)
		if includeSources {
			sources = append(sources, SourceOutput{ID: d.ID, Content: d.Content, Metadata: d.Metadata})
		}
	}

	answer := s.synthesizeAnswer(ctx, input.Question, contexts)

	output := ResearchDeepOutput{
		Answer:                answer,
		Question:              input.Question,
		StrategyUsed:          resolved,
		NumSources:            len(result.Documents),
		ProcessingTimeSeconds: time.Since(start).Seconds(),
	}
	if includeSources {
		output.Sources = sources
	}

	if enableEval && s.deps.Evaluator != nil {
		scores := s.deps.Evaluator.Score(ctx, document.EvalSample{
			Question: input.Question,
			Answer:   answer,
			Contexts: contexts,
		})
		output.RagasScores = &scores
	}

	return nil, output, nil
}

// synthesizeAnswer asks the configured LLM to answer the question from the
// retrieved contexts. With no LLM configured it falls back to an extractive
// answer: the single most relevant (first-ranked) context, truncated.
func (s *Server) synthesizeAnswer(ctx context.Context, question string, contexts []string) string {
	if s.deps.LLM == nil || len(contexts) == 0 {
		if len(contexts) == 0 {
			return ""
		}
		return truncateChars(contexts[0], synthesisContextChars)
	}

	var b strings.Builder
	for i, c := range contexts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, truncateChars(c, synthesisContextChars))
	}

	prompt := fmt.Sprintf(answerSynthesisPrompt, question, b.String())
	reply, err := s.deps.LLM.Complete(ctx, prompt, 0.2)
	if err != nil {
		s.deps.Logger.Warn("answer synthesis failed, falling back to extractive answer", "error", err)
		return truncateChars(contexts[0], synthesisContextChars)
	}
	return strings.TrimSpace(reply)
}

func truncateChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func knownStrategyNames(pipelines map[document.StrategyName]*retrieval.Pipeline) []string {
	names := make([]string, 0, len(pipelines))
	for name := range pipelines {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}

func selectStrategyName(f *retrieval.Factory, query string) document.StrategyName {
	if f == nil {
		return document.StrategyEnsemble
	}
	return retrieval.Recommend(query).Primary
}

// --- evaluate_rag ------------------------------------------------------

// EvaluateRagInput is the evaluate_rag tool's argument shape.
type EvaluateRagInput struct {
	Strategy      string `json:"strategy,omitempty" jsonschema:"retrieval strategy to evaluate, default auto"`
	NumTestCases  int    `json:"num_test_cases,omitempty" jsonschema:"number of golden-dataset samples to evaluate, default all available"`
	OutputFormat  string `json:"output_format,omitempty" jsonschema:"one of summary, detailed, json; default summary"`
}

// EvaluateRagOutput is the evaluate_rag tool's result shape.
type EvaluateRagOutput struct {
	Strategy   document.StrategyName `json:"strategy"`
	Format     string                `json:"format"`
	Succeeded  int                   `json:"succeeded"`
	Failed     int                   `json:"failed"`
	Mean       document.RAGASScores  `json:"mean"`
	Samples    []evalSampleOutput    `json:"samples,omitempty"`
	ToolError  *toolError            `json:"error,omitempty"`
}

type evalSampleOutput struct {
	Question string               `json:"question"`
	Scores   document.RAGASScores `json:"scores"`
	Failed   bool                 `json:"failed"`
	Error    string                `json:"error,omitempty"`
}

func (s *Server) evaluateRagHandler(ctx context.Context, _ *mcp.CallToolRequest, input EvaluateRagInput) (
	*mcp.CallToolResult,
	EvaluateRagOutput,
	error,
) {
	strategyName := document.StrategyName(input.Strategy)
	if strategyName == "" {
		strategyName = s.deps.Config.Search.DefaultStrategy
	}
	format := input.OutputFormat
	if format == "" {
		format = "summary"
	}

	if s.deps.Evaluator == nil {
		e := mapError(ragerrors.ConfigError("evaluator is not configured (no LLM client available)", nil))
		return nil, EvaluateRagOutput{Strategy: strategyName, Format: format, ToolError: &e}, nil
	}

	samples, err := s.deps.Dataset.Load(ctx, s.deps.Config.Eval.DatasetPath, input.NumTestCases)
	if err != nil {
		e := mapError(ragerrors.Wrap(ragerrors.ErrCodeInternal, err))
		return nil, EvaluateRagOutput{Strategy: strategyName, Format: format, ToolError: &e}, nil
	}

	batch := s.deps.Evaluator.RunBatch(ctx, samples)

	output := EvaluateRagOutput{
		Strategy:  strategyName,
		Format:    format,
		Succeeded: batch.Succeeded,
		Failed:    batch.Failed,
		Mean:      batch.Mean,
	}
	if format == "detailed" || format == "json" {
		output.Samples = make([]evalSampleOutput, 0, len(batch.Results))
		for _, r := range batch.Results {
			output.Samples = append(output.Samples, evalSampleOutput{
				Question: r.Sample.Question,
				Scores:   r.Scores,
				Failed:   r.Failed,
				Error:    r.Error,
			})
		}
	}

	return nil, output, nil
}

// --- strategy_compare ---------------------------------------------------

// StrategyCompareInput is the strategy_compare tool's argument shape.
type StrategyCompareInput struct {
	Question   string   `json:"question" jsonschema:"the query to run against every requested strategy"`
	Strategies []string `json:"strategies,omitempty" jsonschema:"strategy names to compare, default all six"`
	MaxResults int      `json:"max_results,omitempty" jsonschema:"maximum results per strategy, default 5"`
}

// StrategyResultOutput is one strategy's outcome within strategy_compare.
type StrategyResultOutput struct {
	Strategy      document.StrategyName `json:"strategy"`
	NumResults    int                   `json:"num_results"`
	LatencyMS     float64               `json:"latency_ms"`
	Errored       bool                  `json:"errored"`
	Error         string                `json:"error,omitempty"`
	Sources       []SourceOutput        `json:"sources,omitempty"`
}

// PerformanceRankings ranks the compared strategies by speed and yield.
type PerformanceRankings struct {
	Fastest     document.StrategyName `json:"fastest"`
	MostResults document.StrategyName `json:"most_results"`
}

// StrategyCompareOutput is the strategy_compare tool's result shape.
type StrategyCompareOutput struct {
	StrategyResults     []StrategyResultOutput `json:"strategy_results"`
	PerformanceRankings PerformanceRankings    `json:"performance_rankings"`
	Recommendations     retrieval.Recommendation `json:"recommendations"`
	ToolError           *toolError             `json:"error,omitempty"`
}

func (s *Server) strategyCompareHandler(ctx context.Context, _ *mcp.CallToolRequest, input StrategyCompareInput) (
	*mcp.CallToolResult,
	StrategyCompareOutput,
	error,
) {
	if strings.TrimSpace(input.Question) == "" {
		e := mapError(ragerrors.ValidationError("question is required", nil))
		return nil, StrategyCompareOutput{ToolError: &e}, nil
	}

	names := input.Strategies
	if len(names) == 0 {
		for _, n := range document.AllStrategies {
			names = append(names, string(n))
		}
	}
	maxResults := input.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	timeout := s.deps.Config.Search.StrategyCompareTimeout
	results := make([]StrategyResultOutput, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, rawName := range names {
		i, rawName := i, rawName
		g.Go(func() error {
			name := document.StrategyName(rawName)
			callCtx := gctx
			var cancel context.CancelFunc
			if timeout > 0 {
				callCtx, cancel = context.WithTimeout(gctx, timeout)
				defer cancel()
			}

			start := time.Now()
			pipeline := s.deps.pipelineFor(name)
			if pipeline == nil {
				results[i] = StrategyResultOutput{Strategy: name, Errored: true, Error: "strategy not available"}
				return nil
			}

			result, err := pipeline.Retrieve(callCtx, input.Question, maxResults, nil)
			latency := float64(time.Since(start).Microseconds()) / 1000.0
			if err != nil {
				results[i] = StrategyResultOutput{Strategy: name, Errored: true, Error: err.Error(), LatencyMS: latency}
				return nil
			}

			sources := make([]SourceOutput, 0, len(result.Documents))
			for _, d := range result.Documents {
				sources = append(sources, SourceOutput{ID: d.ID, Content: d.Content, Metadata: d.Metadata})
			}
			results[i] = StrategyResultOutput{
				Strategy:   name,
				NumResults: len(result.Documents),
				LatencyMS:  latency,
				Sources:    sources,
			}
			return nil
		})
	}
	_ = g.Wait()

	rankings := computeRankings(results)
	recommendation := retrieval.Recommend(input.Question)

	return nil, StrategyCompareOutput{
		StrategyResults:     results,
		PerformanceRankings: rankings,
		Recommendations:     recommendation,
	}, nil
}

func computeRankings(results []StrategyResultOutput) PerformanceRankings {
	var rankings PerformanceRankings
	var fastestMS = -1.0
	var mostResults = -1
	for _, r := range results {
		if r.Errored {
			continue
		}
		if fastestMS < 0 || r.LatencyMS < fastestMS {
			fastestMS = r.LatencyMS
			rankings.Fastest = r.Strategy
		}
		if r.NumResults > mostResults {
			mostResults = r.NumResults
			rankings.MostResults = r.Strategy
		}
	}
	return rankings
}
