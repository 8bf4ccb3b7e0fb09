package eval

import (
	"context"

	"github.com/aman-cerp/ragmcp/internal/document"
)

// SampleResult pairs one golden-dataset sample with its scores, or a
// failure reason if scoring the sample itself errored (distinct from a
// single metric falling back to 0.5, which is not a sample failure).
type SampleResult struct {
	Sample document.EvalSample
	Scores document.RAGASScores
	Failed bool
	Error  string
}

// BatchResult is the outcome of running Evaluator.Score over every sample
// in a golden dataset.
type BatchResult struct {
	Results   []SampleResult
	Succeeded int
	Failed    int
	Mean      document.RAGASScores
}

// RunBatch scores every sample and aggregates the result. An individual
// sample can only "fail" if ctx is canceled mid-run; LLM/parse failures
// within a sample degrade to the 0.5 fallback per metric and still count
// as succeeded, matching the evaluator's own fail-open behavior.
func (e *Evaluator) RunBatch(ctx context.Context, samples []document.EvalSample) BatchResult {
	result := BatchResult{Results: make([]SampleResult, 0, len(samples))}

	var sumRelevancy, sumPrecision, sumRecall, sumFaithfulness, sumOverall float64

	for _, sample := range samples {
		if err := ctx.Err(); err != nil {
			result.Results = append(result.Results, SampleResult{Sample: sample, Failed: true, Error: err.Error()})
			result.Failed++
			continue
		}

		scores := e.Score(ctx, sample)
		result.Results = append(result.Results, SampleResult{Sample: sample, Scores: scores})
		result.Succeeded++

		sumRelevancy += scores.AnswerRelevancy
		sumPrecision += scores.ContextPrecision
		sumRecall += scores.ContextRecall
		sumFaithfulness += scores.Faithfulness
		sumOverall += scores.OverallScore
	}

	if result.Succeeded > 0 {
		n := float64(result.Succeeded)
		result.Mean = document.RAGASScores{
			AnswerRelevancy:  sumRelevancy / n,
			ContextPrecision: sumPrecision / n,
			ContextRecall:    sumRecall / n,
			Faithfulness:     sumFaithfulness / n,
			OverallScore:     sumOverall / n,
		}
	}

	return result
}
