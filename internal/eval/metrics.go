// Package eval implements the reference-free RAGAS-style quality evaluator
// (C5): four LLM-rubric prompts scored in [0,1], and a batch harness that
// runs them over a golden dataset.
package eval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aman-cerp/ragmcp/internal/adapters/llm"
	"github.com/aman-cerp/ragmcp/internal/document"
)

// fallbackScore substitutes for any metric whose LLM call or parse fails,
// per §4.8: "On parse or call failure, substitute 0.5 and continue."
const fallbackScore = 0.5

const answerRelevancyPrompt = `On a scale of 0 to 1, how well does the following answer address the question asked? Reply with only a decimal number.

Question: %s
Answer: %s`

const contextPrecisionPrompt = `On a scale of 0 to 1, how relevant are the following retrieved contexts to the question? Reply with only a decimal number.

Question: %s
Contexts:
%s`

const contextRecallPrompt = `On a scale of 0 to 1, how completely do the following contexts cover what is needed to produce the answer%s? Reply with only a decimal number.

Contexts:
%s
%s`

const faithfulnessPrompt = `On a scale of 0 to 1, is the following answer fully grounded in the given contexts, with no unsupported claims? Reply with only a decimal number.

Answer: %s
Contexts:
%s`

// Evaluator scores (question, answer, contexts) triples against an LLM.
type Evaluator struct {
	client llm.Client
}

// NewEvaluator builds an Evaluator backed by client.
func NewEvaluator(client llm.Client) *Evaluator {
	return &Evaluator{client: client}
}

// Score runs all four RAGAS-style prompts against sample and returns the
// aggregated scores, including OverallScore.
func (e *Evaluator) Score(ctx context.Context, sample document.EvalSample) document.RAGASScores {
	contexts := joinContexts(sample.Contexts)

	scores := document.RAGASScores{
		AnswerRelevancy:  e.scoreOne(ctx, fmt.Sprintf(answerRelevancyPrompt, sample.Question, sample.Answer)),
		ContextPrecision: e.scoreOne(ctx, fmt.Sprintf(contextPrecisionPrompt, sample.Question, contexts)),
		ContextRecall:    e.scoreOne(ctx, recallPrompt(sample, contexts)),
		Faithfulness:     e.scoreOne(ctx, fmt.Sprintf(faithfulnessPrompt, sample.Answer, contexts)),
	}
	return scores.Mean()
}

func recallPrompt(sample document.EvalSample, contexts string) string {
	target := sample.Answer
	suffix := ""
	if sample.GroundTruth != "" {
		target = sample.GroundTruth
		suffix = " (ground truth)"
	}
	return fmt.Sprintf(contextRecallPrompt, suffix, contexts, target)
}

func (e *Evaluator) scoreOne(ctx context.Context, prompt string) float64 {
	reply, err := e.client.Complete(ctx, prompt, 0.1)
	if err != nil {
		return fallbackScore
	}
	score, ok := parseScore(reply)
	if !ok {
		return fallbackScore
	}
	return score
}

// parseScore extracts the first whitespace-separated token from reply,
// normalizes a comma decimal separator to a dot, and clamps to [0,1].
func parseScore(reply string) (float64, bool) {
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return 0, false
	}
	token := strings.ReplaceAll(fields[0], ",", ".")
	token = strings.TrimRight(token, ".,;")
	value, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	return value, true
}

func joinContexts(contexts []string) string {
	var b strings.Builder
	for i, c := range contexts {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(c)
	}
	return b.String()
}
