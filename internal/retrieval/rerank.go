package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aman-cerp/ragmcp/internal/adapters/llm"
	"github.com/aman-cerp/ragmcp/internal/document"
)

// DefaultInitialK is the floor on how many base-strategy candidates are
// fetched before reranking, regardless of the caller's k.
const DefaultInitialK = 20

// rerankPromptTruncateChars is how much of each candidate's content is
// shown to the reranker, to keep the prompt bounded.
const rerankPromptTruncateChars = 500

const rerankPromptTemplate = `Rank the following candidate passages from most to least relevant to the query. Reply with the candidate numbers in order, most relevant first, one per line, and nothing else.

Query: %s

Candidates:
%s`

var integerRegex = regexp.MustCompile(`\d+`)

// RerankStrategy runs a base strategy at an inflated k, then asks an LLM to
// reorder the candidates by relevance. It falls back to the base ordering
// whenever the LLM is unavailable or its response can't be salvaged.
type RerankStrategy struct {
	llmClient llm.Client
	base      Strategy
	initialK  int
}

var _ Strategy = (*RerankStrategy)(nil)

// NewRerankStrategy builds a strategy that reranks base's results via
// client. initialK is the floor on candidates fetched before reranking;
// non-positive values fall back to DefaultInitialK.
func NewRerankStrategy(client llm.Client, base Strategy, initialK int) *RerankStrategy {
	if initialK <= 0 {
		initialK = DefaultInitialK
	}
	return &RerankStrategy{llmClient: client, base: base, initialK: initialK}
}

func (r *RerankStrategy) Name() document.StrategyName { return document.StrategyRerank }

func (r *RerankStrategy) Retrieve(ctx context.Context, query string, k int, params map[string]any) ([]document.Document, error) {
	fetchK := r.initialK
	if want := 2 * k; want > fetchK {
		fetchK = want
	}

	candidates, err := r.base.Retrieve(ctx, query, fetchK, params)
	if err != nil {
		return nil, err
	}
	if len(candidates) <= 1 {
		return truncate(candidates, k), nil
	}

	reply, err := r.llmClient.Complete(ctx, buildRerankPrompt(query, candidates), 0.0)
	if err != nil {
		return truncate(candidates, k), nil
	}

	permutation := parsePermutation(reply, len(candidates))
	reordered := make([]document.Document, len(candidates))
	for pos, idx := range permutation {
		score := len(candidates) - pos
		reordered[pos] = candidates[idx].WithMeta(document.MetaRerankScore, fmt.Sprintf("%d", score))
	}
	return truncate(reordered, k), nil
}

func truncate(docs []document.Document, k int) []document.Document {
	if len(docs) > k {
		return docs[:k]
	}
	return docs
}

func buildRerankPrompt(query string, candidates []document.Document) string {
	var b strings.Builder
	for i, d := range candidates {
		content := d.Content
		if len(content) > rerankPromptTruncateChars {
			content = content[:rerankPromptTruncateChars]
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, content)
	}
	return fmt.Sprintf(rerankPromptTemplate, query, b.String())
}

// parsePermutation leniently extracts a 0-based index permutation of
// length n from an LLM reply: integers are read in order (1-based in the
// reply), out-of-range or duplicate indices are skipped, and any indices
// never mentioned are appended at the end in their original order.
func parsePermutation(reply string, n int) []int {
	seen := make(map[int]bool, n)
	perm := make([]int, 0, n)

	for _, match := range integerRegex.FindAllString(reply, -1) {
		num, err := strconv.Atoi(match)
		if err != nil {
			continue
		}
		idx := num - 1
		if idx < 0 || idx >= n {
			continue
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		perm = append(perm, idx)
	}

	for i := 0; i < n; i++ {
		if !seen[i] {
			perm = append(perm, i)
		}
	}
	return perm
}

// RerankExplanation describes how a single document's rank changed during
// reranking.
type RerankExplanation struct {
	DocumentID  string
	OriginalRank int
	NewRank      int
	ScoreDelta   int
}

// RerankingExplanation compares original and result document order and
// returns a per-document rank/score delta trace. It is a debug helper; no
// MCP tool calls it.
func RerankingExplanation(original, result []document.Document) []RerankExplanation {
	originalRank := make(map[string]int, len(original))
	for i, d := range original {
		originalRank[d.ID] = i + 1
	}

	out := make([]RerankExplanation, 0, len(result))
	for newRank, d := range result {
		origRank, ok := originalRank[d.ID]
		if !ok {
			origRank = newRank + 1
		}
		out = append(out, RerankExplanation{
			DocumentID:   d.ID,
			OriginalRank: origRank,
			NewRank:      newRank + 1,
			ScoreDelta:   origRank - (newRank + 1),
		})
	}
	return out
}
