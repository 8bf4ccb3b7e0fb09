package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/ragmcp/internal/document"
)

func TestParsePermutation_ExtractsIntegersToleratingPunctuation(t *testing.T) {
	perm := parsePermutation("2.\n1)\n3,", 3)
	assert.Equal(t, []int{1, 0, 2}, perm)
}

func TestParsePermutation_SkipsOutOfRangeAndDuplicates(t *testing.T) {
	perm := parsePermutation("5\n2\n2\n1", 3)
	assert.Equal(t, []int{1, 0, 2}, perm)
}

func TestParsePermutation_AppendsMissingIndicesAtEnd(t *testing.T) {
	perm := parsePermutation("2", 4)
	assert.Equal(t, []int{1, 0, 2, 3}, perm)
}

func TestRerankStrategy_Retrieve_ReordersByPermutation(t *testing.T) {
	base := &fakeStrategy{name: document.StrategyVector, docs: []document.Document{
		{ID: "a", Content: "first candidate"},
		{ID: "b", Content: "second candidate"},
		{ID: "c", Content: "third candidate"},
	}}
	llm := &stubLLM{reply: "3\n1\n2"}
	strategy := NewRerankStrategy(llm, base, 10)

	results, err := strategy.Retrieve(context.Background(), "query", 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{results[0].ID, results[1].ID, results[2].ID})
	assert.Equal(t, "3", results[0].Metadata[document.MetaRerankScore])
}

func TestRerankStrategy_Retrieve_FallsBackOnLLMFailure(t *testing.T) {
	base := &fakeStrategy{name: document.StrategyVector, docs: []document.Document{
		{ID: "a", Content: "first"},
		{ID: "b", Content: "second"},
	}}
	llm := &stubLLM{err: errors.New("llm down")}
	strategy := NewRerankStrategy(llm, base, 10)

	results, err := strategy.Retrieve(context.Background(), "query", 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, []string{results[0].ID, results[1].ID})
}

func TestRerankStrategy_Retrieve_SingleCandidateSkipsLLM(t *testing.T) {
	base := &fakeStrategy{name: document.StrategyVector, docs: []document.Document{
		{ID: "only", Content: "one candidate"},
	}}
	llm := &stubLLM{reply: "should not be used"}
	strategy := NewRerankStrategy(llm, base, 10)

	results, err := strategy.Retrieve(context.Background(), "query", 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "only", results[0].ID)
}

func TestRerankingExplanation_ReportsRankDeltas(t *testing.T) {
	original := []document.Document{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	reordered := []document.Document{{ID: "c"}, {ID: "a"}, {ID: "b"}}

	explanations := RerankingExplanation(original, reordered)
	require.Len(t, explanations, 3)
	assert.Equal(t, RerankExplanation{DocumentID: "c", OriginalRank: 3, NewRank: 1, ScoreDelta: 2}, explanations[0])
}
