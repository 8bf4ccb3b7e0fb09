package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/ragmcp/internal/document"
)

func TestEnsembleStrategy_Retrieve_FusesAcrossSubStrategies(t *testing.T) {
	keyword := &fakeStrategy{name: document.StrategyKeyword, docs: []document.Document{
		{ID: "shared", Content: "appears in both lists"},
		{ID: "keyword-only", Content: "only the keyword strategy finds this"},
	}}
	vector := &fakeStrategy{name: document.StrategyVector, docs: []document.Document{
		{ID: "shared", Content: "appears in both lists"},
		{ID: "vector-only", Content: "only the vector strategy finds this"},
	}}

	ensemble := NewEnsembleStrategy(map[document.StrategyName]Strategy{
		document.StrategyKeyword: keyword,
		document.StrategyVector:  vector,
	})

	results, err := ensemble.Retrieve(context.Background(), "query", 3, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// "shared" surfaced by both strategies should rank first: higher RRF
	// score and more contributing strategies.
	assert.Equal(t, "shared", results[0].ID)
	assert.Contains(t, results[0].Metadata[document.MetaContributingStrategy], "keyword")
	assert.Contains(t, results[0].Metadata[document.MetaContributingStrategy], "vector")
	assert.NotEmpty(t, results[0].Metadata[document.MetaRRFScore])
}

func TestEnsembleStrategy_Retrieve_IsolatesFailingSubStrategy(t *testing.T) {
	ok := &fakeStrategy{name: document.StrategyKeyword, docs: []document.Document{
		{ID: "1", Content: "survives"},
	}}
	failing := &fakeStrategy{name: document.StrategyVector, err: errors.New("boom")}

	ensemble := NewEnsembleStrategy(map[document.StrategyName]Strategy{
		document.StrategyKeyword: ok,
		document.StrategyVector:  failing,
	})

	results, err := ensemble.Retrieve(context.Background(), "query", 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].ID)
}

func TestEnsembleStrategy_AddStrategy_TakesEffectOnNextRetrieve(t *testing.T) {
	ensemble := NewEnsembleStrategy(nil)

	results, err := ensemble.Retrieve(context.Background(), "query", 3, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	ensemble.AddStrategy(document.StrategyKeyword, &fakeStrategy{
		name: document.StrategyKeyword,
		docs: []document.Document{{ID: "new", Content: "now present"}},
	}, 2.0)

	results, err = ensemble.Retrieve(context.Background(), "query", 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].ID)
}

func TestEnsembleStrategy_RemoveStrategy_DropsContribution(t *testing.T) {
	keyword := &fakeStrategy{name: document.StrategyKeyword, docs: []document.Document{{ID: "1", Content: "x"}}}
	ensemble := NewEnsembleStrategy(map[document.StrategyName]Strategy{document.StrategyKeyword: keyword})

	ensemble.RemoveStrategy(document.StrategyKeyword)
	results, err := ensemble.Retrieve(context.Background(), "query", 3, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEnsembleStrategy_UpdateWeights_ChangesRanking(t *testing.T) {
	a := &fakeStrategy{name: document.StrategyKeyword, docs: []document.Document{{ID: "from-a", Content: "x"}}}
	b := &fakeStrategy{name: document.StrategyVector, docs: []document.Document{{ID: "from-b", Content: "y"}}}
	ensemble := NewEnsembleStrategy(map[document.StrategyName]Strategy{
		document.StrategyKeyword: a,
		document.StrategyVector:  b,
	})

	ensemble.UpdateWeights(map[document.StrategyName]float64{document.StrategyVector: 1000})

	results, err := ensemble.Retrieve(context.Background(), "query", 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "from-b", results[0].ID)
}
