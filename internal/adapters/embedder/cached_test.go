package embedder

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	embedCalls atomic.Int64
	batchCalls atomic.Int64
	dims       int
}

func newCountingEmbedder(dims int) *countingEmbedder {
	return &countingEmbedder{dims: dims}
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.embedCalls.Add(1)
	v := make([]float32, c.dims)
	for i := range v {
		v[i] = float32(len(text))
	}
	return v, nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchCalls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := c.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (c *countingEmbedder) Dimensions() int          { return c.dims }
func (c *countingEmbedder) ModelName() string        { return "counting-model" }
func (c *countingEmbedder) Available(_ context.Context) bool { return true }
func (c *countingEmbedder) Close() error             { return nil }

func TestCachedEmbedder_Embed_CachesRepeatedCalls(t *testing.T) {
	inner := newCountingEmbedder(8)
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "what is reciprocal rank fusion")
	require.NoError(t, err)
	_, err = cached.Embed(ctx, "what is reciprocal rank fusion")
	require.NoError(t, err)

	assert.Equal(t, int64(1), inner.embedCalls.Load())
}

func TestCachedEmbedder_Embed_DifferentTextsMiss(t *testing.T) {
	inner := newCountingEmbedder(8)
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "query one")
	require.NoError(t, err)
	_, err = cached.Embed(ctx, "query two")
	require.NoError(t, err)

	assert.Equal(t, int64(2), inner.embedCalls.Load())
}

func TestCachedEmbedder_EmbedBatch_OnlyFetchesUncached(t *testing.T) {
	inner := newCountingEmbedder(8)
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "alpha")
	require.NoError(t, err)

	results, err := cached.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, int64(1), inner.batchCalls.Load())
}

func TestCachedEmbedder_PassesThroughMetadata(t *testing.T) {
	inner := newCountingEmbedder(16)
	cached := NewCachedEmbedder(inner, 10)

	assert.Equal(t, 16, cached.Dimensions())
	assert.Equal(t, "counting-model", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
}
