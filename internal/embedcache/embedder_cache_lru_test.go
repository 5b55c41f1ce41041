package embedcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.calls++
	return []float32{float32(len(text)), 1, 0}, nil
}

func (c *countingEmbedder) ModelName() string {
	return "counting"
}

func TestLruEmbedderCachesByContent(t *testing.T) {
	inner := &countingEmbedder{}
	embedder := WrapLruCacheToEmbedder(inner, 16, time.Minute)

	first, err := embedder.Embed(context.Background(), "hello", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	second, err := embedder.Embed(context.Background(), "hello", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, inner.calls)
}

func TestLruEmbedderTaskTypeIsPartOfKey(t *testing.T) {
	inner := &countingEmbedder{}
	embedder := WrapLruCacheToEmbedder(inner, 16, time.Minute)

	_, err := embedder.Embed(context.Background(), "hello", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	_, err = embedder.Embed(context.Background(), "hello", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestWrapDisabled(t *testing.T) {
	inner := &countingEmbedder{}
	require.Equal(t, inner, WrapLruCacheToEmbedder(inner, 0, time.Minute))
	require.Nil(t, WrapLruCacheToEmbedder(nil, 16, time.Minute))
}
