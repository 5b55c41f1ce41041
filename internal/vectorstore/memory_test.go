package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

func newTestStore(t *testing.T) Store {
	store := NewMemory()
	require.NoError(t, store.Init(context.Background(), 3))
	return store
}

func testNode(id, docID string, position int, embedding []float32) *model.Node {
	return &model.Node{
		ID:         id,
		DocumentID: docID,
		Position:   position,
		Text:       "text " + id,
		PageStart:  1,
		PageEnd:    1,
		Embedding:  embedding,
	}
}

func TestMemoryReplaceDocumentIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	nodes := []*model.Node{
		testNode("d1:0", "d1", 0, []float32{1, 0, 0}),
		testNode("d1:1", "d1", 1, []float32{0, 1, 0}),
		testNode("d1:2", "d1", 2, []float32{0, 0, 1}),
		testNode("d1:3", "d1", 3, []float32{1, 1, 0}),
		testNode("d1:4", "d1", 4, []float32{0, 1, 1}),
	}
	require.NoError(t, store.ReplaceDocument(ctx, "d1", nodes))
	require.NoError(t, store.ReplaceDocument(ctx, "d1", nodes))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, count)
}

func TestMemorySearchOrdering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.ReplaceDocument(ctx, "d1", []*model.Node{
		testNode("d1:0", "d1", 0, []float32{1, 0, 0}),
		testNode("d1:1", "d1", 1, []float32{0.9, 0.1, 0}),
		testNode("d1:2", "d1", 2, []float32{0, 1, 0}),
	}))

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "d1:0", hits[0].Node.ID)
	require.Equal(t, "d1:1", hits[1].Node.ID)
	require.Greater(t, hits[0].Score, hits[1].Score)
}

func TestMemorySearchTieBreakByInsertion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// Identical embeddings score identically; insertion order decides.
	require.NoError(t, store.ReplaceDocument(ctx, "d1", []*model.Node{
		testNode("d1:0", "d1", 0, []float32{1, 0, 0}),
		testNode("d1:1", "d1", 1, []float32{1, 0, 0}),
	}))

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "d1:0", hits[0].Node.ID)
	require.Equal(t, "d1:1", hits[1].Node.ID)
}

func TestMemorySearchEmptyIndex(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestMemorySearchKLargerThanIndex(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.ReplaceDocument(ctx, "d1", []*model.Node{
		testNode("d1:0", "d1", 0, []float32{1, 0, 0}),
	}))

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestMemorySearchInvalidTopK(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Search(ctx, []float32{1, 0, 0}, 0)
	require.ErrorIs(t, err, appErr.ErrRetrieval)
}

func TestMemoryReplaceDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.ReplaceDocument(ctx, "d1", []*model.Node{
		testNode("d1:0", "d1", 0, []float32{1, 0}),
	})
	require.ErrorIs(t, err, appErr.ErrStore)
}

func TestMemoryDeleteDocument(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.ReplaceDocument(ctx, "d1", []*model.Node{
		testNode("d1:0", "d1", 0, []float32{1, 0, 0}),
	}))
	require.NoError(t, store.DeleteDocument(ctx, "d1"))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}
