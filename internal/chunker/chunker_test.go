package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/model"
)

func TestChunkWindowsAndOverlap(t *testing.T) {
	c := New(10, 3)
	pages := []*model.Page{{Index: 1, Text: "abcdefghijklmnopqrst"}}

	nodes := c.Chunk("doc1", pages)
	require.Len(t, nodes, 3)
	require.Equal(t, "doc1:0", nodes[0].ID)
	require.Equal(t, "doc1:1", nodes[1].ID)
	require.Equal(t, "doc1:2", nodes[2].ID)
	require.Equal(t, "abcdefghij", nodes[0].Text)
	require.Equal(t, "hijklmnopq", nodes[1].Text)
	require.Equal(t, "opqrst", nodes[2].Text)
	for i, node := range nodes {
		require.Equal(t, i, node.Position)
		require.Equal(t, "doc1", node.DocumentID)
	}
}

func TestChunkDeterministic(t *testing.T) {
	c := New(32, 8)
	pages := []*model.Page{
		{Index: 1, Text: strings.Repeat("alpha beta gamma ", 10)},
		{Index: 2, Text: strings.Repeat("delta epsilon ", 12)},
	}

	first := c.Chunk("doc1", pages)
	second := c.Chunk("doc1", pages)
	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Equal(t, first[i].ID, second[i].ID)
		require.Equal(t, first[i].Text, second[i].Text)
		require.Equal(t, first[i].PageStart, second[i].PageStart)
		require.Equal(t, first[i].PageEnd, second[i].PageEnd)
	}
}

func TestChunkPageRanges(t *testing.T) {
	c := New(8, 0)
	pages := []*model.Page{
		{Index: 1, Text: "aaaaa"},
		{Index: 2, Text: "bbbbb"},
	}

	// Concatenated: "aaaaa\n\nbbbbb" (12 runes), windows [0,8) and [8,12).
	nodes := c.Chunk("doc1", pages)
	require.Len(t, nodes, 2)
	require.Equal(t, 1, nodes[0].PageStart)
	require.Equal(t, 2, nodes[0].PageEnd)
	require.Equal(t, 2, nodes[1].PageStart)
	require.Equal(t, 2, nodes[1].PageEnd)
}

func TestChunkSkipsEmptyPages(t *testing.T) {
	c := New(100, 0)
	pages := []*model.Page{
		{Index: 1, Text: "  \n "},
		{Index: 2, Text: "content"},
	}

	nodes := c.Chunk("doc1", pages)
	require.Len(t, nodes, 1)
	require.Equal(t, "content", nodes[0].Text)
	require.Equal(t, 2, nodes[0].PageStart)
}

func TestChunkEmptyInput(t *testing.T) {
	c := New(100, 0)
	require.Nil(t, c.Chunk("doc1", nil))
	require.Nil(t, c.Chunk("doc1", []*model.Page{{Index: 1, Text: "   "}}))
}

func TestChunkDegradedMetadata(t *testing.T) {
	c := New(5, 0)
	pages := []*model.Page{{Index: 1, Text: "abcdefghij", Degraded: true}}

	nodes := c.Chunk("doc1", pages)
	require.Len(t, nodes, 2)
	for _, node := range nodes {
		require.Equal(t, "true", node.Metadata["degraded"])
	}
}

func TestChunkPrefersMarkdown(t *testing.T) {
	c := New(100, 0)
	pages := []*model.Page{{Index: 1, Text: "plain", Markdown: "# heading"}}

	nodes := c.Chunk("doc1", pages)
	require.Len(t, nodes, 1)
	require.Equal(t, "# heading", nodes[0].Text)
}

func TestNewClampsParameters(t *testing.T) {
	c := New(-1, -5)
	require.Equal(t, 1024, c.size)
	require.Equal(t, 0, c.overlap)

	c = New(5, 9)
	require.Equal(t, 4, c.overlap)
}
