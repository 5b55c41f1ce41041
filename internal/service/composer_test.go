package service

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

func composerHits() []*model.ScoredNode {
	return []*model.ScoredNode{
		{Node: &model.Node{ID: "d1:0", DocumentID: "d1", Text: "alpha facts", PageStart: 1, PageEnd: 2}, Score: 0.9},
		{Node: &model.Node{ID: "d1:1", DocumentID: "d1", Text: "beta facts", PageStart: 3, PageEnd: 3}, Score: 0.5},
	}
}

func TestBuildPrompt(t *testing.T) {
	c := NewComposer(&fakeGenerator{}, 0)
	history := []model.QueryHistoryItem{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}

	prompt := c.buildPrompt("what is alpha", history, composerHits())
	require.Contains(t, prompt, "[source 1] document=d1 pages=1-2")
	require.Contains(t, prompt, "[source 2] document=d1 pages=3-3")
	require.Contains(t, prompt, "alpha facts")
	require.Contains(t, prompt, "User: earlier question")
	require.Contains(t, prompt, "Assistant: earlier answer")
	require.True(t, strings.HasSuffix(prompt, "what is alpha"))
	require.Less(t, strings.Index(prompt, "alpha facts"), strings.Index(prompt, "QUESTION:"))
}

func TestBuildPromptTruncation(t *testing.T) {
	c := NewComposer(&fakeGenerator{}, 64)
	prompt := c.buildPrompt("q", nil, composerHits())
	require.Len(t, prompt, 64)
}

func TestBuildPromptTruncationMultiByte(t *testing.T) {
	c := NewComposer(&fakeGenerator{}, 200)
	hits := []*model.ScoredNode{
		{Node: &model.Node{ID: "d1:0", DocumentID: "d1", Text: strings.Repeat("日本語テキスト", 50), PageStart: 1, PageEnd: 1}, Score: 0.9},
	}

	prompt := c.buildPrompt("質問", nil, hits)
	require.Equal(t, 200, utf8.RuneCountInString(prompt))
	require.True(t, utf8.ValidString(prompt))
}

func TestComposeStreamDeadlineTerminalDelta(t *testing.T) {
	c := NewComposer(&fakeGenerator{endless: true}, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	deltas, err := c.ComposeStream(ctx, "q", nil, composerHits())
	require.NoError(t, err)

	var last model.Delta
	for delta := range deltas {
		last = delta
	}
	require.ErrorIs(t, last.Err, appErr.ErrTimeout)
}

func TestComposeStreamCancelClosesSilently(t *testing.T) {
	c := NewComposer(&fakeGenerator{endless: true}, 0)
	ctx, cancel := context.WithCancel(context.Background())

	deltas, err := c.ComposeStream(ctx, "q", nil, composerHits())
	require.NoError(t, err)

	first := <-deltas
	require.NoError(t, first.Err)
	cancel()

	for delta := range deltas {
		require.NoError(t, delta.Err)
	}
}

func TestComposeEmptyResponse(t *testing.T) {
	c := NewComposer(&fakeGenerator{text: "   "}, 0)
	_, err := c.Compose(context.Background(), "q", nil, composerHits())
	require.ErrorIs(t, err, appErr.ErrGeneration)
}

func TestComposeTrimsResponse(t *testing.T) {
	c := NewComposer(&fakeGenerator{text: "  answer \n"}, 0)
	text, err := c.Compose(context.Background(), "q", nil, composerHits())
	require.NoError(t, err)
	require.Equal(t, "answer", text)
}
