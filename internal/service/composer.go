package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

const composePromptHeader = `You are a document question answering assistant.
Answer the question using ONLY the sources below.
- If the sources do not contain the answer, say you do not know.
- Use the same language as the question.
- Be concise and factual. Do not invent citations.`

// Composer builds one grounded prompt from the retrieved nodes and the
// user question, and drives the generative model.
type Composer struct {
	generator     ai.IGenerator
	maxInputChars int
}

func NewComposer(generator ai.IGenerator, maxInputChars int) *Composer {
	return &Composer{generator: generator, maxInputChars: maxInputChars}
}

func (c *Composer) buildPrompt(question string, history []model.QueryHistoryItem, hits []*model.ScoredNode) string {
	var sb strings.Builder
	sb.WriteString(composePromptHeader)
	sb.WriteString("\n\nSOURCES:\n")
	for i, hit := range hits {
		sb.WriteString(fmt.Sprintf("[source %d] document=%s pages=%d-%d\n",
			i+1, hit.Node.DocumentID, hit.Node.PageStart, hit.Node.PageEnd))
		sb.WriteString(strings.TrimSpace(hit.Node.Text))
		sb.WriteString("\n\n")
	}
	if len(history) > 0 {
		sb.WriteString("CONVERSATION SO FAR:\n")
		for _, item := range history {
			role := "User"
			if strings.EqualFold(item.Role, "assistant") {
				role = "Assistant"
			}
			sb.WriteString(role)
			sb.WriteString(": ")
			sb.WriteString(strings.TrimSpace(item.Content))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("QUESTION:\n")
	sb.WriteString(strings.TrimSpace(question))
	prompt := sb.String()
	if c.maxInputChars > 0 {
		if runes := []rune(prompt); len(runes) > c.maxInputChars {
			prompt = string(runes[:c.maxInputChars])
		}
	}
	return prompt
}

func (c *Composer) Compose(ctx context.Context, question string, history []model.QueryHistoryItem, hits []*model.ScoredNode) (string, error) {
	prompt := c.buildPrompt(question, history, hits)
	text, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", appErr.ErrGeneration, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty model response", appErr.ErrGeneration)
	}
	return text, nil
}

// ComposeStream returns a finite ordered sequence of text deltas. The
// channel closes after the terminal delta; a delta carrying an error is
// terminal and everything delivered before it stands. Cancelling ctx
// stops forwarding and propagates to the generation call.
func (c *Composer) ComposeStream(ctx context.Context, question string, history []model.QueryHistoryItem, hits []*model.ScoredNode) (<-chan model.Delta, error) {
	prompt := c.buildPrompt(question, history, hits)
	stream, err := c.generator.GenerateStream(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrGeneration, err)
	}
	out := make(chan model.Delta)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				c.flushDeadline(ctx, out)
				return
			case chunk, ok := <-stream:
				if !ok {
					return
				}
				delta := model.Delta{Text: chunk.Text}
				if chunk.Err != nil {
					delta = model.Delta{Err: fmt.Errorf("%w: %v", appErr.ErrGeneration, chunk.Err)}
				}
				select {
				case out <- delta:
				case <-ctx.Done():
					c.flushDeadline(ctx, out)
					return
				}
				if delta.Err != nil {
					return
				}
			}
		}
	}()
	return out, nil
}

// flushDeadline emits the terminal timeout delta when the stream dies
// to deadline expiry, so consumers can tell a cut-off answer from a
// completed one. Caller cancellation closes the channel silently.
func (c *Composer) flushDeadline(ctx context.Context, out chan<- model.Delta) {
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return
	}
	out <- model.Delta{Err: fmt.Errorf("%w: generation cut off by deadline", appErr.ErrTimeout)}
}
