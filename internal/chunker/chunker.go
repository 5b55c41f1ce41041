package chunker

import (
	"strconv"
	"strings"

	"github.com/xxxsen/docqa/internal/model"
)

const pageSeparator = "\n\n"

// Chunker splits extracted pages into overlapping fixed-size windows of
// runes. Chunking is deterministic: identical pages and parameters
// always produce identical node boundaries, which is what makes
// re-ingestion idempotent.
type Chunker struct {
	size    int
	overlap int
}

// New clamps invalid parameters: size must be positive and overlap
// strictly less than size.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1024
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return &Chunker{size: size, overlap: overlap}
}

type pageSpan struct {
	index int
	start int
	end   int
}

// Chunk concatenates the page contents and cuts rune windows with the
// configured overlap. Every node keeps the 1-based page range it was
// cut from, for attribution.
func (c *Chunker) Chunk(documentID string, pages []*model.Page) []*model.Node {
	var sb strings.Builder
	var spans []pageSpan
	degraded := false
	offset := 0
	for _, page := range pages {
		content := strings.TrimSpace(page.Content())
		if content == "" {
			continue
		}
		if offset > 0 {
			sb.WriteString(pageSeparator)
			offset += len([]rune(pageSeparator))
		}
		runes := []rune(content)
		spans = append(spans, pageSpan{index: page.Index, start: offset, end: offset + len(runes)})
		sb.WriteString(content)
		offset += len(runes)
		if page.Degraded {
			degraded = true
		}
	}
	text := []rune(sb.String())
	if len(text) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var nodes []*model.Node
	for start := 0; start < len(text); start += step {
		end := start + c.size
		if end > len(text) {
			end = len(text)
		}
		position := len(nodes)
		node := &model.Node{
			ID:         documentID + ":" + strconv.Itoa(position),
			DocumentID: documentID,
			Position:   position,
			Text:       string(text[start:end]),
			PageStart:  pageAt(spans, start),
			PageEnd:    pageAt(spans, end-1),
		}
		if degraded {
			node.Metadata = map[string]string{"degraded": "true"}
		}
		nodes = append(nodes, node)
		if end == len(text) {
			break
		}
	}
	return nodes
}

// pageAt maps a rune offset back to the page it belongs to; offsets
// inside a page separator attribute to the preceding page.
func pageAt(spans []pageSpan, offset int) int {
	page := 0
	for _, span := range spans {
		if span.start > offset {
			break
		}
		page = span.index
	}
	return page
}
