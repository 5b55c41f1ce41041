package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

const semanticPrompt = `You are a document parsing service.
Convert the attached document into clean markdown, page by page.
- Reproduce tables as markdown tables.
- Describe charts, diagrams and images in plain text.
- Keep headings and lists.
- Start every page with a line containing only: <!-- page: N -->
- Output ONLY the markdown.`

var pageMarkerRe = regexp.MustCompile(`(?m)^<!--\s*page:\s*(\d+)\s*-->\s*$`)

// semanticExtractor delegates to the Gemini document-understanding API
// and returns structure-aware markdown per page. Remote, slow, metered:
// quota and credential failures map to ErrStrategyUnavailable so the
// selector can apply the fallback policy.
type semanticExtractor struct {
	apiKey      string
	model       string
	instruction string
}

func NewSemantic(cfg config.SemanticConfig) Extractor {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	return &semanticExtractor{
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       modelName,
		instruction: cfg.Instruction,
	}
}

func (e *semanticExtractor) Name() string {
	return StrategySemantic
}

func (e *semanticExtractor) Extract(ctx context.Context, in *Input) ([]*model.Page, error) {
	if e.apiKey == "" {
		return nil, fmt.Errorf("%w: missing credential", appErr.ErrStrategyUnavailable)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  e.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, classifySemanticErr(err)
	}
	prompt := semanticPrompt
	if inst := strings.TrimSpace(e.instruction); inst != "" {
		prompt += "\nAdditional instruction: " + inst
	}
	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: mimeFor(in), Data: in.Data}},
		{Text: prompt},
	}
	resp, err := client.Models.GenerateContent(ctx, e.model, []*genai.Content{{Parts: parts}}, nil)
	if err != nil {
		return nil, classifySemanticErr(err)
	}
	pages := splitMarkdownPages(resp.Text())
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: empty parse result", appErr.ErrExtraction)
	}
	logutil.GetLogger(ctx).Debug("semantic extraction done",
		zap.String("filename", in.Filename), zap.Int("pages", len(pages)))
	return pages, nil
}

// splitMarkdownPages cuts the model output on page markers. Output
// without markers becomes a single page.
func splitMarkdownPages(markdown string) []*model.Page {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return nil
	}
	locs := pageMarkerRe.FindAllStringSubmatchIndex(markdown, -1)
	if len(locs) == 0 {
		return []*model.Page{newMarkdownPage(1, markdown)}
	}
	var pages []*model.Page
	for i, loc := range locs {
		end := len(markdown)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := strings.TrimSpace(markdown[loc[1]:end])
		if body == "" {
			continue
		}
		index, _ := strconv.Atoi(markdown[loc[2]:loc[3]])
		if index <= 0 {
			index = len(pages) + 1
		}
		pages = append(pages, newMarkdownPage(index, body))
	}
	return pages
}

func newMarkdownPage(index int, markdown string) *model.Page {
	tables, codes := countStructures(markdown)
	return &model.Page{
		Index:    index,
		Text:     plainText(markdown),
		Markdown: markdown,
		Tables:   tables,
		Codes:    codes,
	}
}

func mimeFor(in *Input) string {
	if in.ContentType != "" && in.ContentType != "application/octet-stream" {
		return in.ContentType
	}
	switch strings.ToLower(filepath.Ext(in.Filename)) {
	case ".pdf":
		return "application/pdf"
	case ".md", ".markdown":
		return "text/markdown"
	default:
		return "text/plain"
	}
}

func classifySemanticErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "RESOURCE_EXHAUSTED"), strings.Contains(msg, "quota"):
		return fmt.Errorf("%w: quota exhausted: %v", appErr.ErrStrategyUnavailable, err)
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"), strings.Contains(msg, "API key"), strings.Contains(msg, "PERMISSION_DENIED"):
		return fmt.Errorf("%w: credential rejected: %v", appErr.ErrStrategyUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", appErr.ErrExtraction, err)
	}
}
