package extractor

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

// structuralExtractor decodes the document's native text layer. It is
// local and fast but degrades silently on tables, multi-column layouts
// and images, producing garbled or empty text rather than failing.
type structuralExtractor struct{}

func NewStructural() Extractor {
	return &structuralExtractor{}
}

func (e *structuralExtractor) Name() string {
	return StrategyStructural
}

func (e *structuralExtractor) Extract(ctx context.Context, in *Input) ([]*model.Page, error) {
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: empty document", appErr.ErrExtraction)
	}
	ext := strings.ToLower(filepath.Ext(in.Filename))
	if ext == ".pdf" || in.ContentType == "application/pdf" {
		return e.extractPDF(ctx, in)
	}
	switch ext {
	case "", ".txt", ".md", ".markdown":
		return e.extractText(in)
	default:
		return nil, fmt.Errorf("%w: unsupported file type: %s", appErr.ErrExtraction, ext)
	}
}

func (e *structuralExtractor) extractPDF(ctx context.Context, in *Input) ([]*model.Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(in.Data), int64(len(in.Data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", appErr.ErrExtraction, err)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("filename", in.Filename))
	totalPage := reader.NumPage()
	pages := make([]*model.Page, 0, totalPage)
	empty := 0
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			logger.Warn("null pdf page", zap.Int("page", pageIndex))
			pages = append(pages, &model.Page{Index: pageIndex})
			empty++
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Text-layer decode failures are a per-page degradation,
			// not a document failure.
			logger.Warn("pdf page decode failed", zap.Int("page", pageIndex), zap.Error(err))
			text = ""
		}
		text = strings.TrimSpace(text)
		if text == "" {
			empty++
		}
		pages = append(pages, &model.Page{Index: pageIndex, Text: text})
	}
	if len(pages) == 0 || empty == len(pages) {
		return nil, fmt.Errorf("%w: no text content extracted", appErr.ErrExtraction)
	}
	logger.Debug("structural extraction done", zap.Int("pages", len(pages)), zap.Int("empty_pages", empty))
	return pages, nil
}

// extractText treats plain text and markdown as a paginated document,
// splitting on form feeds the way pdftotext output does.
func (e *structuralExtractor) extractText(in *Input) ([]*model.Page, error) {
	raw := strings.ReplaceAll(string(in.Data), "\r\n", "\n")
	parts := strings.Split(raw, "\f")
	pages := make([]*model.Page, 0, len(parts))
	index := 0
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		index++
		pages = append(pages, &model.Page{Index: index, Text: part})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no text content extracted", appErr.ErrExtraction)
	}
	return pages, nil
}
