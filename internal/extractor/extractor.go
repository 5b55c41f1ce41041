package extractor

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

const (
	StrategyStructural = "structural"
	StrategySemantic   = "semantic"
)

// Input is a raw document handed to an extractor.
type Input struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Options selects the extraction strategy for one request.
// Instruction only applies to the semantic path. AllowFallback decides
// the policy when the semantic path is unusable: fall back to the
// structural path with a degraded tag, or fail with
// ErrStrategyUnavailable.
type Options struct {
	Strategy      string
	Instruction   string
	AllowFallback bool
}

// Extractor converts a document into an ordered sequence of pages.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, in *Input) ([]*model.Page, error)
}

// Selector routes a request to the chosen strategy and applies the
// fallback policy. Degraded output is always tagged on every page;
// silently degraded output is a defect.
type Selector struct {
	structural Extractor
	semantic   Extractor
}

func NewSelector(structural, semantic Extractor) *Selector {
	return &Selector{structural: structural, semantic: semantic}
}

func (s *Selector) Extract(ctx context.Context, in *Input, opts Options) ([]*model.Page, bool, error) {
	switch opts.Strategy {
	case "", StrategyStructural:
		pages, err := s.structural.Extract(ctx, in)
		return pages, false, err
	case StrategySemantic:
	default:
		return nil, false, fmt.Errorf("%w: unknown strategy: %s", appErr.ErrInvalid, opts.Strategy)
	}

	if s.semantic != nil {
		pages, err := s.semantic.Extract(ctx, in)
		if err == nil {
			return pages, false, nil
		}
		if !appErr.IsStrategyUnavailable(err) {
			return nil, false, err
		}
		if !opts.AllowFallback {
			return nil, false, err
		}
		logutil.GetLogger(ctx).Warn("semantic extraction unavailable, falling back to structural",
			zap.String("filename", in.Filename), zap.Error(err))
	} else if !opts.AllowFallback {
		return nil, false, fmt.Errorf("%w: semantic extractor not configured", appErr.ErrStrategyUnavailable)
	}

	pages, err := s.structural.Extract(ctx, in)
	if err != nil {
		return nil, false, err
	}
	for _, page := range pages {
		page.Degraded = true
	}
	return pages, true, nil
}
