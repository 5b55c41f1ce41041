package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/pkg/retry"
	"github.com/xxxsen/docqa/internal/vectorstore"
)

const queryRetryBaseDelay = 300 * time.Millisecond

// QueryRequest is one question against the index. TopK zero means the
// configured default.
type QueryRequest struct {
	Text    string
	History []model.QueryHistoryItem
	TopK    int
}

// StreamAnswer is a streaming query result: attributions are known up
// front, the text arrives as deltas. Cancel the request context to stop
// the stream.
type StreamAnswer struct {
	Attributions []model.Attribution
	NoMatch      bool
	Deltas       <-chan model.Delta
}

type QueryServiceConfig struct {
	Timeout       time.Duration
	DefaultTopK   int
	MaxTopK       int
	RetryAttempts int
}

// QueryService drives embed -> retrieve -> compose under one
// end-to-end timeout. Queries share nothing but the vector store and
// never block each other.
type QueryService struct {
	embedder ai.IEmbedder
	store    vectorstore.Store
	composer *Composer
	cfg      QueryServiceConfig
}

func NewQueryService(embedder ai.IEmbedder, store vectorstore.Store, composer *Composer, cfg QueryServiceConfig) *QueryService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = 50
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	return &QueryService{embedder: embedder, store: store, composer: composer, cfg: cfg}
}

func (s *QueryService) Query(ctx context.Context, req *QueryRequest) (*model.Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	hits, err := s.retrieve(ctx, req)
	if err != nil {
		return nil, s.mapTimeout(ctx, err)
	}
	if len(hits) == 0 {
		return &model.Answer{NoMatch: true}, nil
	}
	text, err := s.composer.Compose(ctx, req.Text, req.History, hits)
	if err != nil {
		return nil, s.mapTimeout(ctx, err)
	}
	return &model.Answer{
		Text:         text,
		Attributions: attributionsOf(hits),
	}, nil
}

// QueryStream resolves retrieval synchronously and streams generation.
// The timeout covers the whole request including the stream; the
// returned cancel must be called when the consumer is done.
func (s *QueryService) QueryStream(ctx context.Context, req *QueryRequest) (*StreamAnswer, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)

	hits, err := s.retrieve(ctx, req)
	if err != nil {
		cancel()
		return nil, nil, s.mapTimeout(ctx, err)
	}
	if len(hits) == 0 {
		closed := make(chan model.Delta)
		close(closed)
		cancel()
		return &StreamAnswer{NoMatch: true, Deltas: closed}, func() {}, nil
	}
	deltas, err := s.composer.ComposeStream(ctx, req.Text, req.History, hits)
	if err != nil {
		cancel()
		return nil, nil, s.mapTimeout(ctx, err)
	}
	return &StreamAnswer{
		Attributions: attributionsOf(hits),
		Deltas:       deltas,
	}, cancel, nil
}

func (s *QueryService) retrieve(ctx context.Context, req *QueryRequest) ([]*model.ScoredNode, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("%w: query text is required", appErr.ErrInvalid)
	}
	if req.TopK < 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", appErr.ErrInvalid)
	}
	topK := req.TopK
	if topK == 0 {
		topK = s.cfg.DefaultTopK
	}
	if topK > s.cfg.MaxTopK {
		topK = s.cfg.MaxTopK
	}

	var embedding []float32
	err := retry.Do(ctx, s.cfg.RetryAttempts, queryRetryBaseDelay, func(ctx context.Context) error {
		var embedErr error
		embedding, embedErr = s.embedder.Embed(ctx, req.Text, "RETRIEVAL_QUERY")
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", appErr.ErrEmbedding, err)
	}

	hits, err := s.store.Search(ctx, embedding, topK)
	if err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Debug("retrieval done", zap.Int("top_k", topK), zap.Int("hits", len(hits)))
	return hits, nil
}

// mapTimeout converts deadline expiry into the dedicated timeout kind
// so callers can tell a slow pipeline from a broken one.
func (s *QueryService) mapTimeout(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: query exceeded %s", appErr.ErrTimeout, s.cfg.Timeout)
	}
	return err
}

func attributionsOf(hits []*model.ScoredNode) []model.Attribution {
	attributions := make([]model.Attribution, 0, len(hits))
	for _, hit := range hits {
		attributions = append(attributions, model.Attribution{
			NodeID:     hit.Node.ID,
			DocumentID: hit.Node.DocumentID,
			PageStart:  hit.Node.PageStart,
			PageEnd:    hit.Node.PageEnd,
			Score:      hit.Score,
		})
	}
	return attributions
}
