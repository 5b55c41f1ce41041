package errors

import "errors"

// Pipeline error kinds. Failures wrap these with %w so the originating
// kind survives propagation through the orchestrators.
var (
	ErrExtraction          = errors.New("extraction failed")
	ErrStrategyUnavailable = errors.New("extraction strategy unavailable")
	ErrEmbedding           = errors.New("embedding failed")
	ErrStore               = errors.New("vector store failed")
	ErrRetrieval           = errors.New("retrieval failed")
	ErrGeneration          = errors.New("generation failed")
	ErrTimeout             = errors.New("query timeout")
	ErrRateLimited         = errors.New("rate limited")
)

// Service-surface errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrTooMany      = errors.New("too many requests")
	ErrInternal     = errors.New("internal")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsStrategyUnavailable(err error) bool {
	return errors.Is(err, ErrStrategyUnavailable)
}

func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Kind reports the pipeline error kind as a short stable string for
// job records and API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStrategyUnavailable):
		return "strategy_unavailable"
	case errors.Is(err, ErrExtraction):
		return "extraction"
	case errors.Is(err, ErrEmbedding):
		return "embedding"
	case errors.Is(err, ErrStore):
		return "store"
	case errors.Is(err, ErrRetrieval):
		return "retrieval"
	case errors.Is(err, ErrGeneration):
		return "generation"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal"
	}
}
