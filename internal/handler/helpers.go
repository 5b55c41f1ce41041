package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/middleware"
	"github.com/xxxsen/docqa/internal/pkg/errcode"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/pkg/response"
)

func getClientID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextClientIDKey)
	clientID, _ := value.(string)
	return clientID
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get("request_id")
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("kind", appErr.Kind(err)),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, errcode.ErrTooMany, "too many requests")
	case errors.Is(err, appErr.ErrStrategyUnavailable):
		response.Error(c, errcode.ErrStrategyUnavailable, "semantic extraction unavailable")
	case errors.Is(err, appErr.ErrExtraction):
		response.Error(c, errcode.ErrExtractionFailed, "extraction failed")
	case errors.Is(err, appErr.ErrEmbedding), errors.Is(err, appErr.ErrStore):
		response.Error(c, errcode.ErrIngestFailed, "ingestion failed")
	case errors.Is(err, appErr.ErrTimeout):
		response.Error(c, errcode.ErrQueryTimeout, "query timeout")
	case errors.Is(err, appErr.ErrRateLimited):
		response.Error(c, errcode.ErrAIUnavailable, "model provider unavailable")
	case errors.Is(err, appErr.ErrRetrieval), errors.Is(err, appErr.ErrGeneration):
		response.Error(c, errcode.ErrQueryFailed, "query failed")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
