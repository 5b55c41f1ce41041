package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/errcode"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/pkg/response"
	"github.com/xxxsen/docqa/internal/service"
)

type QueryHandler struct {
	query *service.QueryService
}

func NewQueryHandler(query *service.QueryService) *QueryHandler {
	return &QueryHandler{query: query}
}

type queryRequest struct {
	Question string                   `json:"question"`
	History  []model.QueryHistoryItem `json:"history"`
	TopK     int                      `json:"top_k"`
	Stream   bool                     `json:"stream"`
}

func (h *QueryHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	serviceReq := &service.QueryRequest{
		Text:    req.Question,
		History: req.History,
		TopK:    req.TopK,
	}
	if req.Stream {
		h.stream(c, serviceReq)
		return
	}
	answer, err := h.query.Query(c.Request.Context(), serviceReq)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, answer)
}

// stream answers over server-sent events: one meta event carrying the
// attributions, then delta events until done. Errors after the stream
// has started arrive as an error event since the status is already out.
func (h *QueryHandler) stream(c *gin.Context, req *service.QueryRequest) {
	answer, cancel, err := h.query.QueryStream(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.SSEvent("meta", gin.H{
		"attributions": answer.Attributions,
		"no_match":     answer.NoMatch,
	})
	c.Writer.Flush()

	for delta := range answer.Deltas {
		if delta.Err != nil {
			c.SSEvent("error", gin.H{
				"kind":    appErr.Kind(delta.Err),
				"message": delta.Err.Error(),
			})
			c.Writer.Flush()
			return
		}
		c.SSEvent("delta", gin.H{"text": delta.Text})
		c.Writer.Flush()
	}
	c.SSEvent("done", gin.H{})
	c.Writer.Flush()
}
