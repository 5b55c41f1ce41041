package handler

import (
	"io"
	"mime/multipart"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/pkg/errcode"
	"github.com/xxxsen/docqa/internal/pkg/response"
	"github.com/xxxsen/docqa/internal/service"
)

const maxUploadBytes = 32 << 20

type DocumentHandler struct {
	ingest *service.IngestService
}

func NewDocumentHandler(ingest *service.IngestService) *DocumentHandler {
	return &DocumentHandler{ingest: ingest}
}

// readUpload pulls the multipart file plus its parse options out of the
// form. Shared by ingestion and parse-only.
func (h *DocumentHandler) readUpload(c *gin.Context) (*service.IngestInput, bool) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return nil, false
	}
	if file.Size > maxUploadBytes {
		response.Error(c, errcode.ErrInvalidFile, "file too large")
		return nil, false
	}
	data, err := readAll(file)
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to read file")
		return nil, false
	}
	input := &service.IngestInput{
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
		Strategy:    c.PostForm("strategy"),
		Instruction: c.PostForm("instruction"),
	}
	if value := c.PostForm("allow_fallback"); value != "" {
		allow, err := strconv.ParseBool(value)
		if err != nil {
			response.Error(c, errcode.ErrInvalid, "allow_fallback must be a boolean")
			return nil, false
		}
		input.AllowFallback = &allow
	}
	return input, true
}

func readAll(file *multipart.FileHeader) ([]byte, error) {
	opened, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer opened.Close()
	return io.ReadAll(io.LimitReader(opened, maxUploadBytes+1))
}

// Create ingests an uploaded document. With background=true it returns
// a pollable job instead of blocking on the pipeline.
func (h *DocumentHandler) Create(c *gin.Context) {
	input, ok := h.readUpload(c)
	if !ok {
		return
	}
	logutil.GetLogger(c.Request.Context()).Info("document upload",
		zap.String("client_id", getClientID(c)),
		zap.String("filename", input.Filename),
		zap.Int("size", len(input.Data)),
	)
	if background, _ := strconv.ParseBool(c.PostForm("background")); background {
		job, err := h.ingest.IngestAsync(c.Request.Context(), input)
		if err != nil {
			handleError(c, err)
			return
		}
		response.Success(c, gin.H{"job": job})
		return
	}
	result, err := h.ingest.Ingest(c.Request.Context(), input)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

// Parse extracts pages without touching the index.
func (h *DocumentHandler) Parse(c *gin.Context) {
	input, ok := h.readUpload(c)
	if !ok {
		return
	}
	pages, degraded, err := h.ingest.Parse(c.Request.Context(), input)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"pages": pages, "degraded": degraded})
}

func (h *DocumentHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	docs, err := h.ingest.ListDocuments(c.Request.Context(), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"documents": docs})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.ingest.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.ingest.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

func (h *DocumentHandler) Job(c *gin.Context) {
	job, err := h.ingest.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, job)
}
