package service

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/chunker"
	"github.com/xxxsen/docqa/internal/extractor"
	"github.com/xxxsen/docqa/internal/filestore"
	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/pkg/retry"
	"github.com/xxxsen/docqa/internal/vectorstore"
)

const embedRetryBaseDelay = 500 * time.Millisecond

// DocumentStore persists document metadata.
type DocumentStore interface {
	Save(ctx context.Context, doc *model.Document) error
	Get(ctx context.Context, id string) (*model.Document, error)
	List(ctx context.Context, limit, offset int) ([]*model.Document, error)
	Delete(ctx context.Context, id string) error
}

// IngestJobStore persists background ingestion jobs.
type IngestJobStore interface {
	Create(ctx context.Context, job *model.IngestJob) error
	Update(ctx context.Context, job *model.IngestJob) error
	Get(ctx context.Context, id string) (*model.IngestJob, error)
}

// IngestInput is one document upload plus its parse options.
type IngestInput struct {
	Filename    string
	ContentType string
	Data        []byte
	Strategy    string
	Instruction string
	// AllowFallback overrides the configured fallback policy for the
	// semantic path; nil keeps the configured default.
	AllowFallback *bool
}

// IngestResult reports a completed ingestion.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	PageCount  int    `json:"page_count"`
	NodeCount  int    `json:"node_count"`
	Degraded   bool   `json:"degraded"`
}

type IngestServiceConfig struct {
	ChunkSize     int
	ChunkOverlap  int
	RetryAttempts int
	AllowFallback bool
}

// IngestService drives the ingestion pipeline: extract, chunk, embed,
// replace-and-store. Runs are serialized per document id and the final
// store step is atomic, so re-ingestion replaces instead of appending
// and a failure commits nothing.
type IngestService struct {
	selector *extractor.Selector
	chunker  *chunker.Chunker
	embedder ai.IEmbedder
	store    vectorstore.Store
	docs     DocumentStore
	jobs     IngestJobStore
	files    filestore.Store
	locks    *keyedMutex
	cfg      IngestServiceConfig
}

func NewIngestService(
	selector *extractor.Selector,
	embedder ai.IEmbedder,
	store vectorstore.Store,
	docs DocumentStore,
	jobs IngestJobStore,
	files filestore.Store,
	cfg IngestServiceConfig,
) *IngestService {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	return &IngestService{
		selector: selector,
		chunker:  chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder: embedder,
		store:    store,
		docs:     docs,
		jobs:     jobs,
		files:    files,
		locks:    newKeyedMutex(),
		cfg:      cfg,
	}
}

// Parse runs extraction only, with no indexing side effect.
func (s *IngestService) Parse(ctx context.Context, input *IngestInput) ([]*model.Page, bool, error) {
	if len(input.Data) == 0 {
		return nil, false, fmt.Errorf("%w: empty document", appErr.ErrInvalid)
	}
	return s.selector.Extract(ctx, &extractor.Input{
		Filename:    input.Filename,
		ContentType: input.ContentType,
		Data:        input.Data,
	}, s.extractOptions(input))
}

// Ingest runs the full pipeline synchronously and returns the terminal
// result. Re-ingesting the same bytes and options replaces the prior
// node set with an identical one.
func (s *IngestService) Ingest(ctx context.Context, input *IngestInput) (*IngestResult, error) {
	if len(input.Data) == 0 {
		return nil, fmt.Errorf("%w: empty document", appErr.ErrInvalid)
	}
	docID := documentID(input.Data)
	s.locks.Lock(docID)
	defer s.locks.Unlock(docID)
	return s.run(ctx, docID, input, nil)
}

// IngestAsync starts a backgrounded ingestion and returns the pollable
// job record. Ingestion is not cancellable mid-flight; callers observe
// the terminal state through the job.
func (s *IngestService) IngestAsync(ctx context.Context, input *IngestInput) (*model.IngestJob, error) {
	if len(input.Data) == 0 {
		return nil, fmt.Errorf("%w: empty document", appErr.ErrInvalid)
	}
	docID := documentID(input.Data)
	now := time.Now().UnixMilli()
	job := &model.IngestJob{
		ID:         newID(),
		DocumentID: docID,
		Filename:   input.Filename,
		Status:     model.IngestJobStatusPending,
		Stage:      model.IngestStageReceived,
		Ctime:      now,
		Mtime:      now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	// The goroutine mutates its own copy; the returned record is a
	// snapshot the caller can marshal while the job runs.
	running := *job
	go func() {
		job := &running
		bgCtx := context.Background()
		s.locks.Lock(docID)
		defer s.locks.Unlock(docID)
		job.Status = model.IngestJobStatusRunning
		s.updateJob(bgCtx, job)
		result, err := s.run(bgCtx, docID, input, job)
		if err != nil {
			job.Status = model.IngestJobStatusFailed
			job.Stage = model.IngestStageFailed
			job.Error = appErr.Kind(err) + ": " + err.Error()
		} else {
			job.Status = model.IngestJobStatusDone
			job.Stage = model.IngestStageStored
			job.NodeCount = result.NodeCount
			job.Degraded = result.Degraded
		}
		s.updateJob(bgCtx, job)
	}()
	return job, nil
}

// run executes the state machine. Transitions are strictly sequential
// and non-resumable; any failure goes straight to Failed with the
// originating error kind preserved.
func (s *IngestService) run(ctx context.Context, docID string, input *IngestInput, job *model.IngestJob) (*IngestResult, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("document_id", docID), zap.String("filename", input.Filename))
	logger.Info("ingestion started", zap.Int("size", len(input.Data)), zap.String("strategy", s.strategyOf(input)))

	s.setStage(ctx, job, model.IngestStageExtracting)
	pages, degraded, err := s.selector.Extract(ctx, &extractor.Input{
		Filename:    input.Filename,
		ContentType: input.ContentType,
		Data:        input.Data,
	}, s.extractOptions(input))
	if err != nil {
		logger.Error("extraction failed", zap.Error(err))
		return nil, err
	}

	s.setStage(ctx, job, model.IngestStageChunking)
	nodes := s.chunker.Chunk(docID, pages)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no indexable text", appErr.ErrExtraction)
	}
	logger.Debug("chunking done", zap.Int("pages", len(pages)), zap.Int("nodes", len(nodes)))

	s.setStage(ctx, job, model.IngestStageEmbedding)
	if err := s.embedNodes(ctx, nodes); err != nil {
		logger.Error("embedding failed", zap.Error(err))
		return nil, err
	}

	if err := s.store.ReplaceDocument(ctx, docID, nodes); err != nil {
		logger.Error("store failed", zap.Error(err))
		return nil, err
	}

	fileKey := docID + strings.ToLower(filepath.Ext(input.Filename))
	if err := s.saveOriginal(ctx, fileKey, input.Data); err != nil {
		// The index is already consistent; losing the original blob
		// only disables later re-parsing.
		logger.Warn("failed to store original upload", zap.Error(err))
		fileKey = ""
	}

	now := time.Now().UnixMilli()
	doc := &model.Document{
		ID:          docID,
		Filename:    input.Filename,
		ContentType: input.ContentType,
		Size:        int64(len(input.Data)),
		FileKey:     fileKey,
		Strategy:    s.strategyOf(input),
		Degraded:    degraded,
		PageCount:   len(pages),
		NodeCount:   len(nodes),
		State:       model.DocumentStateNormal,
		Ctime:       now,
		Mtime:       now,
	}
	if err := s.docs.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("%w: save document: %v", appErr.ErrStore, err)
	}
	s.setStage(ctx, job, model.IngestStageStored)
	logger.Info("ingestion stored", zap.Int("nodes", len(nodes)), zap.Bool("degraded", degraded))
	return &IngestResult{
		DocumentID: docID,
		PageCount:  len(pages),
		NodeCount:  len(nodes),
		Degraded:   degraded,
	}, nil
}

func (s *IngestService) embedNodes(ctx context.Context, nodes []*model.Node) error {
	for _, node := range nodes {
		var embedding []float32
		err := retry.Do(ctx, s.cfg.RetryAttempts, embedRetryBaseDelay, func(ctx context.Context) error {
			var embedErr error
			embedding, embedErr = s.embedder.Embed(ctx, node.Text, "RETRIEVAL_DOCUMENT")
			return embedErr
		})
		if err != nil {
			return fmt.Errorf("%w: node %s: %v", appErr.ErrEmbedding, node.ID, err)
		}
		if len(embedding) == 0 {
			return fmt.Errorf("%w: node %s: empty embedding", appErr.ErrEmbedding, node.ID)
		}
		node.Embedding = embedding
	}
	return nil
}

func (s *IngestService) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	return s.docs.Get(ctx, id)
}

func (s *IngestService) ListDocuments(ctx context.Context, limit, offset int) ([]*model.Document, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.docs.List(ctx, limit, offset)
}

// DeleteDocument removes the document's nodes, its metadata row and the
// stored original. Nodes go first so no query can attribute to a
// document that is gone.
func (s *IngestService) DeleteDocument(ctx context.Context, id string) error {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return err
	}
	s.locks.Lock(id)
	defer s.locks.Unlock(id)
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}
	if doc.FileKey != "" {
		if remover, ok := s.files.(filestore.Remover); ok {
			if err := remover.Remove(ctx, doc.FileKey); err != nil {
				logutil.GetLogger(ctx).Warn("failed to remove original upload", zap.String("key", doc.FileKey), zap.Error(err))
			}
		}
	}
	return nil
}

func (s *IngestService) GetJob(ctx context.Context, id string) (*model.IngestJob, error) {
	return s.jobs.Get(ctx, id)
}

func (s *IngestService) extractOptions(input *IngestInput) extractor.Options {
	allowFallback := s.cfg.AllowFallback
	if input.AllowFallback != nil {
		allowFallback = *input.AllowFallback
	}
	return extractor.Options{
		Strategy:      input.Strategy,
		Instruction:   input.Instruction,
		AllowFallback: allowFallback,
	}
}

func (s *IngestService) strategyOf(input *IngestInput) string {
	if input.Strategy == "" {
		return extractor.StrategyStructural
	}
	return input.Strategy
}

func (s *IngestService) setStage(ctx context.Context, job *model.IngestJob, stage string) {
	if job == nil {
		return
	}
	job.Stage = stage
	s.updateJob(ctx, job)
}

func (s *IngestService) updateJob(ctx context.Context, job *model.IngestJob) {
	job.Mtime = time.Now().UnixMilli()
	if err := s.jobs.Update(ctx, job); err != nil {
		logutil.GetLogger(ctx).Warn("failed to update ingest job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (s *IngestService) saveOriginal(ctx context.Context, key string, data []byte) error {
	if s.files == nil {
		return nil
	}
	reader := &byteFile{Reader: bytes.NewReader(data)}
	return s.files.Save(ctx, key, reader, int64(len(data)))
}

type byteFile struct {
	*bytes.Reader
}

func (b *byteFile) Close() error {
	return nil
}
