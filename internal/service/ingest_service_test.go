package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/extractor"
	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/vectorstore"
)

type fakePageSource struct {
	name  string
	pages []*model.Page
	err   error
}

func (f *fakePageSource) Name() string {
	return f.name
}

func (f *fakePageSource) Extract(ctx context.Context, in *extractor.Input) ([]*model.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	pages := make([]*model.Page, 0, len(f.pages))
	for _, page := range f.pages {
		clone := *page
		pages = append(pages, &clone)
	}
	return pages, nil
}

type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if vec, ok := f.vectors[text]; ok {
		return append([]float32(nil), vec...), nil
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) ModelName() string {
	return "fake-embed"
}

type memDocStore struct {
	mu   sync.Mutex
	docs map[string]*model.Document
}

func newMemDocStore() *memDocStore {
	return &memDocStore{docs: make(map[string]*model.Document)}
}

func (s *memDocStore) Save(ctx context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *doc
	s.docs[doc.ID] = &clone
	return nil
}

func (s *memDocStore) Get(ctx context.Context, id string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	clone := *doc
	return &clone, nil
}

func (s *memDocStore) List(ctx context.Context, limit, offset int) ([]*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Document
	for _, doc := range s.docs {
		clone := *doc
		out = append(out, &clone)
	}
	return out, nil
}

func (s *memDocStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return appErr.ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]*model.IngestJob
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]*model.IngestJob)}
}

func (s *memJobStore) Create(ctx context.Context, job *model.IngestJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *memJobStore) Update(ctx context.Context, job *model.IngestJob) error {
	return s.Create(ctx, job)
}

func (s *memJobStore) Get(ctx context.Context, id string) (*model.IngestJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	clone := *job
	return &clone, nil
}

type ingestFixture struct {
	service  *IngestService
	store    vectorstore.Store
	docs     *memDocStore
	jobs     *memJobStore
	embedder *fakeEmbedder
}

func newIngestFixture(t *testing.T, structural, semantic extractor.Extractor, allowFallback bool) *ingestFixture {
	store := vectorstore.NewMemory()
	require.NoError(t, store.Init(context.Background(), 3))
	docs := newMemDocStore()
	jobs := newMemJobStore()
	embedder := &fakeEmbedder{}
	service := NewIngestService(
		extractor.NewSelector(structural, semantic),
		embedder,
		store,
		docs,
		jobs,
		nil,
		IngestServiceConfig{ChunkSize: 2, ChunkOverlap: 0, AllowFallback: allowFallback},
	)
	return &ingestFixture{service: service, store: store, docs: docs, jobs: jobs, embedder: embedder}
}

func singlePageSource() *fakePageSource {
	return &fakePageSource{
		name:  extractor.StrategyStructural,
		pages: []*model.Page{{Index: 1, Text: "abcdefghij"}},
	}
}

func ingestInput() *IngestInput {
	return &IngestInput{Filename: "doc.txt", Data: []byte("document body")}
}

func TestIngestPipeline(t *testing.T) {
	fx := newIngestFixture(t, singlePageSource(), nil, true)
	input := ingestInput()

	result, err := fx.service.Ingest(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, documentID(input.Data), result.DocumentID)
	require.Equal(t, 1, result.PageCount)
	require.Equal(t, 5, result.NodeCount)
	require.False(t, result.Degraded)

	count, err := fx.store.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, count)

	doc, err := fx.service.GetDocument(context.Background(), result.DocumentID)
	require.NoError(t, err)
	require.Equal(t, 5, doc.NodeCount)
	require.Equal(t, "doc.txt", doc.Filename)
}

func TestIngestIdempotent(t *testing.T) {
	fx := newIngestFixture(t, singlePageSource(), nil, true)
	input := ingestInput()

	_, err := fx.service.Ingest(context.Background(), input)
	require.NoError(t, err)
	result, err := fx.service.Ingest(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, 5, result.NodeCount)

	count, err := fx.store.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, count)
}

func TestIngestFallbackDegraded(t *testing.T) {
	semantic := &fakePageSource{
		name: extractor.StrategySemantic,
		err:  fmt.Errorf("%w: quota", appErr.ErrStrategyUnavailable),
	}
	fx := newIngestFixture(t, singlePageSource(), semantic, true)
	input := ingestInput()
	input.Strategy = extractor.StrategySemantic

	result, err := fx.service.Ingest(context.Background(), input)
	require.NoError(t, err)
	require.True(t, result.Degraded)

	doc, err := fx.service.GetDocument(context.Background(), result.DocumentID)
	require.NoError(t, err)
	require.True(t, doc.Degraded)
}

func TestIngestFallbackDisabled(t *testing.T) {
	semantic := &fakePageSource{
		name: extractor.StrategySemantic,
		err:  fmt.Errorf("%w: quota", appErr.ErrStrategyUnavailable),
	}
	fx := newIngestFixture(t, singlePageSource(), semantic, true)
	input := ingestInput()
	input.Strategy = extractor.StrategySemantic
	disallow := false
	input.AllowFallback = &disallow

	_, err := fx.service.Ingest(context.Background(), input)
	require.ErrorIs(t, err, appErr.ErrStrategyUnavailable)

	count, err := fx.store.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestIngestEmbedFailure(t *testing.T) {
	fx := newIngestFixture(t, singlePageSource(), nil, true)
	fx.embedder.err = fmt.Errorf("%w: provider down", appErr.ErrEmbedding)

	_, err := fx.service.Ingest(context.Background(), ingestInput())
	require.ErrorIs(t, err, appErr.ErrEmbedding)

	count, err := fx.store.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestIngestEmptyInput(t *testing.T) {
	fx := newIngestFixture(t, singlePageSource(), nil, true)

	_, err := fx.service.Ingest(context.Background(), &IngestInput{Filename: "doc.txt"})
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestParseDoesNotIndex(t *testing.T) {
	fx := newIngestFixture(t, singlePageSource(), nil, true)

	pages, degraded, err := fx.service.Parse(context.Background(), ingestInput())
	require.NoError(t, err)
	require.False(t, degraded)
	require.Len(t, pages, 1)

	count, err := fx.store.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
	require.Zero(t, fx.embedder.calls)
}

func TestIngestAsync(t *testing.T) {
	fx := newIngestFixture(t, singlePageSource(), nil, true)

	job, err := fx.service.IngestAsync(context.Background(), ingestInput())
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	deadline := time.Now().Add(2 * time.Second)
	for {
		current, err := fx.service.GetJob(context.Background(), job.ID)
		require.NoError(t, err)
		if current.Status == model.IngestJobStatusDone {
			require.Equal(t, model.IngestStageStored, current.Stage)
			require.Equal(t, 5, current.NodeCount)
			break
		}
		require.True(t, time.Now().Before(deadline), "job did not finish: %+v", current)
		time.Sleep(10 * time.Millisecond)
	}
}

func TestIngestAsyncReturnedJobIsSnapshot(t *testing.T) {
	fx := newIngestFixture(t, singlePageSource(), nil, true)

	job, err := fx.service.IngestAsync(context.Background(), ingestInput())
	require.NoError(t, err)

	// The caller marshals the returned record while the pipeline runs;
	// it must stay readable and untouched by the background goroutine.
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := json.Marshal(job)
		require.NoError(t, err)
		current, err := fx.service.GetJob(context.Background(), job.ID)
		require.NoError(t, err)
		if current.Status == model.IngestJobStatusDone {
			break
		}
		require.True(t, time.Now().Before(deadline), "job did not finish: %+v", current)
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, model.IngestJobStatusPending, job.Status)
	require.Equal(t, model.IngestStageReceived, job.Stage)
}

func TestIngestAsyncFailureRecordsKind(t *testing.T) {
	structural := &fakePageSource{
		name: extractor.StrategyStructural,
		err:  fmt.Errorf("%w: corrupt file", appErr.ErrExtraction),
	}
	fx := newIngestFixture(t, structural, nil, true)

	job, err := fx.service.IngestAsync(context.Background(), ingestInput())
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for {
		current, err := fx.service.GetJob(context.Background(), job.ID)
		require.NoError(t, err)
		if current.Status == model.IngestJobStatusFailed {
			require.Equal(t, model.IngestStageFailed, current.Stage)
			require.Contains(t, current.Error, "extraction")
			break
		}
		require.True(t, time.Now().Before(deadline), "job did not fail: %+v", current)
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConcurrentIngestSameDocument(t *testing.T) {
	fx := newIngestFixture(t, singlePageSource(), nil, true)
	input := ingestInput()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.service.Ingest(context.Background(), input)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	count, err := fx.store.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, count)
}

// gatedPageSource blocks extraction of one specific payload until
// released, while serving every other payload immediately.
type gatedPageSource struct {
	pages   []*model.Page
	holdOn  string
	started chan struct{}
	release chan struct{}
}

func (g *gatedPageSource) Name() string {
	return extractor.StrategyStructural
}

func (g *gatedPageSource) Extract(ctx context.Context, in *extractor.Input) ([]*model.Page, error) {
	if string(in.Data) == g.holdOn {
		close(g.started)
		<-g.release
	}
	pages := make([]*model.Page, 0, len(g.pages))
	for _, page := range g.pages {
		clone := *page
		pages = append(pages, &clone)
	}
	return pages, nil
}

func TestConcurrentIngestDifferentDocuments(t *testing.T) {
	gate := &gatedPageSource{
		pages:   []*model.Page{{Index: 1, Text: "abcdefghij"}},
		holdOn:  "slow document",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	fx := newIngestFixture(t, gate, nil, true)

	slowDone := make(chan error, 1)
	go func() {
		_, err := fx.service.Ingest(context.Background(), &IngestInput{Filename: "slow.txt", Data: []byte("slow document")})
		slowDone <- err
	}()
	// The slow ingestion now holds its per-document lock inside
	// extraction; another document must still ingest to completion.
	<-gate.started

	fastDone := make(chan error, 1)
	go func() {
		_, err := fx.service.Ingest(context.Background(), &IngestInput{Filename: "fast.txt", Data: []byte("fast document")})
		fastDone <- err
	}()
	select {
	case err := <-fastDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second document blocked behind an unrelated ingestion")
	}

	close(gate.release)
	require.NoError(t, <-slowDone)

	count, err := fx.store.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, count)
}

func TestDeleteDocumentRemovesNodes(t *testing.T) {
	fx := newIngestFixture(t, singlePageSource(), nil, true)

	result, err := fx.service.Ingest(context.Background(), ingestInput())
	require.NoError(t, err)
	require.NoError(t, fx.service.DeleteDocument(context.Background(), result.DocumentID))

	count, err := fx.store.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)

	_, err = fx.service.GetDocument(context.Background(), result.DocumentID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}
