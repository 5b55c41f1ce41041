package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/repo"
)

// IngestCleanupJob prunes terminal ingestion job records older than
// maxAge. Running and pending jobs are never touched.
type IngestCleanupJob struct {
	jobs   *repo.IngestJobRepo
	maxAge time.Duration
}

func NewIngestCleanupJob(jobs *repo.IngestJobRepo, maxAge time.Duration) *IngestCleanupJob {
	return &IngestCleanupJob{jobs: jobs, maxAge: maxAge}
}

func (j *IngestCleanupJob) Name() string {
	return "ingest_cleanup"
}

func (j *IngestCleanupJob) Run(ctx context.Context) error {
	if j.jobs == nil {
		return nil
	}
	maxAge := j.maxAge
	if maxAge <= 0 {
		maxAge = 72 * time.Hour
	}
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	deleted, err := j.jobs.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logutil.GetLogger(ctx).Info("pruned ingest jobs", zap.Int64("deleted", deleted))
	}
	return nil
}
