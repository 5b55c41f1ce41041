package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

var ingestJobColumns = []string{
	"id", "document_id", "filename", "status", "stage",
	"node_count", "degraded", "error", "ctime", "mtime",
}

type IngestJobRepo struct {
	db *sqlx.DB
}

func NewIngestJobRepo(db *sqlx.DB) *IngestJobRepo {
	return &IngestJobRepo{db: db}
}

func (r *IngestJobRepo) Create(ctx context.Context, job *model.IngestJob) error {
	data := []map[string]interface{}{{
		"id":          job.ID,
		"document_id": job.DocumentID,
		"filename":    job.Filename,
		"status":      job.Status,
		"stage":       job.Stage,
		"node_count":  job.NodeCount,
		"degraded":    job.Degraded,
		"error":       job.Error,
		"ctime":       job.Ctime,
		"mtime":       job.Mtime,
	}}
	query, args, err := builder.BuildInsert("ingest_jobs", data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}

func (r *IngestJobRepo) Update(ctx context.Context, job *model.IngestJob) error {
	where := map[string]interface{}{"id": job.ID}
	update := map[string]interface{}{
		"status":     job.Status,
		"stage":      job.Stage,
		"node_count": job.NodeCount,
		"degraded":   job.Degraded,
		"error":      job.Error,
		"mtime":      job.Mtime,
	}
	query, args, err := builder.BuildUpdate("ingest_jobs", where, update)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}

func (r *IngestJobRepo) Get(ctx context.Context, id string) (*model.IngestJob, error) {
	where := map[string]interface{}{"id": id}
	query, args, err := builder.BuildSelect("ingest_jobs", where, ingestJobColumns)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, r.db.Rebind(query), args...)
	job := &model.IngestJob{}
	err = row.Scan(&job.ID, &job.DocumentID, &job.Filename, &job.Status, &job.Stage,
		&job.NodeCount, &job.Degraded, &job.Error, &job.Ctime, &job.Mtime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *IngestJobRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ingest_jobs WHERE mtime < $1 AND status IN ($2, $3)`,
		cutoff, model.IngestJobStatusDone, model.IngestJobStatusFailed)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
