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

var documentColumns = []string{
	"id", "filename", "content_type", "size", "file_key", "strategy",
	"degraded", "page_count", "node_count", "state", "ctime", "mtime",
}

type DocumentRepo struct {
	db *sqlx.DB
}

func NewDocumentRepo(db *sqlx.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Save(ctx context.Context, doc *model.Document) error {
	const query = `
		INSERT INTO documents (id, filename, content_type, size, file_key, strategy,
			degraded, page_count, node_count, state, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			content_type = EXCLUDED.content_type,
			size = EXCLUDED.size,
			file_key = EXCLUDED.file_key,
			strategy = EXCLUDED.strategy,
			degraded = EXCLUDED.degraded,
			page_count = EXCLUDED.page_count,
			node_count = EXCLUDED.node_count,
			state = EXCLUDED.state,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.Filename, doc.ContentType, doc.Size, doc.FileKey, doc.Strategy,
		doc.Degraded, doc.PageCount, doc.NodeCount, doc.State, doc.Ctime, doc.Mtime,
	)
	return err
}

func (r *DocumentRepo) Get(ctx context.Context, id string) (*model.Document, error) {
	where := map[string]interface{}{
		"id":    id,
		"state": model.DocumentStateNormal,
	}
	query, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, r.db.Rebind(query), args...)
	doc := &model.Document{}
	if err := scanDocument(row, doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepo) List(ctx context.Context, limit, offset int) ([]*model.Document, error) {
	where := map[string]interface{}{
		"state":    model.DocumentStateNormal,
		"_orderby": "ctime desc",
		"_limit":   []uint{uint(offset), uint(limit)},
	}
	query, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*model.Document
	for rows.Next() {
		doc := &model.Document{}
		if err := scanDocument(rows, doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner, doc *model.Document) error {
	return row.Scan(
		&doc.ID, &doc.Filename, &doc.ContentType, &doc.Size, &doc.FileKey, &doc.Strategy,
		&doc.Degraded, &doc.PageCount, &doc.NodeCount, &doc.State, &doc.Ctime, &doc.Mtime,
	)
}
