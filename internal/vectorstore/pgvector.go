package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

type pgvectorConfig struct {
	DSN string `json:"dsn"`
}

// pgvectorStore keeps nodes in a Postgres table with a pgvector column.
// Replace-and-store runs in one transaction, so concurrent readers see
// either the old node set or the new one. The seq column preserves
// insertion order for score tie-breaking.
type pgvectorStore struct {
	db        *sqlx.DB
	dimension int
}

func init() {
	Register("pgvector", createPgvectorStore)
}

func createPgvectorStore(args interface{}) (Store, error) {
	cfg := &pgvectorConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pgvector store dsn is required")
	}
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect pgvector store: %w", err)
	}
	return &pgvectorStore{db: db}, nil
}

func (s *pgvectorStore) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension: %d", appErr.ErrStore, dimension)
	}
	s.dimension = dimension
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS doc_nodes (
			id text PRIMARY KEY,
			document_id text NOT NULL,
			position int NOT NULL,
			content text NOT NULL,
			page_start int NOT NULL,
			page_end int NOT NULL,
			metadata jsonb,
			embedding vector(%d) NOT NULL,
			seq bigserial
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS idx_doc_nodes_document_id ON doc_nodes (document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_doc_nodes_embedding ON doc_nodes
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: init schema: %v", appErr.ErrStore, err)
		}
	}
	logutil.GetLogger(ctx).Info("pgvector store ready", zap.Int("dimension", dimension))
	return nil
}

func (s *pgvectorStore) ReplaceDocument(ctx context.Context, documentID string, nodes []*model.Node) error {
	for _, node := range nodes {
		if len(node.Embedding) != s.dimension {
			return fmt.Errorf("%w: node %s embedding dimension %d, index expects %d",
				appErr.ErrStore, node.ID, len(node.Embedding), s.dimension)
		}
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin replace: %v", appErr.ErrStore, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM doc_nodes WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("%w: delete old nodes: %v", appErr.ErrStore, err)
	}
	const insert = `
		INSERT INTO doc_nodes (id, document_id, position, content, page_start, page_end, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, node := range nodes {
		var metadata []byte
		if len(node.Metadata) > 0 {
			metadata, err = json.Marshal(node.Metadata)
			if err != nil {
				return fmt.Errorf("%w: encode metadata: %v", appErr.ErrStore, err)
			}
		}
		if _, err := tx.ExecContext(ctx, insert,
			node.ID,
			node.DocumentID,
			node.Position,
			node.Text,
			node.PageStart,
			node.PageEnd,
			metadata,
			pgvector.NewVector(node.Embedding),
		); err != nil {
			return fmt.Errorf("%w: insert node %s: %v", appErr.ErrStore, node.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit replace: %v", appErr.ErrStore, err)
	}
	return nil
}

func (s *pgvectorStore) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM doc_nodes WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("%w: delete document nodes: %v", appErr.ErrStore, err)
	}
	return nil
}

func (s *pgvectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]*model.ScoredNode, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", appErr.ErrRetrieval)
	}
	const query = `
		SELECT id, document_id, position, content, page_start, page_end, metadata,
		       1 - (embedding <=> $1) AS score
		FROM doc_nodes
		ORDER BY embedding <=> $1 ASC, seq ASC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrRetrieval, err)
	}
	defer rows.Close()
	var hits []*model.ScoredNode
	for rows.Next() {
		node := &model.Node{}
		var metadata sql.NullString
		var score float64
		if err := rows.Scan(&node.ID, &node.DocumentID, &node.Position, &node.Text,
			&node.PageStart, &node.PageEnd, &metadata, &score); err != nil {
			return nil, fmt.Errorf("%w: scan node: %v", appErr.ErrRetrieval, err)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &node.Metadata); err != nil {
				return nil, fmt.Errorf("%w: decode metadata: %v", appErr.ErrRetrieval, err)
			}
		}
		hits = append(hits, &model.ScoredNode{Node: node, Score: float32(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrRetrieval, err)
	}
	return hits, nil
}

func (s *pgvectorStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM doc_nodes`); err != nil {
		return 0, fmt.Errorf("%w: %v", appErr.ErrStore, err)
	}
	return count, nil
}
