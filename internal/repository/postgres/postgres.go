// Package postgres implements ContentRepository, ContextRepository, and
// VectorRepository over pgx/v5 and the pgvector Postgres extension.
// Grounded in the teacher's internal/persistence/databases/pool.go
// (bounded pgxpool.Pool construction), postgres_search.go (best-effort
// schema bootstrap on construction, JSONB metadata columns), and
// postgres_vector.go (distance-operator selection by configured metric).
// Embedding values travel as github.com/pgvector/pgvector-go's Vector
// type, registered against every pooled connection exactly as the
// teacher's initialize.go registers it, rather than hand-rolled literal
// encoding.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"contextnexus/internal/core"
	"contextnexus/internal/repository"
)

// OpenPool creates a bounded Postgres connection pool, matching the
// teacher's newPgPool defaults, and registers the pgvector type on every
// pooled connection the same way the teacher's initialize.go does per
// acquired connection.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// ContentStore is a Postgres-backed repository.ContentRepository.
type ContentStore struct {
	pool *pgxpool.Pool
}

// NewContentStore bootstraps the content_items table (best-effort, ignores
// permission errors the same way the teacher's schema bootstrap does) and
// returns a ContentStore.
func NewContentStore(ctx context.Context, pool *pgxpool.Pool) *ContentStore {
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS content_items (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  type TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  body TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  embed_ref TEXT NOT NULL DEFAULT '',
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb
);
`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS content_items_project_idx ON content_items(project_id)`)
	return &ContentStore{pool: pool}
}

func (s *ContentStore) FindByID(ctx context.Context, id string) (core.ContentItem, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, project_id, type, title, '', created_at, embed_ref, metadata
FROM content_items WHERE id=$1`, id)
	return scanContentItem(row, id)
}

func (s *ContentStore) GetWithBody(ctx context.Context, id string) (core.ContentItem, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, project_id, type, title, body, created_at, embed_ref, metadata
FROM content_items WHERE id=$1`, id)
	return scanContentItem(row, id)
}

func scanContentItem(row pgx.Row, id string) (core.ContentItem, error) {
	var item core.ContentItem
	var contentType string
	var metadata map[string]string
	if err := row.Scan(&item.ID, &item.ProjectID, &contentType, &item.Title, &item.Body, &item.CreatedAt, &item.EmbedRef, &metadata); err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return core.ContentItem{}, core.NotFound("content", id)
		}
		return core.ContentItem{}, fmt.Errorf("scan content item: %w", err)
	}
	item.Type = core.ContentType(contentType)
	item.Metadata = metadata
	return item, nil
}

func (s *ContentStore) ListByProject(ctx context.Context, projectID string) ([]core.ContentItem, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, project_id, type, title, '', created_at, embed_ref, metadata
FROM content_items WHERE project_id=$1 ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list content by project: %w", err)
	}
	defer rows.Close()
	return collectContentItems(rows)
}

func collectContentItems(rows pgx.Rows) ([]core.ContentItem, error) {
	out := make([]core.ContentItem, 0)
	for rows.Next() {
		var item core.ContentItem
		var contentType string
		var metadata map[string]string
		if err := rows.Scan(&item.ID, &item.ProjectID, &contentType, &item.Title, &item.Body, &item.CreatedAt, &item.EmbedRef, &metadata); err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		item.Type = core.ContentType(contentType)
		item.Metadata = metadata
		out = append(out, item)
	}
	return out, rows.Err()
}

// FindSimilar joins through the embeddings table maintained by VectorStore,
// ordering by cosine distance (<=>) whatever metric the VectorStore was
// configured with.
func (s *ContentStore) FindSimilar(ctx context.Context, id string, limit int, projectID string) ([]core.ContentItem, error) {
	if limit <= 0 {
		limit = 10
	}
	where := ""
	args := []any{id, limit}
	if projectID != "" {
		where = "AND c.project_id = $3"
		args = append(args, projectID)
	}
	query := fmt.Sprintf(`
SELECT c.id, c.project_id, c.type, c.title, c.body, c.created_at, c.embed_ref, c.metadata
FROM content_items c
JOIN embeddings e ON e.id = c.id
WHERE c.id != $1 %s
ORDER BY e.vec <=> (SELECT vec FROM embeddings WHERE id = $1)
LIMIT $2`, where)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find similar content: %w", err)
	}
	defer rows.Close()
	return collectContentItems(rows)
}

// ContextStore is a Postgres-backed repository.ContextRepository.
type ContextStore struct {
	pool *pgxpool.Pool
}

// NewContextStore bootstraps the contexts and context_items tables.
func NewContextStore(ctx context.Context, pool *pgxpool.Pool) *ContextStore {
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS contexts (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  name TEXT NOT NULL DEFAULT '',
  metadata JSONB NOT NULL DEFAULT '{}'::jsonb
);
`)
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS context_items (
  context_id TEXT NOT NULL,
  content_id TEXT NOT NULL,
  relevance DOUBLE PRECISION,
  selected_by_user BOOLEAN NOT NULL DEFAULT false,
  added_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (context_id, content_id)
);
`)
	return &ContextStore{pool: pool}
}

func (s *ContextStore) FindByID(ctx context.Context, id string) (core.Context, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, project_id, name, metadata FROM contexts WHERE id=$1`, id)
	var c core.Context
	var metadata map[string]string
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Name, &metadata); err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return core.Context{}, core.NotFound("context", id)
		}
		return core.Context{}, fmt.Errorf("scan context: %w", err)
	}
	c.Metadata = metadata
	items, err := s.ListItems(ctx, id)
	if err != nil {
		return core.Context{}, err
	}
	c.Items = items
	return c, nil
}

func (s *ContextStore) ListItems(ctx context.Context, contextID string) ([]core.ContextItemEdge, error) {
	rows, err := s.pool.Query(ctx, `
SELECT content_id, relevance, selected_by_user, added_at
FROM context_items WHERE context_id=$1 ORDER BY added_at`, contextID)
	if err != nil {
		return nil, fmt.Errorf("list context items: %w", err)
	}
	defer rows.Close()

	out := make([]core.ContextItemEdge, 0)
	for rows.Next() {
		var edge core.ContextItemEdge
		if err := rows.Scan(&edge.ContentID, &edge.Relevance, &edge.SelectedByUser, &edge.AddedAt); err != nil {
			return nil, fmt.Errorf("scan context item: %w", err)
		}
		out = append(out, edge)
	}
	return out, rows.Err()
}

func (s *ContextStore) AddItem(ctx context.Context, contextID, contentID string, edge core.ContextItemEdge) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO context_items(context_id, content_id, relevance, selected_by_user)
VALUES ($1, $2, $3, $4)
ON CONFLICT (context_id, content_id)
DO UPDATE SET relevance=EXCLUDED.relevance, selected_by_user=EXCLUDED.selected_by_user`,
		contextID, contentID, edge.Relevance, edge.SelectedByUser)
	if err != nil {
		return fmt.Errorf("add context item: %w", err)
	}
	return nil
}

func (s *ContextStore) RemoveItem(ctx context.Context, contextID, contentID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM context_items WHERE context_id=$1 AND content_id=$2`, contextID, contentID)
	if err != nil {
		return fmt.Errorf("remove context item: %w", err)
	}
	return nil
}

func (s *ContextStore) UpdateEdgeMetadata(ctx context.Context, contextID, contentID string, patch repository.EdgePatch) error {
	sets := make([]string, 0, 2)
	args := []any{contextID, contentID}
	if patch.Relevance != nil {
		args = append(args, *patch.Relevance)
		sets = append(sets, fmt.Sprintf("relevance=$%d", len(args)))
	}
	if patch.SelectedByUser != nil {
		args = append(args, *patch.SelectedByUser)
		sets = append(sets, fmt.Sprintf("selected_by_user=$%d", len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	query := fmt.Sprintf(`UPDATE context_items SET %s WHERE context_id=$1 AND content_id=$2`, strings.Join(sets, ", "))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update context item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound("context item", contentID)
	}
	return nil
}

// VectorStore is a Postgres-backed repository.VectorRepository using the
// pgvector extension. Metric selects the distance operator: "cosine"
// (default), "l2", or "ip".
type VectorStore struct {
	pool   *pgxpool.Pool
	metric string
	embed  repository.Embedder
}

// NewVectorStore bootstraps the pgvector extension and embeddings table for
// the given dimension, and returns a VectorStore that embeds query text via
// embed.
func NewVectorStore(ctx context.Context, pool *pgxpool.Pool, dimensions int, metric string, embed repository.Embedder) *VectorStore {
	_, _ = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`)
	vecType := "vector"
	if dimensions > 0 {
		vecType = fmt.Sprintf("vector(%d)", dimensions)
	}
	_, _ = pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS embeddings (
  id TEXT PRIMARY KEY,
  vec %s
);
`, vecType))
	return &VectorStore{pool: pool, metric: strings.ToLower(strings.TrimSpace(metric)), embed: embed}
}

// Upsert stores contentID's embedding.
func (s *VectorStore) Upsert(ctx context.Context, contentID string, vector []float32) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO embeddings(id, vec) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET vec=EXCLUDED.vec`, contentID, pgvector.NewVector(vector))
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

func (s *VectorStore) FindEmbedding(ctx context.Context, contentID string) ([]float32, bool, error) {
	var vec pgvector.Vector
	err := s.pool.QueryRow(ctx, `SELECT vec FROM embeddings WHERE id=$1`, contentID).Scan(&vec)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find embedding: %w", err)
	}
	return vec.Slice(), true, nil
}

func (s *VectorStore) Similarity(ctx context.Context, contentID, query string) (float64, error) {
	qv, err := s.embed.Embed(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("embed query: %w", err)
	}
	scoreExpr := "1 - (vec <=> $2)"
	switch s.metric {
	case "l2", "euclidean":
		scoreExpr = "-(vec <-> $2)"
	case "ip", "dot":
		scoreExpr = "-(vec <#> $2)"
	}
	query2 := fmt.Sprintf(`SELECT %s FROM embeddings WHERE id=$1`, scoreExpr)
	var score float64
	if err := s.pool.QueryRow(ctx, query2, contentID, pgvector.NewVector(qv)).Scan(&score); err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return 0, nil
		}
		return 0, fmt.Errorf("similarity query: %w", err)
	}
	return score, nil
}
