package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// PGVectorAdapter implements VectorAdapter using PostgreSQL's pgvector extension.
type PGVectorAdapter struct {
	pool      *pgxpool.Pool
	table     string
	dimension int
}

// PGVectorConfig holds PGVector adapter configuration.
type PGVectorConfig struct {
	DSN       string
	Dimension int    // Default: 1536
	Table     string // Default: sheet_row_vectors
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// NewPGVectorAdapter connects to Postgres and creates the vector table if needed.
func NewPGVectorAdapter(ctx context.Context, cfg PGVectorConfig) (*PGVectorAdapter, error) {
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1536
	}
	if cfg.Table == "" {
		cfg.Table = "sheet_row_vectors"
	}
	if !identifierPattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid vector table name %q", cfg.Table)
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect pgvector: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pgvector: %w", err)
	}

	a := &PGVectorAdapter{pool: pool, table: cfg.Table, dimension: cfg.Dimension}
	if err := a.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func (a *PGVectorAdapter) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			source_id TEXT NOT NULL,
			dataset_version TEXT NOT NULL,
			row_index INTEGER NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, a.table, a.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_version_idx ON %s (source_id, dataset_version)`, a.table, a.table),
	}
	for _, stmt := range stmts {
		if _, err := a.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure vector schema: %w", err)
		}
	}
	return nil
}

// Search finds the k nearest neighbors by cosine distance.
func (a *PGVectorAdapter) Search(ctx context.Context, query []float32, k int, filters VectorFilters) ([]VectorResult, error) {
	if len(query) != a.dimension || k <= 0 {
		return []VectorResult{}, nil
	}

	where, args := filterClause(filters, 2)
	sql := fmt.Sprintf(`SELECT id, row_index, embedding <=> $1 AS distance
		FROM %s%s
		ORDER BY distance, row_index
		LIMIT %d`, a.table, where, k)

	rows, err := a.pool.Query(ctx, sql, append([]any{pgvector.NewVector(query)}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []VectorResult
	for rows.Next() {
		var (
			r        VectorResult
			distance float64
		)
		if err := rows.Scan(&r.ID, &r.RowIndex, &distance); err != nil {
			return nil, fmt.Errorf("scan vector result: %w", err)
		}
		r.Distance = float32(distance)
		r.Score = 1 - r.Distance
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector results: %w", err)
	}
	return results, nil
}

// Insert adds vectors in one batch. Existing ids are skipped.
func (a *PGVectorAdapter) Insert(ctx context.Context, vectors []VectorEntry) error {
	batch := &pgx.Batch{}
	for _, v := range vectors {
		if len(v.Vector) == 0 {
			continue
		}
		if len(v.Vector) != a.dimension {
			return fmt.Errorf("%w: expected %d, got %d for id %s",
				ErrVectorDimensionMismatch, a.dimension, len(v.Vector), v.ID)
		}
		batch.Queue(fmt.Sprintf(`INSERT INTO %s (id, source_id, dataset_version, row_index, embedding)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING`, a.table),
			v.ID.String(), v.SourceID, v.DatasetVersion, v.RowIndex, pgvector.NewVector(v.Vector))
	}
	if batch.Len() == 0 {
		return nil
	}

	br := a.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert vector %d: %w", i, err)
		}
	}
	return nil
}

// Delete removes vectors by id.
func (a *PGVectorAdapter) Delete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	if _, err := a.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1::uuid[])`, a.table), strs); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}

// Count returns the number of vectors matching filters.
func (a *PGVectorAdapter) Count(ctx context.Context, filters VectorFilters) (int64, error) {
	where, args := filterClause(filters, 1)
	var n int64
	if err := a.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, a.table, where), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count vectors: %w", err)
	}
	return n, nil
}

// Close closes the connection pool.
func (a *PGVectorAdapter) Close() error {
	a.pool.Close()
	return nil
}

// filterClause renders a WHERE clause whose placeholders start at $first.
func filterClause(filters VectorFilters, first int) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filters.SourceID != "" {
		args = append(args, filters.SourceID)
		conds = append(conds, fmt.Sprintf("source_id = $%d", first+len(args)-1))
	}
	if filters.DatasetVersion != "" {
		args = append(args, filters.DatasetVersion)
		conds = append(conds, fmt.Sprintf("dataset_version = $%d", first+len(args)-1))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var _ VectorAdapter = (*PGVectorAdapter)(nil)
