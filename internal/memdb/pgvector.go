package memdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGVectorIndex is the Postgres/pgvector-backed index for deployments that
// already run Postgres. Requires the pgvector extension.
type PGVectorIndex struct {
	db    *sql.DB
	table string
	dim   int
}

// NewPGVectorIndex connects to Postgres using the pgx driver and prepares
// the vector table for the given embedding dimension.
func NewPGVectorIndex(dsn string, dim int) (*PGVectorIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("pgvector: embedding dimension must be positive, got %d", dim)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &PGVectorIndex{db: db, table: "memory_vectors", dim: dim}
	if err := p.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("vector index opened", "backend", "pgvector", "dim", dim)
	return p, nil
}

func (p *PGVectorIndex) migrate() error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			agent_id TEXT NOT NULL DEFAULT '',
			run_id TEXT NOT NULL DEFAULT '',
			embedding vector(%d)
		)`, p.table, p.dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user ON %s(user_id)`, p.table, p.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_agent ON %s(agent_id)`, p.table, p.table),
	}
	for _, stmt := range stmts {
		if _, err := p.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}
	return nil
}

func (p *PGVectorIndex) Upsert(ctx context.Context, rec VectorRecord) error {
	_, err := p.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, user_id, agent_id, run_id, embedding)
		VALUES ($1, $2, $3, $4, $5::vector)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			agent_id = EXCLUDED.agent_id,
			run_id = EXCLUDED.run_id,
			embedding = EXCLUDED.embedding`, p.table),
		rec.ID, rec.Scope.UserID, rec.Scope.AgentID, rec.Scope.RunID, vectorToString(rec.Embedding))
	if err != nil {
		return fmt.Errorf("pgvector upsert: %w", err)
	}
	return nil
}

func (p *PGVectorIndex) Search(ctx context.Context, embedding []float32, scope Scope, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, nil
	}

	vecStr := vectorToString(embedding)
	conds := []string{"embedding IS NOT NULL"}
	args := []any{vecStr}
	if scope.UserID != "" {
		args = append(args, scope.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if scope.AgentID != "" {
		args = append(args, scope.AgentID)
		conds = append(conds, fmt.Sprintf("agent_id = $%d", len(args)))
	}
	if scope.RunID != "" {
		args = append(args, scope.RunID)
		conds = append(conds, fmt.Sprintf("run_id = $%d", len(args)))
	}

	args = append(args, vecStr)
	orderParam := len(args)
	args = append(args, limit)
	limitParam := len(args)

	q := fmt.Sprintf(`SELECT id, 1 - (embedding <=> $1::vector) AS score
		FROM %s
		WHERE %s
		ORDER BY embedding <=> $%d::vector
		LIMIT $%d`, p.table, strings.Join(conds, " AND "), orderParam, limitParam)

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector query: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Score); err != nil {
			continue
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (p *PGVectorIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1::text[])`, p.table),
		pqStringArray(ids))
	if err != nil {
		return fmt.Errorf("pgvector delete: %w", err)
	}
	return nil
}

func (p *PGVectorIndex) DeleteScope(ctx context.Context, scope Scope) error {
	if scope.Empty() {
		return ErrEmptyScope
	}

	var conds []string
	var args []any
	if scope.UserID != "" {
		args = append(args, scope.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if scope.AgentID != "" {
		args = append(args, scope.AgentID)
		conds = append(conds, fmt.Sprintf("agent_id = $%d", len(args)))
	}
	if scope.RunID != "" {
		args = append(args, scope.RunID)
		conds = append(conds, fmt.Sprintf("run_id = $%d", len(args)))
	}

	q := fmt.Sprintf(`DELETE FROM %s WHERE %s`, p.table, strings.Join(conds, " AND "))
	if _, err := p.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("pgvector delete scope: %w", err)
	}
	return nil
}

func (p *PGVectorIndex) Count(ctx context.Context) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, p.table)).Scan(&count)
	return count, err
}

func (p *PGVectorIndex) Close() error {
	return p.db.Close()
}

// pqStringArray converts a Go string slice to a PostgreSQL text[] literal.
// Safe here because ids are UUIDs.
func pqStringArray(arr []string) string {
	return "{" + strings.Join(arr, ",") + "}"
}

func vectorToString(v []float32) string {
	if len(v) == 0 {
		return ""
	}
	buf := make([]byte, 0, len(v)*10)
	buf = append(buf, '[')
	for i, f := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, []byte(fmt.Sprintf("%g", f))...)
	}
	buf = append(buf, ']')
	return string(buf)
}
