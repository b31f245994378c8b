package memdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the authoritative SQLite record store: memory rows plus their
// append-only history log.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore opens (or creates) the SQLite database at the given path and
// initializes the schema.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("memory store opened", "path", dbPath)
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			agent_id TEXT NOT NULL DEFAULT '',
			run_id TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			hash TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_hash ON memories(hash)`,
		`CREATE TABLE IF NOT EXISTS memory_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			memory_id TEXT NOT NULL,
			old_memory TEXT NOT NULL DEFAULT '',
			new_memory TEXT NOT NULL DEFAULT '',
			event TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT '',
			is_deleted INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_memory ON memory_history(memory_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}

	return nil
}

// Insert stores a new memory row.
func (s *Store) Insert(ctx context.Context, m *Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metaJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO memories
		(id, user_id, agent_id, run_id, text, hash, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Scope.UserID, m.Scope.AgentID, m.Scope.RunID,
		m.Text, m.Hash, string(metaJSON),
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// Get returns the memory with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, agent_id, run_id, text, hash, metadata, created_at, updated_at
		FROM memories WHERE id = ?`, id)
	return scanMemory(row)
}

// GetByHash returns the memory in the given scope with the given content
// hash, or ErrNotFound. Used for add deduplication.
func (s *Store) GetByHash(ctx context.Context, scope Scope, hash string) (*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, agent_id, run_id, text, hash, metadata, created_at, updated_at
		FROM memories WHERE hash = ? AND user_id = ? AND agent_id = ? AND run_id = ?`,
		hash, scope.UserID, scope.AgentID, scope.RunID)
	return scanMemory(row)
}

// List returns memories inside the given scope, newest first. limit <= 0
// means no limit.
func (s *Store) List(ctx context.Context, scope Scope, limit int) ([]Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT id, user_id, agent_id, run_id, text, hash, metadata, created_at, updated_at
		FROM memories`
	where, args := scopeWhere(scope)
	q += where + ` ORDER BY created_at DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			continue
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// UpdateText replaces a memory's text, hash and (when non-nil) metadata.
// Returns ErrNotFound when the row no longer exists.
func (s *Store) UpdateText(ctx context.Context, id, text, hash string, metadata map[string]any, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res sql.Result
	var err error
	if metadata != nil {
		metaJSON, merr := json.Marshal(metadata)
		if merr != nil {
			return fmt.Errorf("marshal metadata: %w", merr)
		}
		res, err = s.db.ExecContext(ctx, `UPDATE memories SET text = ?, hash = ?, metadata = ?, updated_at = ? WHERE id = ?`,
			text, hash, string(metaJSON), formatTime(updatedAt), id)
	} else {
		res, err = s.db.ExecContext(ctx, `UPDATE memories SET text = ?, hash = ?, updated_at = ? WHERE id = ?`,
			text, hash, formatTime(updatedAt), id)
	}
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a memory row. Returns ErrNotFound when nothing was there.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteScope removes every memory inside the scope and returns the removed
// rows so callers can log history and clean the vector index.
func (s *Store) DeleteScope(ctx context.Context, scope Scope) ([]Memory, error) {
	if scope.Empty() {
		return nil, ErrEmptyScope
	}

	victims, err := s.List(ctx, scope, 0)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	where, args := scopeWhere(scope)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memories`+where, args...); err != nil {
		return nil, fmt.Errorf("delete scope: %w", err)
	}
	return victims, nil
}

// AppendHistory adds one row to a memory's change log.
func (s *Store) AppendHistory(ctx context.Context, e HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	if e.IsDeleted {
		deleted = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO memory_history
		(memory_id, old_memory, new_memory, event, created_at, updated_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.MemoryID, e.OldMemory, e.NewMemory, e.Event,
		formatTime(e.CreatedAt), formatTimeOrEmpty(e.UpdatedAt), deleted)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// History returns a memory's change log in event order. A memory that never
// existed yields an empty log, not an error.
func (s *Store) History(ctx context.Context, memoryID string) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, memory_id, old_memory, new_memory, event, created_at, updated_at, is_deleted
		FROM memory_history WHERE memory_id = ? ORDER BY id ASC`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var createdAt, updatedAt string
		var deleted int
		if err := rows.Scan(&e.ID, &e.MemoryID, &e.OldMemory, &e.NewMemory, &e.Event, &createdAt, &updatedAt, &deleted); err != nil {
			continue
		}
		e.CreatedAt = parseTime(createdAt)
		e.UpdatedAt = parseTime(updatedAt)
		e.IsDeleted = deleted != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of stored memories.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&count)
	return count, err
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the SQLite database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ContentHash returns the SHA-256 hash of memory text, used for add
// deduplication.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h[:16])
}

// --- row scanning ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row *sql.Row) (*Memory, error) {
	m, err := scanMemoryRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func scanMemoryRows(row rowScanner) (*Memory, error) {
	var m Memory
	var metaJSON, createdAt, updatedAt string
	err := row.Scan(&m.ID, &m.Scope.UserID, &m.Scope.AgentID, &m.Scope.RunID,
		&m.Text, &m.Hash, &metaJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metaJSON), &m.Metadata); err != nil {
		m.Metadata = map[string]any{}
	}
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}

func scopeWhere(scope Scope) (string, []any) {
	var conds []string
	var args []any
	if scope.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, scope.UserID)
	}
	if scope.AgentID != "" {
		conds = append(conds, "agent_id = ?")
		args = append(args, scope.AgentID)
	}
	if scope.RunID != "" {
		conds = append(conds, "run_id = ?")
		args = append(args, scope.RunID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	where := " WHERE " + conds[0]
	for _, c := range conds[1:] {
		where += " AND " + c
	}
	return where, args
}

// --- timestamps ---

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimeOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTime(t)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
