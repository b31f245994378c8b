package memdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/engramhq/engramd/internal/embed"
)

var tracer = otel.Tracer("engramd/memdb")

// endSpan closes an engine span, recording err as its status. Without an
// installed trace provider both calls are no-ops.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// overfetchFactor widens vector lookups when a metadata filter will thin
// the results afterwards.
const overfetchFactor = 5

// Engine executes the memory operations against the record store, the
// vector index and the embedder. It is the backend both the bridged client
// and the CLI drive.
type Engine struct {
	store    *Store
	index    VectorIndex
	embedder embed.Embedder
}

// NewEngine wires the three parts together.
func NewEngine(store *Store, index VectorIndex, embedder embed.Embedder) *Engine {
	return &Engine{store: store, index: index, embedder: embedder}
}

// Add stores one memory per non-empty message. Re-adding text that already
// exists in the scope records a NONE event and leaves the stores untouched.
func (e *Engine) Add(ctx context.Context, msgs []Message, scope Scope, metadata map[string]any) (events []Event, err error) {
	ctx, span := tracer.Start(ctx, "engine.add")
	defer func() { endSpan(span, err) }()

	events = make([]Event, 0, len(msgs))

	for _, msg := range msgs {
		text := strings.TrimSpace(msg.Content)
		if text == "" {
			continue
		}

		hash := ContentHash(text)
		if existing, err := e.store.GetByHash(ctx, scope, hash); err == nil {
			events = append(events, Event{ID: existing.ID, Memory: text, Event: EventNone})
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return events, err
		}

		vec, err := e.embedder.Embed(ctx, text)
		if err != nil {
			return events, fmt.Errorf("embed: %w", err)
		}

		now := time.Now().UTC()
		m := &Memory{
			ID:        uuid.NewString(),
			Scope:     scope,
			Text:      text,
			Hash:      hash,
			Metadata:  metadata,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.store.Insert(ctx, m); err != nil {
			return events, err
		}
		if err := e.index.Upsert(ctx, VectorRecord{ID: m.ID, Text: text, Scope: scope, Embedding: vec}); err != nil {
			// Keep store and index consistent: roll the record back.
			if derr := e.store.Delete(ctx, m.ID); derr != nil {
				slog.Warn("rollback after index failure", "id", m.ID, "error", derr)
			}
			return events, fmt.Errorf("index: %w", err)
		}

		if err := e.store.AppendHistory(ctx, HistoryEntry{
			MemoryID:  m.ID,
			NewMemory: text,
			Event:     EventAdd,
			CreatedAt: now,
		}); err != nil {
			slog.Warn("history append failed", "id", m.ID, "error", err)
		}

		events = append(events, Event{ID: m.ID, Memory: text, Event: EventAdd})
	}

	return events, nil
}

// Search embeds the query and returns up to limit scoped matches, best
// score first, hydrated from the record store and thinned by the metadata
// filter.
func (e *Engine) Search(ctx context.Context, query string, scope Scope, limit int, filter Filter) (out []Memory, err error) {
	ctx, span := tracer.Start(ctx, "engine.search")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 5
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	fetchN := limit
	if !filter.Empty() {
		fetchN = limit * overfetchFactor
	}

	matches, err := e.index.Search(ctx, vec, scope, fetchN)
	if err != nil {
		return nil, err
	}

	out = make([]Memory, 0, len(matches))
	for _, match := range matches {
		m, err := e.store.Get(ctx, match.ID)
		if err != nil {
			// Index and store drifted apart; skip the orphan.
			slog.Debug("vector match without record", "id", match.ID)
			continue
		}
		m.Score = match.Score
		if !filter.Empty() && !filter.Match(m) {
			continue
		}
		out = append(out, *m)
		if len(out) == limit {
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// Get returns one memory by id.
func (e *Engine) Get(ctx context.Context, id string) (m *Memory, err error) {
	ctx, span := tracer.Start(ctx, "engine.get")
	defer func() { endSpan(span, err) }()
	return e.store.Get(ctx, id)
}

// GetAll lists memories in the scope, newest first, thinned by the filter.
// limit <= 0 selects the default page of 100.
func (e *Engine) GetAll(ctx context.Context, scope Scope, filter Filter, limit int) (out []Memory, err error) {
	ctx, span := tracer.Start(ctx, "engine.get_all")
	defer func() { endSpan(span, err) }()

	if limit <= 0 {
		limit = 100
	}

	fetchN := limit
	if !filter.Empty() {
		fetchN = 0 // scan the scope, the filter decides
	}

	rows, err := e.store.List(ctx, scope, fetchN)
	if err != nil {
		return nil, err
	}

	out = make([]Memory, 0, len(rows))
	for i := range rows {
		if !filter.Empty() && !filter.Match(&rows[i]) {
			continue
		}
		out = append(out, rows[i])
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Update replaces a memory's text (and metadata when non-nil), re-embeds it
// and logs an UPDATE event. Returns ErrNotFound when the id does not exist.
func (e *Engine) Update(ctx context.Context, id, text string, metadata map[string]any) (m *Memory, err error) {
	ctx, span := tracer.Start(ctx, "engine.update")
	defer func() { endSpan(span, err) }()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	existing, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	now := time.Now().UTC()
	hash := ContentHash(text)
	if err := e.store.UpdateText(ctx, id, text, hash, metadata, now); err != nil {
		return nil, err
	}
	if err := e.index.Upsert(ctx, VectorRecord{ID: id, Text: text, Scope: existing.Scope, Embedding: vec}); err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	if err := e.store.AppendHistory(ctx, HistoryEntry{
		MemoryID:  id,
		OldMemory: existing.Text,
		NewMemory: text,
		Event:     EventUpdate,
		CreatedAt: existing.CreatedAt,
		UpdatedAt: now,
	}); err != nil {
		slog.Warn("history append failed", "id", id, "error", err)
	}

	updated := *existing
	updated.Text = text
	updated.Hash = hash
	updated.UpdatedAt = now
	if metadata != nil {
		updated.Metadata = metadata
	}
	return &updated, nil
}

// Delete removes one memory everywhere and logs a DELETE event. The removed
// record is returned for the caller's rendering.
func (e *Engine) Delete(ctx context.Context, id string) (m *Memory, err error) {
	ctx, span := tracer.Start(ctx, "engine.delete")
	defer func() { endSpan(span, err) }()

	existing, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := e.store.Delete(ctx, id); err != nil {
		return nil, err
	}
	if err := e.index.Delete(ctx, id); err != nil {
		slog.Warn("vector delete failed", "id", id, "error", err)
	}

	if err := e.store.AppendHistory(ctx, HistoryEntry{
		MemoryID:  id,
		OldMemory: existing.Text,
		Event:     EventDelete,
		CreatedAt: existing.CreatedAt,
		UpdatedAt: time.Now().UTC(),
		IsDeleted: true,
	}); err != nil {
		slog.Warn("history append failed", "id", id, "error", err)
	}

	return existing, nil
}

// DeleteAll removes every memory in the scope and reports how many went.
// An empty scope is refused.
func (e *Engine) DeleteAll(ctx context.Context, scope Scope) (n int, err error) {
	ctx, span := tracer.Start(ctx, "engine.delete_all")
	defer func() { endSpan(span, err) }()

	if scope.Empty() {
		return 0, ErrEmptyScope
	}

	victims, err := e.store.DeleteScope(ctx, scope)
	if err != nil {
		return 0, err
	}
	if err := e.index.DeleteScope(ctx, scope); err != nil {
		slog.Warn("vector scope delete failed", "error", err)
	}

	now := time.Now().UTC()
	for i := range victims {
		if err := e.store.AppendHistory(ctx, HistoryEntry{
			MemoryID:  victims[i].ID,
			OldMemory: victims[i].Text,
			Event:     EventDelete,
			CreatedAt: victims[i].CreatedAt,
			UpdatedAt: now,
			IsDeleted: true,
		}); err != nil {
			slog.Warn("history append failed", "id", victims[i].ID, "error", err)
		}
	}

	return len(victims), nil
}

// History returns a memory's change log, oldest first.
func (e *Engine) History(ctx context.Context, memoryID string) (entries []HistoryEntry, err error) {
	ctx, span := tracer.Start(ctx, "engine.history")
	defer func() { endSpan(span, err) }()
	return e.store.History(ctx, memoryID)
}

// Ping verifies both stores are reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("record store: %w", err)
	}
	if _, err := e.index.Count(ctx); err != nil {
		return fmt.Errorf("vector index: %w", err)
	}
	return nil
}

// Close releases both stores.
func (e *Engine) Close() error {
	return errors.Join(e.index.Close(), e.store.Close())
}
