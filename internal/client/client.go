// Package client exposes the memory backend to synchronous callers by
// bridging every operation onto the process-wide background loop. It owns
// request validation, per-call await budgets with degraded fallbacks, the
// weighted semaphore bounding backend concurrency, and the
// fingerprint-keyed client lifecycle that follows configuration changes.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/engramhq/engramd/internal/bridge"
	"github.com/engramhq/engramd/internal/memdb"
)

// Client drives one memory backend through the background loop. It is safe
// for concurrent use; the backend itself is only ever touched from inside
// submitted operations.
type Client struct {
	loops       *bridge.Manager
	factory     EngineFactory
	sem         *semaphore.Weighted
	fingerprint string

	mu     sync.Mutex
	engine Engine
	closed bool
}

// New builds a client around factory. The backend is not created until the
// first operation needs it.
func New(loops *bridge.Manager, fingerprint string, factory EngineFactory) *Client {
	return &Client{
		loops:       loops,
		factory:     factory,
		sem:         semaphore.NewWeighted(MaxConcurrentOps),
		fingerprint: fingerprint,
	}
}

// Fingerprint identifies the configuration this client was built from.
func (c *Client) Fingerprint() string { return c.fingerprint }

// Add stores memories extracted from messages. Empty input is skipped
// without touching the backend; the async path reports acceptance as soon
// as the loop has the work.
func (c *Client) Add(ctx context.Context, req AddRequest) (AddReply, error) {
	if req.Scope.UserID == "" {
		return AddReply{}, ErrMissingUserID
	}
	messages := compactMessages(req.Messages)
	if len(messages) == 0 {
		return AddReply{Events: []memdb.Event{{Event: EventSkip}}}, nil
	}
	eng, loop, err := c.ensureEngine(ctx)
	if err != nil {
		return AddReply{}, err
	}
	op := c.guarded(func(opCtx context.Context) (any, error) {
		return eng.Add(opCtx, messages, req.Scope, req.Metadata)
	})
	if req.Async {
		if err := c.fireAndForget(loop, "add", op); err != nil {
			return AddReply{}, err
		}
		return AddReply{Events: []memdb.Event{{Event: EventAccept}}, Accepted: true}, nil
	}
	out, err := awaitOn(ctx, loop, clampTimeout(req.Timeout), op)
	if err != nil {
		if ctx.Err() != nil {
			return AddReply{}, ctx.Err()
		}
		slog.Warn("memory add degraded", "error", err)
		return AddReply{Events: []memdb.Event{}, Degraded: true}, nil
	}
	events, _ := out.([]memdb.Event)
	if events == nil {
		events = []memdb.Event{}
	}
	return AddReply{Events: events}, nil
}

// Search runs a semantic search. Timeouts and backend failures degrade to
// an empty result set instead of erroring, so conversational callers keep
// going without memories rather than falling over.
func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchReply, error) {
	if strings.TrimSpace(req.Query) == "" {
		return SearchReply{}, ErrEmptyQuery
	}
	if req.Scope.UserID == "" {
		return SearchReply{}, ErrMissingUserID
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	eng, loop, err := c.ensureEngine(ctx)
	if err != nil {
		return SearchReply{}, err
	}
	out, err := awaitOn(ctx, loop, clampTimeout(req.Timeout), c.guarded(func(opCtx context.Context) (any, error) {
		return eng.Search(opCtx, req.Query, req.Scope, limit, req.Filter)
	}))
	if err != nil {
		if ctx.Err() != nil {
			return SearchReply{}, ctx.Err()
		}
		slog.Warn("memory search degraded", "error", err)
		return SearchReply{Records: []Record{}, Degraded: true}, nil
	}
	return SearchReply{Records: normalizeRecords(out)}, nil
}

// Get fetches one memory. A nil Record means the memory does not exist;
// Degraded marks a lookup that was cut off before the backend answered.
func (c *Client) Get(ctx context.Context, id string, timeout time.Duration) (GetReply, error) {
	if strings.TrimSpace(id) == "" {
		return GetReply{}, ErrMissingMemoryID
	}
	eng, loop, err := c.ensureEngine(ctx)
	if err != nil {
		return GetReply{}, err
	}
	out, err := awaitOn(ctx, loop, clampTimeout(timeout), c.guarded(func(opCtx context.Context) (any, error) {
		return eng.Get(opCtx, id)
	}))
	if err != nil {
		if errors.Is(err, memdb.ErrNotFound) {
			return GetReply{}, nil
		}
		if ctx.Err() != nil {
			return GetReply{}, ctx.Err()
		}
		slog.Warn("memory get degraded", "id", id, "error", err)
		return GetReply{Degraded: true}, nil
	}
	switch m := out.(type) {
	case *memdb.Memory:
		rec := recordFromMemory(m)
		return GetReply{Record: &rec}, nil
	case map[string]any:
		rec := NormalizeRecord(m)
		return GetReply{Record: &rec}, nil
	}
	return GetReply{Degraded: true}, nil
}

// GetAll lists memories in scope, optionally narrowed by filter.
func (c *Client) GetAll(ctx context.Context, scope memdb.Scope, filter memdb.Filter, limit int, timeout time.Duration) (ListReply, error) {
	if scope.UserID == "" {
		return ListReply{}, ErrMissingUserID
	}
	eng, loop, err := c.ensureEngine(ctx)
	if err != nil {
		return ListReply{}, err
	}
	out, err := awaitOn(ctx, loop, clampTimeout(timeout), c.guarded(func(opCtx context.Context) (any, error) {
		return eng.GetAll(opCtx, scope, filter, limit)
	}))
	if err != nil {
		if ctx.Err() != nil {
			return ListReply{}, ctx.Err()
		}
		slog.Warn("memory list degraded", "error", err)
		return ListReply{Records: []Record{}, Degraded: true}, nil
	}
	return ListReply{Records: normalizeRecords(out)}, nil
}

// Update rewrites a memory's text. The memory is looked up first so a
// missing id fails fast with ErrNotFound; if it disappears between the
// check and the rewrite the caller sees ErrGone. Awaited failures are
// reported as errors, never degraded.
func (c *Client) Update(ctx context.Context, id, text string, metadata map[string]any, async bool) (UpdateReply, error) {
	if strings.TrimSpace(id) == "" {
		return UpdateReply{}, ErrMissingMemoryID
	}
	if strings.TrimSpace(text) == "" {
		return UpdateReply{}, ErrEmptyText
	}
	eng, loop, err := c.ensureEngine(ctx)
	if err != nil {
		return UpdateReply{}, err
	}
	_, err = awaitOn(ctx, loop, DefaultReadTimeout, c.guarded(func(opCtx context.Context) (any, error) {
		return eng.Get(opCtx, id)
	}))
	if err != nil {
		if errors.Is(err, memdb.ErrNotFound) {
			return UpdateReply{}, memdb.ErrNotFound
		}
		return UpdateReply{}, fmt.Errorf("verify memory %s: %w", id, err)
	}
	op := c.guarded(func(opCtx context.Context) (any, error) {
		updated, err := eng.Update(opCtx, id, text, metadata)
		if errors.Is(err, memdb.ErrNotFound) {
			return nil, ErrGone
		}
		return updated, err
	})
	if async {
		if err := c.fireAndForget(loop, "update", op); err != nil {
			return UpdateReply{}, err
		}
		return UpdateReply{Accepted: true}, nil
	}
	out, err := awaitOn(ctx, loop, DefaultReadTimeout, op)
	if err != nil {
		return UpdateReply{}, err
	}
	m, ok := out.(*memdb.Memory)
	if !ok || m == nil {
		return UpdateReply{}, fmt.Errorf("update memory %s: backend returned %T", id, out)
	}
	rec := recordFromMemory(m)
	return UpdateReply{Record: &rec}, nil
}

// Delete removes one memory. The awaited path looks the memory up first
// so a missing id fails fast with ErrNotFound; if it disappears between
// the check and the delete the caller sees ErrGone. The async path
// submits blind and reports acceptance.
func (c *Client) Delete(ctx context.Context, id string, async bool) (DeleteReply, error) {
	if strings.TrimSpace(id) == "" {
		return DeleteReply{}, ErrMissingMemoryID
	}
	eng, loop, err := c.ensureEngine(ctx)
	if err != nil {
		return DeleteReply{}, err
	}
	op := c.guarded(func(opCtx context.Context) (any, error) {
		removed, err := eng.Delete(opCtx, id)
		if errors.Is(err, memdb.ErrNotFound) {
			return nil, ErrGone
		}
		return removed, err
	})
	if async {
		if err := c.fireAndForget(loop, "delete", op); err != nil {
			return DeleteReply{}, err
		}
		return DeleteReply{Accepted: true}, nil
	}
	_, err = awaitOn(ctx, loop, DefaultReadTimeout, c.guarded(func(opCtx context.Context) (any, error) {
		return eng.Get(opCtx, id)
	}))
	if err != nil {
		if errors.Is(err, memdb.ErrNotFound) {
			return DeleteReply{}, memdb.ErrNotFound
		}
		return DeleteReply{}, fmt.Errorf("verify memory %s: %w", id, err)
	}
	out, err := awaitOn(ctx, loop, DefaultReadTimeout, op)
	if err != nil {
		return DeleteReply{}, err
	}
	m, ok := out.(*memdb.Memory)
	if !ok || m == nil {
		return DeleteReply{}, fmt.Errorf("delete memory %s: backend returned %T", id, out)
	}
	rec := recordFromMemory(m)
	return DeleteReply{Record: &rec}, nil
}

// DeleteAll wipes every memory in scope. The work always runs
// fire-and-forget; callers get an acceptance, never the victim count.
func (c *Client) DeleteAll(ctx context.Context, scope memdb.Scope) (DeleteAllReply, error) {
	if scope.Empty() {
		return DeleteAllReply{}, ErrEmptyScope
	}
	eng, loop, err := c.ensureEngine(ctx)
	if err != nil {
		return DeleteAllReply{}, err
	}
	op := c.guarded(func(opCtx context.Context) (any, error) {
		n, err := eng.DeleteAll(opCtx, scope)
		if err != nil {
			return nil, err
		}
		slog.Info("batch memory deletion finished", "deleted", n)
		return n, nil
	})
	if err := c.fireAndForget(loop, "delete_all", op); err != nil {
		return DeleteAllReply{}, err
	}
	return DeleteAllReply{Accepted: true}, nil
}

// History returns the audit trail of one memory, oldest first.
func (c *Client) History(ctx context.Context, id string, timeout time.Duration) (HistoryReply, error) {
	if strings.TrimSpace(id) == "" {
		return HistoryReply{}, ErrMissingMemoryID
	}
	eng, loop, err := c.ensureEngine(ctx)
	if err != nil {
		return HistoryReply{}, err
	}
	out, err := awaitOn(ctx, loop, clampTimeout(timeout), c.guarded(func(opCtx context.Context) (any, error) {
		return eng.History(opCtx, id)
	}))
	if err != nil {
		if ctx.Err() != nil {
			return HistoryReply{}, ctx.Err()
		}
		slog.Warn("memory history degraded", "id", id, "error", err)
		return HistoryReply{Records: []HistoryRecord{}, Degraded: true}, nil
	}
	entries, _ := out.([]memdb.HistoryEntry)
	return HistoryReply{Records: historyFromEntries(entries)}, nil
}

// Ping checks the backend end to end through the loop.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) error {
	eng, loop, err := c.ensureEngine(ctx)
	if err != nil {
		return err
	}
	_, err = awaitOn(ctx, loop, clampTimeout(timeout), c.guarded(func(opCtx context.Context) (any, error) {
		return nil, eng.Ping(opCtx)
	}))
	return err
}

// Close tears down the backend exactly once. Cleanup runs on the loop so
// it serializes with in-flight operations, and is awaited for at most
// timeout before being left to finish on its own.
func (c *Client) Close(timeout time.Duration) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	eng := c.engine
	c.engine = nil
	c.mu.Unlock()
	if eng == nil {
		return
	}
	if timeout <= 0 {
		timeout = CleanupTimeout
	}
	loop, ok := c.loops.Current()
	if !ok || loop.Closed() {
		if err := eng.Close(); err != nil {
			slog.Warn("memory backend close failed", "error", err)
		}
		return
	}
	future, err := loop.Submit(loop.Context(), func(context.Context) (any, error) {
		return nil, eng.Close()
	})
	if err != nil {
		if cerr := eng.Close(); cerr != nil {
			slog.Warn("memory backend close failed", "error", cerr)
		}
		return
	}
	select {
	case out := <-future:
		if out.Err != nil {
			slog.Warn("memory backend close failed", "error", out.Err)
		}
	case <-time.After(timeout):
		slog.Warn("memory backend cleanup timed out", "timeout", timeout)
	}
}

// ensureEngine returns the backend, building it on the loop the first time
// so the dispatcher goroutine owns the handle for its whole lifetime.
func (c *Client) ensureEngine(ctx context.Context) (Engine, *bridge.Loop, error) {
	loop, err := c.loops.Ensure(ctx)
	if err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, ErrClosed
	}
	if c.engine != nil {
		return c.engine, loop, nil
	}
	out, err := awaitOn(ctx, loop, MaxRequestTimeout, func(opCtx context.Context) (any, error) {
		return c.factory(opCtx)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialize memory backend: %w", err)
	}
	eng, ok := out.(Engine)
	if !ok || eng == nil {
		return nil, nil, fmt.Errorf("initialize memory backend: factory returned %T", out)
	}
	c.engine = eng
	slog.Info("memory backend ready", "fingerprint", shortFingerprint(c.fingerprint))
	return eng, loop, nil
}

// guarded wraps op so it holds one semaphore slot while it runs. Acquiring
// inside the loop means a stalled backend queues work there, and callers
// are never blocked past their own await budget.
func (c *Client) guarded(op bridge.Op) bridge.Op {
	return func(ctx context.Context) (any, error) {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("acquire backend slot: %w", err)
		}
		defer c.sem.Release(1)
		return op(ctx)
	}
}

// fireAndForget submits op and returns once the loop has it. The work runs
// under the loop's lifetime rather than the caller's, and its outcome is
// reaped in the background for logging only.
func (c *Client) fireAndForget(loop *bridge.Loop, name string, op bridge.Op) error {
	opCtx, cancel := context.WithTimeout(loop.Context(), MaxRequestTimeout)
	future, err := loop.Submit(opCtx, op)
	if err != nil {
		cancel()
		return err
	}
	go func() {
		defer cancel()
		if out, ok := <-future; ok && out.Err != nil {
			slog.Warn("async memory operation failed", "op", name, "error", out.Err)
		}
	}()
	return nil
}

// awaitOn submits op and waits for its outcome, bounded by timeout and the
// caller's context. On timeout the operation is cancelled best effort and
// whatever it eventually produces is discarded.
func awaitOn(ctx context.Context, loop *bridge.Loop, timeout time.Duration, op bridge.Op) (any, error) {
	opCtx, cancel := context.WithTimeout(loop.Context(), timeout)
	defer cancel()
	future, err := loop.Submit(opCtx, op)
	if err != nil {
		return nil, err
	}
	select {
	case out := <-future:
		return out.Value, out.Err
	case <-opCtx.Done():
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// compactMessages drops messages with no usable content.
func compactMessages(messages []memdb.Message) []memdb.Message {
	out := make([]memdb.Message, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

func clampTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultReadTimeout
	}
	if d > MaxRequestTimeout {
		return MaxRequestTimeout
	}
	return d
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
