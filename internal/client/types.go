package client

import (
	"context"
	"time"

	"github.com/engramhq/engramd/internal/memdb"
)

// Engine is the backend surface the client drives from the background loop.
// *memdb.Engine satisfies it; tests substitute fakes.
type Engine interface {
	Add(ctx context.Context, messages []memdb.Message, scope memdb.Scope, metadata map[string]any) ([]memdb.Event, error)
	Search(ctx context.Context, query string, scope memdb.Scope, limit int, filter memdb.Filter) ([]memdb.Memory, error)
	Get(ctx context.Context, id string) (*memdb.Memory, error)
	GetAll(ctx context.Context, scope memdb.Scope, filter memdb.Filter, limit int) ([]memdb.Memory, error)
	Update(ctx context.Context, id, text string, metadata map[string]any) (*memdb.Memory, error)
	Delete(ctx context.Context, id string) (*memdb.Memory, error)
	DeleteAll(ctx context.Context, scope memdb.Scope) (int, error)
	History(ctx context.Context, id string) ([]memdb.HistoryEntry, error)
	Ping(ctx context.Context) error
	Close() error
}

// EngineFactory builds the backend. It runs on the background loop so the
// dispatcher goroutine owns the handle for its whole lifetime.
type EngineFactory func(ctx context.Context) (Engine, error)

// Record is the normalized memory shape handed to the tool surface.
// Whatever the backend returned, consumers can rely on these five keys.
type Record struct {
	ID        string         `json:"id"`
	Memory    string         `json:"memory"`
	Score     float64        `json:"score"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at,omitempty"`
}

// HistoryRecord is one normalized audit entry for a memory.
type HistoryRecord struct {
	MemoryID  string `json:"memory_id"`
	OldMemory string `json:"old_memory"`
	NewMemory string `json:"new_memory"`
	Event     string `json:"event"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	IsDeleted bool   `json:"is_deleted"`
}

// AddRequest carries one extraction request.
type AddRequest struct {
	Messages []memdb.Message
	Scope    memdb.Scope
	Metadata map[string]any
	// Async submits the extraction fire-and-forget and reports ACCEPT.
	Async   bool
	Timeout time.Duration
}

// SearchRequest carries one semantic search.
type SearchRequest struct {
	Query   string
	Scope   memdb.Scope
	Filter  memdb.Filter
	Limit   int
	Timeout time.Duration
}

// AddReply reports what an add did. Exactly one of the flags is meaningful:
// Accepted for fire-and-forget submissions, Degraded when the awaited
// operation was cut off and its outcome discarded.
type AddReply struct {
	Events   []memdb.Event
	Accepted bool
	Degraded bool
}

// SearchReply carries normalized matches. Degraded means the backend could
// not answer in time and Records is empty rather than authoritative.
type SearchReply struct {
	Records  []Record
	Degraded bool
}

// GetReply carries one memory, or nil when it does not exist. Degraded
// means the lookup was cut off, not that the memory is known to be absent.
type GetReply struct {
	Record   *Record
	Degraded bool
}

// ListReply carries a scope listing.
type ListReply struct {
	Records  []Record
	Degraded bool
}

// UpdateReply carries the rewritten memory, or just the acceptance flag on
// the fire-and-forget path.
type UpdateReply struct {
	Record   *Record
	Accepted bool
}

// DeleteReply carries the removed memory, or just the acceptance flag on
// the fire-and-forget path.
type DeleteReply struct {
	Record   *Record
	Accepted bool
}

// DeleteAllReply acknowledges a batch deletion submission.
type DeleteAllReply struct {
	Accepted bool
}

// HistoryReply carries the audit trail of one memory, oldest first.
type HistoryReply struct {
	Records  []HistoryRecord
	Degraded bool
}
