// Package memdb is the memory backend: SQLite is the authority for records
// and history, a vector index serves similarity search, and an embedder
// bridges text to vectors. The engine is driven through the background loop
// by the bridged client and directly by CLI commands.
package memdb

import "time"

// Scope identifies whose memories an operation touches. Empty fields are
// wildcards when filtering.
type Scope struct {
	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	RunID   string `json:"run_id,omitempty"`
}

// Empty reports whether no scope field is set.
func (s Scope) Empty() bool {
	return s.UserID == "" && s.AgentID == "" && s.RunID == ""
}

// Contains reports whether a row scope falls inside this filter scope;
// unset filter fields match anything.
func (s Scope) Contains(row Scope) bool {
	if s.UserID != "" && s.UserID != row.UserID {
		return false
	}
	if s.AgentID != "" && s.AgentID != row.AgentID {
		return false
	}
	if s.RunID != "" && s.RunID != row.RunID {
		return false
	}
	return true
}

// Memory is one stored memory record. Score is populated on search results
// only.
type Memory struct {
	ID        string
	Scope     Scope
	Text      string
	Hash      string
	Metadata  map[string]any
	Score     float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one conversational message offered to Add.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Memory lifecycle events. NONE marks a deduplicated add that changed
// nothing.
const (
	EventAdd    = "ADD"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
	EventNone   = "NONE"
)

// Event is the per-memory outcome of an add, in the wire shape tool
// responses use.
type Event struct {
	ID     string `json:"id"`
	Memory string `json:"memory"`
	Event  string `json:"event"`
}

// HistoryEntry is one row of a memory's change log.
type HistoryEntry struct {
	ID        int64
	MemoryID  string
	OldMemory string
	NewMemory string
	Event     string
	CreatedAt time.Time
	UpdatedAt time.Time
	IsDeleted bool
}
