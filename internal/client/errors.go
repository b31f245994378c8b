package client

import "errors"

// ErrMissingUserID rejects operations that require a user scope.
var ErrMissingUserID = errors.New("user_id is required")

// ErrMissingMemoryID rejects operations addressed at a single memory
// without naming one.
var ErrMissingMemoryID = errors.New("memory_id is required")

// ErrEmptyQuery rejects a search without a query string.
var ErrEmptyQuery = errors.New("query is required")

// ErrEmptyText rejects an update whose replacement text is blank.
var ErrEmptyText = errors.New("memory text is required")

// ErrEmptyScope rejects a batch deletion that names no scope at all.
var ErrEmptyScope = errors.New("at least one of user_id, agent_id or run_id is required")

// ErrGone marks a memory that existed when the operation was validated but
// was deleted before it executed.
var ErrGone = errors.New("memory was deleted before the operation ran")

// ErrTimeout marks an awaited operation that exceeded its budget. The
// in-flight work is cancelled best effort and its outcome discarded.
var ErrTimeout = errors.New("memory operation timed out")

// ErrClosed marks use of a client that has already been cleaned up.
var ErrClosed = errors.New("memory client is closed")
