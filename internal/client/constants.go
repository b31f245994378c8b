package client

import "time"

const (
	// MaxRequestTimeout caps any caller-supplied await budget.
	MaxRequestTimeout = 60 * time.Second

	// DefaultReadTimeout is the await budget for operations whose caller
	// does not pick one.
	DefaultReadTimeout = 30 * time.Second

	// MaxConcurrentOps is the weighted-semaphore capacity bounding how many
	// backend operations run at once. The semaphore is the only admission
	// control in front of the backend.
	MaxConcurrentOps = 5

	// CleanupTimeout bounds how long a superseded backend's cleanup is
	// awaited on the loop.
	CleanupTimeout = 2 * time.Second

	// DefaultSearchLimit is the result cap when a search names none.
	DefaultSearchLimit = 5
)

// Events reported for work the bridge did not execute inline: SKIP marks an
// add with nothing to store, ACCEPT marks fire-and-forget submissions.
const (
	EventSkip   = "SKIP"
	EventAccept = "ACCEPT"
)

// Acceptance notices for fire-and-forget operations, quoted verbatim in
// tool responses.
const (
	UpdateAcceptedMessage    = "Memory update has been accepted"
	DeleteAcceptedMessage    = "Memory deletion has been accepted"
	DeleteAllAcceptedMessage = "Batch memory deletion has been accepted"
)
