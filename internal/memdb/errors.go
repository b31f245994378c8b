package memdb

import "errors"

// ErrNotFound is returned when no memory exists under the requested id.
var ErrNotFound = errors.New("memory not found")

// ErrEmptyScope is returned when a scope-wide operation is attempted with
// no scope filter at all.
var ErrEmptyScope = errors.New("at least one scope filter is required")

// ErrEmptyQuery is returned when a search is attempted with a blank query.
var ErrEmptyQuery = errors.New("search query is empty")

// ErrEmptyText is returned when an update offers no replacement text.
var ErrEmptyText = errors.New("memory text is empty")

// ErrBadFilter is returned when a metadata filter expression cannot be
// parsed.
var ErrBadFilter = errors.New("invalid metadata filter")
