package bridge

import (
	"errors"
	"fmt"
)

// ErrLoopClosed is returned when work is submitted to a loop that has been
// shut down.
var ErrLoopClosed = errors.New("background loop is closed")

// ErrNoLoop is returned when an operation requires a running loop and none
// has been started.
var ErrNoLoop = errors.New("background loop is not running")

// StartupError reports that the background loop failed to become ready.
type StartupError struct {
	Err error
}

func (e *StartupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("background loop failed to start: %v", e.Err)
	}
	return "background loop failed to start"
}

func (e *StartupError) Unwrap() error { return e.Err }
