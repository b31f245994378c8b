// Package bridge runs backend work on a single long-lived dispatcher
// goroutine so that synchronous callers (tool handlers, CLI commands) can
// submit operations and await their outcomes with per-call deadlines.
//
// The loop is the only place backend operations execute. Callers receive a
// future channel per submission; abandoning the future discards the outcome
// without blocking the operation. Shutdown drains in-flight work within a
// bounded window and never panics.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultShutdownTimeout bounds how long Shutdown waits for in-flight
	// operations before giving up on them.
	DefaultShutdownTimeout = 3 * time.Second

	// readyTimeout bounds how long a caller waits for a new dispatcher to
	// signal readiness before reporting a startup failure.
	readyTimeout = 5 * time.Second
)

// Op is a unit of backend work executed on the loop. The context carries the
// per-call deadline; implementations must honor cancellation.
type Op func(ctx context.Context) (any, error)

// Outcome is the resolved result of a submitted operation.
type Outcome struct {
	Value any
	Err   error
}

// submission pairs an operation with the channel its outcome resolves on.
type submission struct {
	ctx      context.Context
	op       Op
	resultCh chan Outcome
}

// Loop owns the dispatcher goroutine. All backend operations in the process
// flow through a single Loop at a time; see Manager.
type Loop struct {
	submitCh chan submission
	stopCh   chan struct{}
	readyCh  chan struct{}
	doneCh   chan struct{}

	baseCtx context.Context
	cancel  context.CancelFunc

	// mu guards closed and orders in-flight tracking against the drain:
	// once closed is set no new operation can be tracked.
	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

// newLoop constructs a loop and starts its dispatcher, waiting up to
// readyTimeout for the dispatcher to come up.
func newLoop(ctx context.Context) (*Loop, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StartupError{Err: err}
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		submitCh: make(chan submission),
		stopCh:   make(chan struct{}),
		readyCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
	go l.run()

	select {
	case <-l.readyCh:
		return l, nil
	case <-time.After(readyTimeout):
		l.Shutdown(0)
		return nil, &StartupError{}
	case <-ctx.Done():
		l.Shutdown(0)
		return nil, &StartupError{Err: ctx.Err()}
	}
}

// run is the dispatcher. It accepts submissions until stopped, spawning one
// goroutine per operation so slow backends never block acceptance.
func (l *Loop) run() {
	close(l.readyCh)
	defer close(l.doneCh)

	for {
		select {
		case <-l.stopCh:
			l.refuseQueued()
			return
		case sub := <-l.submitCh:
			go func(s submission) {
				defer l.inflight.Done()
				l.dispatch(s)
			}(sub)
		}
	}
}

// dispatch runs one operation and resolves its future. The future channel is
// buffered, so resolution never blocks even when the caller has timed out
// and walked away.
func (l *Loop) dispatch(s submission) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("background operation panicked", "panic", r)
			s.resultCh <- Outcome{Err: fmt.Errorf("operation panicked: %v", r)}
			close(s.resultCh)
		}
	}()

	v, err := s.op(s.ctx)
	s.resultCh <- Outcome{Value: v, Err: err}
	close(s.resultCh)
}

// refuseQueued resolves any submission caught mid-handoff when the stop
// signal fired, so no caller blocks forever on an unresolved future.
func (l *Loop) refuseQueued() {
	for {
		select {
		case sub := <-l.submitCh:
			sub.resultCh <- Outcome{Err: ErrLoopClosed}
			close(sub.resultCh)
			l.inflight.Done()
		default:
			return
		}
	}
}

// Submit hands an operation to the dispatcher and returns the future its
// outcome resolves on. The same context gates the submission handshake and
// the operation itself. Submissions after shutdown fail with ErrLoopClosed.
func (l *Loop) Submit(ctx context.Context, op Op) (<-chan Outcome, error) {
	// An operation counts as in-flight from the moment it is tracked here;
	// the read lock orders this against Shutdown's drain.
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return nil, ErrLoopClosed
	}
	l.inflight.Add(1)
	l.mu.RUnlock()

	resultCh := make(chan Outcome, 1)
	select {
	case l.submitCh <- submission{ctx: ctx, op: op, resultCh: resultCh}:
		return resultCh, nil
	case <-l.stopCh:
		l.inflight.Done()
		return nil, ErrLoopClosed
	case <-ctx.Done():
		l.inflight.Done()
		return nil, ctx.Err()
	}
}

// Context returns the loop's base context. Per-call contexts derive from it
// so that shutting the loop down cancels whatever is still running.
func (l *Loop) Context() context.Context {
	return l.baseCtx
}

// Closed reports whether Shutdown has begun.
func (l *Loop) Closed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}

// Shutdown stops the dispatcher after a bounded drain of in-flight
// operations. It is idempotent, safe to call concurrently, and never
// panics; operations still running when the window expires are cancelled
// through the loop context and their outcomes discarded. A negative timeout
// selects DefaultShutdownTimeout.
func (l *Loop) Shutdown(timeout time.Duration) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	if timeout < 0 {
		timeout = DefaultShutdownTimeout
	}

	close(l.stopCh)

	drained := make(chan struct{})
	go func() {
		l.inflight.Wait()
		close(drained)
	}()

	// The drain gets a small grace on top of the caller's budget; the
	// operations' own deadlines are always tighter.
	select {
	case <-drained:
	case <-time.After(timeout + time.Second):
		slog.Warn("loop shutdown abandoned in-flight operations", "timeout", timeout)
	}

	l.cancel()
	<-l.doneCh
}
