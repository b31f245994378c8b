package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Manager hands out the process-wide loop, starting it lazily on first use.
// Every concurrent caller receives the same *Loop; after a shutdown the next
// Ensure starts a fresh one.
type Manager struct {
	mu   sync.Mutex
	loop *Loop
}

// NewManager returns an empty manager; no loop is started until Ensure.
func NewManager() *Manager {
	return &Manager{}
}

// Ensure returns the running loop, starting one if none is alive. Callers
// racing here all get the same handle; exactly one dispatcher goroutine
// exists at any time.
func (m *Manager) Ensure(ctx context.Context) (*Loop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loop != nil && !m.loop.Closed() {
		return m.loop, nil
	}

	loop, err := newLoop(ctx)
	if err != nil {
		return nil, err
	}
	m.loop = loop
	slog.Debug("background loop started")
	return loop, nil
}

// Current returns the live loop without starting one.
func (m *Manager) Current() (*Loop, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loop == nil || m.loop.Closed() {
		return nil, false
	}
	return m.loop, true
}

// Shutdown drains and stops the current loop, then releases the handle so a
// later Ensure starts fresh. Idempotent; never panics. A negative timeout
// selects DefaultShutdownTimeout.
func (m *Manager) Shutdown(timeout time.Duration) {
	m.mu.Lock()
	loop := m.loop
	m.loop = nil
	m.mu.Unlock()

	if loop == nil {
		return
	}
	loop.Shutdown(timeout)
	slog.Debug("background loop stopped")
}
