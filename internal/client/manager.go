package client

import (
	"log/slog"
	"sync"
	"time"

	"github.com/engramhq/engramd/internal/bridge"
)

// Manager hands out the process-wide client and swaps it when the
// configuration fingerprint changes. A swap retires the superseded
// backend through the loop, bounded by CleanupTimeout, exactly once.
type Manager struct {
	loops *bridge.Manager

	mu      sync.Mutex
	current *Client
}

// NewManager builds a client manager on top of the loop manager.
func NewManager(loops *bridge.Manager) *Manager {
	return &Manager{loops: loops}
}

// Acquire returns the current client when fingerprint still matches.
// Otherwise it installs a fresh client built from factory and retires the
// old one. An empty fingerprint never matches, so a configuration that
// cannot be fingerprinted rebuilds on every acquire rather than going
// stale.
func (m *Manager) Acquire(fingerprint string, factory EngineFactory) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && fingerprint != "" && m.current.fingerprint == fingerprint {
		return m.current
	}
	old := m.current
	m.current = New(m.loops, fingerprint, factory)
	if old != nil {
		slog.Info("memory configuration changed, retiring backend",
			"old_fingerprint", shortFingerprint(old.fingerprint),
			"new_fingerprint", shortFingerprint(fingerprint))
		old.Close(CleanupTimeout)
	}
	return m.current
}

// Current returns the live client without building one.
func (m *Manager) Current() (*Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current != nil
}

// Close retires the live client. Safe to call repeatedly.
func (m *Manager) Close(timeout time.Duration) {
	m.mu.Lock()
	cli := m.current
	m.current = nil
	m.mu.Unlock()
	if cli != nil {
		cli.Close(timeout)
	}
}

// Reset drops the live client without cleanup. Test hook.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}
