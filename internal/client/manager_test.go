package client

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/engramhq/engramd/internal/bridge"
	"github.com/engramhq/engramd/internal/memdb"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	loops := bridge.NewManager()
	t.Cleanup(func() { loops.Shutdown(time.Second) })
	return NewManager(loops)
}

func factoryFor(eng *fakeEngine, calls *atomic.Int32) EngineFactory {
	return func(ctx context.Context) (Engine, error) {
		calls.Add(1)
		return eng, nil
	}
}

func touch(t *testing.T, cli *Client) {
	t.Helper()
	if _, err := cli.Search(context.Background(), SearchRequest{Query: "tea", Scope: memdb.Scope{UserID: "alice"}}); err != nil {
		t.Fatalf("search: %v", err)
	}
}

func TestAcquireReusesMatchingFingerprint(t *testing.T) {
	m := newTestManager(t)
	var calls atomic.Int32
	eng := &fakeEngine{}

	c1 := m.Acquire("fp-1", factoryFor(eng, &calls))
	c2 := m.Acquire("fp-1", factoryFor(eng, &calls))
	if c1 != c2 {
		t.Fatal("matching fingerprint must reuse the client")
	}
}

func TestAcquireSwapsOnFingerprintChange(t *testing.T) {
	m := newTestManager(t)
	var calls atomic.Int32
	oldEng := &fakeEngine{}
	newEng := &fakeEngine{}

	c1 := m.Acquire("fp-1", factoryFor(oldEng, &calls))
	touch(t, c1)

	c2 := m.Acquire("fp-2", factoryFor(newEng, &calls))
	if c1 == c2 {
		t.Fatal("fingerprint change must build a fresh client")
	}
	if n := oldEng.closeCalls.Load(); n != 1 {
		t.Fatalf("superseded backend closed %d times, want exactly once", n)
	}

	// The retired client refuses work; the new one serves it.
	if _, err := c1.Search(context.Background(), SearchRequest{Query: "tea", Scope: memdb.Scope{UserID: "alice"}}); err == nil {
		t.Fatal("retired client must refuse work")
	}
	touch(t, c2)
	if n := newEng.closeCalls.Load(); n != 0 {
		t.Fatalf("fresh backend closed %d times", n)
	}
}

func TestAcquireEmptyFingerprintAlwaysRebuilds(t *testing.T) {
	m := newTestManager(t)
	var calls atomic.Int32
	eng := &fakeEngine{}

	c1 := m.Acquire("", factoryFor(eng, &calls))
	c2 := m.Acquire("", factoryFor(eng, &calls))
	if c1 == c2 {
		t.Fatal("an unfingerprintable configuration must not be cached")
	}
}

func TestManagerClose(t *testing.T) {
	m := newTestManager(t)
	var calls atomic.Int32
	eng := &fakeEngine{}

	cli := m.Acquire("fp-1", factoryFor(eng, &calls))
	touch(t, cli)

	m.Close(time.Second)
	if n := eng.closeCalls.Load(); n != 1 {
		t.Fatalf("backend closed %d times", n)
	}
	if _, ok := m.Current(); ok {
		t.Fatal("manager still holds a client after Close")
	}
	m.Close(time.Second)
}

func TestManagerReset(t *testing.T) {
	m := newTestManager(t)
	var calls atomic.Int32
	eng := &fakeEngine{}

	cli := m.Acquire("fp-1", factoryFor(eng, &calls))
	touch(t, cli)

	m.Reset()
	if _, ok := m.Current(); ok {
		t.Fatal("manager still holds a client after Reset")
	}
	if n := eng.closeCalls.Load(); n != 0 {
		t.Fatalf("reset must not clean up, backend closed %d times", n)
	}
}
