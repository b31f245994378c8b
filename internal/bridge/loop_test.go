package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitResolvesOutcome(t *testing.T) {
	m := NewManager()
	defer m.Shutdown(-1)

	loop, err := m.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	future, err := loop.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return "done", nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case out := <-future:
		if out.Err != nil {
			t.Fatalf("unexpected error: %v", out.Err)
		}
		if out.Value != "done" {
			t.Fatalf("value = %v, want done", out.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("future never resolved")
	}
}

func TestSubmitPropagatesOpError(t *testing.T) {
	m := NewManager()
	defer m.Shutdown(-1)

	loop, _ := m.Ensure(context.Background())
	opErr := errors.New("backend unavailable")

	future, err := loop.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return nil, opErr
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	out := <-future
	if !errors.Is(out.Err, opErr) {
		t.Fatalf("err = %v, want %v", out.Err, opErr)
	}
}

func TestEnsureReturnsSameLoop(t *testing.T) {
	m := NewManager()
	defer m.Shutdown(-1)

	const n = 16
	loops := make([]*Loop, n)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			loop, err := m.Ensure(context.Background())
			if err != nil {
				t.Errorf("Ensure: %v", err)
				return
			}
			loops[i] = loop
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 1; i < n; i++ {
		if loops[i] != loops[0] {
			t.Fatalf("caller %d got a different loop handle", i)
		}
	}
}

func TestEnsureAfterShutdownStartsFresh(t *testing.T) {
	m := NewManager()

	first, err := m.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	m.Shutdown(-1)

	second, err := m.Ensure(context.Background())
	if err != nil {
		t.Fatalf("Ensure after shutdown: %v", err)
	}
	defer m.Shutdown(-1)

	if first == second {
		t.Fatal("expected a fresh loop after shutdown")
	}
	if !first.Closed() {
		t.Fatal("first loop should be closed")
	}
	if second.Closed() {
		t.Fatal("second loop should be live")
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	m := NewManager()
	loop, _ := m.Ensure(context.Background())
	m.Shutdown(-1)

	_, err := loop.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return nil, nil
	})
	if !errors.Is(err, ErrLoopClosed) {
		t.Fatalf("err = %v, want ErrLoopClosed", err)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	m := NewManager()
	if _, err := m.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Shutdown(-1)
		}()
	}
	wg.Wait()

	// A second round on an already-stopped manager is a no-op.
	m.Shutdown(-1)
}

func TestShutdownWaitsForInflight(t *testing.T) {
	m := NewManager()
	loop, _ := m.Ensure(context.Background())

	started := make(chan struct{})
	var finished atomic.Bool

	_, err := loop.Submit(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	<-started
	m.Shutdown(2 * time.Second)

	if !finished.Load() {
		t.Fatal("shutdown returned before the in-flight operation finished")
	}
}

func TestShutdownBoundedWhenOpHangs(t *testing.T) {
	m := NewManager()
	loop, _ := m.Ensure(context.Background())

	started := make(chan struct{})
	_, err := loop.Submit(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	begin := time.Now()
	m.Shutdown(0)
	if elapsed := time.Since(begin); elapsed > 3*time.Second {
		t.Fatalf("shutdown took %v, want a bounded drain", elapsed)
	}
}

func TestStartupCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewManager()
	_, err := m.Ensure(ctx)
	var startErr *StartupError
	if !errors.As(err, &startErr) {
		t.Fatalf("err = %v, want StartupError", err)
	}
	if !strings.Contains(startErr.Error(), "failed to start") {
		t.Fatalf("unexpected message: %s", startErr.Error())
	}
}

func TestConcurrentSubmissions(t *testing.T) {
	m := NewManager()
	defer m.Shutdown(-1)
	loop, _ := m.Ensure(context.Background())

	const n = 32
	var resolved atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			future, err := loop.Submit(context.Background(), func(ctx context.Context) (any, error) {
				return i, nil
			})
			if err != nil {
				t.Errorf("Submit: %v", err)
				return
			}
			select {
			case out := <-future:
				if out.Err == nil && out.Value == i {
					resolved.Add(1)
				}
			case <-time.After(2 * time.Second):
				t.Error("future never resolved")
			}
		}(i)
	}
	wg.Wait()

	if got := resolved.Load(); got != n {
		t.Fatalf("resolved %d of %d submissions", got, n)
	}
}

func TestPanickedOpResolvesFuture(t *testing.T) {
	m := NewManager()
	defer m.Shutdown(-1)
	loop, _ := m.Ensure(context.Background())

	future, err := loop.Submit(context.Background(), func(ctx context.Context) (any, error) {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case out := <-future:
		if out.Err == nil || !strings.Contains(out.Err.Error(), "panicked") {
			t.Fatalf("err = %v, want panic outcome", out.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("future never resolved after panic")
	}
}

func TestAbandonedFutureDoesNotBlockLoop(t *testing.T) {
	m := NewManager()
	defer m.Shutdown(-1)
	loop, _ := m.Ensure(context.Background())

	// Submit, walk away without reading the future, then prove the loop
	// still serves new work.
	release := make(chan struct{})
	_, err := loop.Submit(context.Background(), func(ctx context.Context) (any, error) {
		<-release
		return "abandoned", nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	close(release)

	future, err := loop.Submit(context.Background(), func(ctx context.Context) (any, error) {
		return "next", nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case out := <-future:
		if out.Value != "next" {
			t.Fatalf("value = %v, want next", out.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop stopped serving after an abandoned future")
	}
}

func TestManagerCurrent(t *testing.T) {
	m := NewManager()
	if _, ok := m.Current(); ok {
		t.Fatal("Current should report no loop before Ensure")
	}

	loop, _ := m.Ensure(context.Background())
	got, ok := m.Current()
	if !ok || got != loop {
		t.Fatal("Current should return the ensured loop")
	}

	m.Shutdown(-1)
	if _, ok := m.Current(); ok {
		t.Fatal("Current should report no loop after shutdown")
	}
}

func BenchmarkSubmit(b *testing.B) {
	m := NewManager()
	defer m.Shutdown(-1)
	loop, _ := m.Ensure(context.Background())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		future, err := loop.Submit(context.Background(), func(ctx context.Context) (any, error) {
			return nil, nil
		})
		if err != nil {
			b.Fatal(err)
		}
		<-future
	}
}
