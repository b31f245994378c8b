package memdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/engramhq/engramd/internal/embed"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "memories.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	index, err := NewChromemIndex("", "")
	if err != nil {
		t.Fatalf("NewChromemIndex: %v", err)
	}
	e := NewEngine(store, index, &embed.Hash{Dim: 128})
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngineAddAndGet(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	events, err := e.Add(ctx, []Message{
		{Role: "user", Content: "I prefer aisle seats on long flights"},
	}, Scope{UserID: "alice"}, map[string]any{"topic": "travel"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(events) != 1 || events[0].Event != EventAdd {
		t.Fatalf("events = %+v", events)
	}

	got, err := e.Get(ctx, events[0].ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Text != "I prefer aisle seats on long flights" {
		t.Fatalf("text = %q", got.Text)
	}
	if got.Metadata["topic"] != "travel" {
		t.Fatalf("metadata = %v", got.Metadata)
	}
}

func TestEngineAddSkipsBlankMessages(t *testing.T) {
	e := newTestEngine(t)

	events, err := e.Add(context.Background(), []Message{
		{Role: "user", Content: "   "},
		{Role: "assistant", Content: "remember: passport expires in March"},
	}, Scope{UserID: "alice"}, nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %+v, want just the non-blank message", events)
	}
}

func TestEngineAddDeduplicates(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	scope := Scope{UserID: "alice"}

	first, err := e.Add(ctx, []Message{{Content: "allergic to peanuts"}}, scope, nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	second, err := e.Add(ctx, []Message{{Content: "allergic to peanuts"}}, scope, nil)
	if err != nil {
		t.Fatalf("Add again: %v", err)
	}

	if second[0].Event != EventNone {
		t.Fatalf("event = %s, want NONE", second[0].Event)
	}
	if second[0].ID != first[0].ID {
		t.Fatal("dedupe should surface the original id")
	}

	// NONE events leave no history trace.
	hist, _ := e.History(ctx, first[0].ID)
	if len(hist) != 1 {
		t.Fatalf("history rows = %d, want 1", len(hist))
	}
}

func TestEngineSearchScopedDescending(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	aliceNotes := []string{
		"loves hiking trails near Boulder",
		"asked about hiking trail difficulty ratings",
		"favorite hiking trails include the Mesa Trail",
		"wants trail running shoe recommendations",
		"planning a hiking trip in the Rockies",
		"enjoys mountain trails on weekends",
		"hiking gear wishlist: trekking poles",
	}
	for _, note := range aliceNotes {
		if _, err := e.Add(ctx, []Message{{Content: note}}, Scope{UserID: "alice123"}, nil); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	// Another user's hiking memories must stay invisible.
	if _, err := e.Add(ctx, []Message{{Content: "bob also loves hiking trails"}}, Scope{UserID: "bob"}, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := e.Search(ctx, "hiking trails", Scope{UserID: "alice123"}, 5, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(results) == 0 || len(results) > 5 {
		t.Fatalf("results = %d, want 1..5", len(results))
	}
	for i, r := range results {
		if r.Scope.UserID != "alice123" {
			t.Fatalf("result %d leaked from scope %q", i, r.Scope.UserID)
		}
		if i > 0 && results[i-1].Score < r.Score {
			t.Fatalf("scores not descending at %d: %f < %f", i, results[i-1].Score, r.Score)
		}
	}
}

func TestEngineSearchEmptyQuery(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Search(context.Background(), "  ", Scope{UserID: "alice"}, 5, nil); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestEngineSearchWithFilter(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	scope := Scope{UserID: "alice"}

	if _, err := e.Add(ctx, []Message{{Content: "hiking trip planned for June"}}, scope, map[string]any{"category": "travel"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Add(ctx, []Message{{Content: "hiking boots need resoling"}}, scope, map[string]any{"category": "errands"}); err != nil {
		t.Fatal(err)
	}

	results, err := e.Search(ctx, "hiking", scope, 5, Filter{"category": "travel"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Metadata["category"] != "travel" {
		t.Fatalf("filtered results = %+v", results)
	}
}

func TestEngineUpdateFlow(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	events, err := e.Add(ctx, []Message{{Content: "drinks coffee black"}}, Scope{UserID: "alice"}, nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	id := events[0].ID

	updated, err := e.Update(ctx, id, "switched to oat milk lattes", nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Text != "switched to oat milk lattes" {
		t.Fatalf("text = %q", updated.Text)
	}

	hist, err := e.History(ctx, id)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 || hist[1].Event != EventUpdate {
		t.Fatalf("history = %+v", hist)
	}
	if hist[1].OldMemory != "drinks coffee black" {
		t.Fatalf("old_memory = %q", hist[1].OldMemory)
	}

	if _, err := e.Update(ctx, "ghost", "text", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := e.Update(ctx, id, "   ", nil); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
}

func TestEngineDeleteFlow(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	events, _ := e.Add(ctx, []Message{{Content: "temporary note"}}, Scope{UserID: "alice"}, nil)
	id := events[0].ID

	deleted, err := e.Delete(ctx, id)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted.Text != "temporary note" {
		t.Fatalf("deleted text = %q", deleted.Text)
	}

	if _, err := e.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after delete", err)
	}
	if _, err := e.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}

	hist, _ := e.History(ctx, id)
	if len(hist) != 2 || !hist[1].IsDeleted {
		t.Fatalf("history after delete = %+v", hist)
	}
}

func TestEngineDeleteAll(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		if _, err := e.Add(ctx, []Message{{Content: text}}, Scope{UserID: "alice"}, nil); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := e.Add(ctx, []Message{{Content: "bob's note"}}, Scope{UserID: "bob"}, nil); err != nil {
		t.Fatal(err)
	}

	n, err := e.DeleteAll(ctx, Scope{UserID: "alice"})
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if n != 3 {
		t.Fatalf("deleted %d, want 3", n)
	}

	remaining, _ := e.GetAll(ctx, Scope{UserID: "bob"}, nil, 0)
	if len(remaining) != 1 {
		t.Fatalf("bob's memories = %d, want 1", len(remaining))
	}

	if _, err := e.DeleteAll(ctx, Scope{}); !errors.Is(err, ErrEmptyScope) {
		t.Fatalf("err = %v, want ErrEmptyScope", err)
	}
}

func TestEngineGetAllFilterAndLimit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	scope := Scope{UserID: "alice"}

	if _, err := e.Add(ctx, []Message{{Content: "likes jazz"}}, scope, map[string]any{"category": "music"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Add(ctx, []Message{{Content: "likes sushi"}}, scope, map[string]any{"category": "food"}); err != nil {
		t.Fatal(err)
	}

	all, err := e.GetAll(ctx, scope, nil, 0)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all = %d, want 2", len(all))
	}

	music, err := e.GetAll(ctx, scope, Filter{"category": "music"}, 0)
	if err != nil {
		t.Fatalf("GetAll filtered: %v", err)
	}
	if len(music) != 1 || music[0].Text != "likes jazz" {
		t.Fatalf("filtered = %+v", music)
	}

	one, _ := e.GetAll(ctx, scope, nil, 1)
	if len(one) != 1 {
		t.Fatalf("limited = %d, want 1", len(one))
	}
}
