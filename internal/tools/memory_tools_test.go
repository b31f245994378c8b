package tools

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/engramhq/engramd/internal/bridge"
	"github.com/engramhq/engramd/internal/client"
	"github.com/engramhq/engramd/internal/memdb"
)

// stubEngine backs tool tests with canned data behind a real bridged client.
type stubEngine struct {
	memories map[string]memdb.Memory
	searched []memdb.Memory
	events   []memdb.Event
	history  []memdb.HistoryEntry

	deleteAllCalls atomic.Int32
}

func (s *stubEngine) Add(ctx context.Context, messages []memdb.Message, scope memdb.Scope, metadata map[string]any) ([]memdb.Event, error) {
	return s.events, nil
}

func (s *stubEngine) Search(ctx context.Context, query string, scope memdb.Scope, limit int, filter memdb.Filter) ([]memdb.Memory, error) {
	return s.searched, nil
}

func (s *stubEngine) Get(ctx context.Context, id string) (*memdb.Memory, error) {
	m, ok := s.memories[id]
	if !ok {
		return nil, memdb.ErrNotFound
	}
	return &m, nil
}

func (s *stubEngine) GetAll(ctx context.Context, scope memdb.Scope, filter memdb.Filter, limit int) ([]memdb.Memory, error) {
	return s.searched, nil
}

func (s *stubEngine) Update(ctx context.Context, id, text string, metadata map[string]any) (*memdb.Memory, error) {
	m, ok := s.memories[id]
	if !ok {
		return nil, memdb.ErrNotFound
	}
	m.Text = text
	m.UpdatedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.memories[id] = m
	return &m, nil
}

func (s *stubEngine) Delete(ctx context.Context, id string) (*memdb.Memory, error) {
	m, ok := s.memories[id]
	if !ok {
		return nil, memdb.ErrNotFound
	}
	delete(s.memories, id)
	return &m, nil
}

func (s *stubEngine) DeleteAll(ctx context.Context, scope memdb.Scope) (int, error) {
	s.deleteAllCalls.Add(1)
	return len(s.memories), nil
}

func (s *stubEngine) History(ctx context.Context, id string) ([]memdb.HistoryEntry, error) {
	return s.history, nil
}

func (s *stubEngine) Ping(ctx context.Context) error { return nil }
func (s *stubEngine) Close() error                   { return nil }

func newToolSource(t *testing.T, eng *stubEngine) ClientSource {
	t.Helper()
	loops := bridge.NewManager()
	t.Cleanup(func() { loops.Shutdown(time.Second) })
	cli := client.New(loops, "tool-test", func(ctx context.Context) (client.Engine, error) {
		return eng, nil
	})
	t.Cleanup(func() { cli.Close(time.Second) })
	return StaticSource(cli)
}

func pollUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestAddMemoryTool_RequiresUserID(t *testing.T) {
	tool := NewAddMemoryTool(newToolSource(t, &stubEngine{}))
	result := tool.Execute(context.Background(), map[string]interface{}{"user": "hello"})
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if result.Text != "Failed to add memory: user_id is required" {
		t.Errorf("unexpected text: %q", result.Text)
	}
}

func TestAddMemoryTool_SkipsEmptyContent(t *testing.T) {
	tool := NewAddMemoryTool(newToolSource(t, &stubEngine{}))
	result := tool.Execute(context.Background(), map[string]interface{}{"user_id": "alice"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if !strings.Contains(result.JSON, `"event":"SKIP"`) {
		t.Errorf("expected SKIP sentinel, got %s", result.JSON)
	}
	if !strings.Contains(result.Text, "skipped") {
		t.Errorf("unexpected text: %q", result.Text)
	}
}

func TestAddMemoryTool_StoresMessages(t *testing.T) {
	eng := &stubEngine{events: []memdb.Event{{ID: "m1", Memory: "likes tea", Event: memdb.EventAdd}}}
	tool := NewAddMemoryTool(newToolSource(t, eng))

	result := tool.Execute(context.Background(), map[string]interface{}{
		"user_id":   "alice",
		"user":      "I like tea",
		"assistant": "Noted!",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if !strings.Contains(result.JSON, `"status":"SUCCESS"`) || !strings.Contains(result.JSON, `"event":"ADD"`) {
		t.Errorf("unexpected JSON: %s", result.JSON)
	}
	if !strings.Contains(result.Text, "Memory added successfully") ||
		!strings.Contains(result.Text, "- user: I like tea") ||
		!strings.Contains(result.Text, "- assistant: Noted!") {
		t.Errorf("unexpected text: %q", result.Text)
	}
}

func TestAddMemoryTool_AsyncAccepted(t *testing.T) {
	eng := &stubEngine{events: []memdb.Event{{Event: memdb.EventAdd}}}
	tool := NewAddMemoryTool(newToolSource(t, eng))

	result := tool.Execute(context.Background(), map[string]interface{}{
		"user_id":    "alice",
		"user":       "I like tea",
		"async_mode": true,
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if !strings.Contains(result.JSON, `"event":"ACCEPT"`) {
		t.Errorf("expected ACCEPT sentinel, got %s", result.JSON)
	}
	if result.Text != "Asynchronous memory addition has been accepted." {
		t.Errorf("unexpected text: %q", result.Text)
	}
}

func TestSearchMemoryTool_Validation(t *testing.T) {
	tool := NewSearchMemoryTool(newToolSource(t, &stubEngine{}))

	result := tool.Execute(context.Background(), map[string]interface{}{"user_id": "alice"})
	if !result.IsError || result.Text != "Failed to search memory: query is required" {
		t.Errorf("unexpected result: %+v", result)
	}

	result = tool.Execute(context.Background(), map[string]interface{}{"query": "tea"})
	if !result.IsError || result.Text != "Failed to search memory: user_id is required" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestSearchMemoryTool_BadFilters(t *testing.T) {
	tool := NewSearchMemoryTool(newToolSource(t, &stubEngine{}))
	result := tool.Execute(context.Background(), map[string]interface{}{
		"query":   "tea",
		"user_id": "alice",
		"filters": "{not json",
	})
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(result.Text, "Failed to search memory:") {
		t.Errorf("unexpected text: %q", result.Text)
	}
}

func TestSearchMemoryTool_RendersResults(t *testing.T) {
	eng := &stubEngine{searched: []memdb.Memory{
		{ID: "m1", Text: "prefers oolong tea", Score: 0.91, Metadata: map[string]any{"category": "food"}},
		{ID: "m2", Text: "lives in Hanoi", Score: 0.42},
	}}
	tool := NewSearchMemoryTool(newToolSource(t, eng))

	result := tool.Execute(context.Background(), map[string]interface{}{
		"query":   "tea preferences",
		"user_id": "alice",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if !strings.Contains(result.JSON, `"messages":"tea preferences"`) {
		t.Errorf("query echo missing: %s", result.JSON)
	}
	if !strings.Contains(result.Text, "1. Memory: prefers oolong tea") ||
		!strings.Contains(result.Text, "Score: 0.91") ||
		!strings.Contains(result.Text, `Metadata: {"category":"food"}`) {
		t.Errorf("unexpected text: %q", result.Text)
	}
	if !strings.Contains(result.Text, "2. Memory: lives in Hanoi") {
		t.Errorf("second hit missing: %q", result.Text)
	}
}

func TestSearchMemoryTool_EmptyResults(t *testing.T) {
	tool := NewSearchMemoryTool(newToolSource(t, &stubEngine{}))
	result := tool.Execute(context.Background(), map[string]interface{}{
		"query":   "tea",
		"user_id": "alice",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if !strings.Contains(result.Text, "No results found.") {
		t.Errorf("unexpected text: %q", result.Text)
	}
	if !strings.Contains(result.JSON, `"results":[]`) {
		t.Errorf("unexpected JSON: %s", result.JSON)
	}
}

func TestGetMemoryTool_NotFound(t *testing.T) {
	tool := NewGetMemoryTool(newToolSource(t, &stubEngine{memories: map[string]memdb.Memory{}}))
	result := tool.Execute(context.Background(), map[string]interface{}{"memory_id": "ghost"})
	if !result.IsError {
		t.Fatal("expected error result")
	}
	want := `{"status":"ERROR","messages":"Memory not found: ghost","results":{}}`
	if result.JSON != want {
		t.Errorf("JSON = %s, want %s", result.JSON, want)
	}
	if result.Text != "Error: Memory not found: ghost" {
		t.Errorf("unexpected text: %q", result.Text)
	}
}

func TestGetMemoryTool_RendersDetails(t *testing.T) {
	created := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	eng := &stubEngine{memories: map[string]memdb.Memory{
		"m1": {ID: "m1", Text: "prefers window seats", CreatedAt: created, UpdatedAt: created},
	}}
	tool := NewGetMemoryTool(newToolSource(t, eng))

	result := tool.Execute(context.Background(), map[string]interface{}{"memory_id": "m1"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if !strings.Contains(result.Text, "Memory Details:") ||
		!strings.Contains(result.Text, "ID: m1") ||
		!strings.Contains(result.Text, "Memory: prefers window seats") ||
		!strings.Contains(result.Text, "Created: 2025-03-14T09:00:00Z") {
		t.Errorf("unexpected text: %q", result.Text)
	}
	if !strings.Contains(result.JSON, `"messages":{"memory_id":"m1"}`) {
		t.Errorf("memory_id echo missing: %s", result.JSON)
	}
}

func TestGetAllMemoriesTool_RequiresUserID(t *testing.T) {
	tool := NewGetAllMemoriesTool(newToolSource(t, &stubEngine{}))
	result := tool.Execute(context.Background(), map[string]interface{}{})
	if !result.IsError || result.Text != "Error: user_id is required" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestGetAllMemoriesTool_ListsMemories(t *testing.T) {
	eng := &stubEngine{searched: []memdb.Memory{
		{ID: "m1", Text: "fact one"},
		{ID: "m2", Text: "fact two"},
	}}
	tool := NewGetAllMemoriesTool(newToolSource(t, eng))

	result := tool.Execute(context.Background(), map[string]interface{}{
		"user_id":  "alice",
		"agent_id": "helper",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if !strings.Contains(result.Text, "Found 2 memories") ||
		!strings.Contains(result.Text, "1. ID: m1") ||
		!strings.Contains(result.Text, "2. ID: m2") {
		t.Errorf("unexpected text: %q", result.Text)
	}
	if !strings.Contains(result.JSON, `"agent_id":"helper"`) {
		t.Errorf("scope echo missing: %s", result.JSON)
	}
}

func TestUpdateMemoryTool_Validation(t *testing.T) {
	tool := NewUpdateMemoryTool(newToolSource(t, &stubEngine{}))

	result := tool.Execute(context.Background(), map[string]interface{}{"text": "new"})
	if !result.IsError || result.Text != "Failed to update memory: memory_id is required" {
		t.Errorf("unexpected result: %+v", result)
	}

	result = tool.Execute(context.Background(), map[string]interface{}{"memory_id": "m1"})
	if !result.IsError || result.Text != "Failed to update memory: text is required" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestUpdateMemoryTool_NotFound(t *testing.T) {
	tool := NewUpdateMemoryTool(newToolSource(t, &stubEngine{memories: map[string]memdb.Memory{}}))
	result := tool.Execute(context.Background(), map[string]interface{}{
		"memory_id": "ghost",
		"text":      "new content",
	})
	if !result.IsError || result.Text != "Error: Memory not found: ghost" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestUpdateMemoryTool_Rewrites(t *testing.T) {
	eng := &stubEngine{memories: map[string]memdb.Memory{
		"m1": {ID: "m1", Text: "drinks coffee"},
	}}
	tool := NewUpdateMemoryTool(newToolSource(t, eng))

	result := tool.Execute(context.Background(), map[string]interface{}{
		"memory_id": "m1",
		"text":      "drinks tea now",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if !strings.Contains(result.Text, "Memory updated successfully!") ||
		!strings.Contains(result.Text, "Updated Memory: drinks tea now") {
		t.Errorf("unexpected text: %q", result.Text)
	}
	if !strings.Contains(result.JSON, `"memory":"drinks tea now"`) {
		t.Errorf("unexpected JSON: %s", result.JSON)
	}
}

func TestUpdateMemoryTool_AsyncAccepted(t *testing.T) {
	eng := &stubEngine{memories: map[string]memdb.Memory{"m1": {ID: "m1", Text: "old"}}}
	tool := NewUpdateMemoryTool(newToolSource(t, eng))

	result := tool.Execute(context.Background(), map[string]interface{}{
		"memory_id":  "m1",
		"text":       "new",
		"async_mode": true,
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if !strings.Contains(result.JSON, "Memory update has been accepted") {
		t.Errorf("acceptance missing: %s", result.JSON)
	}
}

func TestDeleteMemoryTool_NotFound(t *testing.T) {
	tool := NewDeleteMemoryTool(newToolSource(t, &stubEngine{memories: map[string]memdb.Memory{}}))
	result := tool.Execute(context.Background(), map[string]interface{}{"memory_id": "ghost"})
	if !result.IsError || result.Text != "Error: Memory not found: ghost" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestDeleteMemoryTool_Deletes(t *testing.T) {
	eng := &stubEngine{memories: map[string]memdb.Memory{"m1": {ID: "m1", Text: "stale"}}}
	tool := NewDeleteMemoryTool(newToolSource(t, eng))

	result := tool.Execute(context.Background(), map[string]interface{}{"memory_id": "m1"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if result.Text != "Memory m1 deleted successfully!" {
		t.Errorf("unexpected text: %q", result.Text)
	}
}

func TestDeleteMemoryTool_AsyncAccepted(t *testing.T) {
	eng := &stubEngine{memories: map[string]memdb.Memory{"m1": {ID: "m1"}}}
	tool := NewDeleteMemoryTool(newToolSource(t, eng))

	result := tool.Execute(context.Background(), map[string]interface{}{
		"memory_id":  "m1",
		"async_mode": true,
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if !strings.Contains(result.JSON, "Memory deletion has been accepted") {
		t.Errorf("acceptance missing: %s", result.JSON)
	}
	if result.Text != "Asynchronous memory deletion has been accepted." {
		t.Errorf("unexpected text: %q", result.Text)
	}
}

func TestDeleteAllMemoriesTool_RequiresUserID(t *testing.T) {
	tool := NewDeleteAllMemoriesTool(newToolSource(t, &stubEngine{}))
	result := tool.Execute(context.Background(), map[string]interface{}{})
	if !result.IsError || result.Text != "Error: user_id is required" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestDeleteAllMemoriesTool_Accepted(t *testing.T) {
	eng := &stubEngine{memories: map[string]memdb.Memory{"m1": {ID: "m1"}}}
	tool := NewDeleteAllMemoriesTool(newToolSource(t, eng))

	result := tool.Execute(context.Background(), map[string]interface{}{"user_id": "alice"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	want := `{"status":"SUCCESS","messages":{"filters":{"user_id":"alice"}},"results":{"message":"Batch memory deletion has been accepted"}}`
	if result.JSON != want {
		t.Errorf("JSON = %s, want %s", result.JSON, want)
	}
	if result.Text != "Asynchronous batch memory deletion has been accepted." {
		t.Errorf("unexpected text: %q", result.Text)
	}
	pollUntil(t, func() bool { return eng.deleteAllCalls.Load() == 1 })
}

func TestGetMemoryHistoryTool_RendersTrail(t *testing.T) {
	eng := &stubEngine{history: []memdb.HistoryEntry{
		{MemoryID: "m1", NewMemory: "v1", Event: memdb.EventAdd},
		{MemoryID: "m1", OldMemory: "v1", NewMemory: "v2", Event: memdb.EventUpdate},
		{MemoryID: "m1", OldMemory: "v2", Event: memdb.EventDelete, IsDeleted: true},
	}}
	tool := NewGetMemoryHistoryTool(newToolSource(t, eng))

	result := tool.Execute(context.Background(), map[string]interface{}{"memory_id": "m1"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if !strings.Contains(result.Text, "Found 3 history records for memory m1") ||
		!strings.Contains(result.Text, "Event: UPDATE") ||
		!strings.Contains(result.Text, "Is Deleted: true") {
		t.Errorf("unexpected text: %q", result.Text)
	}
	if !strings.Contains(result.JSON, `"event":"DELETE"`) {
		t.Errorf("unexpected JSON: %s", result.JSON)
	}
}

func TestGetMemoryHistoryTool_EmptyTrail(t *testing.T) {
	tool := NewGetMemoryHistoryTool(newToolSource(t, &stubEngine{}))
	result := tool.Execute(context.Background(), map[string]interface{}{"memory_id": "m1"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if !strings.Contains(result.Text, "Found 0 history records") {
		t.Errorf("unexpected text: %q", result.Text)
	}
	if !strings.Contains(result.JSON, `"results":[]`) {
		t.Errorf("unexpected JSON: %s", result.JSON)
	}
}
