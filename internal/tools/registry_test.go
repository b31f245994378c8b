package tools

import (
	"context"
	"strings"
	"testing"
)

// mockTool is a minimal tool for testing the registry.
type mockTool struct {
	name   string
	execFn func(ctx context.Context, args map[string]interface{}) *Result
}

func (m *mockTool) Name() string        { return m.name }
func (m *mockTool) Description() string { return "mock tool" }
func (m *mockTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (m *mockTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if m.execFn != nil {
		return m.execFn(ctx, args)
	}
	return NewResult(successEnvelope("ok", map[string]any{}), "ok")
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	tool := &mockTool{name: "test_tool"}
	reg.Register(tool)

	got, ok := reg.Get("test_tool")
	if !ok {
		t.Fatal("tool not found")
	}
	if got.Name() != "test_tool" {
		t.Errorf("expected test_tool, got %s", got.Name())
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.Get("nonexistent")
	if ok {
		t.Error("expected tool not found")
	}
}

func TestRegistry_Unregister(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&mockTool{name: "t1"})
	reg.Unregister("t1")
	if _, ok := reg.Get("t1"); ok {
		t.Error("tool should be unregistered")
	}
}

func TestRegistry_RegisterAll(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterAll(&mockTool{name: "t1"}, &mockTool{name: "t2"}, &mockTool{name: "t3"})
	if reg.Count() != 3 {
		t.Errorf("expected 3, got %d", reg.Count())
	}
}

func TestRegistry_Count(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&mockTool{name: "t1"})
	reg.Register(&mockTool{name: "t2"})
	if reg.Count() != 2 {
		t.Errorf("expected 2, got %d", reg.Count())
	}
}

func TestRegistry_ExecuteUnknownTool(t *testing.T) {
	reg := NewRegistry()
	result := reg.Execute(context.Background(), "missing", nil)
	if !result.IsError {
		t.Error("expected error result for unknown tool")
	}
}

func TestRegistry_ExecuteScrubsTextOnly(t *testing.T) {
	reg := NewRegistry()
	leaked := "stored key: sk-abcdefghij1234567890abcd"
	reg.Register(&mockTool{
		name: "leaky_tool",
		execFn: func(ctx context.Context, args map[string]interface{}) *Result {
			return NewResult(successEnvelope("ok", map[string]any{}), leaked)
		},
	})

	result := reg.Execute(context.Background(), "leaky_tool", nil)
	if result.Text == leaked {
		t.Error("expected credential to be scrubbed from text")
	}
	if !strings.Contains(result.Text, "[REDACTED]") {
		t.Errorf("expected [REDACTED] in text, got %q", result.Text)
	}
	if strings.Contains(result.JSON, "[REDACTED]") {
		t.Errorf("JSON envelope must not be rewritten, got %q", result.JSON)
	}
}

func TestRegistry_ExecutePassesArgs(t *testing.T) {
	reg := NewRegistry()
	var gotQuery string
	reg.Register(&mockTool{
		name: "echo_tool",
		execFn: func(ctx context.Context, args map[string]interface{}) *Result {
			gotQuery, _ = args["query"].(string)
			return NewResult(successEnvelope("ok", map[string]any{}), "done")
		},
	})

	result := reg.Execute(context.Background(), "echo_tool", map[string]interface{}{"query": "tea"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Text)
	}
	if gotQuery != "tea" {
		t.Errorf("expected query tea, got %q", gotQuery)
	}
}
