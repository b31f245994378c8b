package tools

import (
	"context"
	"fmt"

	"github.com/engramhq/engramd/internal/client"
)

// GetMemoryTool fetches a single memory by its ID.
type GetMemoryTool struct {
	source ClientSource
}

func NewGetMemoryTool(source ClientSource) *GetMemoryTool {
	return &GetMemoryTool{source: source}
}

func (t *GetMemoryTool) Name() string { return "get_memory" }

func (t *GetMemoryTool) Description() string {
	return "Retrieve one memory by its ID, including its content, metadata, and timestamps. Use get_memory_history to see how the memory changed over time. A lookup that cannot reach the backend in time reports the memory as not found."
}

func (t *GetMemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"memory_id": map[string]interface{}{
				"type":        "string",
				"description": "ID of the memory to retrieve.",
			},
			"timeout": map[string]interface{}{
				"type":        "number",
				"description": "Seconds to wait for the lookup (default: 30).",
			},
		},
		"required": []string{"memory_id"},
	}
}

func (t *GetMemoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	memoryID := stringArg(args, "memory_id")
	if memoryID == "" {
		return getNotFoundResult("memory_id is required")
	}

	cli, err := t.source.Client(ctx)
	if err != nil {
		return getError("Error: " + err.Error()).WithError(err)
	}
	reply, err := cli.Get(ctx, memoryID, timeoutArg(args, "timeout", client.DefaultReadTimeout))
	if err != nil {
		return getError("Error: " + err.Error()).WithError(err)
	}
	if reply.Record == nil {
		return getNotFoundResult("Memory not found: " + memoryID)
	}

	item := memoryItemFrom(*reply.Record)
	text := fmt.Sprintf("Memory Details:\n\nID: %s\nMemory: %s\nMetadata: %s\nCreated: %s\nUpdated: %s\n",
		item.ID, item.Memory, formatMetadata(item.Metadata), item.CreatedAt, item.UpdatedAt)

	return NewResult(successEnvelope(map[string]any{"memory_id": memoryID}, item), text)
}

func getNotFoundResult(message string) *Result {
	return &Result{
		JSON:    errorEnvelope(message, map[string]any{}),
		Text:    "Error: " + message,
		IsError: true,
	}
}

func getError(message string) *Result {
	return &Result{
		JSON:    errorEnvelope(message, map[string]any{}),
		Text:    "Failed to get memory: " + message,
		IsError: true,
	}
}
