package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/engramhq/engramd/internal/client"
)

// GetMemoryHistoryTool returns the change log of one memory.
type GetMemoryHistoryTool struct {
	source ClientSource
}

func NewGetMemoryHistoryTool(source ClientSource) *GetMemoryHistoryTool {
	return &GetMemoryHistoryTool{source: source}
}

func (t *GetMemoryHistoryTool) Name() string { return "get_memory_history" }

func (t *GetMemoryHistoryTool) Description() string {
	return "Retrieve the full change history of a memory by ID: every ADD, UPDATE, and DELETE event with the old and new content and timestamps, oldest first. Works for deleted memories too, which is the way to inspect content that no longer exists. On timeout or backend failure this returns an empty list rather than an error."
}

func (t *GetMemoryHistoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"memory_id": map[string]interface{}{
				"type":        "string",
				"description": "ID of the memory whose history to retrieve.",
			},
			"timeout": map[string]interface{}{
				"type":        "number",
				"description": "Seconds to wait before degrading to an empty list (default: 30).",
			},
		},
		"required": []string{"memory_id"},
	}
}

func (t *GetMemoryHistoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	memoryID := stringArg(args, "memory_id")
	if memoryID == "" {
		return historyValidationError("memory_id is required")
	}

	cli, err := t.source.Client(ctx)
	if err != nil {
		return historyError("Error: " + err.Error()).WithError(err)
	}
	reply, err := cli.History(ctx, memoryID, timeoutArg(args, "timeout", client.DefaultReadTimeout))
	if err != nil {
		return historyError("Error: " + err.Error()).WithError(err)
	}

	records := reply.Records
	if records == nil {
		records = []client.HistoryRecord{}
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Found %d history records for memory %s\n\n", len(records), memoryID)
	for i, h := range records {
		fmt.Fprintf(&text, "%d. Memory ID: %s\n   Old Memory: %s\n   New Memory: %s\n   Event: %s\n   Created: %s\n   Updated: %s\n   Is Deleted: %t\n\n",
			i+1, h.MemoryID, h.OldMemory, h.NewMemory, h.Event, h.CreatedAt, h.UpdatedAt, h.IsDeleted)
	}

	return NewResult(successEnvelope(map[string]any{"memory_id": memoryID}, records), text.String())
}

func historyValidationError(message string) *Result {
	return &Result{
		JSON:    errorEnvelope(message, []any{}),
		Text:    "Error: " + message,
		IsError: true,
	}
}

func historyError(message string) *Result {
	return &Result{
		JSON:    errorEnvelope(message, []any{}),
		Text:    "Failed to get memory history: " + message,
		IsError: true,
	}
}
