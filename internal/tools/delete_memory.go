package tools

import (
	"context"
	"errors"

	"github.com/engramhq/engramd/internal/client"
	"github.com/engramhq/engramd/internal/memdb"
)

// DeleteMemoryTool removes a single memory by its ID.
type DeleteMemoryTool struct {
	source ClientSource
}

func NewDeleteMemoryTool(source ClientSource) *DeleteMemoryTool {
	return &DeleteMemoryTool{source: source}
}

func (t *DeleteMemoryTool) Name() string { return "delete_memory" }

func (t *DeleteMemoryTool) Description() string {
	return "Delete one memory by ID. The deletion is recorded in the memory's history. Deleting a missing ID is an error. Set async_mode to enqueue the deletion and return immediately with an acceptance; the async path skips the existence check."
}

func (t *DeleteMemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"memory_id": map[string]interface{}{
				"type":        "string",
				"description": "ID of the memory to delete.",
			},
			"async_mode": map[string]interface{}{
				"type":        "boolean",
				"description": "Enqueue the deletion and return an acceptance instead of waiting (default: false).",
			},
		},
		"required": []string{"memory_id"},
	}
}

func (t *DeleteMemoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	memoryID := stringArg(args, "memory_id")
	if memoryID == "" {
		return deleteNotFound("memory_id is required")
	}

	cli, err := t.source.Client(ctx)
	if err != nil {
		return deleteError("Error: " + err.Error()).WithError(err)
	}
	reply, err := cli.Delete(ctx, memoryID, boolArg(args, "async_mode"))
	if err != nil {
		switch {
		case errors.Is(err, client.ErrGone):
			return deleteNotFound("Memory not found or already deleted: " + memoryID)
		case errors.Is(err, memdb.ErrNotFound):
			return deleteNotFound("Memory not found: " + memoryID)
		}
		return deleteError("Error: " + err.Error()).WithError(err)
	}

	if reply.Accepted {
		return NewResult(
			successEnvelope(map[string]any{"memory_id": memoryID}, acceptNotice{Message: client.DeleteAcceptedMessage}),
			"Asynchronous memory deletion has been accepted.",
		)
	}

	return NewResult(
		successEnvelope(map[string]any{"memory_id": memoryID}, memoryItemFrom(*reply.Record)),
		"Memory "+memoryID+" deleted successfully!",
	)
}

func deleteNotFound(message string) *Result {
	return &Result{
		JSON:    errorEnvelope(message, map[string]any{}),
		Text:    "Error: " + message,
		IsError: true,
	}
}

func deleteError(message string) *Result {
	return &Result{
		JSON:    errorEnvelope(message, []any{}),
		Text:    "Failed to delete memory: " + message,
		IsError: true,
	}
}
