package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/engramhq/engramd/internal/client"
	"github.com/engramhq/engramd/internal/memdb"
)

// UpdateMemoryTool rewrites the content of an existing memory.
type UpdateMemoryTool struct {
	source ClientSource
}

func NewUpdateMemoryTool(source ClientSource) *UpdateMemoryTool {
	return &UpdateMemoryTool{source: source}
}

func (t *UpdateMemoryTool) Name() string { return "update_memory" }

func (t *UpdateMemoryTool) Description() string {
	return "Replace the content of an existing memory by ID. The previous content is preserved in the memory's history. The memory must exist; updating a missing ID is an error, not an upsert. Set async_mode to enqueue the rewrite and return immediately with an acceptance."
}

func (t *UpdateMemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"memory_id": map[string]interface{}{
				"type":        "string",
				"description": "ID of the memory to update.",
			},
			"text": map[string]interface{}{
				"type":        "string",
				"description": "New content for the memory.",
			},
			"metadata": map[string]interface{}{
				"type":        "string",
				"description": "Optional replacement metadata as a JSON object. Omit to keep the existing metadata.",
			},
			"async_mode": map[string]interface{}{
				"type":        "boolean",
				"description": "Enqueue the rewrite and return an acceptance instead of waiting (default: false).",
			},
		},
		"required": []string{"memory_id", "text"},
	}
}

func (t *UpdateMemoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	memoryID := stringArg(args, "memory_id")
	if memoryID == "" {
		return updateError("memory_id is required")
	}
	text := stringArg(args, "text")
	if text == "" {
		return updateError("text is required")
	}

	cli, err := t.source.Client(ctx)
	if err != nil {
		return updateError("Error: " + err.Error()).WithError(err)
	}
	reply, err := cli.Update(ctx, memoryID, text, metadataArg(args, "metadata"), boolArg(args, "async_mode"))
	if err != nil {
		switch {
		case errors.Is(err, client.ErrGone):
			return updateNotFound("Memory not found or already deleted: " + memoryID)
		case errors.Is(err, memdb.ErrNotFound):
			return updateNotFound("Memory not found: " + memoryID)
		}
		return updateError("Error: " + err.Error()).WithError(err)
	}

	if reply.Accepted {
		return NewResult(
			successEnvelope(map[string]any{"memory_id": memoryID}, acceptNotice{Message: client.UpdateAcceptedMessage}),
			"Asynchronous memory update has been accepted.",
		)
	}

	item := memoryItemFrom(*reply.Record)

	var out strings.Builder
	out.WriteString("Memory updated successfully!\n\n")
	if item.ID != "" {
		fmt.Fprintf(&out, "ID: %s\n", item.ID)
	}
	if item.Memory != "" {
		fmt.Fprintf(&out, "Updated Memory: %s\n", item.Memory)
	}
	if item.UpdatedAt != "" {
		fmt.Fprintf(&out, "Updated At: %s\n", item.UpdatedAt)
	}

	return NewResult(successEnvelope(map[string]any{"memory_id": memoryID}, item), out.String())
}

func updateNotFound(message string) *Result {
	return &Result{
		JSON:    errorEnvelope(message, map[string]any{}),
		Text:    "Error: " + message,
		IsError: true,
	}
}

func updateError(message string) *Result {
	return &Result{
		JSON:    errorEnvelope(message, map[string]any{}),
		Text:    "Failed to update memory: " + message,
		IsError: true,
	}
}
