package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/engramhq/engramd/internal/client"
)

// GetAllMemoriesTool lists every memory in a scope, optionally filtered.
type GetAllMemoriesTool struct {
	source ClientSource
}

func NewGetAllMemoriesTool(source ClientSource) *GetAllMemoriesTool {
	return &GetAllMemoriesTool{source: source}
}

func (t *GetAllMemoriesTool) Name() string { return "get_all_memories" }

func (t *GetAllMemoriesTool) Description() string {
	return "List all memories stored for a user, newest first, optionally narrowed by agent/run scope, a result limit, and advanced metadata filters. Use search_memory instead when looking for memories about a topic; this tool enumerates rather than ranks. On timeout or backend failure this returns an empty list rather than an error."
}

func (t *GetAllMemoriesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"user_id": map[string]interface{}{
				"type":        "string",
				"description": "ID of the user whose memories to list.",
			},
			"agent_id": map[string]interface{}{
				"type":        "string",
				"description": "Optional agent ID to narrow the listing.",
			},
			"run_id": map[string]interface{}{
				"type":        "string",
				"description": "Optional run ID to narrow the listing.",
			},
			"limit": map[string]interface{}{
				"type":        "number",
				"description": "Maximum number of memories to return. Omit for no limit.",
			},
			"filters": map[string]interface{}{
				"type":        "string",
				"description": "Optional advanced metadata filter as a JSON object.",
			},
			"timeout": map[string]interface{}{
				"type":        "number",
				"description": "Seconds to wait before degrading to an empty list (default: 30).",
			},
		},
		"required": []string{"user_id"},
	}
}

func (t *GetAllMemoriesTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	scope := scopeArg(args)
	if scope.UserID == "" {
		return listValidationError("user_id is required")
	}
	filter, err := filterArg(args, "filters")
	if err != nil {
		return listValidationError(err.Error())
	}
	limit := intArg(args, "limit", 0)

	params := map[string]any{"user_id": scope.UserID}
	if scope.AgentID != "" {
		params["agent_id"] = scope.AgentID
	}
	if scope.RunID != "" {
		params["run_id"] = scope.RunID
	}
	if limit > 0 {
		params["limit"] = limit
	}
	if filter != nil {
		params["filters"] = filter
	}

	cli, err := t.source.Client(ctx)
	if err != nil {
		return listError("Error: " + err.Error()).WithError(err)
	}
	reply, err := cli.GetAll(ctx, scope, filter, limit, timeoutArg(args, "timeout", client.DefaultReadTimeout))
	if err != nil {
		return listError("Error: " + err.Error()).WithError(err)
	}

	items := memoryItems(reply.Records)

	var text strings.Builder
	fmt.Fprintf(&text, "Found %d memories\n\n", len(items))
	for i, item := range items {
		fmt.Fprintf(&text, "%d. ID: %s\n   Memory: %s\n   Metadata: %s\n   Created: %s\n   Updated: %s\n\n",
			i+1, item.ID, item.Memory, formatMetadata(item.Metadata), item.CreatedAt, item.UpdatedAt)
	}

	return NewResult(successEnvelope(params, items), text.String())
}

func listValidationError(message string) *Result {
	return &Result{
		JSON:    errorEnvelope(message, []any{}),
		Text:    "Error: " + message,
		IsError: true,
	}
}

func listError(message string) *Result {
	return &Result{
		JSON:    errorEnvelope(message, []any{}),
		Text:    "Failed to get memories: " + message,
		IsError: true,
	}
}
