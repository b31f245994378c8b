package tools

import (
	"context"

	"github.com/engramhq/engramd/internal/client"
)

// DeleteAllMemoriesTool wipes every memory matching a scope. The work is
// always enqueued fire-and-forget; callers get an acceptance, not a count.
type DeleteAllMemoriesTool struct {
	source ClientSource
}

func NewDeleteAllMemoriesTool(source ClientSource) *DeleteAllMemoriesTool {
	return &DeleteAllMemoriesTool{source: source}
}

func (t *DeleteAllMemoriesTool) Name() string { return "delete_all_memories" }

func (t *DeleteAllMemoriesTool) Description() string {
	return "Delete ALL memories for a user, optionally narrowed by agent/run scope. This is irreversible and runs in the background: the tool returns an acceptance immediately and the deletion completes asynchronously. At least the user_id is required; an unscoped wipe is rejected."
}

func (t *DeleteAllMemoriesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"user_id": map[string]interface{}{
				"type":        "string",
				"description": "ID of the user whose memories to delete.",
			},
			"agent_id": map[string]interface{}{
				"type":        "string",
				"description": "Optional agent ID to narrow the deletion.",
			},
			"run_id": map[string]interface{}{
				"type":        "string",
				"description": "Optional run ID to narrow the deletion.",
			},
		},
		"required": []string{"user_id"},
	}
}

func (t *DeleteAllMemoriesTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	scope := scopeArg(args)
	if scope.UserID == "" {
		return deleteAllValidationError("user_id is required")
	}

	params := map[string]any{"user_id": scope.UserID}
	if scope.AgentID != "" {
		params["agent_id"] = scope.AgentID
	}
	if scope.RunID != "" {
		params["run_id"] = scope.RunID
	}

	cli, err := t.source.Client(ctx)
	if err != nil {
		return deleteAllError("Error: " + err.Error()).WithError(err)
	}
	if _, err := cli.DeleteAll(ctx, scope); err != nil {
		return deleteAllError("Error: " + err.Error()).WithError(err)
	}

	return NewResult(
		successEnvelope(map[string]any{"filters": params}, acceptNotice{Message: client.DeleteAllAcceptedMessage}),
		"Asynchronous batch memory deletion has been accepted.",
	)
}

func deleteAllValidationError(message string) *Result {
	return &Result{
		JSON:    errorEnvelope(message, []any{}),
		Text:    "Error: " + message,
		IsError: true,
	}
}

func deleteAllError(message string) *Result {
	return &Result{
		JSON:    errorEnvelope(message, []any{}),
		Text:    "Failed to delete memories: " + message,
		IsError: true,
	}
}
