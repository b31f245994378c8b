package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/engramhq/engramd/internal/client"
	"github.com/engramhq/engramd/internal/memdb"
)

// AddMemoryTool stores conversational content as extracted memories.
type AddMemoryTool struct {
	source ClientSource
}

func NewAddMemoryTool(source ClientSource) *AddMemoryTool {
	return &AddMemoryTool{source: source}
}

func (t *AddMemoryTool) Name() string { return "add_memory" }

func (t *AddMemoryTool) Description() string {
	return "Store conversational content as long-term memories for a user. Facts are extracted from the messages and deduplicated against what is already known; re-adding identical content is a harmless no-op. Pass the conversation either as a messages list or as the user/assistant convenience fields. Empty content is skipped without touching the backend. Set async_mode to enqueue the extraction and return immediately with an acceptance."
}

func (t *AddMemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"messages": map[string]interface{}{
				"type":        "string",
				"description": "Content to remember: plain text, or a JSON list of {role, content} messages.",
			},
			"user": map[string]interface{}{
				"type":        "string",
				"description": "Convenience field: a single user message to remember.",
			},
			"assistant": map[string]interface{}{
				"type":        "string",
				"description": "Convenience field: a single assistant message to remember.",
			},
			"user_id": map[string]interface{}{
				"type":        "string",
				"description": "ID of the user the memories belong to.",
			},
			"agent_id": map[string]interface{}{
				"type":        "string",
				"description": "Optional agent ID to scope the memories to.",
			},
			"run_id": map[string]interface{}{
				"type":        "string",
				"description": "Optional run ID to scope the memories to.",
			},
			"metadata": map[string]interface{}{
				"type":        "string",
				"description": "Optional metadata to store with the memories, as a JSON object.",
			},
			"async_mode": map[string]interface{}{
				"type":        "boolean",
				"description": "Enqueue the extraction and return an acceptance instead of waiting (default: false).",
			},
			"timeout": map[string]interface{}{
				"type":        "number",
				"description": "Seconds to wait for the extraction when not async (default: 30).",
			},
		},
		"required": []string{"user_id"},
	}
}

func (t *AddMemoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	messages, err := messagesArg(args, "messages")
	if err != nil {
		return addError(err.Error())
	}
	if user := stringArg(args, "user"); user != "" {
		messages = append(messages, memdb.Message{Role: "user", Content: user})
	}
	if assistant := stringArg(args, "assistant"); assistant != "" {
		messages = append(messages, memdb.Message{Role: "assistant", Content: assistant})
	}
	scope := scopeArg(args)
	if scope.UserID == "" {
		return addError("user_id is required")
	}

	cli, err := t.source.Client(ctx)
	if err != nil {
		return addError("Error: " + err.Error()).WithError(err)
	}
	reply, err := cli.Add(ctx, client.AddRequest{
		Messages: messages,
		Scope:    scope,
		Metadata: metadataArg(args, "metadata"),
		Async:    boolArg(args, "async_mode"),
		Timeout:  timeoutArg(args, "timeout", client.DefaultReadTimeout),
	})
	if err != nil {
		return addError("Error: " + err.Error()).WithError(err)
	}

	if messages == nil {
		messages = []memdb.Message{}
	}
	return NewResult(successEnvelope(messages, reply.Events), addText(messages, reply))
}

func addText(messages []memdb.Message, reply client.AddReply) string {
	if reply.Accepted {
		return "Asynchronous memory addition has been accepted."
	}
	if reply.Degraded {
		return "Memory addition did not complete in time and may still be processing."
	}
	if len(reply.Events) == 1 && reply.Events[0].Event == client.EventSkip {
		return "Memory add skipped: no content provided."
	}
	var text strings.Builder
	text.WriteString("Memory added successfully\n\nAdded messages:\n")
	for _, m := range messages {
		fmt.Fprintf(&text, "- %s: %s\n", m.Role, m.Content)
	}
	return text.String()
}

func addError(message string) *Result {
	return &Result{
		JSON:    errorEnvelope(message, []any{}),
		Text:    "Failed to add memory: " + message,
		IsError: true,
	}
}
