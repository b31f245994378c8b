// Package mcpserver assembles the MCP server that exposes the memory
// tools over stdio. This is the single place where registry tools are
// adapted into MCP tool definitions.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/engramhq/engramd/internal/tools"
)

// Version is stamped at build time via -ldflags.
var Version = "0.2.0"

// New builds the MCP server and registers every tool from the registry.
// Tool execution stays inside the registry so tracing and logging apply
// to MCP calls the same way they apply to direct calls.
func New(reg *tools.Registry) *server.MCPServer {
	s := server.NewMCPServer(
		"engramd",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	all := reg.All()
	sort.Slice(all, func(i, j int) bool { return all[i].Name() < all[j].Name() })
	for _, t := range all {
		s.AddTool(definition(t), handler(reg, t.Name()))
	}
	return s
}

// ServeStdio runs the server over stdin/stdout until ctx is cancelled or
// the client closes the stream. Protocol frames own stdout; everything
// else the process says must go to stderr.
func ServeStdio(ctx context.Context, s *server.MCPServer) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))

	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("stdio serve: %w", err)
	}
	return nil
}

// definition converts a registry tool into an MCP tool declaration,
// lifting the JSON-schema parameter map into the typed input schema.
func definition(t tools.Tool) mcpgo.Tool {
	params := t.Parameters()

	schema := mcpgo.ToolInputSchema{Type: "object"}
	if typ, ok := params["type"].(string); ok && typ != "" {
		schema.Type = typ
	}
	if props, ok := params["properties"].(map[string]interface{}); ok {
		schema.Properties = props
	}
	schema.Required = requiredList(params["required"])

	return mcpgo.Tool{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: schema,
	}
}

// requiredList accepts both []string and the []interface{} shape that
// schemas decoded from JSON carry.
func requiredList(v interface{}) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, item := range req {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// handler adapts registry execution to the MCP call contract. Each call
// returns two text blocks: the JSON envelope first, then the
// human-readable rendering.
func handler(reg *tools.Registry, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		res := reg.Execute(ctx, name, req.GetArguments())

		content := []mcpgo.Content{textContent(res.JSON)}
		if res.Text != "" {
			content = append(content, textContent(res.Text))
		}
		return &mcpgo.CallToolResult{
			Content: content,
			IsError: res.IsError,
		}, nil
	}
}

func textContent(s string) mcpgo.TextContent {
	return mcpgo.TextContent{Type: "text", Text: s}
}

// serverInstructions returns the system instructions that tell the AI
// client how to use the memory tools effectively.
func serverInstructions() string {
	return `You have access to engramd, a long-term memory MCP server.

## WHEN TO USE MEMORY

Store a memory (add_memory) when the user:
- States a durable preference, fact, or decision about themselves
- Corrects something you previously remembered
- Asks you explicitly to remember something

Recall memories (search_memory) when:
- Starting a conversation with a returning user
- The user references past context you do not have
- A task would benefit from known preferences or prior decisions

## SCOPING

Every memory belongs to a user_id. Pass agent_id or run_id as well when
memories should be isolated per agent or per session. Use the same
identifiers on store and recall or you will not find what you saved.

## TOOLS

- add_memory: extract and store facts from conversation messages
- search_memory: semantic search over stored memories
- get_memory / get_all_memories: fetch one memory or list a scope
- update_memory / delete_memory / delete_all_memories: maintain memories
- get_memory_history: audit trail of changes to one memory

## ASYNC MODE

Mutating tools accept async_mode. When true the call returns an
acceptance marker immediately and the work completes in the background.
Use it when the user should not wait; never use it when the next step
depends on the result.

Results arrive as two text blocks: a JSON envelope with status and
structured results, then a human-readable summary.`
}
