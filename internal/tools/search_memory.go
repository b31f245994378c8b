package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/engramhq/engramd/internal/client"
)

// SearchMemoryTool runs a semantic search over a user's stored memories.
type SearchMemoryTool struct {
	source ClientSource
}

func NewSearchMemoryTool(source ClientSource) *SearchMemoryTool {
	return &SearchMemoryTool{source: source}
}

func (t *SearchMemoryTool) Name() string { return "search_memory" }

func (t *SearchMemoryTool) Description() string {
	return "Semantically search a user's stored memories and return the most relevant ones ranked by similarity score. Use this before answering questions about the user's preferences, history, or prior conversations. Query in the SAME language the memories were stored in; matching the language dramatically improves accuracy. Supports advanced metadata filters (eq/ne/gt/gte/lt/lte/in/nin/contains/icontains, combinable with AND/OR/NOT). On timeout or backend failure this returns an empty result list rather than an error, so treat no results as 'nothing known', not proof of absence."
}

func (t *SearchMemoryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Natural language search query, in the same language as the stored memories.",
			},
			"user_id": map[string]interface{}{
				"type":        "string",
				"description": "ID of the user whose memories to search.",
			},
			"agent_id": map[string]interface{}{
				"type":        "string",
				"description": "Optional agent ID to narrow the search.",
			},
			"run_id": map[string]interface{}{
				"type":        "string",
				"description": "Optional run ID to narrow the search.",
			},
			"top_k": map[string]interface{}{
				"type":        "number",
				"description": "Maximum number of results to return (default: 5).",
			},
			"filters": map[string]interface{}{
				"type":        "string",
				"description": "Optional advanced metadata filter as a JSON object, e.g. {\"category\": {\"in\": [\"food\", \"travel\"]}}.",
			},
			"timeout": map[string]interface{}{
				"type":        "number",
				"description": "Seconds to wait before degrading to empty results (default: 30).",
			},
		},
		"required": []string{"query", "user_id"},
	}
}

func (t *SearchMemoryTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query := stringArg(args, "query")
	if query == "" {
		return searchError("query is required")
	}
	scope := scopeArg(args)
	if scope.UserID == "" {
		return searchError("user_id is required")
	}
	filter, err := filterArg(args, "filters")
	if err != nil {
		return searchError(err.Error())
	}

	cli, err := t.source.Client(ctx)
	if err != nil {
		return searchError("Error: " + err.Error()).WithError(err)
	}
	reply, err := cli.Search(ctx, client.SearchRequest{
		Query:   query,
		Scope:   scope,
		Filter:  filter,
		Limit:   intArg(args, "top_k", client.DefaultSearchLimit),
		Timeout: timeoutArg(args, "timeout", client.DefaultReadTimeout),
	})
	if err != nil {
		return searchError("Error: " + err.Error()).WithError(err)
	}

	hits := searchHits(reply.Records)

	var text strings.Builder
	fmt.Fprintf(&text, "Query: %s\n\nResults:", query)
	if len(hits) == 0 {
		text.WriteString("\n\nNo results found.")
	} else {
		for i, hit := range hits {
			fmt.Fprintf(&text, "\n\n%d. Memory: %s", i+1, hit.Memory)
			fmt.Fprintf(&text, "\n   Score: %.2f", hit.Score)
			if len(hit.Metadata) > 0 {
				fmt.Fprintf(&text, "\n   Metadata: %s", formatMetadata(hit.Metadata))
			}
		}
	}

	return NewResult(successEnvelope(query, hits), text.String())
}

func searchError(message string) *Result {
	return &Result{
		JSON:    errorEnvelope(message, []any{}),
		Text:    "Failed to search memory: " + message,
		IsError: true,
	}
}
