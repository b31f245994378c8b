package tools

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/engramhq/engramd/internal/config"
	"github.com/engramhq/engramd/internal/memdb"
)

// Argument coercion for the loosely typed maps tool calls arrive as. JSON
// decoding hands us float64 for every number and sometimes strings where
// objects were meant; these helpers absorb that.

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func boolArg(args map[string]interface{}, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "1" || s == "yes"
	}
	return false
}

func intArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// timeoutArg reads a seconds value. Unparsable or non-positive values fall
// back to the default rather than failing the call.
func timeoutArg(args map[string]interface{}, key string, def time.Duration) time.Duration {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def
	}
	var secs float64
	switch v := raw.(type) {
	case float64:
		secs = v
	case int:
		secs = float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			slog.Warn("invalid timeout value, using default", "value", v, "default", def)
			return def
		}
		secs = f
	default:
		slog.Warn("invalid timeout value, using default", "value", raw, "default", def)
		return def
	}
	if secs <= 0 {
		return def
	}
	return time.Duration(secs * float64(time.Second))
}

// scopeArg collects the session identifiers an operation is scoped to.
func scopeArg(args map[string]interface{}) memdb.Scope {
	return memdb.Scope{
		UserID:  stringArg(args, "user_id"),
		AgentID: stringArg(args, "agent_id"),
		RunID:   stringArg(args, "run_id"),
	}
}

// metadataArg accepts metadata inline or as a JSON string. A string that
// does not parse is dropped, matching how stored metadata is best-effort.
func metadataArg(args map[string]interface{}, key string) map[string]any {
	switch v := args[key].(type) {
	case map[string]interface{}:
		return v
	case string:
		s := config.StripFences(strings.TrimSpace(v))
		if s == "" {
			return nil
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			slog.Warn("discarding unparsable metadata", "error", err)
			return nil
		}
		return out
	}
	return nil
}

// filterArg parses the advanced-filter argument. Unlike metadata, a broken
// filter is an error: silently ignoring it would widen the operation.
func filterArg(args map[string]interface{}, key string) (memdb.Filter, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	if s, isStr := raw.(string); isStr {
		raw = config.StripFences(strings.TrimSpace(s))
	}
	f, err := memdb.ParseFilter(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", key, err)
	}
	return f, nil
}

// messagesArg accepts conversational content in the shapes callers send:
// a bare string (one user message), a list of {role, content} objects, or
// a JSON string encoding that list.
func messagesArg(args map[string]interface{}, key string) ([]memdb.Message, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		if stripped := config.StripFences(s); strings.HasPrefix(stripped, "[") {
			var msgs []memdb.Message
			if err := json.Unmarshal([]byte(stripped), &msgs); err == nil {
				return msgs, nil
			}
		}
		return []memdb.Message{{Role: "user", Content: s}}, nil
	case []interface{}:
		msgs := make([]memdb.Message, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%s entries must be {role, content} objects", key)
			}
			role, _ := m["role"].(string)
			content, _ := m["content"].(string)
			if role == "" {
				role = "user"
			}
			msgs = append(msgs, memdb.Message{Role: role, Content: content})
		}
		return msgs, nil
	}
	return nil, fmt.Errorf("%s must be a string or a list of messages", key)
}
