package memdb

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Filter is a metadata filter expression. Plain values mean equality, "*"
// means the field must be present, an operator map refines the comparison
// (eq, ne, gt, gte, lt, lte, in, nin, contains, icontains), and the
// AND/OR/NOT keys combine sub-filters. Multiple keys in one map are an
// implicit AND.
type Filter map[string]any

// ParseFilter accepts a filter as a decoded map or as a JSON string.
func ParseFilter(raw any) (Filter, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case Filter:
		return v, nil
	case map[string]any:
		return Filter(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		var f Filter
		if err := json.Unmarshal([]byte(v), &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFilter, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrBadFilter, raw)
	}
}

// Empty reports whether the filter constrains nothing.
func (f Filter) Empty() bool { return len(f) == 0 }

// Match evaluates the filter against one memory.
func (f Filter) Match(m *Memory) bool {
	for key, want := range f {
		switch key {
		case "AND":
			subs, ok := subFilters(want)
			if !ok {
				return false
			}
			for _, sub := range subs {
				if !sub.Match(m) {
					return false
				}
			}
		case "OR":
			subs, ok := subFilters(want)
			if !ok {
				return false
			}
			matched := false
			for _, sub := range subs {
				if sub.Match(m) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		case "NOT":
			subs, ok := subFilters(want)
			if !ok {
				return false
			}
			for _, sub := range subs {
				if sub.Match(m) {
					return false
				}
			}
		default:
			got, present := fieldValue(m, key)
			if !matchField(got, present, want) {
				return false
			}
		}
	}
	return true
}

func subFilters(v any) ([]Filter, bool) {
	switch t := v.(type) {
	case []any:
		subs := make([]Filter, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			subs = append(subs, Filter(m))
		}
		return subs, true
	case map[string]any:
		return []Filter{Filter(t)}, true
	}
	return nil, false
}

// fieldValue resolves a filter key against the scope fields first, then the
// metadata map.
func fieldValue(m *Memory, key string) (any, bool) {
	switch key {
	case "user_id":
		return m.Scope.UserID, m.Scope.UserID != ""
	case "agent_id":
		return m.Scope.AgentID, m.Scope.AgentID != ""
	case "run_id":
		return m.Scope.RunID, m.Scope.RunID != ""
	case "created_at":
		return m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), !m.CreatedAt.IsZero()
	case "updated_at":
		return m.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"), !m.UpdatedAt.IsZero()
	}
	v, ok := m.Metadata[key]
	return v, ok
}

func matchField(got any, present bool, want any) bool {
	// Wildcard: the field just has to exist.
	if s, ok := want.(string); ok && s == "*" {
		return present
	}

	if ops, ok := want.(map[string]any); ok {
		if !present {
			return false
		}
		for op, operand := range ops {
			if !applyOp(got, op, operand) {
				return false
			}
		}
		return true
	}

	if !present {
		return false
	}
	return looseEqual(got, want)
}

func applyOp(got any, op string, operand any) bool {
	switch op {
	case "eq":
		return looseEqual(got, operand)
	case "ne":
		return !looseEqual(got, operand)
	case "gt", "gte", "lt", "lte":
		cmp, ok := compareValues(got, operand)
		if !ok {
			return false
		}
		switch op {
		case "gt":
			return cmp > 0
		case "gte":
			return cmp >= 0
		case "lt":
			return cmp < 0
		default:
			return cmp <= 0
		}
	case "in":
		return memberOf(got, operand)
	case "nin":
		return !memberOf(got, operand)
	case "contains":
		return containsSubstring(got, operand, false)
	case "icontains":
		return containsSubstring(got, operand, true)
	default:
		return false
	}
}

func memberOf(got any, operand any) bool {
	list, ok := operand.([]any)
	if !ok {
		return false
	}
	for _, item := range list {
		if looseEqual(got, item) {
			return true
		}
	}
	return false
}

func containsSubstring(got, operand any, fold bool) bool {
	gs, ok1 := got.(string)
	os, ok2 := operand.(string)
	if !ok1 || !ok2 {
		return false
	}
	if fold {
		return strings.Contains(strings.ToLower(gs), strings.ToLower(os))
	}
	return strings.Contains(gs, os)
}

// looseEqual compares values the way JSON round-trips deliver them: numbers
// as float64 regardless of original width, everything else by string form
// or direct equality.
func looseEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	return a == b
}

// compareValues orders two values numerically when both are numbers,
// lexically when both are strings.
func compareValues(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
