package memdb

import (
	"errors"
	"testing"
	"time"
)

func filterTestMemory() *Memory {
	return &Memory{
		ID:    "m1",
		Scope: Scope{UserID: "alice", AgentID: "travel"},
		Text:  "prefers hiking trails",
		Metadata: map[string]any{
			"category": "preferences",
			"priority": float64(3),
			"city":     "Boulder",
		},
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFilterMatch(t *testing.T) {
	m := filterTestMemory()

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty matches", Filter{}, true},
		{"equality hit", Filter{"category": "preferences"}, true},
		{"equality miss", Filter{"category": "work"}, false},
		{"scope field", Filter{"user_id": "alice"}, true},
		{"scope field miss", Filter{"user_id": "bob"}, false},
		{"implicit and", Filter{"category": "preferences", "user_id": "alice"}, true},
		{"implicit and miss", Filter{"category": "preferences", "user_id": "bob"}, false},
		{"wildcard present", Filter{"city": "*"}, true},
		{"wildcard absent", Filter{"country": "*"}, false},
		{"numeric gte", Filter{"priority": map[string]any{"gte": float64(3)}}, true},
		{"numeric gt miss", Filter{"priority": map[string]any{"gt": float64(3)}}, false},
		{"numeric lt", Filter{"priority": map[string]any{"lt": float64(5)}}, true},
		{"ne", Filter{"category": map[string]any{"ne": "work"}}, true},
		{"in", Filter{"city": map[string]any{"in": []any{"Denver", "Boulder"}}}, true},
		{"nin", Filter{"city": map[string]any{"nin": []any{"Denver"}}}, true},
		{"nin miss", Filter{"city": map[string]any{"nin": []any{"Boulder"}}}, false},
		{"contains", Filter{"city": map[string]any{"contains": "oulde"}}, true},
		{"icontains", Filter{"city": map[string]any{"icontains": "BOULDER"}}, true},
		{"contains case miss", Filter{"city": map[string]any{"contains": "BOULDER"}}, false},
		{"operator on absent field", Filter{"country": map[string]any{"eq": "US"}}, false},
		{
			"and block",
			Filter{"AND": []any{
				map[string]any{"category": "preferences"},
				map[string]any{"priority": map[string]any{"gte": float64(1)}},
			}},
			true,
		},
		{
			"or block",
			Filter{"OR": []any{
				map[string]any{"category": "work"},
				map[string]any{"city": "Boulder"},
			}},
			true,
		},
		{
			"or block miss",
			Filter{"OR": []any{
				map[string]any{"category": "work"},
				map[string]any{"city": "Denver"},
			}},
			false,
		},
		{
			"not block",
			Filter{"NOT": []any{
				map[string]any{"category": "work"},
			}},
			true,
		},
		{
			"not block miss",
			Filter{"NOT": []any{
				map[string]any{"category": "preferences"},
			}},
			false,
		},
		{"not single map", Filter{"NOT": map[string]any{"city": "Denver"}}, true},
		{"created_at gte", Filter{"created_at": map[string]any{"gte": "2025-01-01"}}, true},
		{"created_at lt miss", Filter{"created_at": map[string]any{"lt": "2025-01-01"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(m); got != tt.want {
				t.Fatalf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(`{"category": "preferences"}`)
	if err != nil {
		t.Fatalf("ParseFilter: %v", err)
	}
	if f["category"] != "preferences" {
		t.Fatalf("parsed filter = %v", f)
	}

	if _, err := ParseFilter(`{broken`); !errors.Is(err, ErrBadFilter) {
		t.Fatalf("err = %v, want ErrBadFilter", err)
	}

	f, err = ParseFilter(nil)
	if err != nil || f != nil {
		t.Fatalf("nil input: %v %v", f, err)
	}

	f, err = ParseFilter("   ")
	if err != nil || f != nil {
		t.Fatalf("blank input: %v %v", f, err)
	}

	if _, err := ParseFilter(42); !errors.Is(err, ErrBadFilter) {
		t.Fatalf("err = %v, want ErrBadFilter", err)
	}

	f, err = ParseFilter(map[string]any{"user_id": "alice"})
	if err != nil || f["user_id"] != "alice" {
		t.Fatalf("map input: %v %v", f, err)
	}
}
