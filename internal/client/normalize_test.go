package client

import (
	"testing"
	"time"

	"github.com/engramhq/engramd/internal/memdb"
)

func TestNormalizeRecordAliases(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		want Record
	}{
		{
			name: "canonical keys",
			raw: map[string]any{
				"id": "m1", "memory": "likes tea", "score": 0.9,
				"metadata": map[string]any{"k": "v"}, "created_at": "2025-01-01T00:00:00Z",
			},
			want: Record{ID: "m1", Memory: "likes tea", Score: 0.9,
				Metadata: map[string]any{"k": "v"}, CreatedAt: "2025-01-01T00:00:00Z"},
		},
		{
			name: "aliased keys",
			raw: map[string]any{
				"memory_id": "m2", "text": "likes coffee", "similarity": 0.5,
				"timestamp": "2025-02-02T00:00:00Z",
			},
			want: Record{ID: "m2", Memory: "likes coffee", Score: 0.5,
				Metadata: map[string]any{}, CreatedAt: "2025-02-02T00:00:00Z"},
		},
		{
			name: "canonical wins over alias",
			raw: map[string]any{
				"id": "real", "memory_id": "alias", "memory": "real text", "text": "alias text",
			},
			want: Record{ID: "real", Memory: "real text", Metadata: map[string]any{}},
		},
		{
			name: "integer score",
			raw:  map[string]any{"id": "m3", "score": 1},
			want: Record{ID: "m3", Score: 1, Metadata: map[string]any{}},
		},
		{
			name: "empty input",
			raw:  map[string]any{},
			want: Record{Metadata: map[string]any{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeRecord(tt.raw)
			if got.ID != tt.want.ID || got.Memory != tt.want.Memory || got.Score != tt.want.Score || got.CreatedAt != tt.want.CreatedAt {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			if got.Metadata == nil {
				t.Fatal("metadata must never be nil")
			}
		})
	}
}

func TestNormalizeRecordsShapes(t *testing.T) {
	created := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	rows := normalizeRecords([]memdb.Memory{{ID: "m1", Text: "a", CreatedAt: created}})
	if len(rows) != 1 || rows[0].ID != "m1" || rows[0].Memory != "a" {
		t.Fatalf("typed rows: %+v", rows)
	}

	rows = normalizeRecords([]any{
		map[string]any{"memory_id": "m2", "text": "b"},
		"not a record",
	})
	if len(rows) != 1 || rows[0].ID != "m2" {
		t.Fatalf("loose rows: %+v", rows)
	}

	rows = normalizeRecords([]map[string]any{{"id": "m3", "memory": "c"}})
	if len(rows) != 1 || rows[0].ID != "m3" {
		t.Fatalf("map rows: %+v", rows)
	}

	if rows := normalizeRecords(nil); len(rows) != 0 {
		t.Fatalf("nil input: %+v", rows)
	}
	if rows := normalizeRecords(42); len(rows) != 0 {
		t.Fatalf("garbage input: %+v", rows)
	}
}

func TestHistoryFromEntries(t *testing.T) {
	created := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	entries := []memdb.HistoryEntry{
		{MemoryID: "m1", NewMemory: "v1", Event: memdb.EventAdd, CreatedAt: created},
		{MemoryID: "m1", OldMemory: "v1", Event: memdb.EventDelete, CreatedAt: created, IsDeleted: true},
	}
	recs := historyFromEntries(entries)
	if len(recs) != 2 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0].CreatedAt != "2025-06-01T08:00:00Z" {
		t.Fatalf("unexpected created_at %q", recs[0].CreatedAt)
	}
	if recs[0].UpdatedAt != "" {
		t.Fatalf("zero time must render empty, got %q", recs[0].UpdatedAt)
	}
	if !recs[1].IsDeleted {
		t.Fatal("deletion flag lost")
	}
}
