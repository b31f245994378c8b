package client

import (
	"time"

	"github.com/engramhq/engramd/internal/memdb"
)

// recordFromMemory converts a backend row into the normalized shape.
func recordFromMemory(m *memdb.Memory) Record {
	meta := m.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return Record{
		ID:        m.ID,
		Memory:    m.Text,
		Score:     m.Score,
		Metadata:  meta,
		CreatedAt: formatTime(m.CreatedAt),
		UpdatedAt: formatTime(m.UpdatedAt),
	}
}

// NormalizeRecord coerces a loosely shaped result entry into a Record,
// tolerating the field aliases different backends use: memory_id for id,
// text for memory, similarity for score, timestamp for created_at.
func NormalizeRecord(raw map[string]any) Record {
	rec := Record{Metadata: map[string]any{}}
	rec.ID = stringField(raw, "id", "memory_id")
	rec.Memory = stringField(raw, "memory", "text")
	rec.Score = floatField(raw, "score", "similarity")
	rec.CreatedAt = stringField(raw, "created_at", "timestamp")
	rec.UpdatedAt = stringField(raw, "updated_at")
	if meta, ok := raw["metadata"].(map[string]any); ok && meta != nil {
		rec.Metadata = meta
	}
	return rec
}

// normalizeRecords flattens whatever shape the loop handed back into
// normalized records. The fast path is the backend's own row type; the
// loose paths keep the bridge working if a backend returns raw maps.
func normalizeRecords(v any) []Record {
	switch rows := v.(type) {
	case nil:
		return []Record{}
	case []memdb.Memory:
		out := make([]Record, 0, len(rows))
		for i := range rows {
			out = append(out, recordFromMemory(&rows[i]))
		}
		return out
	case []map[string]any:
		out := make([]Record, 0, len(rows))
		for _, raw := range rows {
			out = append(out, NormalizeRecord(raw))
		}
		return out
	case []any:
		out := make([]Record, 0, len(rows))
		for _, item := range rows {
			if raw, ok := item.(map[string]any); ok {
				out = append(out, NormalizeRecord(raw))
			}
		}
		return out
	default:
		return []Record{}
	}
}

func historyFromEntries(entries []memdb.HistoryEntry) []HistoryRecord {
	out := make([]HistoryRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryRecord{
			MemoryID:  e.MemoryID,
			OldMemory: e.OldMemory,
			NewMemory: e.NewMemory,
			Event:     e.Event,
			CreatedAt: formatTime(e.CreatedAt),
			UpdatedAt: formatTime(e.UpdatedAt),
			IsDeleted: e.IsDeleted,
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func stringField(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func floatField(raw map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch n := raw[k].(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int:
			return float64(n)
		case int64:
			return float64(n)
		}
	}
	return 0
}
