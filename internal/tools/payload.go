package tools

import (
	"encoding/json"

	"github.com/engramhq/engramd/internal/client"
)

// Envelope statuses. Every JSON reply declares one.
const (
	statusSuccess = "SUCCESS"
	statusError   = "ERROR"
)

// envelope is the JSON half of every tool reply: a status, an echo of the
// request context, and the operation results. Field order is fixed so
// downstream consumers see a stable shape.
type envelope struct {
	Status   string `json:"status"`
	Messages any    `json:"messages"`
	Results  any    `json:"results"`
}

func successEnvelope(messages, results any) string {
	return marshalEnvelope(envelope{Status: statusSuccess, Messages: messages, Results: results})
}

func errorEnvelope(message string, results any) string {
	return marshalEnvelope(envelope{Status: statusError, Messages: message, Results: results})
}

func marshalEnvelope(env envelope) string {
	data, err := json.Marshal(env)
	if err != nil {
		data, _ = json.Marshal(envelope{
			Status:   statusError,
			Messages: "failed to encode tool response",
			Results:  map[string]any{},
		})
	}
	return string(data)
}

// acceptNotice is the results shape acknowledging a fire-and-forget
// submission.
type acceptNotice struct {
	Message string `json:"message"`
}

// searchHit is the wire shape of one search result.
type searchHit struct {
	ID        string         `json:"id"`
	Memory    string         `json:"memory"`
	Score     float64        `json:"score"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt string         `json:"created_at"`
}

func searchHits(records []client.Record) []searchHit {
	hits := make([]searchHit, 0, len(records))
	for _, r := range records {
		hits = append(hits, searchHit{
			ID:        r.ID,
			Memory:    r.Memory,
			Score:     r.Score,
			Metadata:  r.Metadata,
			CreatedAt: r.CreatedAt,
		})
	}
	return hits
}

// memoryItem is the wire shape of one stored memory outside search, where
// scores carry no meaning.
type memoryItem struct {
	ID        string         `json:"id"`
	Memory    string         `json:"memory"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

func memoryItemFrom(r client.Record) memoryItem {
	return memoryItem{
		ID:        r.ID,
		Memory:    r.Memory,
		Metadata:  r.Metadata,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func memoryItems(records []client.Record) []memoryItem {
	items := make([]memoryItem, 0, len(records))
	for _, r := range records {
		items = append(items, memoryItemFrom(r))
	}
	return items
}

// formatMetadata renders metadata for the text half of a reply. Compact
// JSON keeps multi-line values from breaking the block layout.
func formatMetadata(md map[string]any) string {
	if len(md) == 0 {
		return "{}"
	}
	data, err := json.Marshal(md)
	if err != nil {
		return "{}"
	}
	return string(data)
}
