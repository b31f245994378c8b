package memdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	chromem "github.com/philippgille/chromem-go"
)

// DefaultCollection is the chromem collection name when none is configured.
const DefaultCollection = "memories"

// ChromemIndex is the embedded vector index. With a path it persists to
// disk; without one it lives in memory, which is what the tests use.
type ChromemIndex struct {
	db  *chromem.DB
	col *chromem.Collection
}

// NewChromemIndex opens the index. An empty path selects the in-memory
// variant.
func NewChromemIndex(path, collection string) (*ChromemIndex, error) {
	if collection == "" {
		collection = DefaultCollection
	}

	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	// Embeddings always arrive precomputed; the collection's own embedding
	// func must never run.
	col, err := db.GetOrCreateCollection(collection, nil, refuseEmbedding)
	if err != nil {
		return nil, fmt.Errorf("open collection %q: %w", collection, err)
	}

	if path != "" {
		slog.Info("vector index opened", "backend", "chromem", "path", path, "records", col.Count())
	}
	return &ChromemIndex{db: db, col: col}, nil
}

func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("collection has no embedding func; embeddings are precomputed")
}

func (c *ChromemIndex) Upsert(ctx context.Context, rec VectorRecord) error {
	// Drop any previous vector for this id before re-adding.
	_ = c.col.Delete(ctx, nil, nil, rec.ID)

	err := c.col.AddDocument(ctx, chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: rec.Embedding,
		Metadata:  scopeMetadata(rec.Scope),
	})
	if err != nil {
		return fmt.Errorf("chromem add: %w", err)
	}
	return nil
}

func (c *ChromemIndex) Search(ctx context.Context, embedding []float32, scope Scope, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, nil
	}
	// chromem rejects queries asking for more results than the collection
	// holds.
	if count := c.col.Count(); count < limit {
		limit = count
	}
	if limit == 0 {
		return nil, nil
	}

	// The scope filter can shrink the candidate set below limit, which
	// chromem also rejects; retry smaller until it fits.
	var results []chromem.Result
	for n := limit; n >= 1; n-- {
		var err error
		results, err = c.col.QueryEmbedding(ctx, embedding, n, scopeFilter(scope), nil)
		if err == nil {
			break
		}
		if isInsufficientDocs(err) {
			if n == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{ID: r.ID, Score: float64(r.Similarity)})
	}
	return matches, nil
}

func isInsufficientDocs(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

func (c *ChromemIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("chromem delete: %w", err)
	}
	return nil
}

func (c *ChromemIndex) DeleteScope(ctx context.Context, scope Scope) error {
	where := scopeFilter(scope)
	if where == nil {
		return ErrEmptyScope
	}
	if err := c.col.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("chromem delete scope: %w", err)
	}
	return nil
}

func (c *ChromemIndex) Count(context.Context) (int, error) {
	return c.col.Count(), nil
}

// Close is a no-op: chromem persists on every write.
func (c *ChromemIndex) Close() error { return nil }

// scopeMetadata stores all scope fields so exact-match filtering works for
// any combination later.
func scopeMetadata(s Scope) map[string]string {
	return map[string]string{
		"user_id":  s.UserID,
		"agent_id": s.AgentID,
		"run_id":   s.RunID,
	}
}

// scopeFilter builds the chromem where-map from the non-empty scope fields;
// nil means unfiltered.
func scopeFilter(s Scope) map[string]string {
	where := map[string]string{}
	if s.UserID != "" {
		where["user_id"] = s.UserID
	}
	if s.AgentID != "" {
		where["agent_id"] = s.AgentID
	}
	if s.RunID != "" {
		where["run_id"] = s.RunID
	}
	if len(where) == 0 {
		return nil
	}
	return where
}
