package memdb

import "context"

// VectorRecord is what the index stores per memory.
type VectorRecord struct {
	ID        string
	Text      string
	Scope     Scope
	Embedding []float32
}

// Match is one scored hit from a similarity lookup, highest score first.
type Match struct {
	ID    string
	Score float64
}

// VectorIndex stores embeddings and serves scored nearest-neighbor lookups.
// Implementations must be safe for concurrent use.
type VectorIndex interface {
	// Upsert replaces any previous vector stored under the record's id.
	Upsert(ctx context.Context, rec VectorRecord) error
	// Search returns up to limit matches inside the scope, best first.
	Search(ctx context.Context, embedding []float32, scope Scope, limit int) ([]Match, error)
	// Delete removes vectors by id; unknown ids are ignored.
	Delete(ctx context.Context, ids ...string) error
	// DeleteScope removes every vector inside the scope.
	DeleteScope(ctx context.Context, scope Scope) error
	// Count reports how many vectors are stored.
	Count(ctx context.Context) (int, error)
	Close() error
}
