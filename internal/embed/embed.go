// Package embed turns memory text into vectors for the vector index.
//
// The OpenAI implementation talks to any OpenAI-compatible embeddings
// endpoint. Hash is a deterministic offline embedder for development and
// tests. Wrappers add LRU caching and token-budget truncation; stack them
// as NewCached(NewTruncating(inner, budget), size).
package embed

import (
	"context"
	"errors"
)

// Embedder produces fixed-dimension embeddings for text.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one embedding per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension reports the vector width this embedder produces.
	Dimension() int
}

// ErrEmptyInput is returned when there is nothing to embed.
var ErrEmptyInput = errors.New("embed: empty input")
