package embed

import (
	"context"
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// DefaultMaxTokens caps how much of a text is embedded; the common
	// embedding models reject inputs beyond 8192 tokens.
	DefaultMaxTokens = 8192

	// charsPerTokenEstimate approximates tokens from length when the BPE
	// encoding is unavailable (offline environments).
	charsPerTokenEstimate = 4
)

// Truncating wraps an Embedder and clips each input to a token budget
// before embedding. Uses the cl100k_base encoding when it can be loaded and
// a character estimate otherwise.
type Truncating struct {
	inner     Embedder
	enc       *tiktoken.Tiktoken
	maxTokens int
}

// NewTruncating builds the truncation wrapper. maxTokens <= 0 selects
// DefaultMaxTokens.
func NewTruncating(inner Embedder, maxTokens int) *Truncating {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		slog.Warn("token encoding unavailable, truncating by character estimate", "error", err)
		enc = nil
	}
	return &Truncating{inner: inner, enc: enc, maxTokens: maxTokens}
}

func (t *Truncating) Embed(ctx context.Context, text string) ([]float32, error) {
	return t.inner.Embed(ctx, t.clip(text))
}

func (t *Truncating) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	clipped := make([]string, len(texts))
	for i, s := range texts {
		clipped[i] = t.clip(s)
	}
	return t.inner.EmbedBatch(ctx, clipped)
}

func (t *Truncating) Dimension() int { return t.inner.Dimension() }

// clip trims text to the token budget, preferring exact BPE counts.
func (t *Truncating) clip(text string) string {
	if t.enc != nil {
		toks := t.enc.Encode(text, nil, nil)
		if len(toks) <= t.maxTokens {
			return text
		}
		return t.enc.Decode(toks[:t.maxTokens])
	}

	budget := t.maxTokens * charsPerTokenEstimate
	if len(text) <= budget {
		return text
	}
	// Cut on a rune boundary.
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	return string(runes[:budget])
}
