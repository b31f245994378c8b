package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDimension is the vector width Hash uses when none is set.
const DefaultHashDimension = 256

// Hash is a deterministic, offline embedder: each word token is hashed into
// a handful of vector positions and the result is L2-normalized. Identical
// texts map to identical vectors and overlapping token sets land close
// together, which is enough signal for development and tests without a
// network dependency.
type Hash struct {
	Dim int
}

func (h *Hash) dim() int {
	if h.Dim > 0 {
		return h.Dim
	}
	return DefaultHashDimension
}

func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	return h.vector(text), nil
}

func (h *Hash) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (h *Hash) Dimension() int { return h.dim() }

func (h *Hash) vector(text string) []float32 {
	dim := h.dim()
	vec := make([]float32, dim)

	for _, tok := range tokenize(text) {
		sum := sha256.Sum256([]byte(tok))
		// Four positions per token, signed by a hash bit, so collisions
		// between unrelated tokens mostly cancel out.
		for slot := 0; slot < 4; slot++ {
			idx := binary.BigEndian.Uint32(sum[slot*8:]) % uint32(dim)
			sign := float32(1)
			if sum[slot*8+4]&1 == 1 {
				sign = -1
			}
			vec[idx] += sign
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
