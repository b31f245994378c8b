package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// maxBatchSize is the per-request input ceiling of the OpenAI embeddings
// API; larger batches are split.
const maxBatchSize = 2048

// OpenAIConfig configures an OpenAI-compatible embeddings client.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string // empty for api.openai.com
	Model     string // e.g. text-embedding-3-small
	Dimension int    // 0 lets the model decide
}

// OpenAI embeds text through an OpenAI-compatible /embeddings endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAI builds the client. No request is made until the first Embed.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAI{client: &client, model: cfg.Model, dim: cfg.Dimension}
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		if err := o.embedChunk(ctx, texts[start:end], out[start:end]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (o *OpenAI) embedChunk(ctx context.Context, texts []string, out [][]float32) error {
	params := openai.EmbeddingNewParams{
		Model:          openai.EmbeddingModel(o.model),
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if o.dim > 0 {
		params.Dimensions = openai.Int(int64(o.dim))
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return fmt.Errorf("embeddings request: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return fmt.Errorf("embeddings response: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		if d.Index < 0 || int(d.Index) >= len(out) {
			return fmt.Errorf("embeddings response: index %d out of range", d.Index)
		}
		out[d.Index] = vec
	}
	return nil
}

func (o *OpenAI) Dimension() int { return o.dim }
