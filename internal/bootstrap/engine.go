// Package bootstrap assembles the memory engine from configuration: the
// record store, the vector index, and the embedding stack.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/engramhq/engramd/internal/client"
	"github.com/engramhq/engramd/internal/config"
	"github.com/engramhq/engramd/internal/embed"
	"github.com/engramhq/engramd/internal/memdb"
)

// StoreFile is the SQLite database name under the data directory.
const StoreFile = "memories.db"

// VectorDir is the chromem persistence directory under the data directory.
const VectorDir = "vectors"

// EngineFactory returns the factory the memory client runs on the
// background loop to build its backend. Nothing is opened until the first
// operation needs the engine, so a misconfigured backend only fails the
// call that touches it.
func EngineFactory(cfg *config.Config) client.EngineFactory {
	return func(ctx context.Context) (client.Engine, error) {
		return Build(ctx, cfg)
	}
}

// Build opens every layer of the engine. On any failure the layers opened
// so far are closed again.
func Build(ctx context.Context, cfg *config.Config) (client.Engine, error) {
	dataDir := cfg.ResolvedDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := memdb.NewStore(filepath.Join(dataDir, StoreFile))
	if err != nil {
		return nil, err
	}

	embedder, err := buildEmbedder(cfg.Embedder)
	if err != nil {
		store.Close()
		return nil, err
	}

	index, err := buildIndex(cfg.Vector, dataDir, embedder.Dimension())
	if err != nil {
		store.Close()
		return nil, err
	}

	slog.Info("memory engine assembled",
		"data_dir", dataDir,
		"embedder", cfg.Embedder.Provider,
		"vector", cfg.Vector.Provider,
	)
	return memdb.NewEngine(store, index, embedder), nil
}

// buildEmbedder stacks the configured provider with token truncation and
// the content-hash LRU.
func buildEmbedder(cfg config.EmbedderConfig) (embed.Embedder, error) {
	var inner embed.Embedder
	switch cfg.Provider {
	case "hash":
		inner = &embed.Hash{Dim: cfg.Dimension}
	case "openai":
		inner = embed.NewOpenAI(embed.OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", cfg.Provider)
	}

	return embed.NewCached(embed.NewTruncating(inner, cfg.MaxTokens), cfg.CacheSize)
}

func buildIndex(cfg config.VectorConfig, dataDir string, dim int) (memdb.VectorIndex, error) {
	switch cfg.Provider {
	case "pgvector":
		return memdb.NewPGVectorIndex(cfg.DSN, dim)
	case "chromem":
		path := cfg.Path
		switch path {
		case "memory":
			path = ""
		case "":
			path = filepath.Join(dataDir, VectorDir)
		}
		return memdb.NewChromemIndex(path, cfg.Collection)
	default:
		return nil, fmt.Errorf("unknown vector provider %q", cfg.Provider)
	}
}
