// Package backend assembles the embedding cache, its persistent tier and the
// embedding provider from configuration. The server and the CLI share it.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatdigest/internal/config"
	"chatdigest/internal/database"
	"chatdigest/internal/embeddings"
	"chatdigest/internal/openai"
	"chatdigest/internal/segment"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
	BackendQdrant = "qdrant"
)

// Store is a persistent embedding tier that can also be maintained
type Store interface {
	embeddings.Store
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// OpenStore opens the persistent tier named by cfg.EmbeddingCacheBackend.
// The memory backend has none and returns a nil Store.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.EmbeddingCacheBackend {
	case BackendMemory:
		return nil, nil
	case BackendQdrant:
		store, err := database.NewQdrantStore(ctx, cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection, cfg.EmbeddingDimensions)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendSQL, "":
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store := database.NewEmbeddingStore(db)
		if err := store.CreateTable(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown embedding cache backend %q", cfg.EmbeddingCacheBackend)
	}
}

// Backend bundles what a segmentation run needs
type Backend struct {
	Name   string
	Cache  *embeddings.Cache // nil when no embedding provider is configured
	Store  Store             // nil for the memory backend
	Client *openai.Client    // nil when no provider is configured
}

// Open builds the backend. A missing provider is not an error: semantic
// splitting is disabled and the store stays available for maintenance.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Backend, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s embedding store: %w", cfg.EmbeddingCacheBackend, err)
	}

	b := &Backend{Name: cfg.EmbeddingCacheBackend, Store: store}
	if b.Name == "" {
		b.Name = BackendSQL
	}

	client, err := openai.NewClient(cfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("No embedding provider, semantic splitting disabled")
		return b, nil
	}
	b.Client = client

	var persistent embeddings.Store
	if store != nil {
		persistent = store
	}
	embedder := openai.NewEmbedder(client, cfg.ProviderTimeout())
	b.Cache = embeddings.NewCache(embedder, persistent, cfg.EmbeddingDimensions, logger)

	logger.Info().
		Str("backend", b.Name).
		Str("provider", client.GetProviderName()).
		Str("model", client.GetEmbeddingModel()).
		Msg("Embedding cache ready")
	return b, nil
}

// Source returns the cache as a segmentation embedding source, or nil
func (b *Backend) Source() segment.EmbeddingSource {
	if b == nil || b.Cache == nil {
		return nil
	}
	return b.Cache
}

// Counter returns the store as an entry counter, or nil
func (b *Backend) Counter() interface {
	Count(ctx context.Context) (int64, error)
} {
	if b == nil || b.Store == nil {
		return nil
	}
	return b.Store
}

// DB returns the SQL connection behind the store, or nil for other backends
func (b *Backend) DB() *sqlx.DB {
	if b == nil {
		return nil
	}
	if s, ok := b.Store.(*database.EmbeddingStore); ok {
		return s.DB()
	}
	return nil
}

// Prune removes persisted embeddings created before cutoff
func (b *Backend) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if b.Store == nil {
		return 0, errors.New("the memory backend has nothing to prune")
	}
	return b.Store.Prune(ctx, cutoff)
}

// Close releases the store
func (b *Backend) Close() error {
	if b == nil || b.Store == nil {
		return nil
	}
	return b.Store.Close()
}
