// Package embeddings provides the content-addressed embedding cache that backs
// semantic segmentation. Vectors are keyed by the SHA-256 of the message's
// normalized text and computed at most once per key, even under concurrency.
package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"chatdigest/internal/cache"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// maxFlightAttempts bounds how often a waiter re-joins after a flight it
	// shared was aborted by the leading caller's context.
	maxFlightAttempts = 3
	storeWriteTimeout = 5 * time.Second
)

// Provider computes an embedding for a piece of text. Implementations must be
// safe for concurrent use.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ProviderFunc adapts a function to the Provider interface
type ProviderFunc func(ctx context.Context, text string) ([]float32, error)

// Embed calls f(ctx, text)
func (f ProviderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// Store is a persistent embedding tier shared across runs
type Store interface {
	Get(ctx context.Context, key string) (cache.Entry, bool, error)
	Put(ctx context.Context, entry cache.Entry) error
}

// ProviderError reports a failed or timed-out provider call. Failures are never cached.
type ProviderError struct {
	Key string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider failed for key %s: %v", shortKey(e.Key), e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// MalformedEmbeddingError reports a provider response of the wrong dimension
type MalformedEmbeddingError struct {
	Key  string
	Got  int
	Want int
}

func (e *MalformedEmbeddingError) Error() string {
	return fmt.Sprintf("malformed embedding for key %s: got %d dimensions, want %d", shortKey(e.Key), e.Got, e.Want)
}

// flightAbortedError marks a flight stopped because the context of the caller
// that started it ended. A provider's own timeout is a ProviderError instead.
type flightAbortedError struct {
	Key string
	Err error
}

func (e *flightAbortedError) Error() string {
	return fmt.Sprintf("embedding flight for key %s aborted: %v", shortKey(e.Key), e.Err)
}

func (e *flightAbortedError) Unwrap() error { return e.Err }

// Stats are the cache's lifetime counters
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	ProviderCalls int64 `json:"provider_calls"`
	Failures      int64 `json:"failures"`
}

// Cache maps normalized message text to embedding vectors
type Cache struct {
	provider   Provider
	memory     *cache.Memory
	store      Store
	dimensions int
	group      singleflight.Group
	logger     zerolog.Logger
	now        func() time.Time

	hits     atomic.Int64
	misses   atomic.Int64
	calls    atomic.Int64
	failures atomic.Int64
}

// NewCache creates an embedding cache. store may be nil for a purely in-memory
// cache. dimensions is the expected vector length; responses of any other
// length are rejected.
func NewCache(provider Provider, store Store, dimensions int, logger zerolog.Logger) *Cache {
	return &Cache{
		provider:   provider,
		memory:     cache.New(),
		store:      store,
		dimensions: dimensions,
		logger:     logger.With().Str("component", "embedding_cache").Logger(),
		now:        time.Now,
	}
}

// Normalize trims text and collapses internal whitespace runs to a single
// space. Case is preserved.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Key returns the cache key for text: the hex SHA-256 of its normalized form
func Key(text string) string {
	return keyOf(Normalize(text))
}

func keyOf(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// GetOrCompute returns the embedding for text, calling the provider only on a
// miss. Concurrent misses for the same key share a single provider call.
// The returned slice is shared between callers and must not be modified.
func (c *Cache) GetOrCompute(ctx context.Context, text string) ([]float32, error) {
	normalized := Normalize(text)
	key := keyOf(normalized)

	if vec, ok := c.lookup(ctx, key); ok {
		c.hits.Add(1)
		return vec, nil
	}
	c.misses.Add(1)

	var lastErr error
	for attempt := 0; attempt < maxFlightAttempts; attempt++ {
		ch := c.group.DoChan(key, func() (interface{}, error) {
			return c.compute(ctx, key, normalized)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err == nil {
				return res.Val.([]float32), nil
			}
			var aborted *flightAbortedError
			if !errors.As(res.Err, &aborted) {
				return nil, res.Err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = res.Err
			c.logger.Debug().Str("key", shortKey(key)).Int("attempt", attempt+1).
				Msg("Shared embedding flight was cancelled, retrying on own context")
		}
	}
	return nil, &ProviderError{Key: key, Err: lastErr}
}

// Stats returns a snapshot of the cache counters
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		ProviderCalls: c.calls.Load(),
		Failures:      c.failures.Load(),
	}
}

// Len returns the number of vectors held in memory
func (c *Cache) Len() int {
	return c.memory.Len()
}

// Dimensions returns the expected vector length
func (c *Cache) Dimensions() int {
	return c.dimensions
}

// lookup checks the memory tier, then the persistent tier. A persistent read
// failure is logged and treated as a miss.
func (c *Cache) lookup(ctx context.Context, key string) ([]float32, bool) {
	if entry, ok := c.memory.Get(key); ok {
		return entry.Vector, true
	}
	if c.store == nil {
		return nil, false
	}

	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", shortKey(key)).Msg("Embedding store read failed, treating as miss")
		return nil, false
	}
	if !ok || !c.validLength(len(entry.Vector)) {
		return nil, false
	}
	c.memory.Put(entry)
	return entry.Vector, true
}

// compute runs inside the single flight for key
func (c *Cache) compute(ctx context.Context, key, normalized string) ([]float32, error) {
	// a flight that finished just before this one was started has already stored the entry
	if vec, ok := c.lookup(ctx, key); ok {
		return vec, nil
	}

	c.calls.Add(1)
	vec, err := c.provider.Embed(ctx, normalized)
	if err != nil {
		c.failures.Add(1)
		if ctx.Err() != nil {
			return nil, &flightAbortedError{Key: key, Err: ctx.Err()}
		}
		return nil, &ProviderError{Key: key, Err: err}
	}
	if !c.validLength(len(vec)) {
		c.failures.Add(1)
		return nil, &MalformedEmbeddingError{Key: key, Got: len(vec), Want: c.dimensions}
	}

	entry := cache.Entry{Key: key, Vector: vec, CreatedAt: c.now().UTC()}
	c.memory.Put(entry)

	if c.store != nil {
		// the vector is valid even if the caller has gone away; persist it anyway
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
		defer cancel()
		if err := c.store.Put(storeCtx, entry); err != nil {
			c.logger.Warn().Err(err).Str("key", shortKey(key)).Msg("Failed to persist embedding")
		}
	}

	stored, _ := c.memory.Get(key)
	return stored.Vector, nil
}

func (c *Cache) validLength(n int) bool {
	if n == 0 {
		return false
	}
	return c.dimensions <= 0 || n == c.dimensions
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
