package handlers

import (
	"context"
	"net/http"

	"chatdigest/internal/embeddings"
	"chatdigest/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// EntryCounter reports how many embeddings the persistent tier holds
type EntryCounter interface {
	Count(ctx context.Context) (int64, error)
}

// CacheStatsHandler reports the embedding cache counters. cache and counter
// may each be nil. Without a counter, entries are the in-memory count, or -1
// when there is no cache at all.
// @Summary Embedding cache statistics
// @Tags cache
// @Produce json
// @Success 200 {object} models.CacheStatsResponse
// @Router /api/cache/stats [get]
func CacheStatsHandler(cache *embeddings.Cache, counter EntryCounter, backend string, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		response := models.CacheStatsResponse{Backend: backend, Entries: -1}

		if cache != nil {
			stats := cache.Stats()
			response.Hits = stats.Hits
			response.Misses = stats.Misses
			response.ProviderCalls = stats.ProviderCalls
			response.Failures = stats.Failures
			if counter == nil {
				response.Entries = int64(cache.Len())
			}
		}

		if counter != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), dbHealthTimeout)
			defer cancel()
			n, err := counter.Count(ctx)
			if err != nil {
				logger.Warn().Err(err).Str("backend", backend).Msg("Failed to count cached embeddings")
			} else {
				response.Entries = n
			}
		}

		return c.JSON(http.StatusOK, response)
	}
}
