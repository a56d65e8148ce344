package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatdigest/internal/backend"
	"chatdigest/internal/config"
	"chatdigest/internal/embeddings"
	"chatdigest/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *bytes.Buffer) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Version = "test"
	cfg.EmbeddingDimensions = 2

	provider := embeddings.ProviderFunc(func(ctx context.Context, text string) ([]float32, error) {
		if strings.Contains(text, "deploy") {
			return []float32{1, 0}, nil
		}
		return []float32{0, 1}, nil
	})
	b := &backend.Backend{
		Name:  backend.BackendMemory,
		Cache: embeddings.NewCache(provider, nil, 2, zerolog.Nop()),
	}

	var logs bytes.Buffer
	s := New(cfg, b, nil, zerolog.New(&logs))
	s.Initialize()
	return s, &logs
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"liveness", http.MethodGet, "/healthz", "", http.StatusOK},
		{"database check without sql backend", http.MethodGet, "/healthz/db", "", http.StatusServiceUnavailable},
		{"api root", http.MethodGet, "/api/", "", http.StatusOK},
		{"cache stats", http.MethodGet, "/api/cache/stats", "", http.StatusOK},
		{"segment", http.MethodPost, "/api/segment", `{"messages": [{"channel": "C1", "ts": "1.0", "user": "UA", "text": "hi"}]}`, http.StatusOK},
		{"unknown route", http.MethodGet, "/api/products", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestSegmentThenCacheStats(t *testing.T) {
	s, _ := newTestServer(t)

	body := `{"messages": [
		{"channel": "C1", "ts": "100.0", "user": "UA", "text": "deploy started"},
		{"channel": "C1", "ts": "160.0", "user": "UB", "text": "deploy done"},
		{"channel": "C1", "ts": "220.0", "user": "UA", "text": "lunch?"}
	]}`
	rec := do(s, http.MethodPost, "/api/segment", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var segmented models.SegmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &segmented))
	require.NotNil(t, segmented.Result)
	assert.Len(t, segmented.Result.Conversations, 2)

	rec = do(s, http.MethodGet, "/api/cache/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.CacheStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, int64(3), stats.ProviderCalls)
	assert.Equal(t, int64(3), stats.Entries)
}

func TestRequestLogging(t *testing.T) {
	s, logs := newTestServer(t)

	do(s, http.MethodGet, "/healthz", "")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &entry))
	assert.Equal(t, "HTTP request", entry["message"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/healthz", entry["uri"])
	assert.Equal(t, float64(200), entry["status"])
}

func TestNilBackend(t *testing.T) {
	cfg := config.Defaults()
	s := New(cfg, nil, nil, zerolog.Nop())
	s.Initialize()

	rec := do(s, http.MethodGet, "/api/cache/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"entries":-1`)

	rec = do(s, http.MethodPost, "/api/segment", `{"messages": []}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPITokenGuardsAPIRoutes(t *testing.T) {
	cfg := config.Defaults()
	cfg.APIToken = "s3cret"
	s := New(cfg, nil, nil, zerolog.Nop())
	s.Initialize()

	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/cache/stats", "").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/healthz", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
