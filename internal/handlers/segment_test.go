package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatdigest/internal/embeddings"
	"chatdigest/internal/models"
	"chatdigest/internal/segment"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keywordProvider(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "deploy") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

func postSegment(t *testing.T, handler echo.HandlerFunc, body string) (*httptest.ResponseRecorder, models.SegmentResponse) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/segment", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, handler(e.NewContext(req, rec)))

	var response models.SegmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	return rec, response
}

const segmentBody = `{
	"messages": [
		{"channel": "C1", "ts": "1000.000000", "user": "UA", "text": "deploy started"},
		{"channel": "C1", "ts": "1060.000000", "user": "UB", "text": "deploy done"},
		{"channel": "C1", "ts": "1120.000000", "user": "UA", "text": "lunch anyone?"},
		{"channel": "C1", "ts": "9000.000000", "user": "UB", "text": "morning"}
	],
	"channel_names": {"C1": "ops"},
	"tracked_user": "UA"
}`

func TestSegmentHandler(t *testing.T) {
	cache := embeddings.NewCache(embeddings.ProviderFunc(keywordProvider), nil, 2, zerolog.Nop())
	handler := SegmentHandler(cache, segment.DefaultOptions(), nil, zerolog.Nop())

	rec, response := postSegment(t, handler, segmentBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, response.Result)
	assert.Empty(t, response.Error)

	result := response.Result
	assert.Equal(t, 4, result.Stats.TotalMessages)
	assert.Equal(t, 1, result.Stats.TimeGapSplits)
	assert.Equal(t, 1, result.Stats.SemanticSplits)
	require.Len(t, result.Conversations, 3)
	assert.Equal(t, "ops", result.Conversations[0].ChannelName)
	assert.Equal(t, 1, result.Conversations[0].UserMessageCount)
}

func TestSegmentHandler_Overrides(t *testing.T) {
	cache := embeddings.NewCache(embeddings.ProviderFunc(keywordProvider), nil, 2, zerolog.Nop())
	handler := SegmentHandler(cache, segment.DefaultOptions(), nil, zerolog.Nop())

	body := strings.Replace(segmentBody, `"tracked_user": "UA"`, `"tracked_user": "UA", "disable_semantic": true, "gap_threshold_seconds": 36000`, 1)
	rec, response := postSegment(t, handler, body)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, response.Result)
	assert.Len(t, response.Result.Conversations, 1)
	assert.Zero(t, response.Result.Stats.SemanticSplits)
	assert.Zero(t, cache.Stats().ProviderCalls)
}

func TestSegmentHandler_WithoutEmbeddingSource(t *testing.T) {
	handler := SegmentHandler(nil, segment.DefaultOptions(), nil, zerolog.Nop())

	rec, response := postSegment(t, handler, segmentBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, response.Result)
	assert.Len(t, response.Result.Conversations, 2)
}

func TestSegmentHandler_ChannelFailure(t *testing.T) {
	handler := SegmentHandler(nil, segment.DefaultOptions(), nil, zerolog.Nop())

	body := `{"messages": [
		{"channel": "C1", "ts": "100.0", "user": "UA", "text": "ok"},
		{"channel": "C2", "ts": "not-a-ts", "user": "UA", "text": "broken"}
	]}`
	rec, response := postSegment(t, handler, body)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, response.Result)
	assert.Len(t, response.Result.Conversations, 1)
	require.Len(t, response.Result.Failures, 1)
	assert.Equal(t, "C2", response.Result.Failures[0].ChannelID)
}

func TestSegmentHandler_BadRequests(t *testing.T) {
	handler := SegmentHandler(nil, segment.DefaultOptions(), nil, zerolog.Nop())

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"malformed json", `{"messages": [`, "Invalid request body"},
		{"negative gap", `{"messages": [], "gap_threshold_seconds": -5}`, "gap_threshold_seconds"},
		{"similarity out of range", `{"messages": [], "similarity_threshold": 1.5}`, "similarity_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, response := postSegment(t, handler, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, response.Error, tt.wantErr)
			assert.Nil(t, response.Result)
		})
	}
}

func TestSegmentHandler_Cancelled(t *testing.T) {
	blocking := embeddings.ProviderFunc(func(ctx context.Context, text string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	cache := embeddings.NewCache(blocking, nil, 2, zerolog.Nop())
	handler := SegmentHandler(cache, segment.DefaultOptions(), nil, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/segment", strings.NewReader(segmentBody)).WithContext(ctx)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, handler(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Segmentation failed")
}

func TestRequestOptions(t *testing.T) {
	base := segment.DefaultOptions()

	opts, err := requestOptions(base, models.SegmentRequest{})
	require.NoError(t, err)
	assert.Equal(t, base, opts)

	gap, sim := 60, 0.8
	opts, err = requestOptions(base, models.SegmentRequest{GapThresholdSeconds: &gap, SimilarityThreshold: &sim, TrackedUser: "UA"})
	require.NoError(t, err)
	assert.Equal(t, time.Minute, opts.GapThreshold)
	assert.Equal(t, 0.8, opts.SimilarityThreshold)
	assert.Equal(t, "UA", opts.TrackedUser)
	assert.True(t, opts.SemanticEnabled)

	zeroGap, zeroSim := 0, 0.0
	opts, err = requestOptions(base, models.SegmentRequest{GapThresholdSeconds: &zeroGap, SimilarityThreshold: &zeroSim})
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), opts.GapThreshold)
	assert.Equal(t, 0.0, opts.SimilarityThreshold)
}

func TestSegmentHandler_ZeroGapSplitsEveryTimestamp(t *testing.T) {
	body := `{
		"messages": [
			{"channel": "C1", "ts": "100.000000", "user": "UA", "text": "one"},
			{"channel": "C1", "ts": "101.000000", "user": "UB", "text": "two"},
			{"channel": "C1", "ts": "102.000000", "user": "UA", "text": "three"}
		],
		"gap_threshold_seconds": 0,
		"disable_semantic": true
	}`
	handler := SegmentHandler(nil, segment.DefaultOptions(), nil, zerolog.Nop())

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/segment", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, handler(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.SegmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Result)
	assert.Len(t, resp.Result.Conversations, 3)
	assert.Equal(t, 2, resp.Result.Stats.TimeGapSplits)
}

type fakeCounter struct {
	n   int64
	err error
}

func (f fakeCounter) Count(ctx context.Context) (int64, error) { return f.n, f.err }

func TestCacheStatsHandler(t *testing.T) {
	cache := embeddings.NewCache(embeddings.ProviderFunc(keywordProvider), nil, 2, zerolog.Nop())
	_, err := cache.GetOrCompute(context.Background(), "deploy")
	require.NoError(t, err)
	_, err = cache.GetOrCompute(context.Background(), "deploy")
	require.NoError(t, err)

	tests := []struct {
		name        string
		cache       *embeddings.Cache
		counter     EntryCounter
		wantEntries int64
		wantHits    int64
	}{
		{"persistent count", cache, fakeCounter{n: 42}, 42, 1},
		{"count failure", cache, fakeCounter{err: errors.New("connection refused")}, -1, 1},
		{"memory only", cache, nil, 1, 1},
		{"no cache", nil, nil, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil)
			rec := httptest.NewRecorder()

			handler := CacheStatsHandler(tt.cache, tt.counter, "sql", zerolog.Nop())
			require.NoError(t, handler(e.NewContext(req, rec)))
			assert.Equal(t, http.StatusOK, rec.Code)

			var response models.CacheStatsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			assert.Equal(t, "sql", response.Backend)
			assert.Equal(t, tt.wantEntries, response.Entries)
			assert.Equal(t, tt.wantHits, response.Hits)
		})
	}
}
