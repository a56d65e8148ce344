package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatdigest/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name    string
		version string
	}{
		{name: "returns healthy status", version: "1.0.0"},
		{name: "returns healthy with empty version", version: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			require.NoError(t, HealthHandler(tt.version)(c))
			assert.Equal(t, http.StatusOK, rec.Code)

			var response models.HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			assert.Equal(t, "healthy", response.Status)
			assert.Equal(t, tt.version, response.Version)
			assert.WithinDuration(t, time.Now().UTC(), response.Timestamp, 5*time.Second)
		})
	}
}

func TestDBHealthHandler(t *testing.T) {
	tests := []struct {
		name           string
		setupMock      func(mock sqlmock.Sqlmock)
		expectedStatus int
		checkResponse  func(t *testing.T, resp models.DBHealthResponse)
	}{
		{
			name: "healthy database connection",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
				mock.ExpectRollback()
			},
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, resp models.DBHealthResponse) {
				assert.Equal(t, "healthy", resp.Status)
				assert.True(t, resp.Connected)
				assert.Greater(t, resp.Latency, time.Duration(0))
				assert.Empty(t, resp.Error)
			},
		},
		{
			name:           "nil database connection",
			expectedStatus: http.StatusServiceUnavailable,
			checkResponse: func(t *testing.T, resp models.DBHealthResponse) {
				assert.Equal(t, "unhealthy", resp.Status)
				assert.False(t, resp.Connected)
				assert.Equal(t, "Database connection not initialized", resp.Error)
			},
		},
		{
			name: "transaction begin failure",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(sql.ErrConnDone)
			},
			expectedStatus: http.StatusServiceUnavailable,
			checkResponse: func(t *testing.T, resp models.DBHealthResponse) {
				assert.Equal(t, "unhealthy", resp.Status)
				assert.False(t, resp.Connected)
				assert.Contains(t, resp.Error, "failed to begin read-only transaction")
			},
		},
		{
			name: "query failure",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT 1").WillReturnError(sql.ErrNoRows)
				mock.ExpectRollback()
			},
			expectedStatus: http.StatusServiceUnavailable,
			checkResponse: func(t *testing.T, resp models.DBHealthResponse) {
				assert.Equal(t, "unhealthy", resp.Status)
				assert.Contains(t, resp.Error, "Database read-only query failed")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/healthz/db", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			var testDB *sqlx.DB
			if tt.setupMock != nil {
				mockDB, mock, err := sqlmock.New()
				require.NoError(t, err)
				defer func() { _ = mockDB.Close() }()

				testDB = sqlx.NewDb(mockDB, "sqlmock")
				tt.setupMock(mock)
			}

			require.NoError(t, DBHealthHandler(testDB)(c))
			assert.Equal(t, tt.expectedStatus, rec.Code)

			var response models.DBHealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			tt.checkResponse(t, response)
		})
	}
}

func TestDBHealthHandler_ContextTimeout(t *testing.T) {
	previous := dbHealthTimeout
	dbHealthTimeout = 50 * time.Millisecond
	defer func() { dbHealthTimeout = previous }()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = mockDB.Close() }()
	mock.ExpectBegin().WillDelayFor(2 * time.Second)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, DBHealthHandler(sqlx.NewDb(mockDB, "sqlmock"))(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var response models.DBHealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "unhealthy", response.Status)
	assert.False(t, response.Connected)
}

func TestDBHealthHandler_RequestCancelled(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = mockDB.Close() }()
	mock.ExpectBegin().WillDelayFor(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz/db", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, DBHealthHandler(sqlx.NewDb(mockDB, "sqlmock"))(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRootHandler(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, RootHandler("3.2.1")(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "chatdigest", response["service"])
	assert.Equal(t, "3.2.1", response["version"])
	assert.Equal(t, "running", response["status"])
}
