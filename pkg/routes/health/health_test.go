package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatus(t *testing.T) {
	c := NewChecker("test")
	c.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 6e6, time.UTC) }
	e := echo.New()
	c.RegisterRoutes(e)

	rec := serve(e, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"UP","timestamp":"2024-01-02T03:04:05.006Z"}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]Check
		wantCode   int
		wantStatus string
	}{
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name: "all healthy",
			checks: map[string]Check{
				"database": func(context.Context) error { return nil },
				"redis":    func(context.Context) error { return nil },
			},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name: "one failing",
			checks: map[string]Check{
				"database": func(context.Context) error { return nil },
				"graph":    func(context.Context) error { return errors.New("bolt unreachable") },
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker("1.2.3")
			for name, check := range tt.checks {
				c.AddCheck(name, check)
			}
			e := echo.New()
			c.RegisterRoutes(e)

			rec := serve(e, "/api/v1/health")
			require.Equal(t, tt.wantCode, rec.Code)

			var body HealthStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Equal(t, "1.2.3", body.Version)
			assert.Len(t, body.Checks, len(tt.checks))
		})
	}
}

func TestLiveAndReady(t *testing.T) {
	c := NewChecker("test")
	e := echo.New()
	c.RegisterRoutes(e)

	assert.Equal(t, http.StatusOK, serve(e, "/api/v1/health/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(e, "/api/v1/health/ready").Code)

	c.SetReady(true)
	assert.Equal(t, http.StatusOK, serve(e, "/api/v1/health/ready").Code)
}
