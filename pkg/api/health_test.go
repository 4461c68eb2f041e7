package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holo-host/hpos-api/pkg/metrics"
)

func TestHealthRoutes(t *testing.T) {
	h := NewServer(Deps{}, Config{}).Handler()

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"liveness", http.MethodGet, "/health/live", http.StatusOK},
		{"liveness rejects POST", http.MethodPost, "/health/live", http.StatusMethodNotAllowed},
		{"health rejects DELETE", http.MethodDelete, "/health", http.StatusMethodNotAllowed},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestReadyRoute(t *testing.T) {
	h := NewServer(Deps{}, Config{}).Handler()
	metrics.SetCriticalComponents(metrics.ComponentConductor)
	defer metrics.SetCriticalComponents(metrics.ComponentConductor, metrics.ComponentAPI)

	metrics.UpdateComponent(metrics.ComponentConductor, false, "connection refused")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var status metrics.HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "not_ready", status.Status)
	assert.Contains(t, status.Components[metrics.ComponentConductor], "connection refused")

	metrics.UpdateComponent(metrics.ComponentConductor, true, "ok")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDHeader(t *testing.T) {
	h := NewServer(Deps{}, Config{}).Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(RequestIDHeader, "caller-id")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "caller-id", w.Header().Get(RequestIDHeader))
}
