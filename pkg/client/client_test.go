package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holo-host/hpos-api/pkg/slcheck"
)

func TestSLCheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    slcheck.Report
		wantErr string
	}{
		{
			name:   "report",
			status: http.StatusOK,
			body:   `{"serviceLoggersCloned":[["a::servicelogger","sl-14-40"]],"serviceLoggersDeleted":[]}`,
			want: slcheck.Report{
				Cloned:  []slcheck.AppBucket{{AppID: "a::servicelogger", Bucket: "sl-14-40"}},
				Deleted: []slcheck.AppBucket{},
			},
		},
		{
			name:    "app failed",
			status:  http.StatusInternalServerError,
			body:    `{"error":"retire clones of a::servicelogger: 1 failed: sl-14-0 delete: refused"}`,
			wantErr: "sl-14-0 delete: refused",
		},
		{
			name:    "pass not started",
			status:  http.StatusInternalServerError,
			body:    `{"error":"service logger check could not start"}`,
			wantErr: "could not start",
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{"error":"sl-check rate limit exceeded"}`,
			wantErr: "429",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/apps/hosted/sl-check", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewClient(srv.URL, time.Second)
			require.NoError(t, err)

			rep, err := c.SLCheck(context.Background())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, tt.status, apiErr.StatusCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rep)
		})
	}
}

func TestHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/apps/hosted/sl-check/history", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "happ", r.URL.Query().Get("app_id"))
		_, _ = w.Write([]byte(`{"passes":[{"id":"p1","outcome":"partial","report":{"serviceLoggersCloned":[],"serviceLoggersDeleted":[]}}],"events":[{"type":"clone.created","app_id":"happ"}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", time.Second)
	require.NoError(t, err)

	h, err := c.History(context.Background(), 5, "happ")
	require.NoError(t, err)
	require.Len(t, h.Passes, 1)
	assert.Equal(t, "partial", h.Passes[0].Outcome)
	require.Len(t, h.Events, 1)
	assert.Equal(t, "happ", h.Events[0].AppID)
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient("", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultAddr, c.baseURL)

	c, err = NewClient("localhost:2300", 0)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:2300", c.baseURL)
}

func TestSLCheck_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, err := NewClient(addr, time.Second)
	require.NoError(t, err)

	_, err = c.SLCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to reach hpos-api")
}
