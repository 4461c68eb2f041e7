package conductor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConductor is a websocket server answering each request through reply.
// A nil response leaves the request unanswered; closeAfter > 0 drops the
// connection once that many requests have been read; repeat > 1 sends
// every reply that many times.
type mockConductor struct {
	server     *httptest.Server
	upgrader   websocket.Upgrader
	reply      func(Request) *Response
	closeAfter int32
	repeat     int
	requests   atomic.Int32
	conns      atomic.Int32
}

func newMockConductor(t *testing.T, reply func(Request) *Response) *mockConductor {
	t.Helper()
	m := &mockConductor{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		reply:    reply,
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockConductor) url() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http")
}

func (m *mockConductor) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	m.conns.Add(1)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		n := m.requests.Add(1)

		var req Request
		if err := json.Unmarshal(msg, &req); err != nil {
			return
		}
		if m.closeAfter > 0 && n == m.closeAfter {
			return
		}

		resp := m.reply(req)
		if resp == nil {
			continue
		}
		resp.ID = req.ID
		out, _ := json.Marshal(resp)
		for i := 0; i < max(m.repeat, 1); i++ {
			if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
				return
			}
		}
	}
}

func dataResponse(t *testing.T, v interface{}) *Response {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return &Response{Type: "ok", Data: raw}
}

func TestClient_CallRoundTrip(t *testing.T) {
	mock := newMockConductor(t, func(req Request) *Response {
		if req.Type != MethodListApps {
			return &Response{Error: &RemoteError{Kind: "unknown_method"}}
		}
		return dataResponse(t, []map[string]string{{"installed_app_id": "happ1::servicelogger"}})
	})

	client := NewClient(mock.url(), time.Second)
	defer client.Close()

	var apps []struct {
		InstalledAppID string `json:"installed_app_id"`
	}
	err := client.Call(context.Background(), MethodListApps, nil, &apps)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "happ1::servicelogger", apps[0].InstalledAppID)
}

func TestClient_ConcurrentCallsShareConnection(t *testing.T) {
	mock := newMockConductor(t, func(req Request) *Response {
		var n int
		raw, _ := json.Marshal(req.Data)
		_ = json.Unmarshal(raw, &n)
		return dataResponse(t, n*2)
	})

	client := NewClient(mock.url(), time.Second)
	defer client.Close()

	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(i int) {
			var got int
			if err := client.Call(context.Background(), "double", i, &got); err != nil {
				errs <- err
				return
			}
			if got != i*2 {
				errs <- errors.New("response routed to wrong caller")
				return
			}
			errs <- nil
		}(i)
	}
	for i := 0; i < 10; i++ {
		assert.NoError(t, <-errs)
	}
	assert.Equal(t, int32(1), mock.conns.Load())
}

func TestClient_RepeatedRepliesDoNotStallReader(t *testing.T) {
	mock := newMockConductor(t, func(req Request) *Response {
		return dataResponse(t, req.Type)
	})
	mock.repeat = 3

	client := NewClient(mock.url(), time.Second)
	defer client.Close()

	for _, method := range []string{"first", "second", "third"} {
		var got string
		require.NoError(t, client.Call(context.Background(), method, nil, &got))
		assert.Equal(t, method, got)
	}
	assert.Equal(t, int32(1), mock.conns.Load())
}

func TestClient_RemoteErrorSentinels(t *testing.T) {
	tests := []struct {
		kind     string
		sentinel error
	}{
		{KindDuplicateCell, ErrDuplicateCell},
		{KindAppAlreadyInstalled, ErrAlreadyInstalled},
		{KindCellAlreadyExists, ErrAlreadyInstalled},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			mock := newMockConductor(t, func(Request) *Response {
				return &Response{Error: &RemoteError{Kind: tt.kind, Message: "exists"}}
			})
			client := NewClient(mock.url(), time.Second)
			defer client.Close()

			err := client.Call(context.Background(), MethodCreateCloneCell, nil, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel))

			var remote *RemoteError
			require.True(t, errors.As(err, &remote))
			assert.Equal(t, tt.kind, remote.Kind)
		})
	}
}

func TestClient_UnknownRemoteErrorIsNotSentinel(t *testing.T) {
	mock := newMockConductor(t, func(Request) *Response {
		return &Response{Error: &RemoteError{Kind: "ribosome_error", Message: "boom"}}
	})
	client := NewClient(mock.url(), time.Second)
	defer client.Close()

	err := client.Call(context.Background(), MethodCallZome, nil, nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDuplicateCell))
	assert.Contains(t, err.Error(), "boom")
}

func TestClient_Timeout(t *testing.T) {
	mock := newMockConductor(t, func(Request) *Response { return nil })

	client := NewClient(mock.url(), 100*time.Millisecond)
	defer client.Close()

	start := time.Now()
	err := client.Call(context.Background(), MethodListApps, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_CallerCancellationIsNotTimeout(t *testing.T) {
	mock := newMockConductor(t, func(Request) *Response { return nil })

	client := NewClient(mock.url(), 5*time.Second)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := client.Call(ctx, MethodListApps, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestClient_DroppedConnectionFailsCallAndReconnects(t *testing.T) {
	mock := newMockConductor(t, func(Request) *Response {
		return dataResponse(t, "ok")
	})
	mock.closeAfter = 1

	client := NewClient(mock.url(), time.Second)
	defer client.Close()

	err := client.Call(context.Background(), MethodListApps, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConnected))

	var got string
	require.Eventually(t, func() bool {
		return client.Call(context.Background(), MethodListApps, nil, &got) == nil
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, "ok", got)
	assert.GreaterOrEqual(t, mock.conns.Load(), int32(2))
}

func TestClient_DialFailure(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1", 200*time.Millisecond)

	err := client.Call(context.Background(), MethodListApps, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConnected))
}
