package conductor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/holo-host/hpos-api/pkg/log"
	"github.com/holo-host/hpos-api/pkg/metrics"
)

// DefaultCallTimeout bounds every conductor request unless overridden.
const DefaultCallTimeout = 30 * time.Second

var (
	// ErrDuplicateCell is returned when a clone with the same name or DNA already exists.
	ErrDuplicateCell = errors.New("duplicate cell")

	// ErrAlreadyInstalled is returned when installing an app id or cell that exists.
	ErrAlreadyInstalled = errors.New("app already installed")

	// ErrTimeout is returned when the conductor does not answer within the call timeout.
	ErrTimeout = errors.New("conductor call timed out")

	// ErrNotConnected is returned when the websocket cannot be (re)established or drops mid-call.
	ErrNotConnected = errors.New("not connected to conductor")
)

// Remote error kinds with a sentinel mapping.
const (
	KindDuplicateCell       = "duplicate_cell"
	KindAppAlreadyInstalled = "app_already_installed"
	KindCellAlreadyExists   = "cell_already_exists"
)

// RemoteError is an error reported by the conductor for one request.
type RemoteError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return e.Kind
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is maps remote error kinds onto package sentinels.
func (e *RemoteError) Is(target error) bool {
	switch e.Kind {
	case KindDuplicateCell:
		return target == ErrDuplicateCell
	case KindAppAlreadyInstalled, KindCellAlreadyExists:
		return target == ErrAlreadyInstalled
	}
	return false
}

// Request is the envelope written for each call.
type Request struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Response is the envelope read for each call. Exactly one of Data or Error is set.
type Response struct {
	ID    string          `json:"id"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *RemoteError    `json:"error,omitempty"`
}

type result struct {
	resp Response
	err  error
}

// Caller issues one request and decodes its response into out.
type Caller interface {
	Call(ctx context.Context, method string, params, out interface{}) error
}

// Client is a request/response client over a single websocket. The connection
// is dialled lazily and re-dialled on the next call after it drops.
type Client struct {
	url     string
	timeout time.Duration
	logger  zerolog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan result
}

// NewClient creates a client for the websocket at url. A zero timeout uses
// DefaultCallTimeout.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Client{
		url:     url,
		timeout: timeout,
		logger:  log.WithComponent("conductor").With().Str("url", url).Logger(),
		pending: make(map[string]chan result),
	}
}

// URL returns the websocket address the client dials.
func (c *Client) URL() string {
	return c.url
}

// Connect dials the websocket if it is not already open.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.connection(ctx)
	return err
}

func (c *Client) connection(ctx context.Context) (*websocket.Conn, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s (status %d): %v", ErrNotConnected, c.url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", ErrNotConnected, c.url, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c.conn = conn
	go c.readLoop(conn)

	c.logger.Debug().Msg("Connected to conductor")
	return conn, nil
}

// Call sends method with params and decodes the response data into out (which may be nil).
func (c *Client) Call(ctx context.Context, method string, params, out interface{}) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ConductorCallDuration, method)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.connection(callCtx)
	if err != nil {
		return err
	}

	req := Request{ID: uuid.New().String(), Type: method, Data: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	ch := make(chan result, 1)
	c.pendingMu.Lock()
	c.pending[req.ID] = ch
	c.pendingMu.Unlock()
	defer c.forget(req.ID)

	if err := c.write(conn, payload); err != nil {
		c.drop(conn, err)
		return fmt.Errorf("%w: write %s: %v", ErrNotConnected, method, err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("%s: %w", method, res.err)
		}
		if res.resp.Error != nil {
			return fmt.Errorf("%s: %w", method, res.resp.Error)
		}
		if out == nil || len(res.resp.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(res.resp.Data, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", method, err)
		}
		return nil
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			c.logger.Warn().Str("method", method).Dur("timeout", c.timeout).Msg("Conductor call timed out")
			return fmt.Errorf("%s: %w after %s", method, ErrTimeout, c.timeout)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w: %v", method, ErrTimeout, ctx.Err())
		}
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

func (c *Client) write(conn *websocket.Conn, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) forget(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.drop(conn, err)
			return
		}

		var resp Response
		if err := json.Unmarshal(msg, &resp); err != nil {
			c.logger.Warn().Err(err).Msg("Discarding undecodable conductor message")
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		c.pendingMu.Unlock()
		if !ok {
			c.logger.Debug().Str("id", resp.ID).Msg("Discarding response for unknown request")
			continue
		}
		// repeated replies for one ID are dropped
		select {
		case ch <- result{resp: resp}:
		default:
		}
	}
}

// drop closes conn if it is still current and fails every in-flight call.
func (c *Client) drop(conn *websocket.Conn, cause error) {
	c.connMu.Lock()
	if c.conn != conn {
		c.connMu.Unlock()
		return
	}
	c.conn = nil
	c.connMu.Unlock()

	_ = conn.Close()
	if !websocket.IsCloseError(cause, websocket.CloseNormalClosure) {
		c.logger.Warn().Err(cause).Msg("Conductor connection lost")
	}

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		select {
		case ch <- result{err: fmt.Errorf("%w: %v", ErrNotConnected, cause)}:
		default:
		}
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

// Close closes the websocket. Later calls dial again.
func (c *Client) Close() error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	c.drop(conn, &websocket.CloseError{Code: websocket.CloseNormalClosure})
	return nil
}
