package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/holo-host/hpos-api/pkg/events"
	"github.com/holo-host/hpos-api/pkg/slcheck"
	"github.com/holo-host/hpos-api/pkg/storage"
)

// DefaultAddr is where hpos-api listens unless configured otherwise
const DefaultAddr = "http://127.0.0.1:2300"

// APIError is a non-2xx answer of the gateway
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hpos-api returned %d: %s", e.StatusCode, e.Message)
}

// History is the journal view returned by the sl-check history route
type History struct {
	Passes []storage.PassRecord `json:"passes"`
	Events []events.Event       `json:"events"`
}

// Client talks to a running hpos-api over HTTP
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the gateway at baseURL
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultAddr
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid hpos-api address %q: %w", baseURL, err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// SLCheck triggers one service logger check and returns its report. A
// report with errors is still returned without error.
func (c *Client) SLCheck(ctx context.Context) (slcheck.Report, error) {
	var rep slcheck.Report
	if err := c.get(ctx, "/apps/hosted/sl-check", nil, &rep); err != nil {
		return slcheck.Report{}, err
	}
	return rep, nil
}

// History lists journaled passes and events. A zero limit uses the server
// default; appID narrows events to one app.
func (c *Client) History(ctx context.Context, limit int, appID string) (History, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if appID != "" {
		q.Set("app_id", appID)
	}

	var h History
	if err := c.get(ctx, "/apps/hosted/sl-check/history", q, &h); err != nil {
		return History{}, err
	}
	return h, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach hpos-api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
