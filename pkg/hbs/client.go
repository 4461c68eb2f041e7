package hbs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/holo-host/hpos-api/pkg/ledger"
	"github.com/holo-host/hpos-api/pkg/log"
	"github.com/holo-host/hpos-api/pkg/metrics"
)

// SignatureHeader carries the holoport signature of the request body
const SignatureHeader = "X-Signature"

// PathRedemptions is the HBS endpoint returning redemption records by id
const PathRedemptions = "/reserve/api/v2/redemptions/get"

var (
	// ErrCircuitOpen is returned while HBS is considered unavailable
	ErrCircuitOpen = errors.New("hbs circuit breaker open")

	// ErrNotConfigured is returned when no HBS url is set
	ErrNotConfigured = errors.New("hbs url not configured")
)

// Signer signs request bodies
type Signer interface {
	SignBytes(body []byte) string
}

// StatusError is a non-2xx HBS response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hbs returned %d: %s", e.StatusCode, e.Body)
}

// Config configures the HBS client
type Config struct {
	URL     string
	Timeout time.Duration
	// RequestsPerSecond throttles outbound calls; zero disables throttling
	RequestsPerSecond float64
	// BreakerTimeout is how long the breaker stays open before probing again
	BreakerTimeout time.Duration
	// BreakerFailures is the number of consecutive failures that opens the breaker
	BreakerFailures uint32
}

// Client is a signed HTTP client for HBS
type Client struct {
	baseURL string
	http    *http.Client
	signer  Signer
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[[]byte]
	logger  zerolog.Logger
}

// NewClient creates an HBS client
func NewClient(cfg Config, signer Signer) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = time.Minute
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	logger := log.WithComponent("hbs")
	metrics.HBSBreakerState.Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "hbs",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// 4xx answers mean HBS is up
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode < 500
			}
			return err == nil
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("HBS circuit breaker state changed")
			metrics.HBSBreakerState.Set(stateValue(to))
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		signer:  signer,
		limiter: limiter,
		cb:      cb,
		logger:  logger,
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// URL returns the configured base url
func (c *Client) URL() string {
	return c.baseURL
}

// Post sends payload as a signed JSON body to path and decodes the response into out
func (c *Client) Post(ctx context.Context, path string, payload, out interface{}) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode hbs request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	respBody, err := c.cb.Execute(func() ([]byte, error) {
		return c.do(ctx, path, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, path)
	}
	if err != nil {
		return fmt.Errorf("hbs %s: %w", path, err)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode hbs %s response: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, c.signer.SignBytes(body))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	c.logger.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("HBS request completed")
	return data, nil
}

type redemptionsRequest struct {
	RedemptionIDs []string `json:"redemption_ids"`
}

// RedemptionRecords fetches the HBS records of the given redemption transactions
func (c *Client) RedemptionRecords(ctx context.Context, ids []string) ([]ledger.RedemptionRecord, error) {
	var records []ledger.RedemptionRecord
	if err := c.Post(ctx, PathRedemptions, redemptionsRequest{RedemptionIDs: ids}, &records); err != nil {
		return nil, err
	}
	return records, nil
}
