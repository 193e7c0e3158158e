package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"conversation-chaos/internal/api"
	"conversation-chaos/internal/conversation"
	"conversation-chaos/internal/ledger"
	"conversation-chaos/internal/logging"
	"conversation-chaos/internal/monitoring"
	"conversation-chaos/internal/stats"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("client is closed")

// Client talks to a conversation-chaos server over its REST API
type Client struct {
	config  *Config
	baseURL *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *logging.Logger

	mu     sync.RWMutex
	closed bool
}

// Config holds client configuration
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration

	// Retry settings
	MaxRetries    int
	RetryDelay    time.Duration
	RetryBackoff  float64
	MaxRetryDelay time.Duration

	// Circuit breaker settings
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	Logger *logging.Logger
}

// DefaultConfig returns a default client configuration
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "http://localhost:8080",
		RequestTimeout:  30 * time.Second,
		MaxRetries:      3,
		RetryDelay:      100 * time.Millisecond,
		RetryBackoff:    2.0,
		MaxRetryDelay:   2 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// APIError is a non-2xx answer from the server
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// NewClient creates a new client
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("a server base URL must be provided")
	}

	base, err := url.Parse(strings.TrimSuffix(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", base.Scheme)
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	c := &Client{
		config:  config,
		baseURL: base,
		http:    &http.Client{Timeout: config.RequestTimeout},
		logger:  logger,
	}
	c.breaker = newBreaker(config, logger)
	return c, nil
}

// Close releases idle connections. Later calls fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.http.CloseIdleConnections()
	return nil
}

// BreakerState reports the circuit breaker state ("closed", "open", "half-open").
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Inject runs a plan against a conversation on the server
func (c *Client) Inject(ctx context.Context, req api.InjectRequest) (*api.InjectResponse, error) {
	var resp api.InjectResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/inject", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Validate asks the server for a chi-square distribution check
func (c *Client) Validate(ctx context.Context, req api.ValidateRequest) (*stats.Report, error) {
	var report stats.Report
	if err := c.do(ctx, http.MethodPost, "/api/v1/validate", req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ListRuns returns every recorded run
func (c *Client) ListRuns(ctx context.Context) ([]*ledger.Record, error) {
	var resp api.ListRunsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/runs", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// GetRun fetches one recorded run
func (c *Client) GetRun(ctx context.Context, fingerprint string) (*ledger.Record, error) {
	var rec ledger.Record
	if err := c.do(ctx, http.MethodGet, runPath(fingerprint), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteRun removes a recorded run
func (c *Client) DeleteRun(ctx context.Context, fingerprint string) error {
	return c.do(ctx, http.MethodDelete, runPath(fingerprint), nil, nil)
}

// Replay re-runs a recorded plan against conv and reports whether it reproduced
func (c *Client) Replay(ctx context.Context, fingerprint string, conv conversation.Conversation) (*api.ReplayResponse, error) {
	var resp api.ReplayResponse
	if err := c.do(ctx, http.MethodPost, runPath(fingerprint)+"/replay", api.ReplayRequest{Conversation: conv}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health returns the server health report. An unhealthy server still answers
// with a report, so 503 is not an error here.
func (c *Client) Health(ctx context.Context) (*monitoring.HealthResponse, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, readAPIError(resp)
	}
	var health monitoring.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &health, nil
}

func runPath(fingerprint string) string {
	return "/api/v1/runs/" + url.PathEscape(fingerprint)
}

func (c *Client) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// do sends one logical request, retrying transient failures through the
// circuit breaker, and decodes a 2xx body into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = data
	}

	data, err := c.executeWithRetry(ctx, method+" "+path, func() ([]byte, error) {
		req, err := c.newRequest(ctx, method, path, payload)
		if err != nil {
			return nil, err
		}
		return c.send(req)
	})
	if err != nil {
		return err
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if id := logging.ExtractCorrelationID(ctx); id != "" {
		req.Header.Set(logging.CorrelationIDHeader, id)
	}
	return req, nil
}

// send performs one attempt and returns the body of a 2xx response
func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return data, nil
	}
	return nil, readAPIError(resp)
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}

	var body api.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
