// package client implements the resilient HTTP executor for catalog calls.
//
// The client knows nothing about tokens, caching, or business semantics: it
// executes one logical request with bounded retries, exponential backoff with
// jitter, and status classification. Authorization failures (401) are never
// retried here; the refresh coordinator one layer up owns that path.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/encore/internal/shared"
	"golang.org/x/time/rate"
)

// Doer executes a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request describes one logical catalog call.
type Request struct {
	Method      string
	Path        string // joined to the client base URL, or absolute
	Query       url.Values
	Body        any        // JSON-encoded when non-nil
	Form        url.Values // form-encoded when non-nil; takes precedence over Body
	AccessToken string     // bearer token; omitted when empty
	BasicUser   string     // HTTP Basic credentials for token-endpoint calls
	BasicPass   string
	Headers     map[string]string
}

// Response is the decoded outcome of a successful call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// APIError is a non-2xx response from the catalog service.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog API error: status %d", e.StatusCode)
}

// Unwrap maps the status code onto the shared error taxonomy so callers can
// classify with errors.Is.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusBadRequest:
		return shared.ErrBadRequest
	case e.StatusCode == http.StatusUnauthorized:
		return shared.ErrAuthExpired
	case e.StatusCode == http.StatusForbidden:
		return shared.ErrForbidden
	case e.StatusCode == http.StatusNotFound:
		return shared.ErrNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return shared.ErrRateLimited
	case e.StatusCode >= 500:
		return shared.ErrTransient
	default:
		return nil
	}
}

// Retryable reports whether the status merits another attempt.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// RetryPolicy bounds the retry loop.
type RetryPolicy struct {
	MaxRetries int           // additional attempts after the first
	BaseDelay  time.Duration // attempt n waits min(MaxDelay, BaseDelay*2^n) + jitter
	MaxDelay   time.Duration
}

// DefaultRetryPolicy matches the configured defaults.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	BaseDelay:  200 * time.Millisecond,
	MaxDelay:   3 * time.Second,
}

// Client executes requests against a single base URL with retry, backoff,
// and optional rate pacing.
type Client struct {
	baseURL        string
	clientID       string // sent as X-Client-Id on every request
	httpClient     Doer
	policy         RetryPolicy
	attemptTimeout time.Duration
	limiter        *rate.Limiter
	logger         *log.Logger

	mu    sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// Opts configures a Client. Zero fields fall back to defaults.
type Opts struct {
	BaseURL        string
	ClientID       string
	HTTPClient     Doer
	Policy         *RetryPolicy
	AttemptTimeout time.Duration
	RatePerSec     float64
	Logger         *log.Logger
	Seed           int64 // jitter seed; 0 uses the current time
}

// New creates a resilient Client.
func New(opts Opts) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 5 * time.Second
	}

	policy := DefaultRetryPolicy
	if opts.Policy != nil {
		policy = *opts.Policy
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var limiter *rate.Limiter
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}

	return &Client{
		baseURL:        strings.TrimSuffix(opts.BaseURL, "/"),
		clientID:       opts.ClientID,
		httpClient:     opts.HTTPClient,
		policy:         policy,
		attemptTimeout: opts.AttemptTimeout,
		limiter:        limiter,
		logger:         opts.Logger,
		rng:            rand.New(rand.NewSource(seed)),
		sleep:          sleepContext,
	}
}

// Execute performs the request with bounded retries.
//
// 400/401/403/404 fail immediately; 429, 5xx, and transport errors are
// retried up to the policy's MaxRetries. When retries are exhausted the last
// error is returned unchanged so caller classification still applies.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			c.logger.Debug("retrying request", "method", req.Method, "path", req.Path, "attempt", attempt, "delay", delay)

			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		resp, err := c.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		apiErr, ok := err.(*APIError)
		if ok && !apiErr.Retryable() {
			return nil, err
		}
	}

	return nil, lastErr
}

// attempt performs one HTTP round trip with the per-attempt timeout applied.
func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	httpReq, err := c.build(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: body}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// build assembles the http.Request for one attempt.
func (c *Client) build(ctx context.Context, req Request) (*http.Request, error) {
	apiURL := req.Path
	if !strings.HasPrefix(apiURL, "http") {
		apiURL = c.baseURL + req.Path
	}

	if len(req.Query) > 0 {
		apiURL += "?" + req.Query.Encode()
	}

	var body io.Reader
	contentType := ""

	switch {
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.AccessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.AccessToken)
	}
	if req.BasicUser != "" {
		httpReq.SetBasicAuth(req.BasicUser, req.BasicPass)
	}
	if c.clientID != "" {
		httpReq.Header.Set("X-Client-Id", c.clientID)
	}
	httpReq.Header.Set("Accept", "application/json")

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	return httpReq, nil
}

// backoff computes the delay before retry n (0-indexed): exponential growth
// capped at MaxDelay, plus jitter uniformly drawn from [0, 0.2*delay).
func (c *Client) backoff(n int) time.Duration {
	delay := c.policy.BaseDelay << uint(n)
	if delay > c.policy.MaxDelay || delay <= 0 {
		delay = c.policy.MaxDelay
	}

	c.mu.Lock()
	jitter := time.Duration(c.rng.Int63n(int64(delay)/5 + 1))
	c.mu.Unlock()

	return delay + jitter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
