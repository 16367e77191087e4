// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch sends question requests to the DocGenius answering
// service with retry and exponential backoff.
//
// The answering service is rate limited and occasionally unreachable, so
// the dispatcher absorbs transient faults internally: rate-limit
// responses (429) and network-level errors are retried with a purely
// exponential delay, while any other non-2xx status is a definitive
// failure returned to the caller on the first occurrence. Only the final
// outcome crosses this package boundary.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Configuration constants for the answering service client.
const (
	// DefaultMaxRetries is the number of additional attempts after the
	// first failed call.
	DefaultMaxRetries = 3

	// DefaultBaseDelay is the backoff unit: the wait before retry r is
	// 2^r * DefaultBaseDelay, with no jitter.
	DefaultBaseDelay = 1 * time.Second

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize caps the answer body read from the service.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

// Shared HTTP client with connection pooling for all dispatch requests.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
	Timeout: DefaultTimeout,
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrRateLimited indicates the service returned HTTP 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrNetwork indicates the request never produced an HTTP response.
	ErrNetwork = errors.New("network error")
)

// ServiceError is a definitive, non-retryable failure from the service.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("service error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("service error (status %d)", e.Status)
}

// ExhaustedError reports that every allowed attempt failed transiently.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("exhausted %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

// Request carries one question about one document. The same payload is
// sent verbatim on every retry attempt.
type Request struct {
	Question          string
	ExtractedFileText string
	FileName          string
}

// Response is the service's successful answer payload.
type Response struct {
	Answer string `json:"answer"`
}

// errorEnvelope is the service's failure payload shape.
type errorEnvelope struct {
	Error string `json:"error"`
}

// =============================================================================
// CLIENT
// =============================================================================

// sleepFunc waits for the given duration or until the context ends.
// Injectable so tests can assert backoff schedules without waiting.
type sleepFunc func(ctx context.Context, d time.Duration) error

// Client dispatches ask requests against the answering service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	sleep      sleepFunc
}

// Option configures a Client.
type Option func(*Client)

// WithMaxRetries sets the maximum number of additional attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBaseDelay sets the exponential backoff unit.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// WithHTTPClient replaces the shared pooled HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// withSleep replaces the backoff wait. Test hook.
func withSleep(fn sleepFunc) Option {
	return func(c *Client) {
		c.sleep = fn
	}
}

// New creates a dispatcher client for the given service base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: sharedHTTPClient,
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		sleep:      contextSleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// contextSleep waits for d, aborting early if the context ends.
func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// =============================================================================
// DISPATCH
// =============================================================================

// Dispatch sends the request, retrying transient failures with
// exponential backoff. At most maxRetries+1 total attempts are made.
//
// Retry r (r starting at 0) is preceded by a wait of 2^r * baseDelay.
// Rate-limit (429) and network-level failures are transient; any other
// non-2xx status returns a *ServiceError immediately. When retries run
// out, the result is an *ExhaustedError wrapping the last transient
// failure. The request payload is identical on every attempt; the
// service's own idempotency is all that is assumed.
func (c *Client) Dispatch(ctx context.Context, req Request) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(attempt-1)); err != nil {
				return nil, err
			}
		}

		resp, err := c.doRequest(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !isTransient(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, &ExhaustedError{Attempts: c.maxRetries + 1, LastErr: lastErr}
}

// doRequest performs a single form-encoded POST to /api/ask.
func (c *Client) doRequest(ctx context.Context, req Request) (*Response, error) {
	form := url.Values{}
	form.Set("question", req.Question)
	form.Set("extractedFileText", req.ExtractedFileText)
	if req.FileName != "" {
		form.Set("fileName", req.FileName)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/ask", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Context cancellation is not a network fault worth retrying.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer httpResp.Body.Close()

	body, err := readLimited(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, serviceMessage(body))
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &ServiceError{Status: httpResp.StatusCode, Message: serviceMessage(body)}
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ServiceError{Status: httpResp.StatusCode, Message: "malformed answer payload"}
	}
	return &resp, nil
}

// backoff returns the wait before retry r: 2^r * baseDelay, no jitter.
func (c *Client) backoff(retry int) time.Duration {
	return c.baseDelay * time.Duration(1<<uint(retry))
}

// isTransient reports whether an attempt failure should be retried.
func isTransient(err error) bool {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNetwork) {
		return true
	}
	return false
}

// readLimited reads the response body with a size cap.
func readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// serviceMessage extracts the error string from a failure body, if any.
func serviceMessage(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != "" {
		return env.Error
	}
	return strings.TrimSpace(string(body))
}
