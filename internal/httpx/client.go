// Package httpx provides a small HTTP client wrapper with retries, timeouts,
// and exponential back-off. No locks are used; the Client struct is safe for
// concurrent use because its fields are immutable after construction and the
// underlying http.Client is concurrency-safe.
package httpx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client wraps net/http.Client with retry and timeout behaviour.
type Client struct {
	http       *http.Client
	maxRetries int
	baseDelay  time.Duration
}

// NewClient creates a Client with the given timeout and retry count.
// A maxRetries of zero means each request is attempted exactly once,
// which is what the best-effort forward path wants.
func NewClient(timeout time.Duration, maxRetries int) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
		},
		maxRetries: maxRetries,
		baseDelay:  500 * time.Millisecond,
	}
}

// Do executes the request with retries on transient failures (5xx or network errors).
// It uses exponential back-off between attempts.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var (
		resp *http.Response
		err  error
	)

	for attempt := 0; attempt < c.maxRetries+1; attempt++ {
		resp, err = c.http.Do(req.Clone(ctx))
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}

		// Drain body on retry to allow connection reuse.
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		if attempt < c.maxRetries {
			delay := c.baseDelay * (1 << uint(attempt))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	if err != nil {
		return nil, fmt.Errorf("httpx: all %d retries failed: %w", c.maxRetries+1, err)
	}
	return resp, nil
}

// PostJSON POSTs a pre-encoded JSON body and returns the final status code
// with the response body fully drained, so callers that only care about
// success/failure do not have to manage the body themselves.
func (c *Client) PostJSON(ctx context.Context, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("httpx: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(ctx, req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	return resp.StatusCode, nil
}
