// internal/common/http/client.go
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"lead-engine/internal/common/errors"
)

const maxErrorBody = 512

type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	headers    map[string]string
	backend    string
}

type Option func(*Client)

// WithRateLimit caps outbound requests at rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithBackend names the remote system in returned errors.
func WithBackend(name string) Option {
	return func(c *Client) {
		c.backend = name
	}
}

func NewClient(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{},
		backend: "http",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	return c.httpClient.Do(req)
}

// DoJSON sends body as JSON and decodes a successful response into out.
// Failures come back as typed CRM errors: 401/403 auth, 404 not found,
// 429 rate limited, 5xx and network failures transient, any other status or an
// undecodable body schema, and an expired ctx timeout.
func (c *Client) DoJSON(ctx context.Context, method, url string, body, out interface{}) (int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, errors.NewCRMTimeoutError(c.backend, err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, errors.NewCRMSchemaError(c.backend, fmt.Sprintf("failed to marshal request: %v", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, errors.NewInternalError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, errors.NewCRMTimeoutError(c.backend, err)
		}
		return 0, errors.NewCRMTransientError(c.backend, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return resp.StatusCode, errors.NewCRMTimeoutError(c.backend, err)
		}
		return resp.StatusCode, errors.NewCRMTransientError(c.backend, fmt.Errorf("failed to read response body: %w", err))
	}

	if err := StatusError(c.backend, resp.StatusCode, respBody); err != nil {
		return resp.StatusCode, err
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, errors.NewCRMSchemaError(c.backend, fmt.Sprintf("failed to decode response: %v", err))
		}
	}
	return resp.StatusCode, nil
}

// StatusError maps a non-2xx status to a typed error; 2xx returns nil.
func StatusError(backend string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	details := fmt.Sprintf("status %d: %s", status, truncate(body))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.NewCRMAuthError(backend, details)
	case status == http.StatusNotFound:
		return errors.NewCRMNotFoundError(backend, "").WithMetadata("details", details)
	case status == http.StatusTooManyRequests:
		return errors.NewCRMRateLimitedError(backend, details)
	case status >= 500:
		return errors.NewCRMTransientError(backend, fmt.Errorf("%s", details))
	default:
		return errors.NewCRMSchemaError(backend, details)
	}
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
