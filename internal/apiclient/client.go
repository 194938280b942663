// Package apiclient is a thin JSON-over-HTTP client for one base URL with
// bearer auth, normalized errors and exponential-backoff retry.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"finance-datalayer/internal/logger"
)

const (
	DefaultTimeout       = 10 * time.Second
	DefaultHealthTimeout = 5 * time.Second
	DefaultHealthPath    = "/health"
)

// Response is the envelope returned by the backend:
// {data, success, message?, errors?, timestamp}. Bodies that are not wrapped
// this way are exposed verbatim in Data.
type Response struct {
	Data      json.RawMessage `json:"data"`
	Success   bool            `json:"success"`
	Message   string          `json:"message,omitempty"`
	Errors    any             `json:"errors,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// ErrorHandler is notified of every failed request.
type ErrorHandler func(err *APIError)

type Client struct {
	mu            sync.RWMutex
	baseURL       string
	token         string
	handlers      []ErrorHandler
	httpClient    *http.Client
	healthTimeout time.Duration
	healthPath    string
	sleep         func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithHealthTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.healthTimeout = timeout }
}

func WithHealthPath(path string) Option {
	return func(c *Client) { c.healthPath = path }
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: DefaultTimeout},
		healthTimeout: DefaultHealthTimeout,
		healthPath:    DefaultHealthPath,
		sleep:         sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) ClearAuthToken() {
	c.SetAuthToken("")
}

// OnError registers a handler called after every failed request.
func (c *Client) OnError(h ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

func (c *Client) Get(ctx context.Context, endpoint string, params map[string]string) (*Response, error) {
	return c.do(ctx, http.MethodGet, endpoint, params, nil)
}

func (c *Client) Post(ctx context.Context, endpoint string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPost, endpoint, nil, body)
}

func (c *Client) Put(ctx context.Context, endpoint string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPut, endpoint, nil, body)
}

func (c *Client) Patch(ctx context.Context, endpoint string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPatch, endpoint, nil, body)
}

func (c *Client) Delete(ctx context.Context, endpoint string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// Retry runs op up to maxRetries+1 times, sleeping delay*2^attempt between
// attempts. It stops early when op fails with a non-retryable APIError and
// returns the last error once the budget is spent.
func (c *Client) Retry(ctx context.Context, op func(ctx context.Context) error, maxRetries int, delay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		var apiErr *APIError
		if errors.As(lastErr, &apiErr) && !apiErr.Retryable {
			return lastErr
		}
		if attempt == maxRetries {
			break
		}

		wait := delay * time.Duration(1<<uint(attempt))
		logger.Log.Debug("Retrying request",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(lastErr),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return lastErr
		}
	}
	return lastErr
}

// HealthCheck reports whether the health endpoint answers with 2xx.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL()+c.healthPath, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (c *Client) do(ctx context.Context, method, endpoint string, params map[string]string, body any) (*Response, error) {
	resp, err := c.send(ctx, method, endpoint, params, body)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			apiErr = newUnknownError(err.Error(), err)
			err = apiErr
		}
		c.notify(apiErr)
		return nil, err
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, params map[string]string, body any) (*Response, error) {
	u := c.BaseURL() + endpoint
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		u += "?" + q.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, newUnknownError("failed to marshal request", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, newUnknownError("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newUnknownError("request cancelled", ctx.Err())
		}
		return nil, newNetworkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newNetworkError(err)
	}

	if resp.StatusCode >= 400 {
		msg, details := errorBody(data)
		return nil, newHTTPError(resp.StatusCode, msg, details)
	}

	return decodeResponse(data)
}

func (c *Client) notify(err *APIError) {
	c.mu.RLock()
	handlers := append([]ErrorHandler(nil), c.handlers...)
	c.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Log.Warn("API error handler panicked", zap.Any("panic", r))
				}
			}()
			h(err)
		}()
	}
}

func decodeResponse(data []byte) (*Response, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &Response{Success: true}, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err == nil {
		_, hasSuccess := envelope["success"]
		_, hasData := envelope["data"]
		if hasSuccess || hasData {
			var r Response
			if err := json.Unmarshal(data, &r); err != nil {
				return nil, newUnknownError("failed to decode response", err)
			}
			if hasSuccess && !r.Success {
				msg := r.Message
				if msg == "" {
					msg = "request was not successful"
				}
				return nil, &APIError{Code: CodeUnknown, Message: msg, Details: r.Errors, Timestamp: time.Now()}
			}
			if !hasSuccess {
				r.Success = true
			}
			return &r, nil
		}
	} else if !json.Valid(data) {
		return nil, newUnknownError("response is not valid JSON", err)
	}

	return &Response{Data: json.RawMessage(data), Success: true}, nil
}

func errorBody(data []byte) (string, any) {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Errors  any    `json:"errors"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data)), nil
	}
	if body.Message != "" {
		return body.Message, body.Errors
	}
	return body.Error, body.Errors
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
