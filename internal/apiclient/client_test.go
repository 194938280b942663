package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_AttachesBearerToken(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"id":"1"},"success":true,"timestamp":"2024-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Get(context.Background(), "/accounts/1", nil)
	require.NoError(t, err)
	assert.Equal(t, "", gotAuth.Load())

	c.SetAuthToken("tok")
	resp, err := c.Get(context.Background(), "/accounts/1", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth.Load())
	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"id":"1"}`, string(resp.Data))

	c.ClearAuthToken()
	_, err = c.Get(context.Background(), "/accounts/1", nil)
	require.NoError(t, err)
	assert.Equal(t, "", gotAuth.Load())
}

func TestClient_SendsBodyAndParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "10", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`{"data":[],"success":true}`))
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			b, _ := io.ReadAll(r.Body)
			var body map[string]any
			require.NoError(t, json.Unmarshal(b, &body))
			assert.Equal(t, "Checking", body["name"])
			_, _ = w.Write([]byte(`{"data":{"id":"a1","name":"Checking"},"success":true}`))
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	ctx := context.Background()

	_, err := c.Get(ctx, "/accounts", map[string]string{"limit": "10"})
	require.NoError(t, err)

	for _, call := range []func() (*Response, error){
		func() (*Response, error) { return c.Post(ctx, "/accounts", map[string]any{"name": "Checking"}) },
		func() (*Response, error) { return c.Put(ctx, "/accounts/a1", map[string]any{"name": "Checking"}) },
		func() (*Response, error) { return c.Patch(ctx, "/accounts/a1", map[string]any{"name": "Checking"}) },
	} {
		resp, err := call()
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"a1","name":"Checking"}`, string(resp.Data))
	}

	resp, err := c.Delete(ctx, "/accounts/a1")
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestClient_UnwrappedBodyIsExposedAsData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"transaction":{"id":"t1"}}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL).Get(context.Background(), "/transactions/t1", nil)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"transaction":{"id":"t1"}}`, string(resp.Data))
}

func TestClient_ErrorNormalization(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		code      string
		retryable bool
		message   string
	}{
		{name: "server error", status: 503, body: `{"message":"down"}`, code: "HTTP_503", retryable: true, message: "down"},
		{name: "validation", status: 422, body: `{"error":"amount required"}`, code: "HTTP_422", retryable: false, message: "amount required"},
		{name: "not found", status: 404, body: ``, code: "HTTP_404", retryable: false, message: "request failed with status 404"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL).Get(context.Background(), "/goals", nil)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.retryable, apiErr.Retryable)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.False(t, apiErr.Timestamp.IsZero())
			assert.Equal(t, tt.status < 500, IsClientError(err))
		})
	}
}

func TestClient_UnsuccessfulEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"quota exceeded","errors":["limit"]}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Post(context.Background(), "/goals", map[string]any{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeUnknown, apiErr.Code)
	assert.False(t, apiErr.Retryable)
	assert.Equal(t, "quota exceeded", apiErr.Message)
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url).Get(context.Background(), "/accounts", nil)
	require.Error(t, err)
	assert.True(t, IsNetwork(err))
	assert.True(t, IsRetryable(err))
	assert.False(t, IsClientError(err))
}

func TestClient_ErrorHandlers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL)
	var calls int32
	c.OnError(func(err *APIError) { panic("boom") })
	c.OnError(func(err *APIError) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "HTTP_400", err.Code)
	})

	_, err := c.Delete(context.Background(), "/contacts/c1")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_HealthCheck(t *testing.T) {
	healthy := int32(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if atomic.LoadInt32(&healthy) == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	c := New(srv.URL)
	assert.True(t, c.HealthCheck(context.Background()))

	atomic.StoreInt32(&healthy, 0)
	assert.False(t, c.HealthCheck(context.Background()))

	srv.Close()
	assert.False(t, c.HealthCheck(context.Background()))
}

func TestRetry_ExponentialBackoff(t *testing.T) {
	var delays []time.Duration
	c := New("http://unused", WithSleep(func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}))

	attempts := 0
	retryable := &APIError{Code: CodeNetwork, Retryable: true}
	err := c.Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		return retryable
	}, 3, time.Second)

	require.ErrorIs(t, err, retryable)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	c := New("http://unused", WithSleep(func(ctx context.Context, d time.Duration) error { return nil }))

	attempts := 0
	err := c.Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		return &APIError{Code: "HTTP_400", Retryable: false}
	}, 3, time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	c := New("http://unused", WithSleep(func(ctx context.Context, d time.Duration) error { return nil }))

	attempts := 0
	err := c.Retry(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}, 3, time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := New("http://unused").Retry(ctx, func(ctx context.Context) error {
		attempts++
		return &APIError{Code: CodeNetwork, Retryable: true}
	}, 3, time.Hour)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
