package apiclient

import (
	"errors"
	"fmt"
	"time"
)

const (
	CodeNetwork = "NETWORK_ERROR"
	CodeUnknown = "UNKNOWN_ERROR"
)

// APIError is the normalized failure returned by every Client method.
type APIError struct {
	Code      string
	Message   string
	Details   any
	Timestamp time.Time
	Retryable bool
	// Status is the HTTP status code, 0 when no response was received.
	Status int
	Err    error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func newHTTPError(status int, message string, details any) *APIError {
	if message == "" {
		message = fmt.Sprintf("request failed with status %d", status)
	}
	return &APIError{
		Code:      fmt.Sprintf("HTTP_%d", status),
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
		Retryable: status >= 500,
		Status:    status,
	}
}

func newNetworkError(err error) *APIError {
	return &APIError{
		Code:      CodeNetwork,
		Message:   "network error - please check your connection",
		Timestamp: time.Now(),
		Retryable: true,
		Err:       err,
	}
}

func newUnknownError(message string, err error) *APIError {
	return &APIError{
		Code:      CodeUnknown,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// IsRetryable reports whether err is an APIError marked retryable.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable
}

// IsNetwork reports whether err means no response was received.
func IsNetwork(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeNetwork
}

// IsClientError reports whether err is an HTTP 4xx response.
func IsClientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500
}
