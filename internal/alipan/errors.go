// Package alipan provides an HTTP client for the Alipan open platform API
// with automatic retry, client-side rate limiting, and error classification.
package alipan

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, alipan.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("alipan: bad request")
	ErrUnauthorized = errors.New("alipan: unauthorized")
	ErrForbidden    = errors.New("alipan: forbidden")
	ErrNotFound     = errors.New("alipan: not found")
	ErrConflict     = errors.New("alipan: conflict")
	ErrThrottled    = errors.New("alipan: throttled")
	ErrServerError  = errors.New("alipan: server error")
)

// APIError wraps a sentinel error with the HTTP status, the service's
// error code and message, and the request ID for support tickets.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + e.Message
	}

	if e.RequestID != "" {
		return fmt.Sprintf("alipan: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, msg)
	}

	return fmt.Sprintf("alipan: HTTP %d: %s", e.StatusCode, msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// errorBody is the JSON error envelope returned by the open API.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
