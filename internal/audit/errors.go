package audit

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrInvalidPageSize is returned for sizes outside PageSizes.
	ErrInvalidPageSize = errors.New("audit: invalid page size")
	// ErrSuperseded is returned by a load whose result was discarded because
	// a newer request started before it finished.
	ErrSuperseded = errors.New("audit: request superseded")
)

// NetworkError reports that the request could not be sent or the response
// could not be received.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	if e.Timeout() {
		return "request timed out"
	}
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline or client timeout.
func (e *NetworkError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// HTTPError reports a non-2xx response.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// ParseError reports a body that is not valid JSON or lacks required fields.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ErrorKind names the failure class for logs and metrics.
func ErrorKind(err error) string {
	var (
		netErr   *NetworkError
		httpErr  *HTTPError
		parseErr *ParseError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &httpErr):
		return "http"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}

// Message returns the user-visible text for a fetch failure.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var (
		netErr   *NetworkError
		httpErr  *HTTPError
		parseErr *ParseError
	)
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Error()
	case errors.As(err, &parseErr):
		return parseErr.Error()
	case errors.As(err, &netErr):
		return netErr.Error()
	default:
		return err.Error()
	}
}
