package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// Common errors returned by the fetcher.
var (
	// ErrNotFound is returned for a 404 when Options.NotFound is set.
	ErrNotFound = errors.New("upstream resource not found")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrCancelled is returned when the caller's context ends during a fetch.
	ErrCancelled = errors.New("fetch cancelled")
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents terminal 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassNotFound represents a 404 reported as a typed not-found signal.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents retryable transport errors (reset, timeout, DNS).
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassTransport represents non-retryable transport or request errors.
	ErrorClassTransport ErrorClass = "transport"

	// ErrorClassDecode represents an undecodable 2xx payload.
	ErrorClassDecode ErrorClass = "decode"
)

// Error represents an upstream failure with additional context.
type Error struct {
	StatusCode int
	Class      ErrorClass
	Domain     string
	URL        string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: upstream %s error (status %d) for %s: %s: %v",
			e.Domain, e.Class, e.StatusCode, e.URL, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: upstream %s error (status %d) for %s: %s",
		e.Domain, e.Class, e.StatusCode, e.URL, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches ErrNotFound for not-found failures.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Class == ErrorClassNotFound
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		// client, not_found, transport and decode errors are terminal
		return false
	}
}

// retryableMarkers are lower-cased fragments of transport error text that indicate
// a transient failure.
var retryableMarkers = []string{
	"connection reset",
	"econnreset",
	"timeout",
	"etimedout",
	"no such host",
	"enotfound",
	"fetch failed",
}

// classifyTransportError decides whether a transport error is worth retrying.
func classifyTransportError(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var netErr net.Error
	var dnsErr *net.DNSError
	var opErr *net.OpError
	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return ErrorClassNetwork
	case errors.As(err, &dnsErr):
		return ErrorClassNetwork
	case errors.As(err, &netErr) && netErr.Timeout():
		return ErrorClassNetwork
	case errors.As(err, &opErr):
		return ErrorClassNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return ErrorClassNetwork
		}
	}
	return ErrorClassTransport
}
