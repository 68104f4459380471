// Package resilience classifies failures and retries transient ones.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/sells-group/space-cli/internal/model"
)

// TransientError wraps an error that is safe to retry (throttling, 5xx,
// network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"slowdown",
	"requesttimeout",
}

// IsTransient reports whether err (or any error in its chain) is a
// TransientError or looks like a retryable network failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether an object store response status is
// safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// categorized is implemented by the domain error types of the parser, track
// and export packages.
type categorized interface {
	ErrorCategory() model.ErrorCategory
}

// ClassifyError maps err to the category recorded on a failed run or a
// rejected sample. Domain errors report their own category; anything else
// is transient or permanent.
func ClassifyError(err error) model.ErrorCategory {
	if err == nil {
		return model.ErrorCategoryNone
	}
	var c categorized
	if errors.As(err, &c) {
		return c.ErrorCategory()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || IsTransient(err) {
		return model.ErrorCategoryTransient
	}
	return model.ErrorCategoryPermanent
}
