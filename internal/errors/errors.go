package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// TransientQueryFailure indicates a provider query timed out or errored;
	// retried per the builder's budgets, then treated as an empty result
	TransientQueryFailure ErrorCode = "TRANSIENT_QUERY_FAILURE"
	// UnresolvedEndpoint indicates a relation endpoint could not be mapped
	// to a file and symbol; the relation is dropped, never fabricated
	UnresolvedEndpoint ErrorCode = "UNRESOLVED_ENDPOINT"
	// AmbiguousResolution indicates a cross-module heuristic matched more
	// than one candidate; the resolution chain aborts with no edge emitted
	AmbiguousResolution ErrorCode = "AMBIGUOUS_RESOLUTION"
	// MalformedLabel indicates generated diagram markup failed validation
	MalformedLabel ErrorCode = "MALFORMED_LABEL"
	// CapacityExceeded indicates the global relation cap was reached;
	// the returned graph is a valid partial graph, not an error
	CapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"
	// PlatformPathMismatch indicates two raw path strings denoting the same
	// file could not be unified by normalization
	PlatformPathMismatch ErrorCode = "PLATFORM_PATH_MISMATCH"
	// ProviderUnavailable indicates no analysis provider is configured or reachable
	ProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	// ConfigInvalid indicates the configuration failed to load or validate
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// Timeout indicates a query exceeded its deadline
	Timeout ErrorCode = "TIMEOUT"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// Error represents a callmap error with a stable code and optional cause
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

// New creates a new coded error
func New(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Newf creates a new coded error with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// CodeOf returns the error code carried by err, or InternalError if err
// carries none.
func CodeOf(err error) ErrorCode {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	return InternalError
}

// HasCode reports whether err carries the given code anywhere in its chain.
// Coded errors wrapping other coded errors are all considered, not just the
// outermost one.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var coded *Error
		if !stderrors.As(err, &coded) {
			return false
		}
		if coded.Code == code {
			return true
		}
		err = coded.Unwrap()
	}
	return false
}

// IsTransient reports whether err should be retried by the builder's
// retry/backoff policy. Empty results are not errors and never reach here;
// this classifies genuine query failures only.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case TransientQueryFailure, Timeout:
		return true
	default:
		return false
	}
}
