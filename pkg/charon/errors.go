package charon

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gridcast/stlf/pkg/erebus"
	"github.com/gridcast/stlf/pkg/hades"
	"github.com/gridcast/stlf/pkg/persephone"
	"github.com/gridcast/stlf/pkg/persephone/evaluator"
)

var (
	// ErrRateLimitExceeded indicates rate limit has been exceeded
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrBadRequest marks malformed requests caught before the domain layer.
	ErrBadRequest = errors.New("bad request")
)

// HTTPError carries the status code a failure should be reported with.
type HTTPError struct {
	Code    int    // HTTP status code
	Message string // Error message
	Err     error  // Underlying error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the appropriate HTTP status code for the error.
func (e *HTTPError) HTTPStatusCode() int {
	return e.Code
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(code int, message string, err error) *HTTPError {
	return &HTTPError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ToHTTPError converts an error to an HTTPError with appropriate HTTP status.
func ToHTTPError(err error) *HTTPError {
	if err == nil {
		return nil
	}

	// Check if already an HTTPError
	var he *HTTPError
	if errors.As(err, &he) {
		return he
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit), err)
	}

	// Map known errors to HTTP status codes
	switch {
	case errors.Is(err, ErrRateLimitExceeded):
		return NewHTTPError(http.StatusTooManyRequests, ErrRateLimitExceeded.Error(), err)
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, evaluator.ErrInvalidInput),
		errors.Is(err, persephone.ErrMissingColumns),
		errors.Is(err, persephone.ErrBadTimestamp),
		errors.Is(err, persephone.ErrBadValue),
		errors.Is(err, erebus.ErrInvalidKey):
		return NewHTTPError(http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, persephone.ErrInsufficientData),
		errors.Is(err, persephone.ErrSpanTooLarge):
		return NewHTTPError(http.StatusUnprocessableEntity, err.Error(), err)
	case errors.Is(err, erebus.ErrNotFound),
		errors.Is(err, hades.ErrRunNotFound),
		errors.Is(err, hades.ErrUploadNotFound):
		return NewHTTPError(http.StatusNotFound, err.Error(), err)
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal error", err)
	}
}
