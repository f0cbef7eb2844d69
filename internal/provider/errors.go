package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/pkg/httputil"
)

// Error is a typed upstream failure
type Error struct {
	Code     contracts.FailureCode
	Provider string
	Status   int // HTTP status, 0 when the request never completed
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Code)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed: rate limits,
// timeouts and 5xx responses.
func (e *Error) Retryable() bool {
	switch e.Code {
	case contracts.FailureRateLimited, contracts.FailureTimeout:
		return true
	}
	return httputil.IsRetryableStatus(e.Status)
}

// NewError builds a typed failure
func NewError(providerName string, code contracts.FailureCode, err error) *Error {
	return &Error{Code: code, Provider: providerName, Err: err}
}

// Classify turns a transport error into a typed *Error
func Classify(providerName string, err error) error {
	if err == nil {
		return nil
	}

	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	var se *httputil.StatusError
	if errors.As(err, &se) {
		e := &Error{Provider: providerName, Status: se.StatusCode, Err: err, Code: contracts.FailureUnknown}
		switch se.StatusCode {
		case http.StatusTooManyRequests:
			e.Code = contracts.FailureRateLimited
		case http.StatusNotFound:
			e.Code = contracts.FailureHTTP404
		}
		return e
	}

	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &Error{Provider: providerName, Code: contracts.FailureTimeout, Err: err}
	}

	return &Error{Provider: providerName, Code: contracts.FailureUnknown, Err: err}
}

// CodeOf extracts the failure code, UNKNOWN for untyped errors
func CodeOf(err error) contracts.FailureCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return contracts.FailureUnknown
}

// StatusOf extracts the HTTP status of a typed failure
func StatusOf(err error) int {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Status
	}
	return 0
}
