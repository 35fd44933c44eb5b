// Package upstream normalizes vendor API failures into a single typed error
// so dispatch logic never inspects vendor-specific response shapes.
package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an upstream failure.
type Kind int

const (
	// Unknown covers anything not recognized below.
	Unknown Kind = iota
	// Conflict means the record already exists (HTTP 409 or vendor equivalent).
	Conflict
	// RateLimited means the vendor rejected the call for quota reasons (HTTP 429).
	RateLimited
	// Unavailable means the vendor could not be reached or returned 5xx.
	Unavailable
)

func (k Kind) String() string {
	switch k {
	case Conflict:
		return "conflict"
	case RateLimited:
		return "rate_limited"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is the normalized form of a vendor API failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream %s: %s", e.Kind, e.Message)
}

// FromStatus maps an HTTP status code to an Error.
func FromStatus(status int, message string) *Error {
	kind := Unknown
	switch {
	case status == http.StatusConflict:
		kind = Conflict
	case status == http.StatusTooManyRequests:
		kind = RateLimited
	case status >= 500:
		kind = Unavailable
	}
	return &Error{Kind: kind, StatusCode: status, Message: message}
}

// AsError unwraps err into an *Error if one is in the chain.
func AsError(err error) (*Error, bool) {
	var ue *Error
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// IsConflict reports whether err is an upstream conflict.
func IsConflict(err error) bool {
	ue, ok := AsError(err)
	return ok && ue.Kind == Conflict
}

// IsRateLimited reports whether err is an upstream rate-limit rejection.
func IsRateLimited(err error) bool {
	ue, ok := AsError(err)
	return ok && ue.Kind == RateLimited
}
