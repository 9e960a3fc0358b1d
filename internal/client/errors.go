package client

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrCityNotFound      = errors.New("city not found")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformedResponse = errors.New("malformed response")
	ErrBreakerOpen       = errors.New("weather API circuit open")
)

// LookupError is the single error kind returned for a failed weather lookup.
// Cause holds the classified reason; errors.Is sees through to it.
type LookupError struct {
	City  string
	Cause error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup %q: %v", e.City, e.Cause)
}

func (e *LookupError) Unwrap() error {
	return e.Cause
}

// Category returns the stable classification of the underlying cause.
func (e *LookupError) Category() ErrorCategory {
	return CategorizeError(e.Cause)
}

// NotFound reports whether the lookup failed because the provider had no such city
// or returned a payload that could not be read as a reading. Both are shown to the
// user as "City not found".
func (e *LookupError) NotFound() bool {
	return errors.Is(e.Cause, ErrCityNotFound) || errors.Is(e.Cause, ErrMalformedResponse)
}

func newLookupError(city string, cause error) *LookupError {
	var le *LookupError
	if errors.As(cause, &le) {
		return le
	}
	return &LookupError{City: city, Cause: cause}
}
