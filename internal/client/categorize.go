package client

import (
	"context"
	"errors"
	"strings"
)

// ErrorCategory is a stable label for error classification in metrics and logs.
type ErrorCategory string

const (
	ErrorCategoryTimeout       ErrorCategory = "timeout"
	ErrorCategoryNetwork       ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey ErrorCategory = "invalid_api_key"
	ErrorCategoryCityNotFound  ErrorCategory = "city_not_found"
	ErrorCategoryRateLimited   ErrorCategory = "rate_limited"
	ErrorCategoryUpstream      ErrorCategory = "upstream"
	ErrorCategoryMalformed     ErrorCategory = "malformed"
	ErrorCategoryBreakerOpen   ErrorCategory = "breaker_open"
	ErrorCategoryUnknown       ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory. Sentinels are checked
// before falling back to message inspection for transport errors.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrCityNotFound):
		return ErrorCategoryCityNotFound
	case errors.Is(err, ErrMalformedResponse):
		return ErrorCategoryMalformed
	case errors.Is(err, ErrInvalidAPIKey):
		return ErrorCategoryInvalidAPIKey
	case errors.Is(err, ErrRateLimited):
		return ErrorCategoryRateLimited
	case errors.Is(err, ErrUpstreamFailure):
		return ErrorCategoryUpstream
	case errors.Is(err, ErrBreakerOpen):
		return ErrorCategoryBreakerOpen
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorCategoryTimeout
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return ErrorCategoryTimeout
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "no such host") || strings.Contains(errStr, "http request failed") {
		return ErrorCategoryNetwork
	}
	return ErrorCategoryUnknown
}
