package client

import (
	"context"
	"errors"
	"strings"

	"github.com/kjstillabower/weather-sync-service/internal/circuitbreaker"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as metric labels (weatherApiErrorsTotal, syncFlowsTotal).
const (
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryCanceled         ErrorCategory = "canceled"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey    ErrorCategory = "invalid_api_key"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategoryRateLimited      ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx      ErrorCategory = "upstream_5xx"
	ErrorCategoryCircuitOpen      ErrorCategory = "circuit_open"
	ErrorCategoryParsing          ErrorCategory = "parsing"
	ErrorCategoryValidation       ErrorCategory = "validation"
	ErrorCategoryCache            ErrorCategory = "cache"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, circuitbreaker.ErrOpen) {
		return ErrorCategoryCircuitOpen
	}

	if errors.Is(err, context.Canceled) {
		return ErrorCategoryCanceled
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCategoryTimeout
	}

	if errors.Is(err, ErrInvalidAPIKey) {
		return ErrorCategoryInvalidAPIKey
	}

	if errors.Is(err, ErrLocationNotFound) {
		return ErrorCategoryLocationNotFound
	}

	if errors.Is(err, ErrRateLimited) {
		return ErrorCategoryRateLimited
	}

	if errors.Is(err, ErrUpstreamFailure) {
		return ErrorCategoryUpstream5xx
	}

	errStr := err.Error()
	if strings.Contains(errStr, "network") || strings.Contains(errStr, "connection") {
		return ErrorCategoryNetwork
	}

	if strings.Contains(errStr, "timeout") {
		return ErrorCategoryTimeout
	}

	if strings.Contains(errStr, "parse") || strings.Contains(errStr, "unmarshal") {
		return ErrorCategoryParsing
	}

	if strings.Contains(errStr, "cache") {
		return ErrorCategoryCache
	}

	if strings.Contains(errStr, "invalid") || strings.Contains(errStr, "validation") {
		return ErrorCategoryValidation
	}

	return ErrorCategoryUnknown
}
