package errors

import (
	"fmt"
	"net/http"
	"time"
)

// NewConfigurationError reports a user-correctable setting, such as a missing API key.
func NewConfigurationError(key, message string) *AppError {
	return New(ErrCodeConfiguration, message).
		WithContext("setting", key).
		WithUserMessage(message)
}

// NewFormatError reports an external response of unexpected shape. The raw body is kept.
func NewFormatError(service, message string, raw []byte) *AppError {
	return New(ErrCodeFormat, message).
		WithContext("service", service).
		WithRaw(raw).
		WithUserMessage(fmt.Sprintf("Unexpected response from %s", service))
}

// NewNetworkError reports a failed fetch. Never retried automatically.
func NewNetworkError(service, operation string, statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodeNetwork, fmt.Sprintf("%s %s failed", service, operation)).
		WithContext("service", service).
		WithContext("operation", operation).
		WithUserMessage(fmt.Sprintf("Could not reach %s", service))
	if statusCode > 0 {
		appErr.WithContext("status_code", statusCode)
	}
	return appErr
}

func NewElementNotFoundError(selector string, attempts int, interval time.Duration) *AppError {
	return New(ErrCodeElementNotFound, fmt.Sprintf("element %q not found after %d attempts", selector, attempts)).
		WithContext("selector", selector).
		WithContext("attempts", attempts).
		WithContext("interval", interval.String())
}

func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewStorageError wraps a store failure. Lock contention is marked retryable.
func NewStorageError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeStorage, fmt.Sprintf("storage %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Storage operation failed")
}

func NewNoTargetError(command string) *AppError {
	return New(ErrCodeNoTarget, "no monitor connected").
		WithContext("command", command)
}

func NewTimeoutError(operation string, duration time.Duration) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration.String()).
		WithUserMessage("Operation timed out, please try again")
}

func NewAuthError(reason string) *AppError {
	return New(ErrCodeUnauthorized, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

func NewRateLimitError(limit float64, burst int) *AppError {
	return New(ErrCodeRateLimit, "rate limit exceeded").
		WithContext("limit", limit).
		WithContext("burst", burst).
		WithUserMessage("Too many requests, please try again later")
}

// HTTPStatusCode maps an error to the status the HTTP API answers with.
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeConfiguration:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeFormat, ErrCodeNetwork:
		return http.StatusBadGateway
	case ErrCodeNoTarget:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ToResponse builds the error body the HTTP API writes.
func ToResponse(err error) map[string]interface{} {
	resp := map[string]interface{}{
		"success":   false,
		"error":     GetUserMessage(err),
		"errorCode": string(GetCode(err)),
	}
	if appErr, ok := As(err); ok && appErr.Retryable {
		resp["retryable"] = true
	}
	return resp
}
