package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a categorized error type
type ErrorCode string

const (
	// Feature errors surfaced to the user or the logs
	ErrCodeConfiguration   ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeFormat          ErrorCode = "FORMAT_ERROR"
	ErrCodeNetwork         ErrorCode = "NETWORK_ERROR"
	ErrCodeElementNotFound ErrorCode = "ELEMENT_NOT_FOUND"
	// Reserved. A host payload that no longer carries the marker cannot be detected,
	// so nothing raises this code; it exists so logs and dashboards can name the case.
	ErrCodeSuppressionMiss ErrorCode = "SUPPRESSION_MISS"

	// Storage
	ErrCodeStorage ErrorCode = "STORAGE_ERROR"

	// Validation
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Transport security
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeRateLimit    ErrorCode = "RATE_LIMITED"

	// Internal
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeNoTarget      ErrorCode = "NO_TARGET"
	ErrCodeTimeout       ErrorCode = "TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code        ErrorCode              `json:"code"`
	Message     string                 `json:"message"`
	Cause       error                  `json:"-"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Retryable   bool                   `json:"retryable"`
	UserMessage string                 `json:"user_message,omitempty"`
	// Raw holds an unparsed external payload kept for diagnosis.
	Raw []byte `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another AppError by code, so errors.Is(err, New(code, "")) works.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithUserMessage sets a user-friendly message
func (e *AppError) WithUserMessage(msg string) *AppError {
	e.UserMessage = msg
	return e
}

// WithRaw attaches the raw external payload.
func (e *AppError) WithRaw(raw []byte) *AppError {
	e.Raw = raw
	return e
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapRetryable wraps an error and marks it as retryable
func WrapRetryable(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// As finds the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func IsRetryable(err error) bool {
	if appErr, ok := As(err); ok {
		return appErr.Retryable
	}
	return false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &AppError{Code: code})
}

func GetUserMessage(err error) string {
	if appErr, ok := As(err); ok && appErr.UserMessage != "" {
		return appErr.UserMessage
	}
	return "An internal error occurred"
}

// GetRaw returns the raw external payload attached to err, if any.
func GetRaw(err error) []byte {
	if appErr, ok := As(err); ok {
		return appErr.Raw
	}
	return nil
}
