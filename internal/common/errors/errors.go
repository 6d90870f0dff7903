// Package errors provides the standard error type shared by the monitor
// client, the API server and their collaborators.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeSensorAPIUnavailable ErrorCode = "SENSOR_API_UNAVAILABLE"
	ErrCodeSensorAPIStatus      ErrorCode = "SENSOR_API_STATUS"
	ErrCodeResponseInvalid      ErrorCode = "RESPONSE_INVALID"
	ErrCodeStreamDisconnected   ErrorCode = "STREAM_DISCONNECTED"

	ErrCodeInvalidRange    ErrorCode = "INVALID_RANGE"
	ErrCodeInvalidReading  ErrorCode = "INVALID_READING"
	ErrCodeInvalidRequest  ErrorCode = "INVALID_REQUEST"
	ErrCodeReadingNotFound ErrorCode = "READING_NOT_FOUND"

	ErrCodeStorageQueryFailed  ErrorCode = "STORAGE_QUERY_FAILED"
	ErrCodeStorageInsertFailed ErrorCode = "STORAGE_INSERT_FAILED"

	ErrCodeAssistantUnavailable ErrorCode = "ASSISTANT_UNAVAILABLE"
	ErrCodeAssistantTimeout     ErrorCode = "ASSISTANT_TIMEOUT"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error { return e.cause }

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewSensorAPIUnavailableError wraps a transport failure talking to the sensor API.
func NewSensorAPIUnavailableError(endpoint string, err error) *StandardError {
	return newError(ErrCodeSensorAPIUnavailable, "Sensor API unreachable",
		fmt.Sprintf("endpoint: %s, error: %s", endpoint, err.Error()), true, err).
		WithMetadata("endpoint", endpoint)
}

// NewSensorAPIStatusError reports a non-2xx response. body is the response text.
// Server errors are retryable, client errors are not.
func NewSensorAPIStatusError(endpoint string, status int, body string) *StandardError {
	msg := strings.TrimSpace(body)
	if msg == "" {
		msg = fmt.Sprintf("status %d", status)
	}
	return newError(ErrCodeSensorAPIStatus, msg,
		fmt.Sprintf("endpoint: %s, status: %d", endpoint, status), status >= 500, nil).
		WithMetadata("endpoint", endpoint).
		WithMetadata("status", status)
}

// NewResponseInvalidError wraps a payload that failed schema validation.
func NewResponseInvalidError(endpoint string, err error) *StandardError {
	return newError(ErrCodeResponseInvalid, "Response failed validation",
		fmt.Sprintf("endpoint: %s, error: %s", endpoint, err.Error()), false, err).
		WithMetadata("endpoint", endpoint)
}

func NewStreamDisconnectedError(source string, err error) *StandardError {
	return newError(ErrCodeStreamDisconnected, "Reading stream disconnected",
		fmt.Sprintf("source: %s, error: %s", source, err.Error()), true, err)
}

func NewInvalidRangeError(details string) *StandardError {
	return newError(ErrCodeInvalidRange, "Invalid summary range", details, false, nil)
}

// NewInvalidReadingError wraps a rejected device reading.
func NewInvalidReadingError(err error) *StandardError {
	return newError(ErrCodeInvalidReading, "Reading failed validation", err.Error(), false, err)
}

func NewInvalidRequestError(details string) *StandardError {
	return newError(ErrCodeInvalidRequest, "Invalid request", details, false, nil)
}

func NewReadingNotFoundError() *StandardError {
	return newError(ErrCodeReadingNotFound, "No sensor data yet", "", false, nil)
}

func NewStorageQueryFailedError(query string, err error) *StandardError {
	return newError(ErrCodeStorageQueryFailed, "Storage query failed",
		fmt.Sprintf("query: %s, error: %s", query, err.Error()), true, err)
}

func NewStorageInsertFailedError(err error) *StandardError {
	return newError(ErrCodeStorageInsertFailed, "Storage insert failed", err.Error(), true, err)
}

func NewAssistantUnavailableError(err error) *StandardError {
	return newError(ErrCodeAssistantUnavailable, "Assistant unavailable", err.Error(), true, err)
}

func NewAssistantTimeoutError() *StandardError {
	return newError(ErrCodeAssistantTimeout, "Assistant timeout",
		"assistant call exceeded its deadline", true, nil)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), true, err)
}

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSensorAPIUnavailable,
		ErrCodeSensorAPIStatus,
		ErrCodeStorageQueryFailed,
		ErrCodeStorageInsertFailed,
		ErrCodeNotificationSendFailed:
		return 3

	case ErrCodeAssistantUnavailable:
		return 2

	case ErrCodeAssistantTimeout:
		return 1

	default:
		return 0 // stream reconnects are owned by the stream source
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// IsRetryable reports whether err is a StandardError marked retryable.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}

// As extracts a StandardError from err's chain.
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	ok := errors.As(err, &stdErr)
	return stdErr, ok
}

// HasCode reports whether err carries a StandardError with the given code.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := As(err)
	return ok && stdErr.Code == code
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "SENSOR_API") || strings.HasPrefix(codeStr, "STREAM"):
		return "UPSTREAM"
	case strings.HasPrefix(codeStr, "STORAGE"):
		return "STORAGE"
	case strings.HasPrefix(codeStr, "ASSISTANT"):
		return "AI"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.HasPrefix(codeStr, "INVALID") || strings.HasSuffix(codeStr, "INVALID"):
		return "VALIDATION"
	case strings.HasSuffix(codeStr, "NOT_FOUND"):
		return "NOT_FOUND"
	default:
		return "OTHER"
	}
}
