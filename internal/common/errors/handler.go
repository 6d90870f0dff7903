package errors

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler writes errors raised by API handlers as JSON responses.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// WriteHTTP normalizes err, logs server-side failures and writes the response.
func (h *ErrorHandler) WriteHTTP(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := normalizeError(err)
	status := HTTPStatus(stdErr.Code)

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", map[string]interface{}{
			"method":    r.Method,
			"path":      r.URL.Path,
			"errorCode": stdErr.Code,
			"category":  GetErrorCategory(stdErr.Code),
			"details":   stdErr.Details,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":     stdErr.Message,
		"code":      stdErr.Code,
		"retryable": stdErr.Retryable,
	})
}

// HTTPStatus maps an error code to the status returned by the API server.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidRange, ErrCodeInvalidReading, ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodeReadingNotFound:
		return http.StatusNotFound
	case ErrCodeAssistantTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeAssistantUnavailable, ErrCodeSensorAPIUnavailable, ErrCodeSensorAPIStatus, ErrCodeResponseInvalid:
		return http.StatusBadGateway
	case ErrCodeStorageQueryFailed, ErrCodeStorageInsertFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// normalizeError ensures we always have a StandardError.
func normalizeError(err error) *StandardError {
	if stdErr, ok := As(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}
