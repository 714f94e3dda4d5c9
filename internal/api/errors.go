package api

import (
	"fmt"
	"net/http"
)

// Standardized error codes.
const (
	ErrCodeInvalidParameter   = "INVALID_PARAMETER"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
)

// APIError is the standardised error envelope returned by all endpoints.
type APIError struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// APIErrorResponse wraps APIError with a top-level "error" key.
type APIErrorResponse struct {
	Error APIError `json:"error"`
}

// ValidationError represents a request validation failure.
type ValidationError struct {
	Field   string
	Message string
	Code    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	ErrInvalidLimit      = &ValidationError{Field: "limit", Message: "limit must be between 1 and 500", Code: ErrCodeInvalidParameter}
	ErrInvalidSince      = &ValidationError{Field: "since", Message: "since must be a Unix timestamp", Code: ErrCodeInvalidParameter}
	ErrInvalidConfidence = &ValidationError{Field: "min_confidence", Message: "min_confidence must be between 0 and 1", Code: ErrCodeInvalidParameter}
)

// writeAPIError writes a standardized error response with request ID.
func writeAPIError(w http.ResponseWriter, r *http.Request, status int, message, code, details string) {
	respondJSON(w, status, APIErrorResponse{
		Error: APIError{
			Message:   message,
			Code:      code,
			Details:   details,
			RequestID: GetRequestID(r.Context()),
		},
	})
}

// writeValidationError writes a validation error response.
func writeValidationError(w http.ResponseWriter, r *http.Request, err *ValidationError) {
	writeAPIError(w, r, http.StatusBadRequest, err.Message, err.Code, fmt.Sprintf("field: %s", err.Field))
}

// mapStatusToCode returns the standard error code for an HTTP status.
func mapStatusToCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeInvalidParameter
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusMethodNotAllowed:
		return ErrCodeMethodNotAllowed
	case http.StatusTooManyRequests:
		return ErrCodeRateLimitExceeded
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavailable
	default:
		return ErrCodeInternalError
	}
}
