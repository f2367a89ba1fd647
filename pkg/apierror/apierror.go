package apierror

import (
	"fmt"
	"net/http"
)

const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeForbidden        = "FORBIDDEN"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeSignatureInvalid = "SIGNATURE_INVALID"
	CodeRateLimited      = "RATE_LIMITED"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeInternal         = "INTERNAL_ERROR"
)

type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	// ResetTime is the epoch millisecond at which a rate-limit window reopens.
	ResetTime int64 `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

func Unauthenticated(message string) *APIError {
	if message == "" {
		message = "authentication required"
	}
	return New(CodeUnauthenticated, message, "", http.StatusUnauthorized)
}

func Forbidden(message string) *APIError {
	if message == "" {
		message = "forbidden"
	}
	return New(CodeForbidden, message, "", http.StatusForbidden)
}

func Validation(message string, field string) *APIError {
	return New(CodeValidationFailed, message, field, http.StatusBadRequest)
}

// SignatureInvalid never carries the underlying reason.
func SignatureInvalid() *APIError {
	return New(CodeSignatureInvalid, "invalid request signature", "", http.StatusUnauthorized)
}

func RateLimited(resetTime int64) *APIError {
	e := New(CodeRateLimited, "too many requests, try again later", "", http.StatusTooManyRequests)
	e.ResetTime = resetTime
	return e
}

func NotFound(message string, details string) *APIError {
	return New(CodeNotFound, message, details, http.StatusNotFound)
}

func Conflict(message string, details string) *APIError {
	return New(CodeConflict, message, details, http.StatusConflict)
}

func PayloadTooLarge(limit int64) *APIError {
	return New(CodePayloadTooLarge, "request body too large", fmt.Sprintf("limit is %d bytes", limit), http.StatusRequestEntityTooLarge)
}

func Internal() *APIError {
	return New(CodeInternal, "unexpected server error", "", http.StatusInternalServerError)
}
