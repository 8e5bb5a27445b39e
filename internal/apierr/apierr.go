// Package apierr defines the Read API's error taxonomy: a closed set of
// codes, each bound to one HTTP status, surfaced to clients as a structured
// JSON body rather than a bare message string.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Code is one of the closed set of API error codes.
type Code string

const (
	CodeChainUnavailable Code = "chain_unavailable"
	CodeConflict         Code = "conflict"
	CodeForbidden        Code = "forbidden"
	CodeUnauthorized     Code = "unauthorized"
	CodeNotFound         Code = "not_found"
	CodeValidation       Code = "validation"
	CodeRateLimited      Code = "rate_limited"
	CodeInternal         Code = "internal_error"
)

var statusByCode = map[Code]int{
	CodeChainUnavailable: http.StatusServiceUnavailable,
	CodeConflict:         http.StatusConflict,
	CodeForbidden:        http.StatusForbidden,
	CodeUnauthorized:     http.StatusUnauthorized,
	CodeNotFound:         http.StatusNotFound,
	CodeValidation:       http.StatusBadRequest,
	CodeRateLimited:      http.StatusTooManyRequests,
	CodeInternal:         http.StatusInternalServerError,
}

// Error is a taxonomy error carrying a fine-grained reason (e.g.
// "spec_hash_mismatch", "not_agent", "nonce_already_used") alongside the
// coarse Code that picks the HTTP status.
type Error struct {
	Code    Code
	Reason  string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return string(e.Code)
}

func (e *Error) Status() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func New(code Code, reason string) *Error {
	return &Error{Code: code, Reason: reason}
}

func WithDetails(code Code, reason string, details map[string]any) *Error {
	return &Error{Code: code, Reason: reason, Details: details}
}

func NotFound(reason string) *Error      { return New(CodeNotFound, reason) }
func Forbidden(reason string) *Error     { return New(CodeForbidden, reason) }
func Unauthorized(reason string) *Error  { return New(CodeUnauthorized, reason) }
func Conflict(reason string) *Error      { return New(CodeConflict, reason) }
func Validation(reason string) *Error    { return New(CodeValidation, reason) }
func RateLimited(retryAfter int) *Error {
	return WithDetails(CodeRateLimited, "rate_limit_exceeded", map[string]any{"retryAfter": retryAfter})
}

// body is the wire shape: {"error": code, "message"?: reason, "details"?: {...}}.
type body struct {
	Error   Code           `json:"error"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Write emits err as a structured JSON error response. A plain error not
// constructed via this package is mapped to internal_error 500 with no
// detail, so stack traces and internal strings never escape to a client.
func Write(w http.ResponseWriter, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = New(CodeInternal, "")
	}

	w.Header().Set("Content-Type", "application/json")
	if apiErr.Code == CodeRateLimited {
		if retryAfter, ok := apiErr.Details["retryAfter"]; ok {
			w.Header().Set("Retry-After", jsonNumber(retryAfter))
		}
	}
	w.WriteHeader(apiErr.Status())

	_ = json.NewEncoder(w).Encode(body{
		Error:   apiErr.Code,
		Message: apiErr.Reason,
		Details: apiErr.Details,
	})
}

func jsonNumber(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "0"
	}
	return string(b)
}
