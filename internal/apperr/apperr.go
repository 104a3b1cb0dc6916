// Package apperr defines the structured failures the service reports to its
// HTTP boundary. Every failure carries a stable code, a human-readable
// message, and a details map with the offending values, so the client can
// render an actionable message without parsing internals.
package apperr

import (
	"fmt"
	"net/http"
)

// Code identifies a failure category. Codes are part of the API contract and
// must stay stable across releases.
type Code string

const (
	UnsupportedFile Code = "unsupported_file"
	UploadRejected  Code = "upload_rejected"
	JobActive       Code = "job_active"
	JobNotFound     Code = "job_not_found"
	InvalidEdit     Code = "invalid_edit"
	InvalidBulk     Code = "invalid_bulk"
	InvalidParams   Code = "invalid_params"
	Internal        Code = "internal_error"
)

// Rejection reasons carried in Details["reason"] for UploadRejected failures.
const (
	ReasonEmptyFile    = "empty_file"
	ReasonParseError   = "parse_error"
	ReasonTooManyRows  = "too_many_rows"
	ReasonFileTooLarge = "file_too_large"
)

// Error is a failure value returned to the caller. It satisfies the error
// interface so it can flow through ordinary error returns.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Details: map[string]any{}}
}

// WithDetail attaches one detail entry and returns the error for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

// FileTooLarge builds the oversized-upload rejection for the configured cap,
// so the message and the max_bytes detail always agree.
func FileTooLarge(maxBytes int64) *Error {
	return New(UploadRejected,
		fmt.Sprintf("Upload rejected: file exceeds the %s limit.", formatBytes(maxBytes))).
		WithDetail("reason", ReasonFileTooLarge).
		WithDetail("max_bytes", maxBytes)
}

func formatBytes(n int64) string {
	const mb = 1000 * 1000
	if n >= mb && n%mb == 0 {
		return fmt.Sprintf("%d MB", n/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}

// Reason returns Details["reason"] if present.
func (e *Error) Reason() string {
	r, _ := e.Details["reason"].(string)
	return r
}

// HTTPStatus maps the failure code to an HTTP status. The mapping lives here
// so handlers stay a thin translation layer.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case UnsupportedFile, InvalidEdit, InvalidBulk, InvalidParams:
		return http.StatusBadRequest
	case UploadRejected:
		if e.Reason() == ReasonFileTooLarge {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusUnprocessableEntity
	case JobActive:
		return http.StatusConflict
	case JobNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
