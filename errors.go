package concierge

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies every error the pipeline can surface to a caller.
type Code string

const (
	CodeUnauthenticated   Code = "unauthenticated"
	CodeBadRequest        Code = "bad_request"
	CodeUnknownTool       Code = "unknown_tool"
	CodeNotImplemented    Code = "not_implemented"
	CodeNotFound          Code = "not_found"
	CodeAmbiguous         Code = "ambiguous"
	CodeTransactionFailed Code = "transaction_failed"
	CodeInternal          Code = "internal"
)

// Candidate is one plausible match from entity name resolution.
// Carried on Ambiguous errors so the caller can re-prompt the user.
type Candidate struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Error is the classified error type used across the pipeline.
type Error struct {
	Code       Code
	Message    string
	Candidates []Candidate
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Unauthenticated(format string, args ...any) *Error {
	return newError(CodeUnauthenticated, format, args...)
}

func BadRequest(format string, args ...any) *Error {
	return newError(CodeBadRequest, format, args...)
}

func UnknownTool(name string) *Error {
	return newError(CodeUnknownTool, "unknown tool %q", name)
}

func NotImplemented(name string) *Error {
	return newError(CodeNotImplemented, "tool %q is registered but not implemented", name)
}

func NotFound(format string, args ...any) *Error {
	return newError(CodeNotFound, format, args...)
}

// Ambiguous reports that entity resolution matched more than one record.
func Ambiguous(message string, candidates []Candidate) *Error {
	return &Error{Code: CodeAmbiguous, Message: message, Candidates: candidates}
}

func TransactionFailed(err error) *Error {
	return &Error{Code: CodeTransactionFailed, Message: "transaction failed", Err: err}
}

// Internal wraps an unclassified error. A nil err yields a generic internal error.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", Err: err}
}

// AsError extracts a classified *Error, wrapping unclassified errors as Internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return Internal(err)
}

// CodeOf classifies an arbitrary error, defaulting to CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}

// HTTPStatus maps an error code to the HTTP status the surface layer responds with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeBadRequest, CodeAmbiguous:
		return http.StatusBadRequest
	case CodeUnknownTool, CodeNotFound:
		return http.StatusNotFound
	case CodeNotImplemented:
		return http.StatusNotImplemented
	case CodeTransactionFailed, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
