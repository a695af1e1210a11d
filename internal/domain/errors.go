package domain

import "errors"

// ErrorCode tags a broker error with its category. The first five categories
// are deterministic and reported synchronously; CodeInternal covers collaborator
// failures that are logged and surfaced generically.
type ErrorCode string

const (
	CodeValidation ErrorCode = "validation"
	CodeNotFound   ErrorCode = "not_found"
	CodeConflict   ErrorCode = "conflict"
	CodeIntegrity  ErrorCode = "integrity"
	CodeExpired    ErrorCode = "expired"
	CodeInternal   ErrorCode = "internal"
)

// Error is the structured failure returned across the service boundary. Details
// carries enough context for the caller to self-diagnose, e.g. both hash values
// on a commit-reveal mismatch.
type Error struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// WithDetail returns e with the key/value added to Details.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

func Integrity(message string) *Error {
	return &Error{Code: CodeIntegrity, Message: message}
}

func Expired(message string) *Error {
	return &Error{Code: CodeExpired, Message: message}
}

func Internal(message string) *Error {
	return &Error{Code: CodeInternal, Message: message}
}

// CodeOf extracts the error category, defaulting to CodeInternal for plain
// errors that escaped tagging.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
