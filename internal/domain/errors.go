package domain

import "errors"

// Condition codes surfaced to API clients alongside the HTTP status.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidState     = "INVALID_STATE"
	CodeForbidden        = "FORBIDDEN"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeExpiredToken     = "EXPIRED_TOKEN"
	CodeBlacklisted      = "BLACKLISTED"
)

// Error is a domain condition with a stable code. Validation and state
// errors are returned synchronously; notification failures are never
// wrapped in one of these, they are logged and swallowed.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func NotFoundError(msg string) *Error         { return &Error{Code: CodeNotFound, Message: msg} }
func InvalidStateError(msg string) *Error     { return &Error{Code: CodeInvalidState, Message: msg} }
func ForbiddenError(msg string) *Error        { return &Error{Code: CodeForbidden, Message: msg} }
func ValidationError(msg string) *Error       { return &Error{Code: CodeValidationFailed, Message: msg} }
func ExpiredTokenError(msg string) *Error     { return &Error{Code: CodeExpiredToken, Message: msg} }
func BlacklistedError(msg string) *Error      { return &Error{Code: CodeBlacklisted, Message: msg} }

// CodeOf extracts the condition code from an error chain, or empty string
// for unclassified errors.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
