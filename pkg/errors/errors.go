// Package errors defines the structured error type shared by every layer of argproxy.
// Each error carries a stable code and the HTTP status the edge should answer with.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure.
type Code string

const (
	// CodeParse marks a malformed inbound link or malformed window parameters.
	CodeParse Code = "parse_error"
	// CodeDecode marks a stored record that could not be decoded.
	CodeDecode Code = "decode_error"
	// CodeConversion marks a decoded record whose instants are not representable.
	CodeConversion Code = "conversion_error"
	// CodeUpstreamRefresh marks any failure of the upstream refresh call.
	CodeUpstreamRefresh Code = "upstream_refresh_error"
	// CodeCacheIO marks an unavailable or failing link store.
	CodeCacheIO Code = "cache_io_error"
	// CodeInternal marks everything else.
	CodeInternal Code = "internal_error"
	// CodeNotFound is used by the router for unknown paths.
	CodeNotFound Code = "not_found"
)

// ================================================================================
// AppError
// ================================================================================

// AppError represents a structured application error
type AppError struct {
	code        Code
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Code returns the error code
func (e *AppError) Code() Code { return e.code }

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int { return e.httpStatus }

// Description returns the human-readable description
func (e *AppError) Description() string { return e.description }

// Message returns the specific message without the cause chain.
func (e *AppError) Message() string { return e.message }

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error { return e.cause }

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.code == e.code
}

// WithCause adds a cause error to the error chain
func (e *AppError) WithCause(cause error) *AppError {
	e.cause = cause
	return e
}

// WithMetadata adds additional context metadata
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

// Metadata returns all metadata
func (e *AppError) Metadata() map[string]interface{} {
	return e.metadata
}

// NewError creates a new AppError with the specified parameters
func NewError(code Code, httpStatus int, description string, message string) *AppError {
	return &AppError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
	}
}

// ================================================================================
// Constructors
// ================================================================================

// ErrParse creates a parse_error for a malformed link.
func ErrParse(reason string) *AppError {
	return NewError(
		CodeParse,
		http.StatusBadRequest,
		"The supplied link is not a valid signed attachment link.",
		reason,
	).WithMetadata("reason", reason)
}

// ErrDecode creates a decode_error for a corrupt stored record.
func ErrDecode(reason string) *AppError {
	return NewError(
		CodeDecode,
		http.StatusInternalServerError,
		"A cached link record could not be decoded.",
		reason,
	).WithMetadata("reason", reason)
}

// ErrConversion creates a conversion_error for a stored record with unrepresentable instants.
func ErrConversion(reason string) *AppError {
	return NewError(
		CodeConversion,
		http.StatusInternalServerError,
		"A cached link record contains an invalid validity window.",
		reason,
	).WithMetadata("reason", reason)
}

// ErrUpstreamRefresh creates an upstream_refresh_error.
func ErrUpstreamRefresh(reason string) *AppError {
	return NewError(
		CodeUpstreamRefresh,
		http.StatusBadGateway,
		"The upstream service failed to refresh the link.",
		reason,
	).WithMetadata("reason", reason)
}

// ErrCacheIO creates a cache_io_error for the given store operation.
func ErrCacheIO(op string) *AppError {
	return NewError(
		CodeCacheIO,
		http.StatusInternalServerError,
		"The link store is unavailable.",
		fmt.Sprintf("link store %s failed", op),
	).WithMetadata("op", op)
}

// ErrInternal creates an internal_error.
func ErrInternal(message string) *AppError {
	return NewError(
		CodeInternal,
		http.StatusInternalServerError,
		"The server encountered an unexpected condition.",
		message,
	)
}

// ErrInvalidConfig is returned when configuration validation fails.
func ErrInvalidConfig(message string) *AppError {
	return NewError(CodeInternal, http.StatusInternalServerError, "Invalid configuration.", message)
}

// ================================================================================
// Helpers
// ================================================================================

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err's chain contains an AppError with code.
func HasCode(err error, code Code) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.code == code
}

// IsClientError reports whether err should be answered with a 4xx status.
func IsClientError(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.httpStatus >= 400 && appErr.httpStatus < 500
}

// ErrorResponse represents the JSON structure for error responses
type ErrorResponse struct {
	Error            string                 `json:"error"`
	ErrorDescription string                 `json:"error_description"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ToErrorResponse converts any error to an ErrorResponse and its HTTP status.
func ToErrorResponse(err error) (int, *ErrorResponse) {
	if appErr, ok := AsAppError(err); ok {
		return appErr.httpStatus, &ErrorResponse{
			Error:            string(appErr.code),
			ErrorDescription: appErr.description,
			Metadata:         appErr.metadata,
		}
	}
	return http.StatusInternalServerError, &ErrorResponse{
		Error:            string(CodeInternal),
		ErrorDescription: "An unexpected error occurred",
	}
}
