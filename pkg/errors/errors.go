package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Is matches AppErrors by code so copies produced by WithInternal or
// WithMessage still compare equal to their sentinel.
func (e *AppError) Is(target error) bool {
	var appErr *AppError
	if e == nil || !errors.As(target, &appErr) {
		return false
	}
	return e.Code == appErr.Code
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError carrying a caller-specific message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

// Common errors exposed to the rest of the application. Permission failures
// (FORBIDDEN) are deliberately distinct from NOT_FOUND so clients can decide
// whether to switch accounts or report missing data.
var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrInvalidArgument = &AppError{
		Code:       "INVALID_ARGUMENT",
		Message:    "Malformed or missing required field",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidProof = &AppError{
		Code:       "INVALID_PROOF",
		Message:    "Encryption proof rejected",
		StatusCode: http.StatusBadRequest,
	}

	ErrDecryptionDenied = &AppError{
		Code:       "DECRYPTION_DENIED",
		Message:    "Entitlement check failed for one or more handles",
		StatusCode: http.StatusForbidden,
	}

	ErrAuthorizationExpired = &AppError{
		Code:       "AUTHORIZATION_EXPIRED",
		Message:    "Decryption authorization validity window has expired",
		StatusCode: http.StatusForbidden,
	}

	ErrInvalidSignature = &AppError{
		Code:       "INVALID_SIGNATURE",
		Message:    "Signature verification failed",
		StatusCode: http.StatusUnauthorized,
	}

	ErrConflict = &AppError{
		Code:       "CONFLICT",
		Message:    "The request conflicted with a concurrent write, retry",
		StatusCode: http.StatusConflict,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrRateLimit = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests, please slow down",
		StatusCode: http.StatusTooManyRequests,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewInvalidArgument wraps validation failures with a helpful message.
func NewInvalidArgument(message string) *AppError {
	return ErrInvalidArgument.WithMessage(message)
}
