// Package apperr provides error code definitions shared across the data layer.
package apperr

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code surfaced to callers and the UI.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrInvalid  ErrorCode = "INVALID_INPUT"

	// Backend errors
	ErrNetworkUnavailable ErrorCode = "NETWORK_UNAVAILABLE"
	ErrBackendRejected    ErrorCode = "BACKEND_REJECTED"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"

	// Sync errors
	ErrSyncFailed    ErrorCode = "SYNC_FAILED"
	ErrQueueCorrupt  ErrorCode = "QUEUE_CORRUPT"

	// Cache errors
	ErrCacheInstallFailed ErrorCode = "CACHE_INSTALL_FAILED"
	ErrCacheMiss          ErrorCode = "CACHE_MISS"

	// Export errors
	ErrExportFailed ErrorCode = "EXPORT_FAILED"
	ErrImportFailed ErrorCode = "IMPORT_FAILED"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the error code carried by err, or ErrInternal when err is
// not an AppError anywhere in its chain.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Is checks if an error carries a specific code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Transient reports whether err is a transient failure that the facade
// absorbs (queue plus best-effort local result) rather than surfacing.
func Transient(err error) bool {
	return Is(err, ErrNetworkUnavailable)
}
