package types

import (
	"errors"
	"fmt"
)

// Kind classifies an AppError.
type Kind string

// Error kinds.
const (
	KindValidation Kind = "VALIDATION_ERROR"
	KindDatabase   Kind = "DATABASE_ERROR"
	KindAuth       Kind = "AUTH_ERROR"
	KindNetwork    Kind = "NETWORK_ERROR"
	KindUpload     Kind = "UPLOAD_ERROR"
	KindQuota      Kind = "QUOTA_ERROR"
	KindUnknown    Kind = "UNKNOWN_ERROR"
)

// Default user-facing messages per kind.
const (
	msgDatabase = "A storage error occurred. Please try again."
	msgAuth     = "Authentication failed. Please sign in again."
	msgNetwork  = "Network error. Please check your connection and try again."
	msgUpload   = "Upload failed. Please try again."
	msgQuota    = "Local storage is full. Save or reset the current job."
	msgUnknown  = "An unexpected error occurred. Please try again."
)

// AppError is the single error type that crosses component boundaries.
// Message is for logs; UserMessage is safe to show to a technician.
type AppError struct {
	Kind        Kind
	Message     string
	UserMessage string
	Retryable   bool
	// Field names the offending input for KindValidation.
	Field string
	Err   error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Is matches another *AppError of the same kind, so errors.Is(err,
// &AppError{Kind: KindAuth}) tests the classification.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Field == "" || t.Field == e.Field)
}

// ValidationError reports bad input. The message is shown to the user as is.
func ValidationError(field, message string) *AppError {
	return &AppError{Kind: KindValidation, Message: message, UserMessage: message, Field: field}
}

// DatabaseError reports a failure of the structured local store.
func DatabaseError(message string, err error) *AppError {
	return &AppError{Kind: KindDatabase, Message: message, UserMessage: msgDatabase, Retryable: true, Err: err}
}

// AuthError reports a missing or rejected identity.
func AuthError(message string, err error) *AppError {
	return &AppError{Kind: KindAuth, Message: message, UserMessage: msgAuth, Err: err}
}

// NetworkError reports a transport failure.
func NetworkError(message string, err error) *AppError {
	return &AppError{Kind: KindNetwork, Message: message, UserMessage: msgNetwork, Retryable: true, Err: err}
}

// UploadError reports a failed remote upload.
func UploadError(message string, err error) *AppError {
	return &AppError{Kind: KindUpload, Message: message, UserMessage: msgUpload, Retryable: true, Err: err}
}

// QuotaError reports that the persisted blob is full.
func QuotaError(message string, err error) *AppError {
	return &AppError{Kind: KindQuota, Message: message, UserMessage: msgQuota, Err: err}
}

// UnknownError wraps an unclassified failure.
func UnknownError(message string, err error) *AppError {
	return &AppError{Kind: KindUnknown, Message: message, UserMessage: msgUnknown, Err: err}
}

// AsAppError returns the first *AppError in err's chain. Unclassified errors
// are wrapped as KindUnknown, or KindQuota when they wrap ErrQuotaExceeded.
// A nil err yields nil.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return QuotaError(err.Error(), err)
	}
	return UnknownError(err.Error(), err)
}

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) Kind {
	if ae := AsAppError(err); ae != nil {
		return ae.Kind
	}
	return ""
}

// IsRetryable reports whether err is marked retryable.
func IsRetryable(err error) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// UserMessage returns the message to show for err.
func UserMessage(err error) string {
	if ae := AsAppError(err); ae != nil {
		return ae.UserMessage
	}
	return ""
}

// Result is the outcome of an access-layer call: Data on success, Err
// otherwise. A failed Result may still carry usable Data when the operation
// degrades instead of failing (job number fallback).
type Result[T any] struct {
	Data T
	Err  *AppError
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Data: v}
}

// Fail wraps an error.
func Fail[T any](err *AppError) Result[T] {
	return Result[T]{Err: err}
}

// OK reports whether the call succeeded.
func (r Result[T]) OK() bool { return r.Err == nil }

// Unwrap converts the Result into Go's value, error pair.
func (r Result[T]) Unwrap() (T, error) {
	if r.Err == nil {
		return r.Data, nil
	}
	return r.Data, r.Err
}
