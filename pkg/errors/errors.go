package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Common sentinel errors for quick checks
var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned when a caller supplies an absent or empty required value.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDisposed is returned by any operation on a disposed handler or queue.
	ErrDisposed = errors.New("disposed")

	// ErrCancelled is returned when a suspended wait is cancelled.
	ErrCancelled = errors.New("cancelled")

	// ErrInvalidData is returned when the push engine hands over malformed buffers.
	ErrInvalidData = errors.New("invalid data from push engine")

	// ErrQueueFull is returned when a bounded queue rejects a message.
	ErrQueueFull = errors.New("queue full")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("operation timeout")

	// ErrEngine is returned when the push engine fails a request.
	ErrEngine = errors.New("push engine error")

	// ErrInternal is returned when an internal error occurs.
	ErrInternal = errors.New("internal error")
)

// Error is the base interface for all custom errors in the system.
// It extends the standard error interface with additional context.
type Error interface {
	error
	// Code returns the error code
	Code() string
	// Message returns the human-readable error message
	Message() string
	// Unwrap returns the underlying cause
	Unwrap() error
}

// BaseError provides a foundation for all typed errors.
type BaseError struct {
	code    string
	message string
	cause   error
	stack   []uintptr
}

// Error implements the error interface.
func (e *BaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *BaseError) Code() string {
	return e.code
}

// Message returns the error message.
func (e *BaseError) Message() string {
	return e.message
}

// Unwrap returns the underlying cause.
func (e *BaseError) Unwrap() error {
	return e.cause
}

// Stack returns the captured stack trace.
func (e *BaseError) Stack() []uintptr {
	return e.stack
}

// captureStack captures the current stack trace.
func captureStack(skip int) []uintptr {
	const maxDepth = 32
	stack := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, stack)
	return stack[:n]
}

// StackTrace returns a formatted stack trace string.
func (e *BaseError) StackTrace() string {
	if len(e.stack) == 0 {
		return ""
	}

	var buf strings.Builder
	frames := runtime.CallersFrames(e.stack)
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			fmt.Fprintf(&buf, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return buf.String()
}

// ValidationError represents a caller input error: an absent message,
// a nil client, an empty channel name.
type ValidationError struct {
	*BaseError
	Field string
	Value interface{}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		BaseError: &BaseError{
			code:    CodeValidation,
			message: message,
			stack:   captureStack(1),
		},
		Field: field,
		Value: value,
	}
}

// NewInvalidArgumentError reports that a required argument was absent.
func NewInvalidArgumentError(field string) *ValidationError {
	return &ValidationError{
		BaseError: &BaseError{
			code:    CodeInvalidArgument,
			message: "must not be nil",
			stack:   captureStack(1),
		},
		Field: field,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.message)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

// Is reports invalid-argument validation errors as ErrInvalidArgument.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidArgument && e.code == CodeInvalidArgument
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	*BaseError
	Resource string
	ID       string
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		BaseError: &BaseError{
			code:    CodeNotFound,
			message: fmt.Sprintf("%s not found", resource),
			stack:   captureStack(1),
		},
		Resource: resource,
		ID:       id,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with ID '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// DisposedError is returned by operations on a handler, queue or client
// that has already been shut down. It is deliberately distinct from
// ValidationError so callers can tell "shut down" from "bad input".
type DisposedError struct {
	*BaseError
	Resource string
}

// NewDisposedError creates a new disposed-state error.
func NewDisposedError(resource string) *DisposedError {
	return &DisposedError{
		BaseError: &BaseError{
			code:    CodeDisposed,
			message: fmt.Sprintf("%s is disposed", resource),
			stack:   captureStack(1),
		},
		Resource: resource,
	}
}

// Is matches ErrDisposed.
func (e *DisposedError) Is(target error) bool {
	return target == ErrDisposed
}

// CancelledError is returned when a suspended wait ends because its
// context fired. The context error is kept as the cause, so
// errors.Is(err, context.Canceled) and context.DeadlineExceeded still hold.
type CancelledError struct {
	*BaseError
	Operation string
}

// NewCancelledError creates a new cancellation error.
func NewCancelledError(operation string, cause error) *CancelledError {
	return &CancelledError{
		BaseError: &BaseError{
			code:    CodeCancelled,
			message: fmt.Sprintf("%s cancelled", operation),
			cause:   cause,
			stack:   captureStack(1),
		},
		Operation: operation,
	}
}

// Is matches ErrCancelled.
func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

// InvalidDataError describes a protocol violation by the push engine,
// such as an empty channel or content buffer.
type InvalidDataError struct {
	*BaseError
	Field  string
	Length uint64
}

// NewInvalidDataError creates a new invalid-data error.
func NewInvalidDataError(field, message string, length uint64) *InvalidDataError {
	return &InvalidDataError{
		BaseError: &BaseError{
			code:    CodeDataLoss,
			message: message,
			stack:   captureStack(1),
		},
		Field:  field,
		Length: length,
	}
}

// Error implements the error interface.
func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("invalid data from push engine: %s: %s", e.Field, e.message)
}

// Is matches ErrInvalidData.
func (e *InvalidDataError) Is(target error) bool {
	return target == ErrInvalidData
}

// QueueFullError is returned by a bounded queue using the reject overflow policy.
type QueueFullError struct {
	*BaseError
	Capacity int
}

// NewQueueFullError creates a new queue full error.
func NewQueueFullError(capacity int) *QueueFullError {
	return &QueueFullError{
		BaseError: &BaseError{
			code:    CodeResourceExhausted,
			message: fmt.Sprintf("queue full (capacity %d)", capacity),
			stack:   captureStack(1),
		},
		Capacity: capacity,
	}
}

// Is matches ErrQueueFull.
func (e *QueueFullError) Is(target error) bool {
	return target == ErrQueueFull
}

// EngineError represents a failure reported by the push engine.
type EngineError struct {
	*BaseError
	Operation string
}

// NewEngineError creates a new engine error.
func NewEngineError(operation, message string, cause error) *EngineError {
	if message == "" {
		message = fmt.Sprintf("push engine %s failed", operation)
	}
	return &EngineError{
		BaseError: &BaseError{
			code:    CodeEngineError,
			message: message,
			cause:   cause,
			stack:   captureStack(1),
		},
		Operation: operation,
	}
}

// Is matches ErrEngine.
func (e *EngineError) Is(target error) bool {
	return target == ErrEngine
}

// InternalError represents an internal error.
type InternalError struct {
	*BaseError
	Operation string
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, cause error) *InternalError {
	if message == "" {
		message = "internal error"
	}
	return &InternalError{
		BaseError: &BaseError{
			code:    CodeInternal,
			message: message,
			cause:   cause,
			stack:   captureStack(1),
		},
	}
}

// WithOperation sets the operation context.
func (e *InternalError) WithOperation(op string) *InternalError {
	e.Operation = op
	return e
}

// TimeoutError represents a timeout error.
type TimeoutError struct {
	*BaseError
	Operation string
	Duration  string
}

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(operation, duration string) *TimeoutError {
	message := "operation timeout"
	if operation != "" {
		message = fmt.Sprintf("%s timeout", operation)
	}
	return &TimeoutError{
		BaseError: &BaseError{
			code:    CodeTimeout,
			message: message,
			stack:   captureStack(1),
		},
		Operation: operation,
		Duration:  duration,
	}
}

// Wrap wraps an error with additional context.
// If the error is already one of our custom types, it preserves the code
// and adds the cause chain. Otherwise, it creates an InternalError.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already our error type, wrap it
	if e, ok := err.(Error); ok {
		return &BaseError{
			code:    e.Code(),
			message: message,
			cause:   err,
			stack:   captureStack(1),
		}
	}

	// Otherwise create an internal error
	return &InternalError{
		BaseError: &BaseError{
			code:    CodeInternal,
			message: message,
			cause:   err,
			stack:   captureStack(1),
		},
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// New creates a new error with a message.
func New(message string) error {
	return &BaseError{
		code:    CodeInternal,
		message: message,
		stack:   captureStack(1),
	}
}
