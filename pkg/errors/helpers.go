package errors

import (
	"context"
	"errors"
)

// IsNotFound checks if an error indicates a resource was not found.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr) || errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}

	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// IsInvalidArgument checks if an error reports an absent required argument.
func IsInvalidArgument(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInvalidArgument)
}

// IsDisposed checks if an error reports an operation on a disposed target.
func IsDisposed(err error) bool {
	if err == nil {
		return false
	}

	var disposedErr *DisposedError
	return errors.As(err, &disposedErr) || errors.Is(err, ErrDisposed)
}

// IsCancelled checks if an error reports a cancelled wait.
// Raw context errors count as cancellation too.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}

	var cancelledErr *CancelledError
	return errors.As(err, &cancelledErr) ||
		errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsInvalidData checks if an error reports malformed push engine data.
func IsInvalidData(err error) bool {
	if err == nil {
		return false
	}

	var dataErr *InvalidDataError
	return errors.As(err, &dataErr) || errors.Is(err, ErrInvalidData)
}

// IsQueueFull checks if an error reports a rejected enqueue.
func IsQueueFull(err error) bool {
	if err == nil {
		return false
	}

	var fullErr *QueueFullError
	return errors.As(err, &fullErr) || errors.Is(err, ErrQueueFull)
}

// IsTimeout checks if an error indicates a timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}

	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr) || errors.Is(err, ErrTimeout)
}

// IsEngine checks if an error was reported by the push engine.
func IsEngine(err error) bool {
	if err == nil {
		return false
	}

	var engineErr *EngineError
	return errors.As(err, &engineErr) || errors.Is(err, ErrEngine)
}

// IsInternal checks if an error is an internal error.
func IsInternal(err error) bool {
	if err == nil {
		return false
	}

	var internalErr *InternalError
	return errors.As(err, &internalErr) || errors.Is(err, ErrInternal)
}

// ShouldRetry checks if an operation should be retried based on the error.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	if IsTimeout(err) || IsEngine(err) {
		return true
	}

	var customErr Error
	if errors.As(err, &customErr) {
		return IsRetryable(customErr.Code())
	}

	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	if err == nil {
		return CodeOK
	}

	var customErr Error
	if errors.As(err, &customErr) {
		return customErr.Code()
	}

	// Try to infer from sentinel errors
	switch {
	case IsNotFound(err):
		return CodeNotFound
	case IsInvalidArgument(err):
		return CodeInvalidArgument
	case IsDisposed(err):
		return CodeDisposed
	case IsCancelled(err):
		return CodeCancelled
	case IsInvalidData(err):
		return CodeDataLoss
	case IsQueueFull(err):
		return CodeResourceExhausted
	case IsTimeout(err):
		return CodeTimeout
	case IsEngine(err):
		return CodeEngineError
	default:
		return CodeInternal
	}
}

// Cause returns the underlying cause of an error.
// It unwraps the error chain until it finds the root cause.
func Cause(err error) error {
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		underlying := unwrapper.Unwrap()
		if underlying == nil {
			return err
		}
		err = underlying
	}
}
