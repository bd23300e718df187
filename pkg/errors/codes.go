package errors

// Error codes for categorizing errors.
// These codes map to HTTP status codes where the gateway surfaces them.
const (
	// CodeOK indicates success (not an error).
	CodeOK = "OK"

	// CodeCancelled indicates a suspended wait was cancelled by its context.
	CodeCancelled = "CANCELLED"

	// CodeUnknown indicates an unknown error occurred.
	CodeUnknown = "UNKNOWN"

	// CodeInvalidArgument indicates a caller supplied an absent or empty required value.
	CodeInvalidArgument = "INVALID_ARGUMENT"

	// CodeDeadlineExceeded indicates operation deadline was exceeded.
	CodeDeadlineExceeded = "DEADLINE_EXCEEDED"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound = "NOT_FOUND"

	// CodeResourceExhausted indicates a bounded queue rejected a message.
	CodeResourceExhausted = "RESOURCE_EXHAUSTED"

	// CodeInternal indicates internal errors.
	CodeInternal = "INTERNAL"

	// CodeUnavailable indicates the push engine is currently unavailable.
	CodeUnavailable = "UNAVAILABLE"

	// CodeDataLoss indicates malformed data arrived from the push engine.
	CodeDataLoss = "DATA_LOSS"

	// Domain-specific error codes

	// CodeValidation indicates input validation failed.
	CodeValidation = "VALIDATION_ERROR"

	// CodeDisposed indicates the handler or queue has been shut down.
	CodeDisposed = "DISPOSED"

	// CodeTimeout indicates an operation timed out.
	CodeTimeout = "TIMEOUT"

	// CodeEngineError indicates the push engine failed a subscription handshake.
	CodeEngineError = "ENGINE_ERROR"
)

// ErrorCategory represents a high-level error category.
type ErrorCategory string

const (
	// CategoryClient indicates a caller-side error (4xx).
	CategoryClient ErrorCategory = "CLIENT_ERROR"

	// CategoryServer indicates a server-side error (5xx).
	CategoryServer ErrorCategory = "SERVER_ERROR"

	// CategoryTimeout indicates a timeout error.
	CategoryTimeout ErrorCategory = "TIMEOUT_ERROR"

	// CategoryLifecycle indicates the target was shut down or the wait cancelled.
	CategoryLifecycle ErrorCategory = "LIFECYCLE_ERROR"

	// CategoryEngine indicates a failure reported by or about the push engine.
	CategoryEngine ErrorCategory = "ENGINE_ERROR"
)

// GetCategory returns the category for an error code.
func GetCategory(code string) ErrorCategory {
	switch code {
	case CodeInvalidArgument, CodeValidation, CodeNotFound,
		CodeResourceExhausted:
		return CategoryClient

	case CodeDisposed, CodeCancelled:
		return CategoryLifecycle

	case CodeTimeout, CodeDeadlineExceeded:
		return CategoryTimeout

	case CodeEngineError, CodeUnavailable, CodeDataLoss:
		return CategoryEngine

	default:
		return CategoryServer
	}
}

// IsRetryable returns true if an error with the given code should be retried.
func IsRetryable(code string) bool {
	switch code {
	case CodeTimeout, CodeDeadlineExceeded,
		CodeUnavailable, CodeResourceExhausted,
		CodeEngineError:
		return true
	default:
		return false
	}
}
