package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
)

// HTTPError represents an HTTP error response.
type HTTPError struct {
	Status   int               `json:"-"`
	Code     string            `json:"code"`
	Category ErrorCategory     `json:"category,omitempty"`
	Message  string            `json:"message"`
	Details  map[string]string `json:"details,omitempty"`
	TraceID  string            `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status code for an error.
// It maps error codes to appropriate HTTP status codes.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	// Check if it's our custom error type
	var customErr Error
	if errors.As(err, &customErr) {
		return codeToHTTPStatus(customErr.Code())
	}

	// Check sentinel errors
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrDisposed):
		return http.StatusGone
	case errors.Is(err, ErrCancelled):
		return 499
	case errors.Is(err, ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTimeout):
		return http.StatusRequestTimeout
	case errors.Is(err, ErrEngine):
		return http.StatusBadGateway
	}

	// Default to internal server error
	return http.StatusInternalServerError
}

// codeToHTTPStatus maps error codes to HTTP status codes.
func codeToHTTPStatus(code string) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeCancelled:
		return 499 // Client Closed Request
	case CodeUnknown, CodeInternal:
		return http.StatusInternalServerError
	case CodeInvalidArgument, CodeValidation:
		return http.StatusBadRequest
	case CodeDeadlineExceeded, CodeTimeout:
		return http.StatusRequestTimeout
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDisposed:
		return http.StatusGone
	case CodeResourceExhausted:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeEngineError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTPError converts an error to an HTTPError.
func ToHTTPError(err error, traceID string) *HTTPError {
	if err == nil {
		return &HTTPError{
			Status:  http.StatusOK,
			Code:    CodeOK,
			Message: "success",
			TraceID: traceID,
		}
	}

	httpErr := &HTTPError{
		Status:  StatusCode(err),
		TraceID: traceID,
		Details: make(map[string]string),
	}

	// Extract details from custom error types
	var customErr Error
	if errors.As(err, &customErr) {
		httpErr.Code = customErr.Code()
		httpErr.Message = customErr.Message()
	} else {
		httpErr.Code = GetErrorCode(err)
		httpErr.Message = err.Error()
	}
	httpErr.Category = GetCategory(httpErr.Code)

	// Add type-specific details
	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		disposedErr   *DisposedError
		cancelledErr  *CancelledError
		fullErr       *QueueFullError
		engineErr     *EngineError
		timeoutErr    *TimeoutError
		internalErr   *InternalError
	)

	switch {
	case errors.As(err, &validationErr):
		if validationErr.Field != "" {
			httpErr.Details["field"] = validationErr.Field
		}
	case errors.As(err, &notFoundErr):
		if notFoundErr.Resource != "" {
			httpErr.Details["resource"] = notFoundErr.Resource
		}
		if notFoundErr.ID != "" {
			httpErr.Details["id"] = notFoundErr.ID
		}
	case errors.As(err, &disposedErr):
		if disposedErr.Resource != "" {
			httpErr.Details["resource"] = disposedErr.Resource
		}
	case errors.As(err, &cancelledErr):
		if cancelledErr.Operation != "" {
			httpErr.Details["operation"] = cancelledErr.Operation
		}
	case errors.As(err, &fullErr):
		httpErr.Details["capacity"] = strconv.Itoa(fullErr.Capacity)
	case errors.As(err, &engineErr):
		if engineErr.Operation != "" {
			httpErr.Details["operation"] = engineErr.Operation
		}
	case errors.As(err, &timeoutErr):
		if timeoutErr.Operation != "" {
			httpErr.Details["operation"] = timeoutErr.Operation
		}
		if timeoutErr.Duration != "" {
			httpErr.Details["duration"] = timeoutErr.Duration
		}
	case errors.As(err, &internalErr):
		if internalErr.Operation != "" {
			httpErr.Details["operation"] = internalErr.Operation
		}
	}

	return httpErr
}

// WriteHTTPError writes an error response to an http.ResponseWriter.
func WriteHTTPError(w http.ResponseWriter, err error, traceID string) {
	httpErr := ToHTTPError(err, traceID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpErr.Status)
	json.NewEncoder(w).Encode(httpErr)
}
