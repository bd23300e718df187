// Package httputil holds the small request and response helpers shared by
// the gateway and its handlers.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/DeBrosOfficial/pushbridge/pkg/errors"
	"github.com/go-chi/chi/v5/middleware"
)

// WriteJSON writes a JSON response with the given status code.
// Encoding errors are ignored.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a standardized JSON error response.
// The response format is: {"error": "message"}
func WriteError(w http.ResponseWriter, code int, msg string) {
	WriteJSON(w, code, map[string]any{"error": msg})
}

// WriteErr maps a typed error to its HTTP status and writes it with the
// request ID as trace ID. Retryable errors carry a Retry-After hint.
func WriteErr(w http.ResponseWriter, r *http.Request, err error) {
	if errors.ShouldRetry(err) {
		w.Header().Set("Retry-After", "1")
	}
	errors.WriteHTTPError(w, err, middleware.GetReqID(r.Context()))
}
