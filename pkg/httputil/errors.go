package httputil

import (
	"fmt"
	"net/http"
	"strings"
)

// CheckMethod validates that the request method matches the expected method.
// If it doesn't match, it writes a 405 Method Not Allowed error and returns false.
func CheckMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

// RequireNotEmpty checks if a string value is empty after trimming whitespace.
// If empty, it writes a 400 Bad Request error with the field name and returns false.
func RequireNotEmpty(w http.ResponseWriter, value, fieldName string) bool {
	if strings.TrimSpace(value) == "" {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("%s is required", fieldName))
		return false
	}
	return true
}
