// Package httpapi serves the REST resources and the operational endpoints
// of the local stack over net/http.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// jsonError is the body of errors raised by the HTTP layer itself. Errors of
// the resources are plain text and come from the api package.
type jsonError struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteJSONError writes a JSON error payload with the given status code,
// tagged with the request id already set on the response.
func WriteJSONError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, jsonError{Error: message, Details: details, RequestID: w.Header().Get(HeaderRequestID)})
}
