package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every JSON error we return. Message is safe
// to show to a browser and never says which check failed.
type ErrorResponse struct {
	Message string `json:"message"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an ErrorResponse.
func WriteError(w http.ResponseWriter, code int, message string) {
	WriteJSON(w, code, ErrorResponse{Message: message})
}

// NoCache marks a response as uncacheable. Anything that sets or reads
// credentials goes through here.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
