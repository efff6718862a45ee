package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the wire format for error responses.
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteErrorResponse writes a structured error response.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	WriteJSON(w, status, map[string]interface{}{
		"error": ErrorBody{Code: code, Message: message, Details: details},
	})
}

// Unauthorized writes a 401 response with an optional message.
func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Unauthorized"
	}
	WriteJSON(w, http.StatusUnauthorized, map[string]interface{}{
		"error": ErrorBody{Code: "UNAUTHORIZED", Message: message},
	})
}
