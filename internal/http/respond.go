package httpx

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes a JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeSuccess sends the standard success envelope, merged with extra fields.
func writeSuccess(w http.ResponseWriter, status int, message string, extra map[string]any) {
	body := map[string]any{
		"success": true,
		"message": message,
	}
	for key, value := range extra {
		body[key] = value
	}
	writeJSON(w, status, body)
}

// writeError sends the standard failure envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"message": message,
	})
}
