package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJSON serializes payload and writes it with statusCode. json.Marshal
// is used instead of json.NewEncoder directly against w so an encoding
// failure is caught before any bytes (including the status line) reach the
// client.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")

	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"error":"internal encoding error"}`, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(statusCode)
	w.Write(body)
}

// writeError logs the error and writes a {"error": message} JSON body.
func writeError(w http.ResponseWriter, statusCode int, message string, logger *slog.Logger) {
	logger.Error("request error", "status", statusCode, "message", message)
	writeJSON(w, statusCode, map[string]string{"error": message})
}
