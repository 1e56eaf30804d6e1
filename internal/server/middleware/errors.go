package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// WriteError sends an ErrorBody with the given status.
func WriteError(w http.ResponseWriter, status int, code, msg string) {
	body, _ := json.Marshal(ErrorBody{
		Error:     code,
		Message:   msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
