package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	ErrMissingAPIKey = errors.New("missing GEMINI_API_KEY")
	ErrRateLimited   = errors.New("rate limit exceeded, please try again later")
)

type jsonError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func WriteJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	body := jsonError{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	_ = json.NewEncoder(w).Encode(body)
}
