package respond

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

func JSON(w http.ResponseWriter, r *http.Request, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	// заголовок уже отправлен, ошибку записи вернуть клиенту нельзя
	_ = json.NewEncoder(w).Encode(data)
}

func Error(w http.ResponseWriter, r *http.Request, code int, message string) {
	JSON(w, r, code, ErrorBody{Error: message})
}

func Errorf(w http.ResponseWriter, r *http.Request, code int, format string, args ...any) {
	Error(w, r, code, fmt.Sprintf(format, args...))
}
