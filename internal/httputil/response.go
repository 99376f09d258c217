package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/banshee-data/interactive.eval/internal/fault"
	"github.com/banshee-data/interactive.eval/internal/monitoring"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSONError writes an error body of the given kind.
func WriteJSONError(w http.ResponseWriter, status int, kind, msg string) {
	WriteJSON(w, status, ErrorBody{Error: kind, Message: msg})
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Opsf("failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes a successful JSON response (200 OK).
func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

// WriteFault writes err with the status matching its kind. Known kinds are
// client errors; anything else is a 500 whose details stay in the log.
func WriteFault(w http.ResponseWriter, err error) {
	kind := fault.Kind(err)
	switch {
	case kind == "internal" || errors.Is(err, fault.ErrContract):
		monitoring.Opsf("internal error: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, kind, "internal server error")
	case errors.Is(err, fault.ErrSetup):
		WriteJSONError(w, http.StatusUnauthorized, kind, err.Error())
	default:
		WriteJSONError(w, http.StatusBadRequest, kind, err.Error())
	}
}

// MethodNotAllowed writes a 405 Method Not Allowed response.
func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "usage", "method not allowed")
}

// NotFound writes a 404 Not Found response.
func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, "invalid_input", msg)
}

// DecodeError turns a 4xx response body back into a fault kind. Bodies that
// are not error documents become fault.ErrRemote.
func DecodeError(status int, body []byte) error {
	var eb ErrorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Error == "" {
		return fault.FromKind("http_"+http.StatusText(status), string(body))
	}
	return fault.FromKind(eb.Error, eb.Message)
}
