package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/device"
)

// ErrUnknownCommand is returned for WebSocket command events the bridge
// does not recognise.
var ErrUnknownCommand = errors.New("api: unknown command")

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeNotFound   = "not_found"
	ErrCodeInternal   = "internal_error"
)

// timeoutMessage is all a caller learns about a failed transport call.
const timeoutMessage = "device did not respond"

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeText writes a plain-text response.
func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write([]byte(text))
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// statusFor maps pool errors to HTTP status codes and the text shown to
// the caller.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound), errors.Is(err, device.ErrPresetNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, device.ErrNotLight),
		errors.Is(err, device.ErrInvalidTarget),
		errors.Is(err, ErrUnknownCommand):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, device.ErrDeviceOffline):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, device.ErrDeviceTimeout):
		return http.StatusGatewayTimeout, timeoutMessage
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// writeDeviceError writes err as plain text with its mapped status code.
func writeDeviceError(w http.ResponseWriter, err error) {
	status, text := statusFor(err)
	writeText(w, status, text)
}
