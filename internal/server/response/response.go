// Package response writes the JSON envelope every taxamap API endpoint
// returns: a data field on success, an error field on failure.
package response

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/agentstation/taxamap/pkg/errors"
)

// Response is the envelope.
type Response struct {
	Data  any    `json:"data"`
	Error *Error `json:"error"`
}

// Error describes a failed request.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Success wraps data.
func Success(data any) Response {
	return Response{Data: data}
}

// Fail builds an error envelope.
func Fail(code, message, details string) Response {
	return Response{Error: &Error{Code: code, Message: message, Details: details}}
}

// JSON writes resp with the given status.
func JSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent, so an encoding failure cannot be reported.
	_ = json.NewEncoder(w).Encode(resp)
}

// OK writes data with 200.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Success(data))
}

// BadRequest writes a 400.
func BadRequest(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusBadRequest, Fail("BAD_REQUEST", message, details))
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, message, details string) {
	JSON(w, http.StatusNotFound, Fail("NOT_FOUND", message, details))
}

// MethodNotAllowed writes a 405.
func MethodNotAllowed(w http.ResponseWriter, method string) {
	JSON(w, http.StatusMethodNotAllowed, Fail(
		"METHOD_NOT_ALLOWED",
		"Method not allowed",
		"Method "+method+" is not supported for this endpoint",
	))
}

// InternalError writes a 500 without exposing err.
func InternalError(w http.ResponseWriter, _ error) {
	JSON(w, http.StatusInternalServerError, Fail(
		"INTERNAL_ERROR",
		"Internal server error",
		"An unexpected error occurred",
	))
}

// ServiceUnavailable writes a 503 the client may retry.
func ServiceUnavailable(w http.ResponseWriter, code, message string) {
	resp := Fail(code, "Service unavailable", message)
	resp.Error.Retryable = true
	w.Header().Set("Retry-After", "1")
	JSON(w, http.StatusServiceUnavailable, resp)
}

// GatewayTimeout writes a 504 the client may retry.
func GatewayTimeout(w http.ResponseWriter, message string) {
	resp := Fail("TIMEOUT", "Request timed out", message)
	resp.Error.Retryable = true
	JSON(w, http.StatusGatewayTimeout, resp)
}

// ErrorFromType maps taxamap errors onto HTTP statuses.
func ErrorFromType(w http.ResponseWriter, err error) {
	switch {
	case errors.IsValidationError(err):
		BadRequest(w, err.Error(), "")
	case errors.IsNotFound(err):
		NotFound(w, "species not found", err.Error())
	case stderrors.Is(err, errors.ErrStoreWrite):
		ServiceUnavailable(w, "STORE_WRITE_FAILED", "the record store rejected the write; retry the request")
	case errors.IsTimeout(err):
		GatewayTimeout(w, err.Error())
	case errors.IsCanceled(err):
		ServiceUnavailable(w, "CANCELED", "the request was canceled before research finished")
	default:
		InternalError(w, err)
	}
}
