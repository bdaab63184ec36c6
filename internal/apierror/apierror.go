// Package apierror writes the JSON error envelope shared by every API
// response path.
package apierror

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in the envelope's code field.
const (
	CodeBadRequest      = "BadRequest"
	CodeInvalidBody     = "InvalidBodyContent"
	CodeInvalidFormat   = "InvalidFormat"
	CodeMissingRequired = "MissingRequired"
	CodeUnauthorized    = "Unauthorized"
	CodeForbidden       = "Forbidden"
	CodeNotFound        = "NotFound"
	CodeConflict        = "Conflict"
	CodeRateLimited     = "TooManyRequests"
	CodeUnavailable     = "ServiceUnavailable"
	CodeServerError     = "ServerError"
)

// Error is the body of every non-2xx API response.
type Error struct {
	Type    string `json:"type"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New builds an error envelope.
func New(status int, code, message string) Error {
	return Error{Type: "error", Status: status, Code: code, Message: message}
}

// CodeFor returns the default code for an HTTP status.
func CodeFor(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusUnprocessableEntity:
		return CodeInvalidFormat
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	}
	if status >= 500 {
		return CodeServerError
	}
	return CodeBadRequest
}

// Write sends the envelope with status as the HTTP status code.
func Write(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(New(status, code, message))
}
