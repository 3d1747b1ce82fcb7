package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

type errorKind struct {
	code           string
	defaultMessage string
}

// errorKinds maps the statuses the API emits to their error code. Anything
// else is reported as internal_error.
var errorKinds = map[int]errorKind{
	http.StatusBadRequest:            {"bad_request", "Bad request"},
	http.StatusUnauthorized:          {"unauthorized", "Authentication required"},
	http.StatusNotFound:              {"not_found", "Resource not found"},
	http.StatusRequestEntityTooLarge: {"request_too_large", "Request body too large"},
	http.StatusUnsupportedMediaType:  {"unsupported_media_type", "Unsupported media type"},
	http.StatusServiceUnavailable:    {"service_unavailable", "Service unavailable"},
	http.StatusInternalServerError:   {"internal_error", "Internal server error"},
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response wrapping data
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{Data: data})
}

// WriteAttachment writes body as a downloadable file
func WriteAttachment(w http.ResponseWriter, contentType, filename string, body []byte) error {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(body)
	return err
}

// WriteError writes an error body whose code is derived from status. An
// empty message falls back to the status default.
func WriteError(w http.ResponseWriter, status int, message string, details map[string]interface{}) error {
	kind, ok := errorKinds[status]
	if !ok {
		kind = errorKinds[http.StatusInternalServerError]
	}
	if message == "" {
		message = kind.defaultMessage
	}

	return WriteJSON(w, status, ErrorResponse{
		Error:   kind.code,
		Message: message,
		Details: details,
	})
}

// WriteBadRequest writes a 400 with field or line details
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteError(w, http.StatusBadRequest, message, details)
}

func WriteUnauthorized(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusUnauthorized, message, nil)
}

func WriteNotFound(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusNotFound, message, nil)
}

func WriteServiceUnavailable(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusServiceUnavailable, message, nil)
}

func WriteInternalServerError(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusInternalServerError, message, nil)
}
