// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"errors"
	"log"
	"net/http"
	"runtime/debug"

	jsoniter "github.com/json-iterator/go"

	"github.com/library-reservations/backend/internal/apperr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// FieldDetails names the request field an error refers to.
type FieldDetails struct {
	Field string `json:"field"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error:   errCode,
		Message: message,
	})
}

// WriteErrorWithDetails writes a JSON error response with additional details.
func WriteErrorWithDetails(w http.ResponseWriter, status int, errCode, message string, details any) {
	WriteJSON(w, status, ErrorResponse{
		Error:   errCode,
		Message: message,
		Details: details,
	})
}

// WriteAppError maps err to a status code by its kind and writes it.
// Errors without a kind are logged and reported as internal errors.
func WriteAppError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		log.Printf("Internal error: %v", err)
		WriteError(w, http.StatusInternalServerError, ErrInternalError, "An unexpected error occurred")
		return
	}

	var details any
	if appErr.Field != "" {
		details = FieldDetails{Field: appErr.Field}
	}

	message := appErr.Message
	if appErr.Err != nil {
		message = appErr.Error()
	}

	WriteErrorWithDetails(w, StatusFor(appErr.Kind), string(appErr.Kind), message, details)
}

// StatusFor returns the HTTP status code for an error kind.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindComputation:
		return http.StatusBadRequest
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ErrorRecovery is middleware that recovers from panics and returns a 500 error.
func ErrorRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic recovered: %v\n%s", err, debug.Stack())
				WriteError(w, http.StatusInternalServerError, ErrInternalError, "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Common error codes
const (
	ErrNotFound      = "not_found"
	ErrBadRequest    = "bad_request"
	ErrConflict      = "conflict"
	ErrInternalError = "internal_error"
	ErrValidation    = "validation_error"
	ErrUnauthorized  = "unauthorized"
	ErrForbidden     = "forbidden"
)
