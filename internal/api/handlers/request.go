// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/library-reservations/backend/internal/api/middleware"
	"github.com/library-reservations/backend/internal/apperr"
	"github.com/library-reservations/backend/internal/storage/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// decodeJSON reads the request body into v, reporting malformed bodies as validation errors.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("body", "Invalid JSON")
	}
	return nil
}

// currentUser returns the caller resolved by the identity middleware.
func currentUser(r *http.Request) *models.User {
	return middleware.UserFrom(r.Context())
}

// queryDate parses a required YYYY-MM-DD query parameter.
func queryDate(r *http.Request, name string) (models.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return models.Date{}, apperr.Validation(name, "is required")
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return models.Date{}, apperr.Validation(name, err.Error())
	}
	return d, nil
}

// DetailResponse pairs a human readable message with a record.
type DetailResponse struct {
	Detail string `json:"detail"`
	Object any    `json:"object,omitempty"`
}

// CountResponse is the body of count endpoints.
type CountResponse struct {
	Count int `json:"count"`
}
