package handlers

import (
	"net/http"

	"github.com/library-reservations/backend/internal/api/middleware"
	"github.com/library-reservations/backend/internal/apperr"
	"github.com/library-reservations/backend/internal/credit"
	"github.com/library-reservations/backend/internal/storage"
)

// SubtractCreditRequest represents the request body for spending credits.
type SubtractCreditRequest struct {
	Subtract int    `json:"subtract"`
	User     string `json:"user,omitempty"`
}

// GetCredit returns the caller's credit balance.
func GetCredit(svc *credit.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := svc.Get(r.Context(), currentUser(r).Username)
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, c)
	}
}

// SubtractCredit removes credits from a balance, the caller's own unless user is given. Staff only.
func SubtractCredit(svc *credit.Service, catalog *storage.CatalogRepository) http.HandlerFunc {
	return middleware.RequireStaff(func(w http.ResponseWriter, r *http.Request) {
		var req SubtractCreditRequest
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		username := currentUser(r).Username
		if req.User != "" {
			user, err := catalog.GetUser(r.Context(), req.User)
			if err != nil {
				middleware.WriteAppError(w, err)
				return
			}
			if user == nil {
				middleware.WriteAppError(w, apperr.NotFound("user", req.User))
				return
			}
			username = user.Username
		}

		c, err := svc.Subtract(r.Context(), username, req.Subtract)
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		middleware.WriteJSON(w, http.StatusAccepted, DetailResponse{Detail: "Successfully subtract of credits.", Object: c})
	})
}
