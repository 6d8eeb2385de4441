package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/library-reservations/backend/internal/api/middleware"
	"github.com/library-reservations/backend/internal/penalty"
)

// ListPenalties returns the caller's penalties.
func ListPenalties(svc *penalty.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListPenalties(r.Context(), currentUser(r).Username)
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, list)
	}
}

// GetPenalty returns one of the caller's penalties with the strikes that caused it.
func GetPenalty(svc *penalty.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.GetPenalty(r.Context(), currentUser(r).Username, mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, p)
	}
}

// CountPenalties returns how many penalties the caller has received.
func CountPenalties(svc *penalty.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.CountPenalties(r.Context(), currentUser(r).Username)
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, CountResponse{Count: n})
	}
}

// ListStrikes returns the caller's strikes with their reservations.
func ListStrikes(svc *penalty.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListStrikes(r.Context(), currentUser(r).Username)
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, list)
	}
}

// CountStrikes returns how many strikes the caller has received.
func CountStrikes(svc *penalty.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.CountStrikes(r.Context(), currentUser(r).Username)
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, CountResponse{Count: n})
	}
}
