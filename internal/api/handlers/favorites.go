package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/library-reservations/backend/internal/api/middleware"
	"github.com/library-reservations/backend/internal/favorite"
)

// AddFavoriteRequest represents the request body for adding a favorite.
type AddFavoriteRequest struct {
	Book string `json:"book"`
}

// ListFavorites returns the caller's favorite books.
func ListFavorites(svc *favorite.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context(), currentUser(r).Username)
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, list)
	}
}

// AddFavorite marks a book as a favorite of the caller.
func AddFavorite(svc *favorite.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddFavoriteRequest
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		fav, err := svc.Add(r.Context(), currentUser(r).Username, req.Book)
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusCreated, fav)
	}
}

// RemoveFavorite removes a book from the caller's favorites.
func RemoveFavorite(svc *favorite.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Remove(r.Context(), currentUser(r).Username, mux.Vars(r)["slug"]); err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
