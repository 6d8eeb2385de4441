package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/library-reservations/backend/internal/api/middleware"
	"github.com/library-reservations/backend/internal/apperr"
	"github.com/library-reservations/backend/internal/notification"
)

// ListNotifications returns the caller's notifications; ?unread=true limits them to unread ones.
// Returned notifications are marked read in the background.
func ListNotifications(sink *notification.Sink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		unreadOnly := false
		if raw := r.URL.Query().Get("unread"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				middleware.WriteAppError(w, apperr.Validation("unread", "must be true or false"))
				return
			}
			unreadOnly = v
		}

		list, err := sink.List(r.Context(), currentUser(r).Username, unreadOnly)
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, list)
	}
}

// GetNotification returns one of the caller's notifications and marks it read in the background.
func GetNotification(sink *notification.Sink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := sink.Get(r.Context(), currentUser(r).Username, mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, n)
	}
}

// CountUnreadNotifications returns the caller's unread count.
func CountUnreadNotifications(sink *notification.Sink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := sink.CountUnread(r.Context(), currentUser(r).Username)
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, CountResponse{Count: n})
	}
}
