// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"github.com/gorilla/mux"

	"github.com/library-reservations/backend/internal/api/handlers"
	"github.com/library-reservations/backend/internal/api/middleware"
	"github.com/library-reservations/backend/internal/app"
	"github.com/library-reservations/backend/internal/scheduler"
)

// NewRouter creates and configures the HTTP router with all API routes.
// sched may be nil, in which case sweep listings carry no next-run times.
func NewRouter(a *app.App, sched *scheduler.SweepScheduler) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(a.DB)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(a.DB, a.Hub)).Methods("GET")

	// WebSocket endpoint
	if a.Hub != nil {
		api.HandleFunc("/ws", handlers.WebSocketUpgrade(a.Hub)).Methods("GET")
	}

	// Everything below acts on behalf of the caller named in X-User
	user := api.NewRoute().Subrouter()
	user.Use(middleware.Identity(a.Catalog.GetUser))

	// Book availability
	user.HandleFunc("/books/{slug}/availability", handlers.CheckAvailability(a.Reservations)).Methods("GET")
	user.HandleFunc("/books/{slug}/unavailable-periods", handlers.UnavailablePeriods(a.Reservations)).Methods("GET")

	// Reservation endpoints
	user.HandleFunc("/reservations", handlers.ListReservations(a.Reservations)).Methods("GET")
	user.HandleFunc("/reservations", handlers.CreateReservation(a.Reservations)).Methods("POST")
	user.HandleFunc("/reservations/{id}", handlers.GetReservation(a.Reservations)).Methods("GET")
	user.HandleFunc("/reservations/{id}", handlers.PatchReservation(a.Reservations)).Methods("PATCH")
	user.HandleFunc("/reservations/{id}", handlers.CancelReservation(a.Reservations)).Methods("DELETE")

	// Strike and penalty endpoints
	user.HandleFunc("/strikes", handlers.ListStrikes(a.Penalties)).Methods("GET")
	user.HandleFunc("/strikes/count", handlers.CountStrikes(a.Penalties)).Methods("GET")
	user.HandleFunc("/penalties", handlers.ListPenalties(a.Penalties)).Methods("GET")
	user.HandleFunc("/penalties/count", handlers.CountPenalties(a.Penalties)).Methods("GET")
	user.HandleFunc("/penalties/{id}", handlers.GetPenalty(a.Penalties)).Methods("GET")

	// Credit endpoints
	user.HandleFunc("/credits", handlers.GetCredit(a.Credits)).Methods("GET")
	user.HandleFunc("/credits/subtract", handlers.SubtractCredit(a.Credits, a.Catalog)).Methods("PATCH")

	// Notification endpoints
	user.HandleFunc("/notifications", handlers.ListNotifications(a.Notifications)).Methods("GET")
	user.HandleFunc("/notifications/unread-count", handlers.CountUnreadNotifications(a.Notifications)).Methods("GET")
	user.HandleFunc("/notifications/{id}", handlers.GetNotification(a.Notifications)).Methods("GET")

	// Favorite endpoints
	user.HandleFunc("/favorites", handlers.ListFavorites(a.Favorites)).Methods("GET")
	user.HandleFunc("/favorites", handlers.AddFavorite(a.Favorites)).Methods("POST")
	user.HandleFunc("/favorites/{slug}", handlers.RemoveFavorite(a.Favorites)).Methods("DELETE")

	// Sweep endpoints
	user.HandleFunc("/sweeps", handlers.ListSweeps(a.Sweeps, sched)).Methods("GET")
	user.HandleFunc("/sweeps/{name}/run", handlers.RunSweep(a.Sweeps)).Methods("POST")

	return r
}
