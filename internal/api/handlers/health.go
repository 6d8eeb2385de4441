package handlers

import (
	"net/http"

	"github.com/library-reservations/backend/internal/api/middleware"
	"github.com/library-reservations/backend/internal/storage"
	"github.com/library-reservations/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status := "healthy"
		code := http.StatusOK
		if !dbConnected {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		middleware.WriteJSON(w, code, HealthResponse{Status: status, DBConnected: dbConnected})
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	Reservations     map[string]int `json:"reservations"`
	ActivePenalties  int            `json:"active_penalties"`
	UnreadNotices    int            `json:"unread_notifications"`
	WebSocketClients int            `json:"websocket_clients"`
}

// Status returns reservation counts per status and other operational figures.
func Status(db *storage.DB, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var rows []struct {
			Status string `db:"status"`
			Count  int    `db:"n"`
		}
		if err := db.SelectContext(ctx, &rows, "SELECT status, COUNT(*) AS n FROM reservations GROUP BY status"); err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		response := StatusResponse{Reservations: make(map[string]int, len(rows))}
		for _, row := range rows {
			response.Reservations[row.Status] = row.Count
		}

		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM penalties WHERE complete = 0").Scan(&response.ActivePenalties)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifications WHERE is_read = 0").Scan(&response.UnreadNotices)

		if hub != nil {
			response.WebSocketClients = hub.ClientCount()
		}

		middleware.WriteJSON(w, http.StatusOK, response)
	}
}
