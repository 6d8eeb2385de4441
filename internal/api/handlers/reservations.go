package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/library-reservations/backend/internal/api/middleware"
	"github.com/library-reservations/backend/internal/reservation"
	"github.com/library-reservations/backend/internal/storage/models"
)

// CreateReservationRequest represents the request body for reserving a book.
type CreateReservationRequest struct {
	Book      string      `json:"book"`
	StartDate models.Date `json:"start_date"`
	EndDate   models.Date `json:"end_date"`
	Notes     *string     `json:"notes,omitempty"`
}

// PatchReservationRequest carries exactly one of returned_date or retired.
type PatchReservationRequest struct {
	ReturnedDate *models.Date `json:"returned_date"`
	Retired      *bool        `json:"retired"`
}

// ListReservations returns the caller's reservations.
func ListReservations(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context(), currentUser(r).Username)
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, list)
	}
}

// GetReservation returns one of the caller's reservations.
func GetReservation(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Get(r.Context(), currentUser(r).Username, mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, res)
	}
}

// CreateReservation reserves a book for the caller.
func CreateReservation(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateReservationRequest
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		res, err := svc.Create(r.Context(), currentUser(r).Username, reservation.CreateInput{
			BookRef:   req.Book,
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
			Notes:     req.Notes,
		})
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		middleware.WriteJSON(w, http.StatusCreated, res)
	}
}

// CancelReservation cancels one of the caller's reservations.
func CancelReservation(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Cancel(r.Context(), currentUser(r).Username, mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, DetailResponse{Detail: "Reservation canceled.", Object: res})
	}
}

// PatchReservation records a pickup or a return. Staff only.
func PatchReservation(svc *reservation.Service) http.HandlerFunc {
	return middleware.RequireStaff(func(w http.ResponseWriter, r *http.Request) {
		var req PatchReservationRequest
		if err := decodeJSON(r, &req); err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		res, err := svc.Patch(r.Context(), mux.Vars(r)["id"], reservation.PatchInput{
			ReturnedDate: req.ReturnedDate,
			Retired:      req.Retired,
		})
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		middleware.WriteJSON(w, http.StatusOK, res)
	})
}

// AvailabilityResponse reports whether a book can be reserved for a period.
type AvailabilityResponse struct {
	Book      string      `json:"book"`
	StartDate models.Date `json:"start_date"`
	EndDate   models.Date `json:"end_date"`
	Available bool        `json:"available"`
}

// CheckAvailability reports whether a book is free for ?start_date=&end_date=.
func CheckAvailability(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := mux.Vars(r)["slug"]

		start, err := queryDate(r, "start_date")
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		end, err := queryDate(r, "end_date")
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		available, err := svc.CheckAvailability(r.Context(), slug, start, end)
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		middleware.WriteJSON(w, http.StatusOK, AvailabilityResponse{
			Book:      slug,
			StartDate: start,
			EndDate:   end,
			Available: available,
		})
	}
}

// UnavailablePeriods lists the periods a book is already taken.
func UnavailablePeriods(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		periods, err := svc.UnavailablePeriods(r.Context(), mux.Vars(r)["slug"])
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, periods)
	}
}

