package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reservation is one user's claim on one book for the closed interval [StartDate, EndDate].
type Reservation struct {
	ID           string           `db:"id" json:"id"`
	UserRef      string           `db:"user_ref" json:"user"`
	BookRef      string           `db:"book_ref" json:"book"`
	StartDate    Date             `db:"start_date" json:"start_date"`
	EndDate      Date             `db:"end_date" json:"end_date"`
	InitialPrice decimal.Decimal  `db:"initial_price" json:"initial_price"`
	Status       string           `db:"status" json:"status"`
	ReturnedDate *Date            `db:"returned_date" json:"returned_date"`
	PenaltyPrice *decimal.Decimal `db:"penalty_price" json:"penalty_price"`
	FinalPrice   *decimal.Decimal `db:"final_price" json:"final_price"`
	Notes        *string          `db:"notes" json:"notes"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"-"`
}

// Reservation status constants
const (
	ReservationCanceledUser   = "canceled_user"   // Canceled by the user
	ReservationCanceledSystem = "canceled_system" // Canceled because a previous borrower did not return the book
	ReservationConfirmed      = "confirmed"       // Created, waiting for start date
	ReservationAvailable      = "available"       // Ready for pickup
	ReservationRetired        = "retired"         // Picked up by the user
	ReservationExpired        = "expired"         // Picked up and not returned by end date
	ReservationWaitingPayment = "waiting_payment" // Never picked up, full price owed
	ReservationCompleted      = "completed"       // Returned
)

// ActiveReservationStatuses are the statuses that occupy a book for their interval.
var ActiveReservationStatuses = []string{
	ReservationConfirmed,
	ReservationAvailable,
	ReservationRetired,
	ReservationExpired,
}

// ReservationStatusLabels maps status to a human readable label.
var ReservationStatusLabels = map[string]string{
	ReservationCanceledUser:   "Canceled by the user",
	ReservationCanceledSystem: "Canceled by the system",
	ReservationConfirmed:      "Confirmed",
	ReservationAvailable:      "Available for Pickup",
	ReservationRetired:        "Retired",
	ReservationExpired:        "End Time Expired - Must be Returned",
	ReservationWaitingPayment: "Waiting payment",
	ReservationCompleted:      "Completed",
}

// IsActive reports whether the reservation currently blocks its period for the book.
func (r *Reservation) IsActive() bool {
	for _, s := range ActiveReservationStatuses {
		if r.Status == s {
			return true
		}
	}
	return false
}

// Overlaps reports whether the reservation's interval shares at least one day with [start, end].
func (r *Reservation) Overlaps(start, end Date) bool {
	return !r.StartDate.After(end) && !r.EndDate.Before(start)
}

// AppendNote adds text to the reservation notes.
func (r *Reservation) AppendNote(text string) {
	if r.Notes == nil || *r.Notes == "" {
		r.Notes = &text
		return
	}
	joined := *r.Notes + " " + text
	r.Notes = &joined
}

// Period is an occupied date interval of a book.
type Period struct {
	StartDate Date `db:"start_date" json:"start_date"`
	EndDate   Date `db:"end_date" json:"end_date"`
}
