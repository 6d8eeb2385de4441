package models

import (
	"time"
)

// Strike records a single infraction tied to exactly one reservation.
type Strike struct {
	ID            string    `db:"id" json:"id"`
	ReservationID string    `db:"reservation_id" json:"reservation_id"`
	Reason        string    `db:"reason" json:"reason"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// StrikeWithReservation combines a strike with the reservation that caused it.
type StrikeWithReservation struct {
	Strike
	Reservation *Reservation `json:"reservation"`
}

// MaxStrikesPerGroup is the number of strikes that closes a group into a penalty.
const MaxStrikesPerGroup = 3

// StrikeGroup accumulates up to MaxStrikesPerGroup strikes for a user.
// A group with a nil PenaltyID is the user's open group.
type StrikeGroup struct {
	ID        string    `db:"id" json:"id"`
	UserRef   string    `db:"user_ref" json:"user"`
	PenaltyID *string   `db:"penalty_id" json:"penalty_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsOpen reports whether the group still accepts strikes.
func (g *StrikeGroup) IsOpen() bool {
	return g.PenaltyID == nil
}

// Penalty blocks a user from reserving until EndDate. A nil EndDate is permanent.
type Penalty struct {
	ID        string    `db:"id" json:"id"`
	UserRef   string    `db:"user_ref" json:"user"`
	StartDate Date      `db:"start_date" json:"start_date"`
	EndDate   *Date     `db:"end_date" json:"end_date"`
	Complete  bool      `db:"complete" json:"complete"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsPermanent reports whether the penalty never ends.
func (p *Penalty) IsPermanent() bool {
	return p.EndDate == nil
}

// IsDue reports whether the penalty period is over as of today.
func (p *Penalty) IsDue(today Date) bool {
	return !p.Complete && p.EndDate != nil && p.EndDate.Before(today)
}

// PenaltyWithStrikes is a penalty together with the strikes of the group it closed.
type PenaltyWithStrikes struct {
	Penalty *Penalty                `json:"penalty"`
	Strikes []StrikeWithReservation `json:"strikes"`
}
