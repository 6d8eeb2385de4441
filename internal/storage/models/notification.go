package models

import (
	"fmt"
	"time"
)

// TargetKind tags the record type a notification points at.
type TargetKind string

// Notification target kinds
const (
	TargetReservation TargetKind = "reservation"
	TargetStrike      TargetKind = "strike"
	TargetPenalty     TargetKind = "penalty"
	TargetCredit      TargetKind = "credit"
)

// Target is a reference to one of the records a notification can be about.
type Target struct {
	Kind TargetKind `json:"type"`
	ID   string     `json:"id"`
}

// Valid reports whether the target kind is known.
func (t Target) Valid() bool {
	switch t.Kind {
	case TargetReservation, TargetStrike, TargetPenalty, TargetCredit:
		return t.ID != ""
	}
	return false
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%s", t.Kind, t.ID)
}

// ReservationTarget returns a target referencing a reservation.
func ReservationTarget(id string) Target { return Target{Kind: TargetReservation, ID: id} }

// StrikeTarget returns a target referencing a strike.
func StrikeTarget(id string) Target { return Target{Kind: TargetStrike, ID: id} }

// PenaltyTarget returns a target referencing a penalty.
func PenaltyTarget(id string) Target { return Target{Kind: TargetPenalty, ID: id} }

// CreditTarget returns a target referencing a credit balance.
func CreditTarget(id string) Target { return Target{Kind: TargetCredit, ID: id} }

// Notification is an append-only message for a user about a domain record.
type Notification struct {
	ID         string     `db:"id" json:"id"`
	UserRef    string     `db:"user_ref" json:"-"`
	Title      string     `db:"title" json:"title"`
	Message    *string    `db:"message" json:"message"`
	TargetKind TargetKind `db:"target_kind" json:"type"`
	TargetID   string     `db:"target_id" json:"target_id"`
	IsRead     bool       `db:"is_read" json:"is_read"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Target returns the notification's target reference.
func (n *Notification) Target() Target {
	return Target{Kind: n.TargetKind, ID: n.TargetID}
}

// NotificationWithTarget is a notification with its target record resolved.
type NotificationWithTarget struct {
	Notification
	Object any `json:"object"`
}
