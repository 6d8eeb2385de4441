package websocket

import (
	"log"

	"github.com/library-reservations/backend/internal/storage/models"
)

// EventBroadcaster handles broadcasting WebSocket events.
// A nil *EventBroadcaster is valid and drops every event.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	if hub == nil {
		return nil
	}
	return &EventBroadcaster{hub: hub}
}

// BroadcastReservationCreated sends a reservation created event.
func (b *EventBroadcaster) BroadcastReservationCreated(res *models.Reservation) {
	b.broadcast(NewMessage(TypeReservationCreated, ReservationStatusPayload{
		ReservationID: res.ID,
		User:          res.UserRef,
		Book:          res.BookRef,
		NewStatus:     res.Status,
	}))
}

// BroadcastReservationStatusChanged sends a reservation status changed event.
func (b *EventBroadcaster) BroadcastReservationStatusChanged(res *models.Reservation, previousStatus string) {
	b.broadcast(NewMessage(TypeReservationStatusChanged, ReservationStatusPayload{
		ReservationID:  res.ID,
		User:           res.UserRef,
		Book:           res.BookRef,
		PreviousStatus: previousStatus,
		NewStatus:      res.Status,
	}))
}

// BroadcastSweepCompleted sends the summary of a sweep run.
func (b *EventBroadcaster) BroadcastSweepCompleted(result *models.SweepResult) {
	b.broadcast(NewMessage(TypeSweepCompleted, SweepPayload{
		Job:       result.Job,
		OK:        result.OK,
		Processed: result.Processed,
		Failed:    len(result.Errors),
	}))
}

// BroadcastPenaltyCreated sends a penalty created event.
func (b *EventBroadcaster) BroadcastPenaltyCreated(p *models.Penalty) {
	b.broadcast(NewMessage(TypePenaltyCreated, penaltyPayload(p)))
}

// BroadcastPenaltyCompleted sends a penalty completed event.
func (b *EventBroadcaster) BroadcastPenaltyCompleted(p *models.Penalty) {
	b.broadcast(NewMessage(TypePenaltyCompleted, penaltyPayload(p)))
}

func penaltyPayload(p *models.Penalty) PenaltyPayload {
	payload := PenaltyPayload{
		PenaltyID: p.ID,
		User:      p.UserRef,
		StartDate: p.StartDate.String(),
		Permanent: p.IsPermanent(),
	}
	if p.EndDate != nil {
		payload.EndDate = p.EndDate.String()
	}
	return payload
}

// broadcast sends a message to all clients subscribed to its topic.
func (b *EventBroadcaster) broadcast(msg Message) {
	if b == nil {
		return
	}

	data, err := msg.JSON()
	if err != nil {
		log.Printf("Error encoding WebSocket message: %v", err)
		return
	}

	b.hub.Publish(msg.Type.Topic(), data)
}
