package websocket

import (
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeReservationStatusChanged MessageType = "reservation.status_changed"
	TypeReservationCreated       MessageType = "reservation.created"
	TypeSweepCompleted           MessageType = "sweep.completed"
	TypePenaltyCreated           MessageType = "penalty.created"
	TypePenaltyCompleted         MessageType = "penalty.completed"

	// Client -> Server command types
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
	TypePing        MessageType = "ping"

	// Server -> Client response types
	TypeSubscribeAck MessageType = "subscribe.ack"
	TypePong         MessageType = "pong"
	TypeError        MessageType = "error"
)

// Topic returns the part of the type before the first dot, e.g. "reservation".
func (t MessageType) Topic() string {
	topic, _, _ := strings.Cut(string(t), ".")
	return topic
}

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// Command is a client request such as subscribe or ping.
type Command struct {
	Type   MessageType `json:"type"`
	Topics []string    `json:"topics,omitempty"`
}

// ParseCommand decodes a client command.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	err := json.Unmarshal(data, &cmd)
	return cmd, err
}

// ReservationStatusPayload is the payload for reservation.status_changed and reservation.created events.
type ReservationStatusPayload struct {
	ReservationID  string `json:"reservation_id"`
	User           string `json:"user"`
	Book           string `json:"book"`
	PreviousStatus string `json:"previous_status,omitempty"`
	NewStatus      string `json:"new_status"`
}

// SweepPayload is the payload for sweep.completed events.
type SweepPayload struct {
	Job       string `json:"job"`
	OK        bool   `json:"ok"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
}

// PenaltyPayload is the payload for penalty events.
type PenaltyPayload struct {
	PenaltyID string `json:"penalty_id"`
	User      string `json:"user"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
	Permanent bool   `json:"permanent"`
}

// SubscribeAckPayload confirms the client's current topics.
type SubscribeAckPayload struct {
	Topics []string `json:"topics"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
