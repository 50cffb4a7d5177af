package models

import "time"

// EventType names a real-time notification pushed to a user's subscribers.
type EventType string

const (
	EventConnectionEstablished EventType = "connection_established"
	EventNewMessage            EventType = "new_message"
	EventMessageStatusUpdate   EventType = "message_status_update"
	EventPing                  EventType = "ping"
)

// Event is the payload fanned out to every live connection of UserID.
type Event struct {
	ID             string           `json:"id"`
	Type           EventType        `json:"type"`
	UserID         string           `json:"user_id"`
	ConversationID int64            `json:"conversation_id,omitempty"`
	MessageID      int64            `json:"message_id,omitempty"`
	Status         DeliveryState    `json:"status,omitempty"`
	Message        *MessageResponse `json:"message,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}
