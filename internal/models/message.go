package models

import "strings"

// MaxBodyLength is the SMS protocol limit on message bodies, in characters.
const MaxBodyLength = 160

// DeliveryState is the carrier-confirmed lifecycle label of a message.
type DeliveryState string

const (
	// StatePending marks an outbound attempt recorded before the carrier answered.
	StatePending   DeliveryState = "pending"
	StateSent      DeliveryState = "sent"
	StateDelivered DeliveryState = "delivered"
	StateRead      DeliveryState = "read"
	StateFailed    DeliveryState = "failed"
)

// Carrier delivery-info values.
const (
	CarrierDeliveredToNetwork      = "DeliveredToNetwork"
	CarrierDeliveredToTerminal     = "DeliveredToTerminal"
	CarrierDeliveryImpossible      = "DeliveryImpossible"
	CarrierMessageWaiting          = "MessageWaiting"
	CarrierDeliveryUncertain       = "DeliveryUncertain"
	CarrierNotificationUnsupported = "DeliveryNotificationNotSupported"
)

// Valid reports whether s is one of the known states.
func (s DeliveryState) Valid() bool {
	switch s {
	case StatePending, StateSent, StateDelivered, StateRead, StateFailed:
		return true
	}
	return false
}

// ParseDeliveryState maps a carrier delivery-info value or an internal label
// to a DeliveryState. The second result is false for unknown values.
func ParseDeliveryState(raw string) (DeliveryState, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case strings.ToLower(CarrierDeliveredToTerminal), strings.ToLower(CarrierDeliveredToNetwork), string(StateDelivered):
		return StateDelivered, true
	case strings.ToLower(CarrierDeliveryImpossible), string(StateFailed):
		return StateFailed, true
	case strings.ToLower(CarrierMessageWaiting), strings.ToLower(CarrierDeliveryUncertain),
		strings.ToLower(CarrierNotificationUnsupported), string(StateSent):
		return StateSent, true
	case string(StateRead):
		return StateRead, true
	}
	return "", false
}

// DeliveryStatus is one-to-one with a Message.
type DeliveryStatus struct {
	MessageID    int64         `json:"message_id" db:"message_id"`
	State        DeliveryState `json:"status" db:"status"`
	UpdatedAt    int64         `json:"updated_at" db:"updated_at"`
	ErrorMessage string        `json:"error_message,omitempty" db:"error_message"`
}

// Message is a single SMS inside a conversation. Sent, Received and Read are
// independent facets; an outbound message with Sent=false is still pending
// or has failed (see Status).
type Message struct {
	ID               int64           `json:"id" db:"id"`
	ConversationID   int64           `json:"conversation_id" db:"conversation_id"`
	SenderPhone      string          `json:"sender_phone" db:"sender_phone"`
	RecipientPhone   string          `json:"recipient_phone" db:"recipient_phone"`
	Body             string          `json:"message" db:"body"`
	SentAt           int64           `json:"sent_at" db:"sent_at"`
	Sent             bool            `json:"is_sent" db:"is_sent"`
	Received         bool            `json:"is_received" db:"is_received"`
	Read             bool            `json:"is_read" db:"is_read"`
	CarrierMessageID *string         `json:"carrier_message_id,omitempty" db:"carrier_message_id"`
	Status           *DeliveryStatus `json:"status,omitempty" db:"-"`
}

// SentBy reports whether the message was sent from phone. Direction is always
// derived from the owner's current registered number, never stored.
func (m *Message) SentBy(phone string) bool {
	return m.SenderPhone == phone
}

// MessageResponse is the API view of a message, with direction resolved for
// the requesting user.
type MessageResponse struct {
	*Message
	SentByUser bool `json:"is_sent_by_user"`
}

// ToResponse resolves the derived direction against ownerPhone.
func (m *Message) ToResponse(ownerPhone string) *MessageResponse {
	return &MessageResponse{Message: m, SentByUser: m.SentBy(ownerPhone)}
}
