package models

// Conversation groups every message between one platform user and one
// counterparty number. Unique per (UserID, ContactPhone).
type Conversation struct {
	ID           int64  `json:"id" db:"id"`
	UserID       string `json:"user_id" db:"user_id"`
	ContactPhone string `json:"contact_phone" db:"contact_phone"` // canonical form
	ContactName  string `json:"contact_name" db:"contact_name"`
	CreatedAt    int64  `json:"created_at" db:"created_at"`
	UpdatedAt    int64  `json:"updated_at" db:"updated_at"` // sent instant of the newest message
	Archived     bool   `json:"is_archived" db:"is_archived"`
}

// ConversationSummary is a list entry: the conversation plus its unread count
// and newest message.
type ConversationSummary struct {
	Conversation
	UnreadCount int              `json:"unread_count"`
	LastMessage *MessageResponse `json:"last_message,omitempty"`
}

// ConversationDetail is a conversation with its full ordered history.
type ConversationDetail struct {
	Conversation
	Messages []*MessageResponse `json:"messages"`
}
