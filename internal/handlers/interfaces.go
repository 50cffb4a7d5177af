package handlers

import (
	"context"

	"sms-relay-server/internal/carrier"
	"sms-relay-server/internal/models"
	"sms-relay-server/internal/services"
)

// MessageServiceInterface defines the contract for message lifecycle operations
// This interface is used for dependency injection and testing
type MessageServiceInterface interface {
	SendMessage(ctx context.Context, userID, recipient, body string, conversationID *int64) (*services.SendOutcome, error)
	ApplyDeliveryReceipt(ctx context.Context, carrierMessageID, status, address string) (*models.Message, error)
	IngestInbound(ctx context.Context, in services.InboundSMS) (*services.InboundOutcome, error)
	CheckBalance(ctx context.Context) *carrier.BalanceInfo
	History(ctx context.Context, userID string, limit, offset int) ([]*models.MessageResponse, error)
}

// ConversationServiceInterface defines the contract for conversation operations
type ConversationServiceInterface interface {
	List(ctx context.Context, userID string) ([]*models.ConversationSummary, error)
	Search(ctx context.Context, userID, query string) ([]*models.ConversationSummary, error)
	Create(ctx context.Context, userID, contactPhone, contactName string) (*models.Conversation, bool, error)
	Get(ctx context.Context, userID string, id int64) (*models.ConversationDetail, error)
	Messages(ctx context.Context, userID string, id int64) ([]*models.MessageResponse, error)
	MarkRead(ctx context.Context, userID string, id int64) (int64, error)
	SetArchived(ctx context.Context, userID string, id int64, archived bool) (*models.Conversation, error)
}

// AuthServiceInterface defines the contract for login
type AuthServiceInterface interface {
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
}

// EventSubscriber hands out live event streams per user
type EventSubscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan models.Event, string)
	Unsubscribe(userID, subID string)
}
