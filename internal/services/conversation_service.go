package services

import (
	"context"
	"strings"

	"sms-relay-server/internal/db"
	"sms-relay-server/internal/models"
	"sms-relay-server/internal/phone"
	"sms-relay-server/pkg/logger"

	"go.uber.org/zap"
)

// ConversationService serves the read side of conversations and the user
// driven changes to them (read marks, archival).
type ConversationService struct {
	store db.Store
}

func NewConversationService(store db.Store) *ConversationService {
	return &ConversationService{store: store}
}

func (s *ConversationService) owner(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.Errorf(models.KindNotFound, "user not found")
	}
	return user, nil
}

func (s *ConversationService) conversation(ctx context.Context, userID string, id int64) (*models.Conversation, error) {
	conv, err := s.store.Conversations().GetForUser(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, models.Errorf(models.KindNotFound, "conversation %d not found", id)
	}
	return conv, nil
}

// List returns the user's active conversations, most recent first.
func (s *ConversationService) List(ctx context.Context, userID string) ([]*models.ConversationSummary, error) {
	return s.store.Conversations().ListForUser(ctx, userID)
}

// Search matches contact name, contact phone or message text.
func (s *ConversationService) Search(ctx context.Context, userID, query string) ([]*models.ConversationSummary, error) {
	return s.store.Conversations().Search(ctx, userID, strings.TrimSpace(query))
}

// Create resolves the conversation with contactPhone, creating it when absent.
func (s *ConversationService) Create(ctx context.Context, userID, contactPhone, contactName string) (*models.Conversation, bool, error) {
	canonical, ok := phone.Normalize(contactPhone)
	if !ok || !phone.Validate(canonical) {
		return nil, false, models.Errorf(models.KindValidation, "invalid phone number %q", contactPhone)
	}
	if _, err := s.owner(ctx, userID); err != nil {
		return nil, false, err
	}

	conv, created, err := s.store.Conversations().ResolveOrCreate(ctx, userID, canonical, strings.TrimSpace(contactName))
	if err != nil {
		return nil, false, err
	}
	if created {
		logger.Info("Conversation created",
			zap.String("user_id", userID),
			zap.Int64("conversation_id", conv.ID))
	}
	return conv, created, nil
}

// Get returns the conversation with its full history and marks the
// messages addressed to the user as read.
func (s *ConversationService) Get(ctx context.Context, userID string, id int64) (*models.ConversationDetail, error) {
	user, err := s.owner(ctx, userID)
	if err != nil {
		return nil, err
	}
	conv, err := s.conversation(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Conversations().MarkRead(ctx, conv.ID, user.PhoneNumber); err != nil {
		return nil, err
	}
	msgs, err := s.store.Messages().ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return &models.ConversationDetail{Conversation: *conv, Messages: responses(msgs, user.PhoneNumber)}, nil
}

// Messages lists the conversation history ordered by sent instant.
func (s *ConversationService) Messages(ctx context.Context, userID string, id int64) ([]*models.MessageResponse, error) {
	user, err := s.owner(ctx, userID)
	if err != nil {
		return nil, err
	}
	conv, err := s.conversation(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.Messages().ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return responses(msgs, user.PhoneNumber), nil
}

// MarkRead marks every unread message addressed to the user as read and
// returns how many changed.
func (s *ConversationService) MarkRead(ctx context.Context, userID string, id int64) (int64, error) {
	user, err := s.owner(ctx, userID)
	if err != nil {
		return 0, err
	}
	conv, err := s.conversation(ctx, userID, id)
	if err != nil {
		return 0, err
	}

	n, err := s.store.Conversations().MarkRead(ctx, conv.ID, user.PhoneNumber)
	if err != nil {
		return 0, err
	}
	logger.Info("Messages marked read",
		zap.String("user_id", userID),
		zap.Int64("conversation_id", conv.ID),
		zap.Int64("count", n))
	return n, nil
}

// SetArchived archives or restores a conversation. Nothing is deleted.
func (s *ConversationService) SetArchived(ctx context.Context, userID string, id int64, archived bool) (*models.Conversation, error) {
	ok, err := s.store.Conversations().SetArchived(ctx, userID, id, archived)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.Errorf(models.KindNotFound, "conversation %d not found", id)
	}
	return s.conversation(ctx, userID, id)
}
