package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"sms-relay-server/internal/carrier"
	"sms-relay-server/internal/db"
	"sms-relay-server/internal/models"
	"sms-relay-server/internal/notify"
	"sms-relay-server/internal/phone"
	"sms-relay-server/pkg/logger"

	"go.uber.org/zap"
)

// TokenSource supplies carrier access tokens.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// Gateway is the carrier API used by MessageService.
type Gateway interface {
	Send(ctx context.Context, token, sender, recipient, body, senderName string) (*carrier.SendResult, error)
	CheckBalance(ctx context.Context, token string) *carrier.BalanceInfo
}

// SenderConfig is the carrier account outbound messages are relayed from.
type SenderConfig struct {
	Phone string // canonical; empty sends from the user's registered number
	Name  string
}

// SendOutcome describes a send attempt. On failure after the attempt was
// recorded it is returned alongside the error.
type SendOutcome struct {
	Message          *models.Message
	Conversation     *models.Conversation
	CarrierMessageID string
	DeliveryStatus   models.DeliveryState
}

// InboundSMS is one message received through the carrier webhook.
type InboundSMS struct {
	SenderAddress      string
	DestinationAddress string
	Body               string
	CarrierMessageID   string
	DateTime           string
}

// InboundOutcome describes an ingested inbound message.
type InboundOutcome struct {
	Message      *models.Message
	Conversation *models.Conversation
	User         *models.User
	Duplicate    bool // already ingested; nothing was created
}

// MessageService drives the message lifecycle: outbound sends, delivery
// receipts and inbound ingestion.
type MessageService struct {
	store   db.Store
	tokens  TokenSource
	gateway Gateway
	sink    notify.Sink
	sender  SenderConfig
	now     func() time.Time
}

func NewMessageService(store db.Store, tokens TokenSource, gateway Gateway, sink notify.Sink, sender SenderConfig) *MessageService {
	if sink == nil {
		sink = notify.Nop{}
	}
	return &MessageService{
		store:   store,
		tokens:  tokens,
		gateway: gateway,
		sink:    sink,
		sender:  sender,
		now:     time.Now,
	}
}

// SendMessage relays body from userID to recipient. When conversationID is
// non-nil the conversation must belong to the user and recipient must be its
// counterparty.
func (s *MessageService) SendMessage(ctx context.Context, userID, recipient, body string, conversationID *int64) (*SendOutcome, error) {
	if body == "" {
		return nil, models.Errorf(models.KindValidation, "message cannot be empty")
	}
	if n := utf8.RuneCountInString(body); n > models.MaxBodyLength {
		return nil, models.Errorf(models.KindValidation, "message too long (%d characters, max %d)", n, models.MaxBodyLength)
	}

	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.Errorf(models.KindNotFound, "user not found")
	}
	if !phone.Validate(user.PhoneNumber) {
		return nil, models.Errorf(models.KindValidation, "registered phone number %q is not valid", user.PhoneNumber)
	}

	canonical, ok := phone.Normalize(recipient)
	if !ok || !phone.Validate(canonical) {
		return nil, models.Errorf(models.KindValidation, "invalid recipient phone number %q", recipient)
	}

	outcome := &SendOutcome{DeliveryStatus: models.StatePending}
	err = s.store.WithTx(ctx, func(tx db.Store) error {
		var (
			conv *models.Conversation
			err  error
		)
		if conversationID != nil {
			conv, err = tx.Conversations().GetForUser(ctx, user.ID, *conversationID)
			if err != nil {
				return err
			}
			if conv == nil {
				return models.Errorf(models.KindNotFound, "conversation %d not found", *conversationID)
			}
			if conv.ContactPhone != canonical {
				return models.Errorf(models.KindValidation, "recipient %s does not match conversation %d", canonical, conv.ID)
			}
		} else {
			conv, _, err = tx.Conversations().ResolveOrCreate(ctx, user.ID, canonical, "")
			if err != nil {
				return err
			}
		}

		msg := &models.Message{
			ConversationID: conv.ID,
			SenderPhone:    user.PhoneNumber,
			RecipientPhone: canonical,
			Body:           body,
			SentAt:         s.now().Unix(),
		}
		if err := tx.Conversations().AppendMessage(ctx, msg, models.StatePending); err != nil {
			return err
		}
		if msg.SentAt > conv.UpdatedAt {
			conv.UpdatedAt = msg.SentAt
		}
		outcome.Conversation = conv
		outcome.Message = msg
		return nil
	})
	if err != nil {
		return nil, err
	}

	msg := outcome.Message
	fields := []zap.Field{
		zap.String("user_id", user.ID),
		zap.Int64("conversation_id", msg.ConversationID),
		zap.Int64("message_id", msg.ID),
	}
	logger.Info("Outbound message recorded", append(fields, zap.String("status", string(models.StatePending)))...)

	result, sendErr := s.deliver(ctx, user, canonical, body)
	if sendErr != nil {
		return s.fail(ctx, outcome, sendErr, fields)
	}

	state, ok := models.ParseDeliveryState(result.DeliveryStatus)
	if !ok || state != models.StateDelivered {
		state = models.StateSent
	}
	if err := s.store.Messages().MarkSent(ctx, msg.ID, result.CarrierMessageID, state); err != nil {
		logger.Error("Failed to record accepted message", append(fields, zap.Error(err))...)
		return outcome, fmt.Errorf("message accepted by carrier but not recorded: %w", err)
	}

	msg.Sent = true
	if result.CarrierMessageID != "" {
		id := result.CarrierMessageID
		msg.CarrierMessageID = &id
	}
	msg.Status = &models.DeliveryStatus{MessageID: msg.ID, State: state, UpdatedAt: s.now().Unix()}
	outcome.CarrierMessageID = result.CarrierMessageID
	outcome.DeliveryStatus = state

	logger.Info("Outbound message sent", append(fields,
		zap.String("carrier_message_id", result.CarrierMessageID),
		zap.String("status", string(state)))...)

	s.publish(ctx, user.ID, models.Event{
		Type:           models.EventNewMessage,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Status:         state,
		Message:        msg.ToResponse(user.PhoneNumber),
	})
	return outcome, nil
}

func (s *MessageService) deliver(ctx context.Context, user *models.User, recipient, body string) (*carrier.SendResult, error) {
	token, err := s.tokens.GetToken(ctx)
	if err != nil {
		return nil, err
	}
	sender := s.sender.Phone
	if sender == "" {
		sender = user.PhoneNumber
	}
	return s.gateway.Send(ctx, token, sender, recipient, body, s.sender.Name)
}

// fail records a failed attempt. The pending record is kept as an audit trail.
func (s *MessageService) fail(ctx context.Context, outcome *SendOutcome, cause error, fields []zap.Field) (*SendOutcome, error) {
	msg := outcome.Message
	if models.KindOf(cause) == models.KindAuth {
		if err := s.tokens.Invalidate(ctx); err != nil {
			logger.Warn("Failed to invalidate carrier token", append(fields, zap.Error(err))...)
		}
	}

	if err := s.store.Messages().MarkFailed(ctx, msg.ID, cause.Error()); err != nil {
		logger.Error("Failed to record failed attempt", append(fields, zap.Error(err))...)
	}
	msg.Sent = false
	msg.Status = &models.DeliveryStatus{
		MessageID:    msg.ID,
		State:        models.StateFailed,
		UpdatedAt:    s.now().Unix(),
		ErrorMessage: cause.Error(),
	}
	outcome.DeliveryStatus = models.StateFailed

	logger.Warn("Outbound message failed", append(fields,
		zap.String("status", string(models.StateFailed)),
		zap.String("kind", string(models.KindOf(cause))),
		zap.Error(cause))...)

	if models.KindOf(cause) == "" {
		cause = models.NewError(models.KindGateway, "send failed", cause)
	}
	return outcome, cause
}

// ApplyDeliveryReceipt records a carrier delivery report. Receipts for
// unknown messages are logged and ignored; the returned message is nil then.
func (s *MessageService) ApplyDeliveryReceipt(ctx context.Context, carrierMessageID, status, address string) (*models.Message, error) {
	carrierMessageID = strings.TrimSpace(carrierMessageID)
	if carrierMessageID == "" {
		return nil, models.Errorf(models.KindValidation, "messageId is required")
	}
	state, ok := models.ParseDeliveryState(status)
	if !ok {
		return nil, models.Errorf(models.KindValidation, "unknown delivery status %q", status)
	}

	msg, err := s.store.Messages().ByCarrierID(ctx, carrierMessageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		logger.Warn("Delivery receipt for unknown message",
			zap.String("carrier_message_id", carrierMessageID),
			zap.String("status", status),
			zap.String("address", address))
		return nil, nil
	}

	changed, err := s.store.Messages().UpsertStatus(ctx, msg.ID, state, "")
	if err != nil {
		return nil, err
	}
	msg.Status = &models.DeliveryStatus{MessageID: msg.ID, State: state, UpdatedAt: s.now().Unix()}

	fields := []zap.Field{
		zap.Int64("conversation_id", msg.ConversationID),
		zap.Int64("message_id", msg.ID),
		zap.String("carrier_message_id", carrierMessageID),
		zap.String("status", string(state)),
	}
	if !changed {
		logger.Debug("Delivery receipt repeats current status", fields...)
		return msg, nil
	}
	logger.Info("Delivery status updated", fields...)

	conv, err := s.store.Conversations().GetByID(ctx, msg.ConversationID)
	if err != nil || conv == nil {
		logger.Warn("Cannot resolve owner for status update", append(fields, zap.Error(err))...)
		return msg, nil
	}
	s.publish(ctx, conv.UserID, models.Event{
		Type:           models.EventMessageStatusUpdate,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Status:         state,
	})
	return msg, nil
}

// IngestInbound records an SMS received for a registered user. Redelivery
// of an already ingested carrier message returns it with Duplicate set.
func (s *MessageService) IngestInbound(ctx context.Context, in InboundSMS) (*InboundOutcome, error) {
	sender := phone.ParseAddress(in.SenderAddress)
	recipient := phone.ParseAddress(in.DestinationAddress)
	if sender == "" {
		return nil, models.Errorf(models.KindValidation, "senderAddress is required")
	}
	if strings.TrimSpace(in.Body) == "" {
		return nil, models.Errorf(models.KindValidation, "message is required")
	}
	if recipient == "" {
		return nil, models.Errorf(models.KindValidation, "destinationAddress is required")
	}

	carrierID := strings.TrimSpace(in.CarrierMessageID)

	outcome := &InboundOutcome{}
	err := s.store.WithTx(ctx, func(tx db.Store) error {
		user, err := tx.Users().GetByPhone(ctx, recipient)
		if err != nil {
			return err
		}
		if user == nil {
			return models.Errorf(models.KindNotFound, "no user registered for %s", recipient)
		}
		outcome.User = user

		if carrierID != "" {
			existing, err := tx.Messages().InboundByCarrierID(ctx, carrierID)
			if err != nil {
				return err
			}
			if existing != nil {
				outcome.Message = existing
				outcome.Duplicate = true
				outcome.Conversation, err = tx.Conversations().GetByID(ctx, existing.ConversationID)
				return err
			}
		}

		conv, _, err := tx.Conversations().ResolveOrCreate(ctx, user.ID, sender, "")
		if err != nil {
			return err
		}
		msg := &models.Message{
			ConversationID: conv.ID,
			SenderPhone:    sender,
			RecipientPhone: recipient,
			Body:           in.Body,
			SentAt:         s.now().Unix(),
			Received:       true,
		}
		if carrierID != "" {
			msg.CarrierMessageID = &carrierID
		}
		if err := tx.Conversations().AppendMessage(ctx, msg, models.StateDelivered); err != nil {
			return err
		}
		if msg.SentAt > conv.UpdatedAt {
			conv.UpdatedAt = msg.SentAt
		}
		outcome.Conversation = conv
		outcome.Message = msg
		return nil
	})
	if err != nil {
		if carrierID != "" && db.IsUniqueViolation(err) {
			// Lost a race with a concurrent delivery of the same message.
			return s.existingInbound(ctx, carrierID, outcome.User)
		}
		return nil, err
	}

	msg := outcome.Message
	fields := []zap.Field{
		zap.String("user_id", outcome.User.ID),
		zap.Int64("conversation_id", msg.ConversationID),
		zap.Int64("message_id", msg.ID),
		zap.String("carrier_message_id", carrierID),
	}
	if outcome.Duplicate {
		logger.Info("Inbound message already ingested", fields...)
		return outcome, nil
	}
	logger.Info("Inbound message received", append(fields,
		zap.String("status", string(models.StateDelivered)),
		zap.String("carrier_date_time", in.DateTime))...)

	s.publish(ctx, outcome.User.ID, models.Event{
		Type:           models.EventNewMessage,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Status:         models.StateDelivered,
		Message:        msg.ToResponse(outcome.User.PhoneNumber),
	})
	return outcome, nil
}

func (s *MessageService) existingInbound(ctx context.Context, carrierID string, user *models.User) (*InboundOutcome, error) {
	existing, err := s.store.Messages().InboundByCarrierID(ctx, carrierID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("inbound message %s vanished after conflict", carrierID)
	}
	conv, err := s.store.Conversations().GetByID(ctx, existing.ConversationID)
	if err != nil {
		return nil, err
	}
	return &InboundOutcome{Message: existing, Conversation: conv, User: user, Duplicate: true}, nil
}

// CheckBalance reports the carrier account balance, or nil when unavailable.
func (s *MessageService) CheckBalance(ctx context.Context) *carrier.BalanceInfo {
	token, err := s.tokens.GetToken(ctx)
	if err != nil {
		logger.Warn("Balance check skipped, no carrier token", zap.Error(err))
		return nil
	}
	return s.gateway.CheckBalance(ctx, token)
}

// History lists the user's messages across conversations, newest first.
func (s *MessageService) History(ctx context.Context, userID string, limit, offset int) ([]*models.MessageResponse, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.Errorf(models.KindNotFound, "user not found")
	}
	msgs, err := s.store.Messages().History(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return responses(msgs, user.PhoneNumber), nil
}

func (s *MessageService) publish(ctx context.Context, userID string, event models.Event) {
	if err := s.sink.Publish(ctx, userID, event); err != nil {
		logger.Warn("Failed to publish event",
			zap.String("user_id", userID),
			zap.String("type", string(event.Type)),
			zap.Int64("message_id", event.MessageID),
			zap.Error(err))
	}
}

func responses(msgs []*models.Message, ownerPhone string) []*models.MessageResponse {
	out := make([]*models.MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ToResponse(ownerPhone))
	}
	return out
}
