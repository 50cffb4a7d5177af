package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sms-relay-server/internal/models"

	"github.com/jmoiron/sqlx"
)

// MessageRepository reads messages and drives their delivery state.
type MessageRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID int64) ([]*models.Message, error)
	// History lists every message of the user's conversations, newest first.
	History(ctx context.Context, userID string, limit, offset int) ([]*models.Message, error)

	// ByCarrierID finds the outbound message a delivery receipt refers to.
	// Inbound messages never match.
	ByCarrierID(ctx context.Context, carrierID string) (*models.Message, error)
	// InboundByCarrierID finds a previously ingested inbound message.
	InboundByCarrierID(ctx context.Context, carrierID string) (*models.Message, error)

	MarkSent(ctx context.Context, id int64, carrierID string, state models.DeliveryState) error
	MarkFailed(ctx context.Context, id int64, detail string) error

	// UpsertStatus sets the delivery state of a message, creating the status
	// row when the message predates status tracking. changed is false when
	// the stored state already equals state.
	UpsertStatus(ctx context.Context, id int64, state models.DeliveryState, detail string) (changed bool, err error)
}

type messageRepository struct {
	q sqlx.ExtContext
}

func NewMessageRepository(q sqlx.ExtContext) MessageRepository {
	return &messageRepository{q: q}
}

const messageSelect = `
	SELECT m.id AS id, m.conversation_id AS conversation_id, m.sender_phone AS sender_phone,
		m.recipient_phone AS recipient_phone, m.body AS body, m.sent_at AS sent_at,
		m.is_sent AS is_sent, m.is_received AS is_received, m.is_read AS is_read,
		m.carrier_message_id AS carrier_message_id,
		s.status AS status, s.updated_at AS status_updated_at, s.error_message AS status_error
	FROM messages m
	LEFT JOIN message_status s ON s.message_id = m.id
`

// messageRow is a message joined with its optional status row.
type messageRow struct {
	models.Message
	State           sql.NullString `db:"status"`
	StatusUpdatedAt sql.NullInt64  `db:"status_updated_at"`
	StatusError     sql.NullString `db:"status_error"`
}

func (row *messageRow) toMessage() *models.Message {
	msg := row.Message
	if row.State.Valid {
		msg.Status = &models.DeliveryStatus{
			MessageID:    msg.ID,
			State:        models.DeliveryState(row.State.String),
			UpdatedAt:    row.StatusUpdatedAt.Int64,
			ErrorMessage: row.StatusError.String,
		}
	}
	return &msg
}

func getMessage(ctx context.Context, q sqlx.QueryerContext, where string, args ...interface{}) (*models.Message, error) {
	var row messageRow
	err := sqlx.GetContext(ctx, q, &row, messageSelect+` WHERE `+where, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return row.toMessage(), nil
}

func selectMessages(ctx context.Context, q sqlx.QueryerContext, tail string, args ...interface{}) ([]*models.Message, error) {
	var rows []messageRow
	if err := sqlx.SelectContext(ctx, q, &rows, messageSelect+tail, args...); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	msgs := make([]*models.Message, 0, len(rows))
	for i := range rows {
		msgs = append(msgs, rows[i].toMessage())
	}
	return msgs, nil
}

func lastMessage(ctx context.Context, q sqlx.QueryerContext, conversationID int64) (*models.Message, error) {
	return getMessage(ctx, q, `m.conversation_id = ? ORDER BY m.sent_at DESC, m.id DESC LIMIT 1`, conversationID)
}

func (r *messageRepository) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	return getMessage(ctx, r.q, `m.id = ?`, id)
}

func (r *messageRepository) ListByConversation(ctx context.Context, conversationID int64) ([]*models.Message, error) {
	return selectMessages(ctx, r.q, ` WHERE m.conversation_id = ? ORDER BY m.sent_at ASC, m.id ASC`, conversationID)
}

func (r *messageRepository) History(ctx context.Context, userID string, limit, offset int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return selectMessages(ctx, r.q, `
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.user_id = ?
		ORDER BY m.sent_at DESC, m.id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
}

func (r *messageRepository) ByCarrierID(ctx context.Context, carrierID string) (*models.Message, error) {
	if carrierID == "" {
		return nil, nil
	}
	return getMessage(ctx, r.q, `m.carrier_message_id = ? AND m.is_received = 0 LIMIT 1`, carrierID)
}

func (r *messageRepository) InboundByCarrierID(ctx context.Context, carrierID string) (*models.Message, error) {
	if carrierID == "" {
		return nil, nil
	}
	return getMessage(ctx, r.q, `m.carrier_message_id = ? AND m.is_received = 1`, carrierID)
}

func (r *messageRepository) MarkSent(ctx context.Context, id int64, carrierID string, state models.DeliveryState) error {
	var carrier *string
	if carrierID != "" {
		carrier = &carrierID
	}
	return inTx(ctx, r.q, func(tx sqlx.ExtContext) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE messages SET is_sent = 1, carrier_message_id = ? WHERE id = ?`, carrier, id); err != nil {
			return fmt.Errorf("failed to mark message sent: %w", err)
		}
		_, err := upsertStatus(ctx, tx, id, state, "")
		return err
	})
}

func (r *messageRepository) MarkFailed(ctx context.Context, id int64, detail string) error {
	return inTx(ctx, r.q, func(tx sqlx.ExtContext) error {
		if _, err := tx.ExecContext(ctx, `UPDATE messages SET is_sent = 0 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to mark message failed: %w", err)
		}
		_, err := upsertStatus(ctx, tx, id, models.StateFailed, detail)
		return err
	})
}

func (r *messageRepository) UpsertStatus(ctx context.Context, id int64, state models.DeliveryState, detail string) (bool, error) {
	var changed bool
	err := inTx(ctx, r.q, func(tx sqlx.ExtContext) error {
		var err error
		changed, err = upsertStatus(ctx, tx, id, state, detail)
		return err
	})
	return changed, err
}

func upsertStatus(ctx context.Context, q sqlx.ExtContext, id int64, state models.DeliveryState, detail string) (bool, error) {
	if !state.Valid() {
		return false, fmt.Errorf("invalid delivery state %q", state)
	}

	var current string
	err := sqlx.GetContext(ctx, q, &current, `SELECT status FROM message_status WHERE message_id = ?`, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		current = ""
	case err != nil:
		return false, fmt.Errorf("failed to get message status: %w", err)
	}
	if current == string(state) && detail == "" {
		return false, nil
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO message_status (message_id, status, updated_at, error_message)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (message_id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			error_message = excluded.error_message
	`, id, string(state), time.Now().Unix(), detail)
	if err != nil {
		return false, fmt.Errorf("failed to upsert message status: %w", err)
	}
	return current != string(state), nil
}
