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

// ConversationRepository owns conversation identity and the append-only
// message history inside each conversation.
type ConversationRepository interface {
	// ResolveOrCreate returns the conversation keyed by (userID, contactPhone),
	// creating it when absent. created reports whether this call inserted it.
	ResolveOrCreate(ctx context.Context, userID, contactPhone, contactName string) (conv *models.Conversation, created bool, err error)
	GetByID(ctx context.Context, id int64) (*models.Conversation, error)
	GetForUser(ctx context.Context, userID string, id int64) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]*models.ConversationSummary, error)
	Search(ctx context.Context, userID, query string) ([]*models.ConversationSummary, error)
	SetArchived(ctx context.Context, userID string, id int64, archived bool) (bool, error)

	// AppendMessage inserts msg with an initial delivery state and advances
	// the conversation's updated instant to msg.SentAt in one transaction.
	// The updated instant never moves backwards.
	AppendMessage(ctx context.Context, msg *models.Message, state models.DeliveryState) error

	// MarkRead flips every unread message addressed to userPhone and returns
	// the number of messages changed.
	MarkRead(ctx context.Context, conversationID int64, userPhone string) (int64, error)
}

type conversationRepository struct {
	q sqlx.ExtContext
}

func NewConversationRepository(q sqlx.ExtContext) ConversationRepository {
	return &conversationRepository{q: q}
}

const conversationColumns = `c.id AS id, c.user_id AS user_id, c.contact_phone AS contact_phone,
	c.contact_name AS contact_name, c.created_at AS created_at, c.updated_at AS updated_at,
	c.is_archived AS is_archived`

type summaryRow struct {
	models.Conversation
	UnreadCount int    `db:"unread_count"`
	OwnerPhone  string `db:"owner_phone"`
}

func (r *conversationRepository) ResolveOrCreate(ctx context.Context, userID, contactPhone, contactName string) (*models.Conversation, bool, error) {
	if userID == "" || contactPhone == "" {
		return nil, false, fmt.Errorf("user ID and contact phone are required")
	}

	now := time.Now().Unix()
	var (
		conv    models.Conversation
		created bool
	)
	err := inTx(ctx, r.q, func(tx sqlx.ExtContext) error {
		// The unique (user_id, contact_phone) constraint decides the race;
		// the loser's insert is a no-op and both read the same row.
		res, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (user_id, contact_phone, contact_name, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_id, contact_phone) DO NOTHING
		`, userID, contactPhone, contactName, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert conversation: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		created = n == 1

		if err := sqlx.GetContext(ctx, tx, &conv, `
			SELECT `+conversationColumns+` FROM conversations c
			WHERE c.user_id = ? AND c.contact_phone = ?
		`, userID, contactPhone); err != nil {
			return fmt.Errorf("failed to get conversation: %w", err)
		}

		if !created && contactName != "" && conv.ContactName == "" {
			if _, err := tx.ExecContext(ctx,
				`UPDATE conversations SET contact_name = ? WHERE id = ?`, contactName, conv.ID); err != nil {
				return fmt.Errorf("failed to set contact name: %w", err)
			}
			conv.ContactName = contactName
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &conv, created, nil
}

func (r *conversationRepository) GetByID(ctx context.Context, id int64) (*models.Conversation, error) {
	var conv models.Conversation
	err := sqlx.GetContext(ctx, r.q, &conv, `
		SELECT `+conversationColumns+` FROM conversations c WHERE c.id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (r *conversationRepository) GetForUser(ctx context.Context, userID string, id int64) (*models.Conversation, error) {
	var conv models.Conversation
	err := sqlx.GetContext(ctx, r.q, &conv, `
		SELECT `+conversationColumns+` FROM conversations c
		WHERE c.id = ? AND c.user_id = ?
	`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID string) ([]*models.ConversationSummary, error) {
	return r.summaries(ctx, `c.user_id = ? AND c.is_archived = 0`, userID)
}

// Search matches contact name, contact phone or any message body of the
// user's non-archived conversations. An empty query matches nothing.
func (r *conversationRepository) Search(ctx context.Context, userID, query string) ([]*models.ConversationSummary, error) {
	if query == "" {
		return []*models.ConversationSummary{}, nil
	}
	pattern := "%" + query + "%"
	return r.summaries(ctx, `c.user_id = ? AND c.is_archived = 0 AND (
			c.contact_name LIKE ? OR c.contact_phone LIKE ?
			OR EXISTS (SELECT 1 FROM messages s WHERE s.conversation_id = c.id AND s.body LIKE ?)
		)`, userID, pattern, pattern, pattern)
}

func (r *conversationRepository) summaries(ctx context.Context, where string, args ...interface{}) ([]*models.ConversationSummary, error) {
	var rows []summaryRow
	err := sqlx.SelectContext(ctx, r.q, &rows, `
		SELECT `+conversationColumns+`, u.phone_number AS owner_phone,
			(SELECT COUNT(*) FROM messages m
				WHERE m.conversation_id = c.id AND m.is_read = 0 AND m.sender_phone = c.contact_phone) AS unread_count
		FROM conversations c
		JOIN users u ON u.id = c.user_id
		WHERE `+where+`
		ORDER BY c.updated_at DESC, c.id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	summaries := make([]*models.ConversationSummary, 0, len(rows))
	for _, row := range rows {
		last, err := lastMessage(ctx, r.q, row.ID)
		if err != nil {
			return nil, err
		}
		summary := &models.ConversationSummary{
			Conversation: row.Conversation,
			UnreadCount:  row.UnreadCount,
		}
		if last != nil {
			summary.LastMessage = last.ToResponse(row.OwnerPhone)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (r *conversationRepository) SetArchived(ctx context.Context, userID string, id int64, archived bool) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE conversations SET is_archived = ? WHERE id = ? AND user_id = ?`, archived, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to archive conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n == 1, nil
}

func (r *conversationRepository) AppendMessage(ctx context.Context, msg *models.Message, state models.DeliveryState) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}
	if !state.Valid() {
		return fmt.Errorf("invalid delivery state %q", state)
	}
	if msg.SentAt == 0 {
		msg.SentAt = time.Now().Unix()
	}

	return inTx(ctx, r.q, func(tx sqlx.ExtContext) error {
		res, err := sqlx.NamedExecContext(ctx, tx, `
			INSERT INTO messages (conversation_id, sender_phone, recipient_phone, body, sent_at,
				is_sent, is_received, is_read, carrier_message_id)
			VALUES (:conversation_id, :sender_phone, :recipient_phone, :body, :sent_at,
				:is_sent, :is_received, :is_read, :carrier_message_id)
		`, msg)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get message ID: %w", err)
		}
		msg.ID = id

		status := &models.DeliveryStatus{MessageID: id, State: state, UpdatedAt: time.Now().Unix()}
		if _, err := sqlx.NamedExecContext(ctx, tx, `
			INSERT INTO message_status (message_id, status, updated_at, error_message)
			VALUES (:message_id, :status, :updated_at, :error_message)
		`, status); err != nil {
			return fmt.Errorf("failed to insert message status: %w", err)
		}
		msg.Status = status

		res, err = tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = MAX(updated_at, ?) WHERE id = ?`, msg.SentAt, msg.ConversationID)
		if err != nil {
			return fmt.Errorf("failed to touch conversation: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		} else if n == 0 {
			return fmt.Errorf("conversation %d does not exist", msg.ConversationID)
		}
		return nil
	})
}

func (r *conversationRepository) MarkRead(ctx context.Context, conversationID int64, userPhone string) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE conversation_id = ? AND recipient_phone = ? AND is_read = 0
	`, conversationID, userPhone)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}
