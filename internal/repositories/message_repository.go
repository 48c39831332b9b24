package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"support-chat-service/internal/models"
)

var ErrEmptyContent = errors.New("message content is empty")

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	Append(ctx context.Context, conversationID string, senderID string, content string, isAdmin bool) (models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	MarkRead(ctx context.Context, conversationID string, fromAdmin bool) (int64, error)
	CountUnread(ctx context.Context, conversationID string, adminAuthored bool) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, conversation_id, sender_id, content, is_admin, is_read, created_at`

// Append stores a message and touches the parent conversation's
// last_message_at in the same transaction.
func (r *MessageRepo) Append(ctx context.Context, conversationID string, senderID string, content string, isAdmin bool) (models.Message, error) {
	if content == "" {
		return models.Message{}, ErrEmptyContent
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var msg models.Message
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, is_admin)
         VALUES ($1, $2, $3, $4, $5) RETURNING `+messageColumns,
		uuid.NewString(), conversationID, senderID, content, isAdmin).StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_message_at = $1 WHERE id = $2`,
		msg.CreatedAt, conversationID); err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListMessages returns the full ordered history of a conversation. Ties on
// created_at are broken by id so repeated reads always agree.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id=$1 ORDER BY created_at ASC, id ASC`,
		conversationID)
	return msgs, err
}

// MarkRead flips unread messages authored by the opposite role. Reading as
// admin acknowledges user messages and vice versa. Idempotent: a second sweep
// matches zero rows.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID string, fromAdmin bool) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read = TRUE WHERE conversation_id=$1 AND is_admin=$2 AND is_read = FALSE`,
		conversationID, !fromAdmin)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountUnread counts unread messages authored by the given role.
func (r *MessageRepo) CountUnread(ctx context.Context, conversationID string, adminAuthored bool) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM messages WHERE conversation_id=$1 AND is_admin=$2 AND is_read = FALSE`,
		conversationID, adminAuthored)
	return count, err
}
