package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"support-chat-service/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	GetOrCreate(ctx context.Context, userID string) (models.Conversation, error)
	Get(ctx context.Context, conversationID string) (models.Conversation, error)
	List(ctx context.Context) ([]models.Conversation, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `id, user_id, created_at, last_message_at`

// GetOrCreate returns the user's conversation, creating it on first use.
// Concurrent first-time callers race on the UNIQUE(user_id) constraint; the
// loser re-selects the winner's row instead of failing.
func (r *ConversationRepo) GetOrCreate(ctx context.Context, userID string) (models.Conversation, error) {
	var conv models.Conversation
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE user_id=$1`
	err := r.db.GetContext(ctx, &conv, query, userID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, err
	}

	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO conversations (id, user_id) VALUES ($1, $2) RETURNING `+conversationColumns,
		uuid.NewString(), userID).StructScan(&conv)
	if err == nil {
		return conv, nil
	}
	if !isUniqueViolation(err) {
		return models.Conversation{}, err
	}

	// Lost the race: another caller inserted the row between our select and
	// insert. The existing row is the single source of truth.
	err = r.db.GetContext(ctx, &conv, query, userID)
	return conv, err
}

// Get fetches a conversation by id.
func (r *ConversationRepo) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// List returns all conversations, most recently active first.
func (r *ConversationRepo) List(ctx context.Context) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs,
		`SELECT `+conversationColumns+` FROM conversations ORDER BY last_message_at DESC`)
	return convs, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
