package models

import "time"

// Message is one unit of text within a conversation. IsAdmin distinguishes
// the operator from the end user; IsRead only ever moves false -> true.
type Message struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	SenderID       string    `db:"sender_id" json:"sender_id"`
	Content        string    `db:"content" json:"content"`
	IsAdmin        bool      `db:"is_admin" json:"is_admin"`
	IsRead         bool      `db:"is_read" json:"is_read"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
