package models

import "time"

// Conversation is the single persistent thread between one end user and the
// admin operator. Exactly one exists per user id.
type Conversation struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
}

// Profile carries the portal-facing identity details used by the admin list
// and by email notifications.
type Profile struct {
	UserID    string `db:"user_id" json:"user_id"`
	Email     string `db:"email" json:"email"`
	PANNumber string `db:"pan_number" json:"pan_number,omitempty"`
}

// ConversationSummary is the admin view of a conversation: the other
// participant plus how many of their messages are still unread.
type ConversationSummary struct {
	Conversation
	Email       string `json:"email,omitempty"`
	PANNumber   string `json:"pan_number,omitempty"`
	UnreadCount int    `json:"unread_count"`
}
