package model

import "time"

// Message is one persisted direct message. Immutable after creation except
// for IsRead, which flips in bulk when the receiver fetches the conversation.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Text       string    `json:"text"`
	FileURL    string    `json:"file_url,omitempty"`
	FileType   string    `json:"file_type,omitempty"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

// TypingSignal is ephemeral: never persisted, never queued. UserID is the
// user who is (or stopped) typing, as shown to the receiving client.
type TypingSignal struct {
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// PresenceUpdate is the broadcast payload for online/offline transitions.
type PresenceUpdate struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}

// ConnectionRequest mirrors the connections collaborator's record as far as
// the realtime layer needs it for targeted pushes.
type ConnectionRequest struct {
	ID         int64     `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	ConnectionPending  = "pending"
	ConnectionAccepted = "accepted"
)

// ConversationSummary is one row of a user's conversation list: the
// counterpart, a preview of the latest message, and the unread count.
type ConversationSummary struct {
	OtherUserID   string    `json:"other_user_id"`
	LastMessageID int64     `json:"last_message_id,omitempty"`
	LastMessage   string    `json:"last_message,omitempty"`
	UnreadCount   int64     `json:"unread_count"`
	LastUpdated   time.Time `json:"last_updated"`
}
