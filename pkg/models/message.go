package models

import "time"

// Message is immutable after creation except for the one-way read_at write.
// Total order within a conversation is (created_at, id) ascending.
type Message struct {
	ID             string     `json:"id" db:"id"`
	ConversationID string     `json:"conversation_id" db:"conversation_id"`
	SenderUserID   string     `json:"sender_user_id" db:"sender_user_id"`
	Content        string     `json:"content" db:"content"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty" db:"read_at"`
}

// SendMessageRequest is the request body for sending a message
type SendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// MarkReadRequest is the request body for a batch read receipt. An empty or
// absent id list marks every unread message in the conversation.
type MarkReadRequest struct {
	MessageIDs []string `json:"message_ids,omitempty" validate:"omitempty,dive,uuid4"`
}

// ReadReceipt carries the read_at set for one message id by a mark-read batch
type ReadReceipt struct {
	MessageID string    `json:"message_id"`
	ReadAt    time.Time `json:"read_at"`
}

// MessagePage is one page of a conversation's message log
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor,omitempty"`
}
