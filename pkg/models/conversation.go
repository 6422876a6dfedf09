package models

import "time"

// Conversation is the durable container of all messages exchanged between one
// connected pair. Exactly one exists per unordered pair and it is never
// deleted, so history survives connection removal.
type Conversation struct {
	ID             string     `json:"id" db:"id"`
	Participant1ID string     `json:"participant1_user_id" db:"participant1_user_id"`
	Participant2ID string     `json:"participant2_user_id" db:"participant2_user_id"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty" db:"last_message_at"`
}

// OtherParticipant returns the participant that is not userID
func (c *Conversation) OtherParticipant(userID string) string {
	if c.Participant1ID == userID {
		return c.Participant2ID
	}
	return c.Participant1ID
}

// HasParticipant reports whether userID is one of the two participants
func (c *Conversation) HasParticipant(userID string) bool {
	return c.Participant1ID == userID || c.Participant2ID == userID
}

// ConversationPreview is the derived list-screen summary for one conversation
type ConversationPreview struct {
	ConversationID     string     `json:"conversation_id"`
	OtherParticipantID string     `json:"other_participant_id"`
	OtherParticipant   *Profile   `json:"other_participant,omitempty"`
	LastMessage        *string    `json:"last_message,omitempty"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	UnreadCount        int        `json:"unread_count"`
}
