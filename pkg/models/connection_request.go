package models

import "time"

// ConnectionStatus defines the lifecycle state of a connection request
type ConnectionStatus string

const (
	ConnectionStatusPending   ConnectionStatus = "pending"
	ConnectionStatusAccepted  ConnectionStatus = "accepted"
	ConnectionStatusDeclined  ConnectionStatus = "declined"  // Recipient said no; pair enters the decline cooldown
	ConnectionStatusWithdrawn ConnectionStatus = "withdrawn" // Requester cancelled while pending; no cooldown
	ConnectionStatusRemoved   ConnectionStatus = "removed"   // Either party severed an accepted connection; no cooldown
)

// IsTerminal reports whether no further transitions are possible from the status
func (s ConnectionStatus) IsTerminal() bool {
	return s == ConnectionStatusDeclined || s == ConnectionStatusWithdrawn || s == ConnectionStatusRemoved
}

// IsActive reports whether the status counts against the one-active-request-per-pair rule
func (s ConnectionStatus) IsActive() bool {
	return s == ConnectionStatusPending || s == ConnectionStatusAccepted
}

// ConnectionRequest is the proposal record that gates whether two users may message each other.
// Requests are never deleted; status transitions encode the history.
type ConnectionRequest struct {
	ID              string           `json:"id" db:"id"`
	RequesterUserID string           `json:"requester_user_id" db:"requester_user_id"`
	RecipientUserID string           `json:"recipient_user_id" db:"recipient_user_id"`
	Status          ConnectionStatus `json:"status" db:"status"`
	RequestMessage  *string          `json:"request_message,omitempty" db:"request_message"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	DecidedAt       *time.Time       `json:"decided_at,omitempty" db:"decided_at"`
}

// OtherParticipant returns the participant that is not userID
func (r *ConnectionRequest) OtherParticipant(userID string) string {
	if r.RequesterUserID == userID {
		return r.RecipientUserID
	}
	return r.RequesterUserID
}

// Involves reports whether userID is one of the two parties
func (r *ConnectionRequest) Involves(userID string) bool {
	return r.RequesterUserID == userID || r.RecipientUserID == userID
}

// CreateConnectionRequestRequest is the request to create a connection request
type CreateConnectionRequestRequest struct {
	RecipientUserID string  `json:"recipient_user_id" validate:"required,uuid4"`
	RequestMessage  *string `json:"request_message,omitempty"`
}

// UpdateConnectionStatusRequest is the recipient's accept/decline decision
type UpdateConnectionStatusRequest struct {
	Status ConnectionStatus `json:"status" validate:"required,oneof=accepted declined"`
}

// ConnectionList groups a user's requests the way the connections screen consumes them
type ConnectionList struct {
	Incoming []ConnectionRequest `json:"incoming"`
	Outgoing []ConnectionRequest `json:"outgoing"`
	Accepted []ConnectionRequest `json:"accepted"`
}
