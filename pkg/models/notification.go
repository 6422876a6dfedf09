package models

import "time"

// NotificationType defines what produced an in-app notification
type NotificationType string

const (
	NotificationTypeConnectionRequest  NotificationType = "connection_request"
	NotificationTypeConnectionAccepted NotificationType = "connection_accepted"
	NotificationTypeMessage            NotificationType = "message"
)

// Notification is a durable in-app notification row. Push delivery is an
// external concern; these rows back the notification bell only.
type Notification struct {
	ID          string           `json:"id" db:"id"`
	UserID      string           `json:"user_id" db:"user_id"`
	Type        NotificationType `json:"type" db:"type"`
	Title       string           `json:"title" db:"title"`
	Body        string           `json:"body" db:"body"`
	ReferenceID *string          `json:"reference_id,omitempty" db:"reference_id"`
	IsRead      bool             `json:"is_read" db:"is_read"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}
