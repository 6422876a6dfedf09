// Package messaging is the append-only message log for conversations, plus
// read receipts and live fan-out.
package messaging

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/message"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/realtime"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// MessageRepository is the persistence surface the store needs
type MessageRepository interface {
	Insert(ctx context.Context, conversationID, senderID, content string) (*models.Message, error)
	ListPage(ctx context.Context, conversationID string, after *message.Cursor, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string, messageIDs []string) ([]models.ReadReceipt, error)
}

// ConversationGate validates access and connection status for a conversation
type ConversationGate interface {
	GetForParticipant(ctx context.Context, conversationID, userID string) (*models.Conversation, error)
	RequireSendable(ctx context.Context, conversationID, userID string) (*models.Conversation, error)
	BumpLastMessageAt(ctx context.Context, id string, at time.Time) error
}

// NotificationWriter records in-app notifications
type NotificationWriter interface {
	Create(ctx context.Context, userID string, notificationType models.NotificationType, title, body string, referenceID *string) (*models.Notification, error)
}

// Limits holds the tunables for the message store
type Limits struct {
	MaxMessageLength int
	DefaultPageSize  int
	MaxPageSize      int
}

// Store implements message send, list, and mark-read
type Store struct {
	messages      MessageRepository
	conversations ConversationGate
	notifications NotificationWriter
	notifier      realtime.Notifier
	emitter       *events.Emitter
	limits        Limits
	logger        ectologger.Logger
}

// NewStore creates a message store
func NewStore(messages MessageRepository, conversations ConversationGate, notifications NotificationWriter, notifier realtime.Notifier, emitter *events.Emitter, limits Limits, logger ectologger.Logger) *Store {
	return &Store{
		messages:      messages,
		conversations: conversations,
		notifications: notifications,
		notifier:      notifier,
		emitter:       emitter,
		limits:        limits,
		logger:        logger,
	}
}

// Send appends a message to the conversation. The connection is re-validated
// on every send, so a pair removed between sends is rejected here rather
// than at read time.
func (s *Store) Send(ctx context.Context, conversationID, senderID string, req *models.SendMessageRequest) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "messaging.Store.Send")
	defer span.End()

	start := time.Now()

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "message content cannot be empty")
	}
	if len(content) > s.limits.MaxMessageLength {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "message exceeds %d characters", s.limits.MaxMessageLength)
	}

	conversation, err := s.conversations.RequireSendable(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	msg, err := s.messages.Insert(ctx, conversationID, senderID, content)
	if err != nil {
		return nil, err
	}

	if err := s.conversations.BumpLastMessageAt(ctx, conversationID, msg.CreatedAt); err != nil {
		// ordering of the log is unaffected; previews lag until the next send
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to bump conversation activity")
	}

	recipientID := conversation.OtherParticipant(senderID)
	if _, err := s.notifications.Create(ctx, recipientID, models.NotificationTypeMessage,
		"New message", "You have a new message", &conversationID); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to write message notification")
	}

	s.notifier.Publish(realtime.Event{
		Type:           realtime.EventTypeMessageNew,
		ConversationID: conversationID,
		Message:        msg,
	})
	s.emitter.EmitMessageSent(ctx, msg)

	metrics.MessagesSentTotal.Inc()
	metrics.SendDuration.Observe(time.Since(start).Seconds())

	return msg, nil
}

// List returns a page of the conversation's messages in ascending
// (created_at, id) order, resuming after the cursor when one is given.
// Participants can always read history, connected or not.
func (s *Store) List(ctx context.Context, conversationID, userID, cursor string, limit int) (*models.MessagePage, error) {
	ctx, span := tracing.StartSpan(ctx, "messaging.Store.List")
	defer span.End()

	if _, err := s.conversations.GetForParticipant(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = s.limits.DefaultPageSize
	}
	if limit > s.limits.MaxPageSize {
		limit = s.limits.MaxPageSize
	}

	var after *message.Cursor
	if cursor != "" {
		decoded, err := decodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		after = decoded
	}

	messages, err := s.messages.ListPage(ctx, conversationID, after, limit)
	if err != nil {
		return nil, err
	}

	page := &models.MessagePage{Messages: messages}
	if len(messages) == limit {
		last := messages[len(messages)-1]
		page.NextCursor = encodeCursor(&message.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return page, nil
}

// MarkRead records the reader's receipt for the given messages, or for the
// conversation's entire unread backlog when no ids are given. Only other
// participants' unread messages are stamped, so retries and overlapping
// batches are harmless. The other participant learns about the receipts on
// the live channel.
func (s *Store) MarkRead(ctx context.Context, conversationID, readerID string, messageIDs []string) ([]models.ReadReceipt, error) {
	ctx, span := tracing.StartSpan(ctx, "messaging.Store.MarkRead")
	defer span.End()

	if _, err := s.conversations.GetForParticipant(ctx, conversationID, readerID); err != nil {
		return nil, err
	}

	receipts, err := s.messages.MarkRead(ctx, conversationID, readerID, messageIDs)
	if err != nil {
		return nil, err
	}

	if len(receipts) > 0 {
		s.notifier.Publish(realtime.Event{
			Type:           realtime.EventTypeMessageRead,
			ConversationID: conversationID,
			Receipts:       receipts,
			ReaderID:       readerID,
		})
		s.emitter.EmitMessagesRead(ctx, conversationID, readerID, receipts)
		metrics.MessagesReadTotal.Add(float64(len(receipts)))
	}

	return receipts, nil
}
