// Package events handles event emission for connection and messaging lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventType defines the type of event
type EventType string

const (
	EventTypeConnectionRequested EventType = "connection.requested"
	EventTypeConnectionAccepted  EventType = "connection.accepted"
	EventTypeConnectionDeclined  EventType = "connection.declined"
	EventTypeConnectionWithdrawn EventType = "connection.withdrawn"
	EventTypeConnectionRemoved   EventType = "connection.removed"

	EventTypeMessageSent EventType = "message.sent"
	EventTypeMessageRead EventType = "message.read"
)

// Emitter publishes lifecycle events for downstream consumers. A nil
// Emitter is valid and drops everything, so wiring stays optional.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

func (e *Emitter) enabled() bool {
	return e != nil && e.producer != nil
}

// EmitConnectionEvent emits a connection lifecycle event for the request
func (e *Emitter) EmitConnectionEvent(ctx context.Context, eventType EventType, req *models.ConnectionRequest) error {
	if !e.enabled() {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitConnectionEvent")
	defer span.End()

	event := &kafka.ConnectionEvent{
		EventType:       string(eventType),
		RequestID:       req.ID,
		RequesterUserID: req.RequesterUserID,
		RecipientUserID: req.RecipientUserID,
		Status:          string(req.Status),
		DecidedAt:       req.DecidedAt,
	}

	if err := e.producer.PublishConnectionEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}

	return nil
}

// EmitMessageSent emits a message.sent event
func (e *Emitter) EmitMessageSent(ctx context.Context, msg *models.Message) error {
	if !e.enabled() {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMessageSent")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"message_id":     msg.ID,
		"created_at":     msg.CreatedAt,
	})

	event := &kafka.MessageEvent{
		EventType:      string(EventTypeMessageSent),
		ConversationID: msg.ConversationID,
		ActorUserID:    msg.SenderUserID,
		MessageIDs:     []string{msg.ID},
		Data:           data,
	}

	if err := e.producer.PublishMessageEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit message.sent event")
		return err
	}

	return nil
}

// EmitMessagesRead emits a message.read event covering one mark-read batch
func (e *Emitter) EmitMessagesRead(ctx context.Context, conversationID, readerID string, receipts []models.ReadReceipt) error {
	if !e.enabled() || len(receipts) == 0 {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMessagesRead")
	defer span.End()

	ids := make([]string, len(receipts))
	for i, r := range receipts {
		ids[i] = r.MessageID
	}

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"receipts":       receipts,
	})

	event := &kafka.MessageEvent{
		EventType:      string(EventTypeMessageRead),
		ConversationID: conversationID,
		ActorUserID:    readerID,
		MessageIDs:     ids,
		Data:           data,
	}

	if err := e.producer.PublishMessageEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit message.read event")
		return err
	}

	return nil
}
