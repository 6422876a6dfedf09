package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// ConnectionEvent represents a connection-request lifecycle event
type ConnectionEvent struct {
	EventType       string     `json:"event_type"` // connection.requested, .accepted, .declined, .withdrawn, .removed
	RequestID       string     `json:"request_id"`
	RequesterUserID string     `json:"requester_user_id"`
	RecipientUserID string     `json:"recipient_user_id"`
	Status          string     `json:"status"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

// MessageEvent represents a messaging event (sent or read)
type MessageEvent struct {
	EventType      string          `json:"event_type"` // message.sent, message.read
	ConversationID string          `json:"conversation_id"`
	ActorUserID    string          `json:"actor_user_id"`
	MessageIDs     []string        `json:"message_ids,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// PublishConnectionEvent publishes a connection lifecycle event to Kafka
func (p *Producer) PublishConnectionEvent(ctx context.Context, event *ConnectionEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishConnectionEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.RequestID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "requester_user_id", Value: []byte(event.RequesterUserID)},
			{Key: "recipient_user_id", Value: []byte(event.RecipientUserID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish connection event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"request_id": event.RequestID,
	}).Debug("Published connection event")

	return nil
}

// PublishMessageEvent publishes a messaging event to Kafka. Keyed by
// conversation id so per-conversation ordering survives partitioning.
func (p *Producer) PublishMessageEvent(ctx context.Context, event *MessageEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishMessageEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.ConversationID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "conversation_id", Value: []byte(event.ConversationID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish message event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":      event.EventType,
		"conversation_id": event.ConversationID,
	}).Debug("Published message event")

	return nil
}
