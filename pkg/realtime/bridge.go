package realtime

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const channelPrefix = "clover:conversation:"

// envelope wraps an event on the wire with the publishing instance's id so
// the bridge can ignore its own publishes coming back.
type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// Bridge relays realtime events across instances through redis pub/sub.
// Local subscribers still get events directly from the hub; the bridge only
// carries them to hubs on other instances.
type Bridge struct {
	hub        *Hub
	client     *redis.Client
	instanceID string
	logger     ectologger.Logger
}

// NewBridge creates a bridge between the hub and redis
func NewBridge(hub *Hub, client *redis.Client, logger ectologger.Logger) *Bridge {
	return &Bridge{
		hub:        hub,
		client:     client,
		instanceID: uuid.New().String(),
		logger:     logger,
	}
}

// Publish fans the event out locally and relays it to other instances
func (b *Bridge) Publish(event Event) {
	b.hub.Publish(event)

	payload, err := json.Marshal(envelope{Origin: b.instanceID, Event: event})
	if err != nil {
		b.logger.WithError(err).Error("Failed to encode realtime event")
		return
	}

	ctx := context.Background()
	if err := b.client.Publish(ctx, channelPrefix+event.ConversationID, payload); err != nil {
		// local delivery already happened; remote subscribers heal via list
		b.logger.WithError(err).Warn("Failed to relay realtime event")
	}
}

// Run consumes relayed events until ctx is cancelled
func (b *Bridge) Run(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "realtime.Bridge.Run")
	defer span.End()

	return b.client.PSubscribe(ctx, channelPrefix+"*", func(msg redis.PubSubMessage) {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			b.logger.WithError(err).Warn("Discarding malformed relayed event")
			return
		}
		if env.Origin == b.instanceID {
			return
		}
		if env.Event.ConversationID == "" {
			env.Event.ConversationID = strings.TrimPrefix(msg.Channel, channelPrefix)
		}
		b.hub.Publish(env.Event)
	})
}
