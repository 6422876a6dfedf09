// Package realtime fans conversation events out to live subscribers. Delivery
// is best-effort for the live channel only: a subscriber that falls behind is
// closed and must resynchronize with a message list, never replayed to.
package realtime

import (
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
)

// EventType identifies what a realtime event carries
type EventType string

const (
	EventTypeMessageNew  EventType = "message.new"
	EventTypeMessageRead EventType = "message.read"
)

// Event is one realtime update for a conversation. Message is set for
// message.new, Receipts and ReaderID for message.read.
type Event struct {
	Type           EventType            `json:"type"`
	ConversationID string               `json:"conversation_id"`
	Message        *models.Message      `json:"message,omitempty"`
	Receipts       []models.ReadReceipt `json:"receipts,omitempty"`
	ReaderID       string               `json:"reader_id,omitempty"`
}

// OriginatedBy reports whether userID is the participant whose action produced
// the event. Sockets skip these: the sender already holds the message from the
// send response, and a reader's own receipts only matter to the other side.
func (e Event) OriginatedBy(userID string) bool {
	switch e.Type {
	case EventTypeMessageNew:
		return e.Message != nil && e.Message.SenderUserID == userID
	case EventTypeMessageRead:
		return e.ReaderID == userID
	}
	return false
}

// Subscription is one subscriber's feed for a single conversation
type Subscription struct {
	id             uint64
	conversationID string
	ch             chan Event

	closeOnce sync.Once
}

// Events returns the subscriber's event channel. The channel is closed when
// the subscription ends, including when the hub sheds it for not draining.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Notifier is the publishing half of the hub
type Notifier interface {
	Publish(event Event)
}

// Hub is the in-process subscription registry. For multi-instance deployments
// pair it with the redis Bridge so publishes on one instance reach
// subscribers on the others.
type Hub struct {
	mu        sync.Mutex
	nextID    uint64
	subs      map[string]map[uint64]*Subscription
	bufferLen int
	logger    ectologger.Logger
}

// NewHub creates a hub. bufferLen is the per-subscriber channel depth; a
// subscriber that lets its buffer fill is dropped.
func NewHub(bufferLen int, logger ectologger.Logger) *Hub {
	if bufferLen <= 0 {
		bufferLen = 64
	}
	return &Hub{
		subs:      map[string]map[uint64]*Subscription{},
		bufferLen: bufferLen,
		logger:    logger,
	}
}

// Subscribe registers a subscriber for a conversation's events
func (h *Hub) Subscribe(conversationID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		id:             h.nextID,
		conversationID: conversationID,
		ch:             make(chan Event, h.bufferLen),
	}

	if h.subs[conversationID] == nil {
		h.subs[conversationID] = map[uint64]*Subscription{}
	}
	h.subs[conversationID][sub.id] = sub
	metrics.RealtimeSubscriptions.Inc()

	return sub
}

// Unsubscribe removes the subscriber and closes its channel. Once this
// returns the hub will not send on the subscription again.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	h.remove(sub)
	h.mu.Unlock()
}

// remove must be called with h.mu held
func (h *Hub) remove(sub *Subscription) {
	conv := h.subs[sub.conversationID]
	if _, ok := conv[sub.id]; !ok {
		return
	}

	delete(conv, sub.id)
	if len(conv) == 0 {
		delete(h.subs, sub.conversationID)
	}
	metrics.RealtimeSubscriptions.Dec()
	sub.closeOnce.Do(func() { close(sub.ch) })
}

// Publish dispatches an event to every live subscriber of its conversation.
// Dispatch happens under the registry lock so an Unsubscribe that has
// returned can never observe a later event.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[event.ConversationID]
	if len(subs) == 0 {
		return
	}

	metrics.RealtimeEventsTotal.WithLabelValues(string(event.Type)).Inc()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
			// subscriber is not draining; shed it and let the client
			// resynchronize with a list call
			h.logger.WithFields(map[string]any{
				"conversation_id": event.ConversationID,
			}).Warn("Dropping slow realtime subscriber")
			metrics.RealtimeDroppedTotal.Inc()
			h.remove(sub)
		}
	}
}
