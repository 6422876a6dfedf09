package handlers

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/conversations"
	"github.com/Ramsey-B/clover/pkg/realtime"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// origin checks belong to the gateway in front of this service
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RealtimeHandler upgrades conversation subscriptions to WebSocket feeds
type RealtimeHandler struct {
	resolver *conversations.Resolver
	hub      *realtime.Hub
	logger   ectologger.Logger
}

// NewRealtimeHandler creates a new realtime handler
func NewRealtimeHandler(resolver *conversations.Resolver, hub *realtime.Hub, logger ectologger.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		resolver: resolver,
		hub:      hub,
		logger:   logger,
	}
}

// RegisterRoutes registers realtime routes
func (h *RealtimeHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/conversations/:id/ws", h.Subscribe)
}

// Subscribe streams a conversation's events to the caller until the socket
// closes. Participants may subscribe even after the connection is removed;
// they just stop seeing new messages because none can be sent.
func (h *RealtimeHandler) Subscribe(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	conversationID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if _, err := h.resolver.GetForParticipant(ctx, conversationID, userID); err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response
		return nil
	}

	log := h.logger.WithContext(ctx).WithFields(map[string]any{
		"conversation_id": conversationID,
		"user_id":         userID,
	})
	log.Info("Realtime subscription opened")

	sub := h.hub.Subscribe(conversationID)
	defer h.hub.Unsubscribe(sub)
	defer conn.Close()

	// reader exists only to surface client-side closes and pongs
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				// the hub shed us for not draining; tell the client to
				// resynchronize with a fresh list
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscription lagged, resync"))
				log.Warn("Realtime subscription shed")
				return nil
			}
			if event.OriginatedBy(userID) {
				// don't echo the subscriber's own sends and receipts back
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				log.WithError(err).Info("Realtime subscription closed")
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-done:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
