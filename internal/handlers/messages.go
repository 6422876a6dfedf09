package handlers

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/messaging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/previews"
)

// MessageHandler exposes conversation messaging over HTTP
type MessageHandler struct {
	store      *messaging.Store
	aggregator *previews.Aggregator
	logger     ectologger.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(store *messaging.Store, aggregator *previews.Aggregator, logger ectologger.Logger) *MessageHandler {
	return &MessageHandler{
		store:      store,
		aggregator: aggregator,
		logger:     logger,
	}
}

// RegisterRoutes registers messaging routes
func (h *MessageHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/conversations", h.ListConversations)
	g.POST("/conversations/:id/messages", h.Send)
	g.GET("/conversations/:id/messages", h.ListMessages)
	g.POST("/conversations/:id/read", h.MarkRead)
}

// ListConversations returns the caller's conversation previews
func (h *MessageHandler) ListConversations(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	list, err := h.aggregator.ListForUser(ctx, userID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, list)
}

// Send appends a message to a conversation
func (h *MessageHandler) Send(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	conversationID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req models.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	message, err := h.store.Send(ctx, conversationID, userID, &req)
	if err != nil {
		return err
	}

	return CreatedResponse(c, message)
}

// ListMessages returns a page of a conversation's messages, oldest first
func (h *MessageHandler) ListMessages(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	conversationID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	cursor := c.QueryParam("cursor")

	page, err := h.store.List(ctx, conversationID, userID, cursor, limit)
	if err != nil {
		return err
	}

	return SuccessResponse(c, page)
}

// MarkRead records read receipts for a batch of message ids, or for every
// unread message in the conversation when the body lists none
func (h *MessageHandler) MarkRead(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	conversationID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req models.MarkReadRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	receipts, err := h.store.MarkRead(ctx, conversationID, userID, req.MessageIDs)
	if err != nil {
		return err
	}

	return SuccessResponse(c, map[string]any{"receipts": receipts})
}
