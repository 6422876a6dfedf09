package handlers

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/connections"
	"github.com/Ramsey-B/clover/pkg/models"
)

var validate = validator.New()

// ConnectionHandler exposes the connection request lifecycle over HTTP
type ConnectionHandler struct {
	registry *connections.Registry
	logger   ectologger.Logger
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(registry *connections.Registry, logger ectologger.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		registry: registry,
		logger:   logger,
	}
}

// RegisterRoutes registers connection routes
func (h *ConnectionHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/connections/requests", h.CreateRequest)
	g.PUT("/connections/requests/:id/status", h.UpdateStatus)
	g.DELETE("/connections/requests/:id", h.Withdraw)
	g.DELETE("/connections/:id", h.Remove)
	g.GET("/connections", h.List)
}

// CreateRequest sends a connection request to another user
func (h *ConnectionHandler) CreateRequest(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	var req models.CreateConnectionRequestRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	request, err := h.registry.CreateRequest(ctx, userID, &req)
	if err != nil {
		return err
	}

	return CreatedResponse(c, request)
}

// UpdateStatus accepts or declines a pending request
func (h *ConnectionHandler) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	requestID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req models.UpdateConnectionStatusRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	request, err := h.registry.Decide(ctx, userID, requestID, req.Status)
	if err != nil {
		return err
	}

	return SuccessResponse(c, request)
}

// Withdraw retracts the caller's own pending request
func (h *ConnectionHandler) Withdraw(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	requestID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if _, err := h.registry.Withdraw(ctx, userID, requestID); err != nil {
		return err
	}

	return NoContentResponse(c)
}

// Remove severs an accepted connection
func (h *ConnectionHandler) Remove(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	requestID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if _, err := h.registry.Remove(ctx, userID, requestID); err != nil {
		return err
	}

	return NoContentResponse(c)
}

// List returns the caller's connections grouped by direction and status
func (h *ConnectionHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	list, err := h.registry.List(ctx, userID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, list)
}
