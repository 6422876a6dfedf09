// Package connections owns the connection request lifecycle between two
// users: request, accept, decline, withdraw, remove.
package connections

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// RequestRepository is the persistence surface the registry needs
type RequestRepository interface {
	Create(ctx context.Context, requesterID, recipientID string, message *string) (*models.ConnectionRequest, error)
	GetByID(ctx context.Context, id string) (*models.ConnectionRequest, error)
	LatestForPair(ctx context.Context, userA, userB string) (*models.ConnectionRequest, error)
	UpdateStatus(ctx context.Context, id string, from, to models.ConnectionStatus, decidedAt time.Time) error
	ListForUser(ctx context.Context, userID string) ([]models.ConnectionRequest, error)
}

// ConversationResolver materializes the conversation for a newly accepted pair
type ConversationResolver interface {
	ResolveOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error)
}

// NotificationWriter records in-app notifications
type NotificationWriter interface {
	Create(ctx context.Context, userID string, notificationType models.NotificationType, title, body string, referenceID *string) (*models.Notification, error)
}

// Policy holds the tunables for the connection lifecycle
type Policy struct {
	// DeclineCooldown is how long after a decline the same requester must
	// wait before re-requesting the same recipient
	DeclineCooldown time.Duration
	// MaxRequestMessage caps the optional intro message length
	MaxRequestMessage int
}

// Registry implements the connection request state machine
type Registry struct {
	requests      RequestRepository
	resolver      ConversationResolver
	notifications NotificationWriter
	emitter       *events.Emitter
	policy        Policy
	logger        ectologger.Logger
	now           func() time.Time
}

// NewRegistry creates a connection registry
func NewRegistry(requests RequestRepository, resolver ConversationResolver, notifications NotificationWriter, emitter *events.Emitter, policy Policy, logger ectologger.Logger) *Registry {
	return &Registry{
		requests:      requests,
		resolver:      resolver,
		notifications: notifications,
		emitter:       emitter,
		policy:        policy,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest sends a pending connection request from requester to
// recipient. The pair's history decides admissibility: an active request in
// either direction conflicts, and a recent decline holds the whole pair to
// the cooldown. Withdrawn and removed history never blocks.
func (r *Registry) CreateRequest(ctx context.Context, requesterID string, req *models.CreateConnectionRequestRequest) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connections.Registry.CreateRequest")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"requester_user_id": requesterID,
		"recipient_user_id": req.RecipientUserID,
	})

	if requesterID == req.RecipientUserID {
		metrics.ConnectionRequestsTotal.WithLabelValues("create", "rejected").Inc()
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "cannot send a connection request to yourself")
	}

	message := normalizeMessage(req.RequestMessage)
	if message != nil && len(*message) > r.policy.MaxRequestMessage {
		metrics.ConnectionRequestsTotal.WithLabelValues("create", "rejected").Inc()
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "request message exceeds %d characters", r.policy.MaxRequestMessage)
	}

	latest, err := r.requests.LatestForPair(ctx, requesterID, req.RecipientUserID)
	if err != nil {
		metrics.ConnectionRequestsTotal.WithLabelValues("create", "error").Inc()
		return nil, err
	}
	if latest != nil {
		if latest.Status.IsActive() {
			metrics.ConnectionRequestsTotal.WithLabelValues("create", "conflict").Inc()
			return nil, httperror.NewHTTPErrorf(http.StatusConflict, "a %s connection already exists with this user", latest.Status)
		}
		if remaining, blocked := r.cooldownRemaining(latest); blocked {
			metrics.ConnectionRequestsTotal.WithLabelValues("create", "cooldown").Inc()
			return nil, httperror.NewHTTPErrorf(http.StatusTooManyRequests, "declined recently, try again in %s", formatRemaining(remaining))
		}
	}

	// The repository's pair index is the real arbiter: two concurrent
	// creates both pass the checks above, one insert wins, the other
	// surfaces the same 409 as a pre-existing active request.
	request, err := r.requests.Create(ctx, requesterID, req.RecipientUserID, message)
	if err != nil {
		if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusConflict {
			metrics.ConnectionRequestsTotal.WithLabelValues("create", "conflict").Inc()
		} else {
			metrics.ConnectionRequestsTotal.WithLabelValues("create", "error").Inc()
		}
		return nil, err
	}

	if _, err := r.notifications.Create(ctx, request.RecipientUserID, models.NotificationTypeConnectionRequest,
		"New connection request", "You have a new connection request", &request.ID); err != nil {
		// the request stands either way
		log.WithError(err).Warn("Failed to write connection request notification")
	}

	r.emitter.EmitConnectionEvent(ctx, events.EventTypeConnectionRequested, request)
	metrics.ConnectionRequestsTotal.WithLabelValues("create", "success").Inc()
	log.WithFields(map[string]any{"id": request.ID}).Info("Connection request created")

	return request, nil
}

// Decide accepts or declines a pending request. Only the recipient may
// decide. Accepting materializes the pair's conversation before the caller
// sees the new status.
func (r *Registry) Decide(ctx context.Context, actorID, requestID string, newStatus models.ConnectionStatus) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connections.Registry.Decide")
	defer span.End()

	if newStatus != models.ConnectionStatusAccepted && newStatus != models.ConnectionStatusDeclined {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "status must be %s or %s", models.ConnectionStatusAccepted, models.ConnectionStatusDeclined)
	}

	request, err := r.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actorID != request.RecipientUserID {
		return nil, httperror.NewHTTPError(http.StatusForbidden, "only the recipient can accept or decline a connection request")
	}
	if request.Status != models.ConnectionStatusPending {
		return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "connection request is %s, not pending", request.Status)
	}

	decidedAt := r.now()
	if err := r.requests.UpdateStatus(ctx, requestID, models.ConnectionStatusPending, newStatus, decidedAt); err != nil {
		metrics.ConnectionRequestsTotal.WithLabelValues("decide", "error").Inc()
		return nil, err
	}

	request.Status = newStatus
	request.DecidedAt = &decidedAt

	if newStatus == models.ConnectionStatusAccepted {
		if _, err := r.resolver.ResolveOrCreate(ctx, request.RequesterUserID, request.RecipientUserID); err != nil {
			// the acceptance is committed; the conversation resolves again
			// idempotently on first send
			r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve conversation for accepted pair")
		}
		if _, err := r.notifications.Create(ctx, request.RequesterUserID, models.NotificationTypeConnectionAccepted,
			"Connection accepted", "Your connection request was accepted", &request.ID); err != nil {
			r.logger.WithContext(ctx).WithError(err).Warn("Failed to write connection accepted notification")
		}
		r.emitter.EmitConnectionEvent(ctx, events.EventTypeConnectionAccepted, request)
	} else {
		r.emitter.EmitConnectionEvent(ctx, events.EventTypeConnectionDeclined, request)
	}

	metrics.ConnectionRequestsTotal.WithLabelValues("decide", "success").Inc()
	return request, nil
}

// Withdraw retracts a pending request. Only the requester may withdraw, and
// withdrawing never starts a cooldown.
func (r *Registry) Withdraw(ctx context.Context, actorID, requestID string) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connections.Registry.Withdraw")
	defer span.End()

	request, err := r.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actorID != request.RequesterUserID {
		return nil, httperror.NewHTTPError(http.StatusForbidden, "only the requester can withdraw a connection request")
	}
	if request.Status != models.ConnectionStatusPending {
		return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "connection request is %s, not pending", request.Status)
	}

	decidedAt := r.now()
	if err := r.requests.UpdateStatus(ctx, requestID, models.ConnectionStatusPending, models.ConnectionStatusWithdrawn, decidedAt); err != nil {
		metrics.ConnectionRequestsTotal.WithLabelValues("withdraw", "error").Inc()
		return nil, err
	}

	request.Status = models.ConnectionStatusWithdrawn
	request.DecidedAt = &decidedAt

	r.emitter.EmitConnectionEvent(ctx, events.EventTypeConnectionWithdrawn, request)
	metrics.ConnectionRequestsTotal.WithLabelValues("withdraw", "success").Inc()

	return request, nil
}

// Remove dissolves an accepted connection. Either participant may remove.
// The pair's conversation survives as history; only gating changes, so new
// messages stop but nothing is deleted. No cooldown follows a removal.
func (r *Registry) Remove(ctx context.Context, actorID, requestID string) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connections.Registry.Remove")
	defer span.End()

	request, err := r.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !request.Involves(actorID) {
		return nil, httperror.NewHTTPError(http.StatusForbidden, "only a participant can remove a connection")
	}
	if request.Status != models.ConnectionStatusAccepted {
		return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "connection is %s, not accepted", request.Status)
	}

	decidedAt := r.now()
	if err := r.requests.UpdateStatus(ctx, requestID, models.ConnectionStatusAccepted, models.ConnectionStatusRemoved, decidedAt); err != nil {
		metrics.ConnectionRequestsTotal.WithLabelValues("remove", "error").Inc()
		return nil, err
	}

	request.Status = models.ConnectionStatusRemoved
	request.DecidedAt = &decidedAt

	r.emitter.EmitConnectionEvent(ctx, events.EventTypeConnectionRemoved, request)
	metrics.ConnectionRequestsTotal.WithLabelValues("remove", "success").Inc()

	return request, nil
}

// List groups the user's requests into incoming pending, outgoing pending,
// and accepted connections.
func (r *Registry) List(ctx context.Context, userID string) (*models.ConnectionList, error) {
	ctx, span := tracing.StartSpan(ctx, "connections.Registry.List")
	defer span.End()

	requests, err := r.requests.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	list := &models.ConnectionList{
		Incoming: []models.ConnectionRequest{},
		Outgoing: []models.ConnectionRequest{},
		Accepted: []models.ConnectionRequest{},
	}
	for _, request := range requests {
		switch request.Status {
		case models.ConnectionStatusPending:
			if request.RecipientUserID == userID {
				list.Incoming = append(list.Incoming, request)
			} else {
				list.Outgoing = append(list.Outgoing, request)
			}
		case models.ConnectionStatusAccepted:
			list.Accepted = append(list.Accepted, request)
		}
	}

	return list, nil
}

// cooldownRemaining reports how long the pair must still wait after its
// latest decline. Only a decline starts a cooldown, and it binds both
// directions: neither party can open a new request inside the window.
func (r *Registry) cooldownRemaining(latest *models.ConnectionRequest) (time.Duration, bool) {
	if latest.Status != models.ConnectionStatusDeclined || latest.DecidedAt == nil {
		return 0, false
	}
	expiresAt := latest.DecidedAt.Add(r.policy.DeclineCooldown)
	remaining := expiresAt.Sub(r.now())
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}

func normalizeMessage(message *string) *string {
	if message == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*message)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func formatRemaining(d time.Duration) string {
	if d >= 24*time.Hour {
		days := int(math.Ceil(d.Hours() / 24))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	if d > time.Hour {
		return fmt.Sprintf("%d hours", int(math.Ceil(d.Hours())))
	}
	return "less than an hour"
}
