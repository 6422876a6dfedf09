package connectionrequest

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const uniqueViolation = pq.ErrorCode("23505")

var columns = []string{"id", "requester_user_id", "recipient_user_id", "status", "request_message", "created_at", "decided_at"}

// Repository handles connection request persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new connection request repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new pending request. The partial unique index over the
// canonical pair key serializes concurrent creates: the loser surfaces a
// 409 without any further coordination.
func (r *Repository) Create(ctx context.Context, requesterID, recipientID string, message *string) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connectionrequest.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":            "Create",
		"requester_user_id": requesterID,
		"recipient_user_id": recipientID,
	})

	request := &models.ConnectionRequest{
		ID:              uuid.New().String(),
		RequesterUserID: requesterID,
		RecipientUserID: recipientID,
		Status:          models.ConnectionStatusPending,
		RequestMessage:  message,
		CreatedAt:       time.Now().UTC(),
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("connection_requests")
	sb.Cols(columns...)
	sb.Values(request.ID, request.RequesterUserID, request.RecipientUserID, request.Status, request.RequestMessage, request.CreatedAt, request.DecidedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, httperror.NewHTTPError(http.StatusConflict, "an active connection request already exists for this pair")
		}
		log.WithError(err).Error("Failed to create connection request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create connection request")
	}

	log.WithFields(map[string]any{"id": request.ID}).Info("Created connection request")
	return request, nil
}

// GetByID retrieves a connection request by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connectionrequest.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("connection_requests")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var request models.ConnectionRequest
	if err := r.db.GetContext(ctx, &request, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "connection request %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get connection request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get connection request")
	}

	return &request, nil
}

// LatestForPair returns the most recent request between the two users in
// either direction, or nil when the pair has no history.
func (r *Repository) LatestForPair(ctx context.Context, userA, userB string) (*models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connectionrequest.Repository.LatestForPair")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("connection_requests")
	sb.Where(
		sb.Or(
			sb.And(sb.Equal("requester_user_id", userA), sb.Equal("recipient_user_id", userB)),
			sb.And(sb.Equal("requester_user_id", userB), sb.Equal("recipient_user_id", userA)),
		),
	)
	sb.OrderBy("created_at").Desc()
	sb.Limit(1)

	query, args := sb.Build()
	var request models.ConnectionRequest
	if err := r.db.GetContext(ctx, &request, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get latest request for pair")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get latest request for pair")
	}

	return &request, nil
}

// UpdateStatus transitions a request from an expected current status. The
// WHERE clause carries the expected status so a concurrent transition loses
// cleanly instead of double-applying.
func (r *Repository) UpdateStatus(ctx context.Context, id string, from, to models.ConnectionStatus, decidedAt time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "connectionrequest.Repository.UpdateStatus")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("connection_requests")
	ub.Set(
		ub.Assign("status", to),
		ub.Assign("decided_at", decidedAt),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", from),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update connection request status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update connection request status")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to read rows affected")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update connection request status")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, "connection request is no longer %s", from)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "from": from, "to": to}).Info("Updated connection request status")
	return nil
}

// ListForUser returns all requests where the user is requester or recipient,
// newest first.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connectionrequest.Repository.ListForUser")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("connection_requests")
	sb.Where(
		sb.Or(
			sb.Equal("requester_user_id", userID),
			sb.Equal("recipient_user_id", userID),
		),
	)
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	requests := []models.ConnectionRequest{}
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list connection requests")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list connection requests")
	}

	return requests, nil
}

// ListAcceptedForUser returns the user's accepted connections
func (r *Repository) ListAcceptedForUser(ctx context.Context, userID string) ([]models.ConnectionRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "connectionrequest.Repository.ListAcceptedForUser")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("connection_requests")
	sb.Where(
		sb.Equal("status", models.ConnectionStatusAccepted),
		sb.Or(
			sb.Equal("requester_user_id", userID),
			sb.Equal("recipient_user_id", userID),
		),
	)
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	requests := []models.ConnectionRequest{}
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list accepted connections")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list accepted connections")
	}

	return requests, nil
}
