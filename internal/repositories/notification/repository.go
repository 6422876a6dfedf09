package notification

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var columns = []string{"id", "user_id", "type", "title", "body", "reference_id", "is_read", "created_at"}

// Repository handles in-app notification persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new notification repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a notification for a user
func (r *Repository) Create(ctx context.Context, userID string, notificationType models.NotificationType, title, body string, referenceID *string) (*models.Notification, error) {
	ctx, span := tracing.StartSpan(ctx, "notification.Repository.Create")
	defer span.End()

	notification := &models.Notification{
		ID:          uuid.New().String(),
		UserID:      userID,
		Type:        notificationType,
		Title:       title,
		Body:        body,
		ReferenceID: referenceID,
		CreatedAt:   time.Now().UTC(),
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("notifications")
	sb.Cols(columns...)
	sb.Values(notification.ID, notification.UserID, notification.Type, notification.Title, notification.Body, notification.ReferenceID, notification.IsRead, notification.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create notification")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create notification")
	}

	return notification, nil
}

// ListForUser returns the user's notifications, newest first
func (r *Repository) ListForUser(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	ctx, span := tracing.StartSpan(ctx, "notification.Repository.ListForUser")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("notifications")
	sb.Where(sb.Equal("user_id", userID))
	if unreadOnly {
		sb.Where(sb.Equal("is_read", false))
	}
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	notifications := []models.Notification{}
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list notifications")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list notifications")
	}

	return notifications, nil
}

// MarkRead marks a single notification as read. Owner-scoped so users cannot
// touch each other's notifications; already-read rows are a no-op.
func (r *Repository) MarkRead(ctx context.Context, id, userID string) error {
	ctx, span := tracing.StartSpan(ctx, "notification.Repository.MarkRead")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("notifications")
	ub.Set(ub.Assign("is_read", true))
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("user_id", userID),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark notification read")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark notification read")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to read rows affected")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark notification read")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "notification %s not found", id)
	}

	return nil
}

// MarkAllRead marks every unread notification for the user as read
func (r *Repository) MarkAllRead(ctx context.Context, userID string) error {
	ctx, span := tracing.StartSpan(ctx, "notification.Repository.MarkAllRead")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("notifications")
	ub.Set(ub.Assign("is_read", true))
	ub.Where(
		ub.Equal("user_id", userID),
		ub.Equal("is_read", false),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark notifications read")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark notifications read")
	}

	return nil
}
