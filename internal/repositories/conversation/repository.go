package conversation

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

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var columns = []string{"id", "participant1_user_id", "participant2_user_id", "created_at", "last_message_at"}

// Repository handles conversation persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new conversation repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// canonical orders a pair so the same two users always map to the same
// (participant1, participant2) columns regardless of who triggered creation.
func canonical(userA, userB string) (string, string) {
	if userA < userB {
		return userA, userB
	}
	return userB, userA
}

// GetOrCreate returns the conversation for the pair, creating it if it does
// not exist yet. ON CONFLICT DO NOTHING plus a re-read makes concurrent
// callers converge on a single row.
func (r *Repository) GetOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.GetOrCreate")
	defer span.End()

	p1, p2 := canonical(userA, userB)

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	conversation := &models.Conversation{
		ID:             uuid.New().String(),
		Participant1ID: p1,
		Participant2ID: p2,
		CreatedAt:      time.Now().UTC(),
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("conversations")
	sb.Cols(columns...)
	sb.Values(conversation.ID, conversation.Participant1ID, conversation.Participant2ID, conversation.CreatedAt, conversation.LastMessageAt)

	query, args := sb.Build()
	query += " ON CONFLICT (participant1_user_id, participant2_user_id) DO NOTHING"

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create conversation")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create conversation")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to read rows affected")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create conversation")
	}
	if rows == 0 {
		// lost the race, the other caller's row wins
		sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
		sb.Select(columns...)
		sb.From("conversations")
		sb.Where(
			sb.Equal("participant1_user_id", p1),
			sb.Equal("participant2_user_id", p2),
		)
		query, args := sb.Build()

		var existing models.Conversation
		if err := tx.GetContext(ctx, &existing, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve conversation for pair")
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve conversation for pair")
		}
		if err := tx.Commit(ctx); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to commit transaction")
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve conversation for pair")
		}
		return &existing, nil
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to commit transaction")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create conversation")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": conversation.ID}).Info("Created conversation")
	return conversation, nil
}

// GetByID retrieves a conversation by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("conversations")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var conversation models.Conversation
	if err := r.db.GetContext(ctx, &conversation, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "conversation %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get conversation")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get conversation")
	}

	return &conversation, nil
}

// GetByPair returns the conversation for the two users, or nil when none
// exists. Accepts the pair in either order.
func (r *Repository) GetByPair(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.GetByPair")
	defer span.End()

	p1, p2 := canonical(userA, userB)

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("conversations")
	sb.Where(
		sb.Equal("participant1_user_id", p1),
		sb.Equal("participant2_user_id", p2),
	)

	query, args := sb.Build()
	var conversation models.Conversation
	if err := r.db.GetContext(ctx, &conversation, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get conversation by pair")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get conversation by pair")
	}

	return &conversation, nil
}

// ListForUser returns the user's conversations ordered by most recent
// activity, conversations with no messages last.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.ListForUser")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("conversations")
	sb.Where(
		sb.Or(
			sb.Equal("participant1_user_id", userID),
			sb.Equal("participant2_user_id", userID),
		),
	)
	sb.OrderBy("last_message_at DESC NULLS LAST", "created_at DESC")

	query, args := sb.Build()
	conversations := []models.Conversation{}
	if err := r.db.SelectContext(ctx, &conversations, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list conversations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list conversations")
	}

	return conversations, nil
}

// BumpLastMessageAt advances last_message_at, never moving it backwards
func (r *Repository) BumpLastMessageAt(ctx context.Context, id string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.BumpLastMessageAt")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("conversations")
	ub.Set(ub.Assign("last_message_at", at))
	ub.Where(
		ub.Equal("id", id),
		ub.Or(
			ub.IsNull("last_message_at"),
			ub.LessThan("last_message_at", at),
		),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to bump last_message_at")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update conversation activity")
	}

	return nil
}
