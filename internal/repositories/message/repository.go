package message

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

var columns = []string{"id", "conversation_id", "sender_user_id", "content", "created_at", "read_at"}

// Cursor marks a position in a conversation's message history. Pages resume
// strictly after (CreatedAt, ID).
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Repository handles message persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new message repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Insert persists a new message
func (r *Repository) Insert(ctx context.Context, conversationID, senderID, content string) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "message.Repository.Insert")
	defer span.End()

	message := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderUserID:   senderID,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("messages")
	sb.Cols(columns...)
	sb.Values(message.ID, message.ConversationID, message.SenderUserID, message.Content, message.CreatedAt, message.ReadAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert message")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert message")
	}

	return message, nil
}

// GetByID retrieves a message by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "message.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("messages")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var message models.Message
	if err := r.db.GetContext(ctx, &message, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "message %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get message")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get message")
	}

	return &message, nil
}

// ListPage returns up to limit messages in ascending (created_at, id) order,
// starting strictly after the cursor when one is given.
func (r *Repository) ListPage(ctx context.Context, conversationID string, after *Cursor, limit int) ([]models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "message.Repository.ListPage")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("messages")
	sb.Where(sb.Equal("conversation_id", conversationID))
	if after != nil {
		sb.Where(
			sb.Or(
				sb.GreaterThan("created_at", after.CreatedAt),
				sb.And(sb.Equal("created_at", after.CreatedAt), sb.GreaterThan("id", after.ID)),
			),
		)
	}
	sb.OrderBy("created_at", "id").Asc()
	sb.Limit(limit)

	query, args := sb.Build()
	messages := []models.Message{}
	if err := r.db.SelectContext(ctx, &messages, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list messages")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list messages")
	}

	return messages, nil
}

// LatestMessage returns the newest message in a conversation, or nil when the
// conversation is empty.
func (r *Repository) LatestMessage(ctx context.Context, conversationID string) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "message.Repository.LatestMessage")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("messages")
	sb.Where(sb.Equal("conversation_id", conversationID))
	sb.OrderBy("created_at DESC", "id DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var message models.Message
	if err := r.db.GetContext(ctx, &message, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get latest message")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get latest message")
	}

	return &message, nil
}

// UnreadCount counts messages in the conversation sent by others that the
// user has not read yet.
func (r *Repository) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "message.Repository.UnreadCount")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("messages")
	sb.Where(
		sb.Equal("conversation_id", conversationID),
		sb.NotEqual("sender_user_id", userID),
		sb.IsNull("read_at"),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count unread messages")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count unread messages")
	}

	return count, nil
}

// MarkRead stamps read_at for the reader and returns a receipt per message
// actually updated. An empty id list covers the conversation's entire unread
// backlog. Messages the reader sent, messages already read, and IDs outside
// the conversation are skipped, so retries are harmless.
func (r *Repository) MarkRead(ctx context.Context, conversationID, readerID string, messageIDs []string) ([]models.ReadReceipt, error) {
	ctx, span := tracing.StartSpan(ctx, "message.Repository.MarkRead")
	defer span.End()

	readAt := time.Now().UTC()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("messages")
	ub.Set(ub.Assign("read_at", readAt))
	ub.Where(
		ub.Equal("conversation_id", conversationID),
		ub.NotEqual("sender_user_id", readerID),
		ub.IsNull("read_at"),
	)
	if len(messageIDs) > 0 {
		ids := make([]any, len(messageIDs))
		for i, id := range messageIDs {
			ids[i] = id
		}
		ub.Where(ub.In("id", ids...))
	}

	query, args := ub.Build()
	query += " RETURNING id, read_at"

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark messages read")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark messages read")
	}
	defer rows.Close()

	receipts := []models.ReadReceipt{}
	for rows.Next() {
		var receipt models.ReadReceipt
		if err := rows.Scan(&receipt.MessageID, &receipt.ReadAt); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to scan read receipt")
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark messages read")
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to read receipts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark messages read")
	}

	return receipts, nil
}
