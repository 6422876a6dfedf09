package profile

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Repository resolves user ids to their investor or startup profile
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new profile repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetByUserID looks the user up in the investors table first, then startups.
// A user with neither row resolves to the unknown variant rather than an
// error so callers can still render the conversation.
func (r *Repository) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.GetByUserID")
	defer span.End()

	investor, err := r.getInvestor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if investor != nil {
		return &models.Profile{UserID: userID, Kind: models.ProfileKindInvestor, Investor: investor}, nil
	}

	startup, err := r.getStartup(ctx, userID)
	if err != nil {
		return nil, err
	}
	if startup != nil {
		return &models.Profile{UserID: userID, Kind: models.ProfileKindStartup, Startup: startup}, nil
	}

	return &models.Profile{UserID: userID, Kind: models.ProfileKindUnknown}, nil
}

func (r *Repository) getInvestor(ctx context.Context, userID string) (*models.InvestorProfile, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "user_id", "name", "company", "created_at")
	sb.From("investors")
	sb.Where(sb.Equal("user_id", userID))

	query, args := sb.Build()
	var investor models.InvestorProfile
	if err := r.db.GetContext(ctx, &investor, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get investor profile")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get profile")
	}

	return &investor, nil
}

func (r *Repository) getStartup(ctx context.Context, userID string) (*models.StartupProfile, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "user_id", "name", "industry", "created_at")
	sb.From("startups")
	sb.Where(sb.Equal("user_id", userID))

	query, args := sb.Build()
	var startup models.StartupProfile
	if err := r.db.GetContext(ctx, &startup, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get startup profile")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get profile")
	}

	return &startup, nil
}
