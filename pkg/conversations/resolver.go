// Package conversations resolves accepted pairs to their single durable
// conversation.
package conversations

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Repository is the persistence surface the resolver needs
type Repository interface {
	GetOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error)
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	GetByPair(ctx context.Context, userA, userB string) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	BumpLastMessageAt(ctx context.Context, id string, at time.Time) error
}

// ConnectionChecker exposes the pair's connection history. The latest
// request's status is the single source of truth for whether the pair is
// connected.
type ConnectionChecker interface {
	LatestForPair(ctx context.Context, userA, userB string) (*models.ConnectionRequest, error)
}

// Resolver maps pairs of users to conversations. A pair gets exactly one
// conversation for its lifetime; removal of the connection never deletes it.
type Resolver struct {
	conversations Repository
	connections   ConnectionChecker
	logger        ectologger.Logger
}

// NewResolver creates a conversation resolver
func NewResolver(conversations Repository, connections ConnectionChecker, logger ectologger.Logger) *Resolver {
	return &Resolver{
		conversations: conversations,
		connections:   connections,
		logger:        logger,
	}
}

// ResolveOrCreate returns the pair's conversation, creating it on first call.
// Callers are expected to have verified the connection is accepted; this is
// invoked from the acceptance path and from send-time re-resolution.
func (r *Resolver) ResolveOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "conversations.Resolver.ResolveOrCreate")
	defer span.End()

	return r.conversations.GetOrCreate(ctx, userA, userB)
}

// GetForParticipant returns the conversation only if the user is one of its
// two participants.
func (r *Resolver) GetForParticipant(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "conversations.Resolver.GetForParticipant")
	defer span.End()

	conversation, err := r.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(userID) {
		// existence of other users' conversations is not disclosed
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "conversation %s not found", conversationID)
	}

	return conversation, nil
}

// RequireSendable returns the conversation if the user participates in it and
// the underlying connection is still accepted. Messaging re-checks this on
// every send so a removed connection stops new messages immediately.
func (r *Resolver) RequireSendable(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "conversations.Resolver.RequireSendable")
	defer span.End()

	conversation, err := r.GetForParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	latest, err := r.connections.LatestForPair(ctx, conversation.Participant1ID, conversation.Participant2ID)
	if err != nil {
		return nil, err
	}
	if latest == nil || latest.Status != models.ConnectionStatusAccepted {
		return nil, httperror.NewHTTPError(http.StatusForbidden, "you are no longer connected with this user")
	}

	return conversation, nil
}

// BumpLastMessageAt advances the conversation's activity marker
func (r *Resolver) BumpLastMessageAt(ctx context.Context, conversationID string, at time.Time) error {
	return r.conversations.BumpLastMessageAt(ctx, conversationID, at)
}
