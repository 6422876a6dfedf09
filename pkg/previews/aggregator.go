// Package previews assembles the conversation list view: last message,
// unread count, and the other participant's profile.
package previews

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ConversationLister returns a user's conversations in activity order
type ConversationLister interface {
	ListForUser(ctx context.Context, userID string) ([]models.Conversation, error)
}

// MessageReader supplies per-conversation summary data
type MessageReader interface {
	LatestMessage(ctx context.Context, conversationID string) (*models.Message, error)
	UnreadCount(ctx context.Context, conversationID, userID string) (int, error)
}

// ProfileReader resolves a user id to their profile variant
type ProfileReader interface {
	GetByUserID(ctx context.Context, userID string) (*models.Profile, error)
}

// ConnectionLister returns the user's currently accepted connections
type ConnectionLister interface {
	ListAcceptedForUser(ctx context.Context, userID string) ([]models.ConnectionRequest, error)
}

// Aggregator builds conversation previews for a user
type Aggregator struct {
	conversations ConversationLister
	messages      MessageReader
	profiles      ProfileReader
	connections   ConnectionLister
	logger        ectologger.Logger
}

// NewAggregator creates a preview aggregator
func NewAggregator(conversations ConversationLister, messages MessageReader, profiles ProfileReader, connections ConnectionLister, logger ectologger.Logger) *Aggregator {
	return &Aggregator{
		conversations: conversations,
		messages:      messages,
		profiles:      profiles,
		connections:   connections,
		logger:        logger,
	}
}

// ListForUser returns one preview per conversation the user participates in
// with a currently connected partner, ordered by most recent activity.
// Conversations whose connection was removed or never accepted stay hidden
// until the pair reconnects. Unread counts only cover the other participant's
// messages. A missing profile degrades to the unknown variant rather than
// dropping the conversation from the list.
func (a *Aggregator) ListForUser(ctx context.Context, userID string) ([]models.ConversationPreview, error) {
	ctx, span := tracing.StartSpan(ctx, "previews.Aggregator.ListForUser")
	defer span.End()

	conversations, err := a.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	accepted, err := a.connections.ListAcceptedForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	connected := make(map[string]bool, len(accepted))
	for _, request := range accepted {
		if request.RequesterUserID == userID {
			connected[request.RecipientUserID] = true
		} else {
			connected[request.RequesterUserID] = true
		}
	}

	previews := make([]models.ConversationPreview, 0, len(conversations))
	for _, conversation := range conversations {
		otherID := conversation.OtherParticipant(userID)
		if !connected[otherID] {
			continue
		}

		preview := models.ConversationPreview{
			ConversationID:     conversation.ID,
			OtherParticipantID: otherID,
			LastMessageAt:      conversation.LastMessageAt,
		}

		latest, err := a.messages.LatestMessage(ctx, conversation.ID)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			preview.LastMessage = &latest.Content
			if preview.LastMessageAt == nil {
				preview.LastMessageAt = &latest.CreatedAt
			}
		}

		unread, err := a.messages.UnreadCount(ctx, conversation.ID, userID)
		if err != nil {
			return nil, err
		}
		preview.UnreadCount = unread

		profile, err := a.profiles.GetByUserID(ctx, otherID)
		if err != nil {
			a.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"user_id": otherID,
			}).Warn("Failed to resolve participant profile")
		} else {
			preview.OtherParticipant = profile
		}

		previews = append(previews, preview)
	}

	return previews, nil
}
