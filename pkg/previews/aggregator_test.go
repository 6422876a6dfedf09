package previews

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeConversations struct {
	conversations []models.Conversation
}

func (f *fakeConversations) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	return f.conversations, nil
}

type fakeMessages struct {
	latest map[string]*models.Message
	unread map[string]int
}

func (f *fakeMessages) LatestMessage(ctx context.Context, conversationID string) (*models.Message, error) {
	return f.latest[conversationID], nil
}

func (f *fakeMessages) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	return f.unread[conversationID], nil
}

type fakeProfiles struct {
	profiles map[string]*models.Profile
	err      error
}

func (f *fakeProfiles) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profiles[userID], nil
}

type fakeConnections struct {
	accepted []models.ConnectionRequest
}

func (f *fakeConnections) ListAcceptedForUser(ctx context.Context, userID string) ([]models.ConnectionRequest, error) {
	return f.accepted, nil
}

func connectedTo(userID string, others ...string) *fakeConnections {
	fake := &fakeConnections{}
	for _, other := range others {
		fake.accepted = append(fake.accepted, models.ConnectionRequest{
			ID:              uuid.New().String(),
			RequesterUserID: other,
			RecipientUserID: userID,
			Status:          models.ConnectionStatusAccepted,
		})
	}
	return fake
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestListForUser_BuildsPreviews(t *testing.T) {
	userID := uuid.New().String()
	other := uuid.New().String()
	lastAt := time.Now().UTC()

	conv := models.Conversation{
		ID:             uuid.New().String(),
		Participant1ID: userID,
		Participant2ID: other,
		LastMessageAt:  &lastAt,
	}
	latest := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderUserID:   other,
		Content:        "see you tomorrow",
		CreatedAt:      lastAt,
	}

	aggregator := NewAggregator(
		&fakeConversations{conversations: []models.Conversation{conv}},
		&fakeMessages{
			latest: map[string]*models.Message{conv.ID: latest},
			unread: map[string]int{conv.ID: 3},
		},
		&fakeProfiles{profiles: map[string]*models.Profile{
			other: {UserID: other, Kind: models.ProfileKindInvestor, Investor: &models.InvestorProfile{UserID: other, Name: "Ada"}},
		}},
		connectedTo(userID, other),
		testLogger(),
	)

	previews, err := aggregator.ListForUser(context.Background(), userID)

	require.NoError(t, err)
	require.Len(t, previews, 1)
	preview := previews[0]
	assert.Equal(t, conv.ID, preview.ConversationID)
	assert.Equal(t, other, preview.OtherParticipantID)
	require.NotNil(t, preview.LastMessage)
	assert.Equal(t, "see you tomorrow", *preview.LastMessage)
	assert.Equal(t, 3, preview.UnreadCount)
	require.NotNil(t, preview.OtherParticipant)
	assert.Equal(t, "Ada", preview.OtherParticipant.DisplayName())
}

func TestListForUser_EmptyConversationHasNoLastMessage(t *testing.T) {
	userID := uuid.New().String()
	other := uuid.New().String()
	conv := models.Conversation{
		ID:             uuid.New().String(),
		Participant1ID: userID,
		Participant2ID: other,
	}

	aggregator := NewAggregator(
		&fakeConversations{conversations: []models.Conversation{conv}},
		&fakeMessages{latest: map[string]*models.Message{}, unread: map[string]int{}},
		&fakeProfiles{profiles: map[string]*models.Profile{}},
		connectedTo(userID, other),
		testLogger(),
	)

	previews, err := aggregator.ListForUser(context.Background(), userID)

	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.Nil(t, previews[0].LastMessage)
	assert.Nil(t, previews[0].LastMessageAt)
	assert.Equal(t, 0, previews[0].UnreadCount)
}

func TestListForUser_ProfileFailureDoesNotDropConversation(t *testing.T) {
	userID := uuid.New().String()
	other := uuid.New().String()
	conv := models.Conversation{
		ID:             uuid.New().String(),
		Participant1ID: userID,
		Participant2ID: other,
	}

	aggregator := NewAggregator(
		&fakeConversations{conversations: []models.Conversation{conv}},
		&fakeMessages{latest: map[string]*models.Message{}, unread: map[string]int{}},
		&fakeProfiles{err: errors.New("profile store down")},
		connectedTo(userID, other),
		testLogger(),
	)

	previews, err := aggregator.ListForUser(context.Background(), userID)

	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.Nil(t, previews[0].OtherParticipant)
}

func TestListForUser_HidesConversationsWithoutActiveConnection(t *testing.T) {
	userID := uuid.New().String()
	connected := uuid.New().String()
	removed := uuid.New().String()

	kept := models.Conversation{
		ID:             uuid.New().String(),
		Participant1ID: userID,
		Participant2ID: connected,
	}
	hidden := models.Conversation{
		ID:             uuid.New().String(),
		Participant1ID: removed,
		Participant2ID: userID,
	}

	aggregator := NewAggregator(
		&fakeConversations{conversations: []models.Conversation{kept, hidden}},
		&fakeMessages{latest: map[string]*models.Message{}, unread: map[string]int{}},
		&fakeProfiles{profiles: map[string]*models.Profile{}},
		connectedTo(userID, connected),
		testLogger(),
	)

	previews, err := aggregator.ListForUser(context.Background(), userID)

	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.Equal(t, kept.ID, previews[0].ConversationID)
	assert.Equal(t, connected, previews[0].OtherParticipantID)
}
