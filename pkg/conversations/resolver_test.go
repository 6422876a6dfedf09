package conversations

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeConversationRepo struct {
	byID    map[string]*models.Conversation
	byPair  *models.Conversation
	created int
	bumped  []time.Time
}

func (f *fakeConversationRepo) GetOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	if f.byPair != nil {
		return f.byPair, nil
	}
	f.created++
	p1, p2 := userA, userB
	if p2 < p1 {
		p1, p2 = p2, p1
	}
	f.byPair = &models.Conversation{
		ID:             uuid.New().String(),
		Participant1ID: p1,
		Participant2ID: p2,
		CreatedAt:      time.Now().UTC(),
	}
	return f.byPair, nil
}

func (f *fakeConversationRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	conv, ok := f.byID[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "not found")
	}
	return conv, nil
}

func (f *fakeConversationRepo) GetByPair(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	return f.byPair, nil
}

func (f *fakeConversationRepo) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	return nil, nil
}

func (f *fakeConversationRepo) BumpLastMessageAt(ctx context.Context, id string, at time.Time) error {
	f.bumped = append(f.bumped, at)
	return nil
}

type fakeConnections struct {
	latest *models.ConnectionRequest
}

func (f *fakeConnections) LatestForPair(ctx context.Context, userA, userB string) (*models.ConnectionRequest, error) {
	return f.latest, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestResolveOrCreate_Idempotent(t *testing.T) {
	repo := &fakeConversationRepo{}
	resolver := NewResolver(repo, &fakeConnections{}, testLogger())

	userA := uuid.New().String()
	userB := uuid.New().String()

	first, err := resolver.ResolveOrCreate(context.Background(), userA, userB)
	require.NoError(t, err)

	// either argument order resolves to the same conversation
	second, err := resolver.ResolveOrCreate(context.Background(), userB, userA)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.created)
}

func TestGetForParticipant_HidesOtherUsersConversations(t *testing.T) {
	conv := &models.Conversation{
		ID:             uuid.New().String(),
		Participant1ID: uuid.New().String(),
		Participant2ID: uuid.New().String(),
	}
	repo := &fakeConversationRepo{byID: map[string]*models.Conversation{conv.ID: conv}}
	resolver := NewResolver(repo, &fakeConnections{}, testLogger())

	_, err := resolver.GetForParticipant(context.Background(), conv.ID, uuid.New().String())

	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestRequireSendable_RejectsWhenNotConnected(t *testing.T) {
	conv := &models.Conversation{
		ID:             uuid.New().String(),
		Participant1ID: uuid.New().String(),
		Participant2ID: uuid.New().String(),
	}
	repo := &fakeConversationRepo{byID: map[string]*models.Conversation{conv.ID: conv}}

	// the connection was removed after the conversation was created
	connections := &fakeConnections{latest: &models.ConnectionRequest{
		RequesterUserID: conv.Participant1ID,
		RecipientUserID: conv.Participant2ID,
		Status:          models.ConnectionStatusRemoved,
	}}
	resolver := NewResolver(repo, connections, testLogger())

	_, err := resolver.RequireSendable(context.Background(), conv.ID, conv.Participant1ID)

	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, httperror.GetStatusCode(err))
}

func TestRequireSendable_AllowsAcceptedPair(t *testing.T) {
	conv := &models.Conversation{
		ID:             uuid.New().String(),
		Participant1ID: uuid.New().String(),
		Participant2ID: uuid.New().String(),
	}
	repo := &fakeConversationRepo{byID: map[string]*models.Conversation{conv.ID: conv}}
	connections := &fakeConnections{latest: &models.ConnectionRequest{
		RequesterUserID: conv.Participant1ID,
		RecipientUserID: conv.Participant2ID,
		Status:          models.ConnectionStatusAccepted,
	}}
	resolver := NewResolver(repo, connections, testLogger())

	got, err := resolver.RequireSendable(context.Background(), conv.ID, conv.Participant2ID)

	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
}
