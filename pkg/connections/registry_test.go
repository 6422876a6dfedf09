package connections

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

	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeRequestRepo struct {
	latest     *models.ConnectionRequest
	byID       map[string]*models.ConnectionRequest
	created    *models.ConnectionRequest
	createErr  error
	updated    []string
	updateErr  error
	listResult []models.ConnectionRequest
}

func (f *fakeRequestRepo) Create(ctx context.Context, requesterID, recipientID string, message *string) (*models.ConnectionRequest, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = &models.ConnectionRequest{
		ID:              uuid.New().String(),
		RequesterUserID: requesterID,
		RecipientUserID: recipientID,
		Status:          models.ConnectionStatusPending,
		RequestMessage:  message,
		CreatedAt:       time.Now().UTC(),
	}
	return f.created, nil
}

func (f *fakeRequestRepo) GetByID(ctx context.Context, id string) (*models.ConnectionRequest, error) {
	req, ok := f.byID[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "not found")
	}
	return req, nil
}

func (f *fakeRequestRepo) LatestForPair(ctx context.Context, userA, userB string) (*models.ConnectionRequest, error) {
	return f.latest, nil
}

func (f *fakeRequestRepo) UpdateStatus(ctx context.Context, id string, from, to models.ConnectionStatus, decidedAt time.Time) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = append(f.updated, id+":"+string(to))
	return nil
}

func (f *fakeRequestRepo) ListForUser(ctx context.Context, userID string) ([]models.ConnectionRequest, error) {
	return f.listResult, nil
}

type fakeResolver struct {
	calls int
	err   error
}

func (f *fakeResolver) ResolveOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.Conversation{ID: uuid.New().String(), Participant1ID: userA, Participant2ID: userB}, nil
}

type fakeNotifications struct {
	created []models.Notification
}

func (f *fakeNotifications) Create(ctx context.Context, userID string, notificationType models.NotificationType, title, body string, referenceID *string) (*models.Notification, error) {
	n := models.Notification{UserID: userID, Type: notificationType, Title: title, Body: body, ReferenceID: referenceID}
	f.created = append(f.created, n)
	return &n, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestRegistry(repo *fakeRequestRepo, resolver *fakeResolver, notifs *fakeNotifications) *Registry {
	logger := testLogger()
	return NewRegistry(repo, resolver, notifs, events.NewEmitter(nil, logger), Policy{
		DeclineCooldown:   7 * 24 * time.Hour,
		MaxRequestMessage: 500,
	}, logger)
}

func assertStatusCode(t *testing.T, err error, want int) {
	t.Helper()
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, want, httperror.GetStatusCode(err))
}

func TestCreateRequest_RejectsSelfRequest(t *testing.T) {
	registry := newTestRegistry(&fakeRequestRepo{}, &fakeResolver{}, &fakeNotifications{})

	userID := uuid.New().String()
	_, err := registry.CreateRequest(context.Background(), userID, &models.CreateConnectionRequestRequest{
		RecipientUserID: userID,
	})

	assertStatusCode(t, err, http.StatusBadRequest)
}

func TestCreateRequest_ConflictsWithActivePair(t *testing.T) {
	requester := uuid.New().String()
	recipient := uuid.New().String()

	for _, status := range []models.ConnectionStatus{models.ConnectionStatusPending, models.ConnectionStatusAccepted} {
		repo := &fakeRequestRepo{latest: &models.ConnectionRequest{
			RequesterUserID: requester,
			RecipientUserID: recipient,
			Status:          status,
		}}
		registry := newTestRegistry(repo, &fakeResolver{}, &fakeNotifications{})

		_, err := registry.CreateRequest(context.Background(), requester, &models.CreateConnectionRequestRequest{
			RecipientUserID: recipient,
		})

		assertStatusCode(t, err, http.StatusConflict)
	}
}

func TestCreateRequest_DeclineCooldownBlocksRequester(t *testing.T) {
	requester := uuid.New().String()
	recipient := uuid.New().String()
	decidedAt := time.Now().UTC().Add(-24 * time.Hour)

	repo := &fakeRequestRepo{latest: &models.ConnectionRequest{
		RequesterUserID: requester,
		RecipientUserID: recipient,
		Status:          models.ConnectionStatusDeclined,
		DecidedAt:       &decidedAt,
	}}
	registry := newTestRegistry(repo, &fakeResolver{}, &fakeNotifications{})

	_, err := registry.CreateRequest(context.Background(), requester, &models.CreateConnectionRequestRequest{
		RecipientUserID: recipient,
	})

	assertStatusCode(t, err, http.StatusTooManyRequests)
}

func TestCreateRequest_DeclineCooldownBlocksBothDirections(t *testing.T) {
	requester := uuid.New().String()
	recipient := uuid.New().String()
	decidedAt := time.Now().UTC().Add(-24 * time.Hour)

	repo := &fakeRequestRepo{latest: &models.ConnectionRequest{
		RequesterUserID: requester,
		RecipientUserID: recipient,
		Status:          models.ConnectionStatusDeclined,
		DecidedAt:       &decidedAt,
	}}
	registry := newTestRegistry(repo, &fakeResolver{}, &fakeNotifications{})

	// the decliner initiating does not bypass the window
	_, err := registry.CreateRequest(context.Background(), recipient, &models.CreateConnectionRequestRequest{
		RecipientUserID: requester,
	})

	assertStatusCode(t, err, http.StatusTooManyRequests)
}

func TestCreateRequest_CooldownExpiryBoundary(t *testing.T) {
	requester := uuid.New().String()
	recipient := uuid.New().String()
	decidedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	repo := &fakeRequestRepo{latest: &models.ConnectionRequest{
		RequesterUserID: requester,
		RecipientUserID: recipient,
		Status:          models.ConnectionStatusDeclined,
		DecidedAt:       &decidedAt,
	}}
	registry := newTestRegistry(repo, &fakeResolver{}, &fakeNotifications{})

	// one second before expiry: still blocked
	registry.now = func() time.Time { return decidedAt.Add(7*24*time.Hour - time.Second) }
	_, err := registry.CreateRequest(context.Background(), requester, &models.CreateConnectionRequestRequest{
		RecipientUserID: recipient,
	})
	assertStatusCode(t, err, http.StatusTooManyRequests)

	// at expiry: allowed
	registry.now = func() time.Time { return decidedAt.Add(7 * 24 * time.Hour) }
	created, err := registry.CreateRequest(context.Background(), requester, &models.CreateConnectionRequestRequest{
		RecipientUserID: recipient,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusPending, created.Status)
}

func TestCreateRequest_WithdrawnAndRemovedHistoryDoesNotBlock(t *testing.T) {
	requester := uuid.New().String()
	recipient := uuid.New().String()
	decidedAt := time.Now().UTC().Add(-time.Minute)

	for _, status := range []models.ConnectionStatus{models.ConnectionStatusWithdrawn, models.ConnectionStatusRemoved} {
		repo := &fakeRequestRepo{latest: &models.ConnectionRequest{
			RequesterUserID: requester,
			RecipientUserID: recipient,
			Status:          status,
			DecidedAt:       &decidedAt,
		}}
		registry := newTestRegistry(repo, &fakeResolver{}, &fakeNotifications{})

		_, err := registry.CreateRequest(context.Background(), requester, &models.CreateConnectionRequestRequest{
			RecipientUserID: recipient,
		})
		assert.NoError(t, err, "status %s should not block a new request", status)
	}
}

func TestCreateRequest_MessageTooLong(t *testing.T) {
	registry := newTestRegistry(&fakeRequestRepo{}, &fakeResolver{}, &fakeNotifications{})

	long := make([]byte, 501)
	for i := range long {
		long[i] = 'a'
	}
	message := string(long)
	_, err := registry.CreateRequest(context.Background(), uuid.New().String(), &models.CreateConnectionRequestRequest{
		RecipientUserID: uuid.New().String(),
		RequestMessage:  &message,
	})

	assertStatusCode(t, err, http.StatusBadRequest)
}

func TestCreateRequest_NotifiesRecipient(t *testing.T) {
	repo := &fakeRequestRepo{}
	notifs := &fakeNotifications{}
	registry := newTestRegistry(repo, &fakeResolver{}, notifs)

	recipient := uuid.New().String()
	created, err := registry.CreateRequest(context.Background(), uuid.New().String(), &models.CreateConnectionRequestRequest{
		RecipientUserID: recipient,
	})

	require.NoError(t, err)
	require.Len(t, notifs.created, 1)
	assert.Equal(t, recipient, notifs.created[0].UserID)
	assert.Equal(t, models.NotificationTypeConnectionRequest, notifs.created[0].Type)
	require.NotNil(t, notifs.created[0].ReferenceID)
	assert.Equal(t, created.ID, *notifs.created[0].ReferenceID)
}

func TestDecide_OnlyRecipientMayDecide(t *testing.T) {
	requester := uuid.New().String()
	request := &models.ConnectionRequest{
		ID:              uuid.New().String(),
		RequesterUserID: requester,
		RecipientUserID: uuid.New().String(),
		Status:          models.ConnectionStatusPending,
	}
	repo := &fakeRequestRepo{byID: map[string]*models.ConnectionRequest{request.ID: request}}
	registry := newTestRegistry(repo, &fakeResolver{}, &fakeNotifications{})

	// the requester cannot accept their own request
	_, err := registry.Decide(context.Background(), requester, request.ID, models.ConnectionStatusAccepted)
	assertStatusCode(t, err, http.StatusForbidden)

	// neither can a stranger
	_, err = registry.Decide(context.Background(), uuid.New().String(), request.ID, models.ConnectionStatusAccepted)
	assertStatusCode(t, err, http.StatusForbidden)
}

func TestDecide_RequiresPending(t *testing.T) {
	recipient := uuid.New().String()
	request := &models.ConnectionRequest{
		ID:              uuid.New().String(),
		RequesterUserID: uuid.New().String(),
		RecipientUserID: recipient,
		Status:          models.ConnectionStatusDeclined,
	}
	repo := &fakeRequestRepo{byID: map[string]*models.ConnectionRequest{request.ID: request}}
	registry := newTestRegistry(repo, &fakeResolver{}, &fakeNotifications{})

	_, err := registry.Decide(context.Background(), recipient, request.ID, models.ConnectionStatusAccepted)
	assertStatusCode(t, err, http.StatusUnprocessableEntity)
}

func TestDecide_AcceptMaterializesConversationAndNotifies(t *testing.T) {
	requester := uuid.New().String()
	recipient := uuid.New().String()
	request := &models.ConnectionRequest{
		ID:              uuid.New().String(),
		RequesterUserID: requester,
		RecipientUserID: recipient,
		Status:          models.ConnectionStatusPending,
	}
	repo := &fakeRequestRepo{byID: map[string]*models.ConnectionRequest{request.ID: request}}
	resolver := &fakeResolver{}
	notifs := &fakeNotifications{}
	registry := newTestRegistry(repo, resolver, notifs)

	updated, err := registry.Decide(context.Background(), recipient, request.ID, models.ConnectionStatusAccepted)

	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusAccepted, updated.Status)
	require.NotNil(t, updated.DecidedAt)
	assert.Equal(t, 1, resolver.calls)
	require.Len(t, notifs.created, 1)
	assert.Equal(t, requester, notifs.created[0].UserID)
	assert.Equal(t, models.NotificationTypeConnectionAccepted, notifs.created[0].Type)
}

func TestDecide_DeclineDoesNotMaterializeConversation(t *testing.T) {
	recipient := uuid.New().String()
	request := &models.ConnectionRequest{
		ID:              uuid.New().String(),
		RequesterUserID: uuid.New().String(),
		RecipientUserID: recipient,
		Status:          models.ConnectionStatusPending,
	}
	repo := &fakeRequestRepo{byID: map[string]*models.ConnectionRequest{request.ID: request}}
	resolver := &fakeResolver{}
	registry := newTestRegistry(repo, resolver, &fakeNotifications{})

	updated, err := registry.Decide(context.Background(), recipient, request.ID, models.ConnectionStatusDeclined)

	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusDeclined, updated.Status)
	require.NotNil(t, updated.DecidedAt)
	assert.Equal(t, 0, resolver.calls)
}

func TestWithdraw_OnlyRequesterWhilePending(t *testing.T) {
	requester := uuid.New().String()
	recipient := uuid.New().String()
	request := &models.ConnectionRequest{
		ID:              uuid.New().String(),
		RequesterUserID: requester,
		RecipientUserID: recipient,
		Status:          models.ConnectionStatusPending,
	}
	repo := &fakeRequestRepo{byID: map[string]*models.ConnectionRequest{request.ID: request}}
	registry := newTestRegistry(repo, &fakeResolver{}, &fakeNotifications{})

	_, err := registry.Withdraw(context.Background(), recipient, request.ID)
	assertStatusCode(t, err, http.StatusForbidden)

	updated, err := registry.Withdraw(context.Background(), requester, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusWithdrawn, updated.Status)
}

func TestWithdraw_RequiresPending(t *testing.T) {
	requester := uuid.New().String()
	request := &models.ConnectionRequest{
		ID:              uuid.New().String(),
		RequesterUserID: requester,
		RecipientUserID: uuid.New().String(),
		Status:          models.ConnectionStatusAccepted,
	}
	repo := &fakeRequestRepo{byID: map[string]*models.ConnectionRequest{request.ID: request}}
	registry := newTestRegistry(repo, &fakeResolver{}, &fakeNotifications{})

	_, err := registry.Withdraw(context.Background(), requester, request.ID)
	assertStatusCode(t, err, http.StatusUnprocessableEntity)
}

func TestRemove_ParticipantsOnlyFromAccepted(t *testing.T) {
	requester := uuid.New().String()
	recipient := uuid.New().String()
	request := &models.ConnectionRequest{
		ID:              uuid.New().String(),
		RequesterUserID: requester,
		RecipientUserID: recipient,
		Status:          models.ConnectionStatusAccepted,
	}
	repo := &fakeRequestRepo{byID: map[string]*models.ConnectionRequest{request.ID: request}}
	registry := newTestRegistry(repo, &fakeResolver{}, &fakeNotifications{})

	_, err := registry.Remove(context.Background(), uuid.New().String(), request.ID)
	assertStatusCode(t, err, http.StatusForbidden)

	// either side may remove
	updated, err := registry.Remove(context.Background(), requester, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusRemoved, updated.Status)
}

func TestRemove_RequiresAccepted(t *testing.T) {
	requester := uuid.New().String()
	request := &models.ConnectionRequest{
		ID:              uuid.New().String(),
		RequesterUserID: requester,
		RecipientUserID: uuid.New().String(),
		Status:          models.ConnectionStatusPending,
	}
	repo := &fakeRequestRepo{byID: map[string]*models.ConnectionRequest{request.ID: request}}
	registry := newTestRegistry(repo, &fakeResolver{}, &fakeNotifications{})

	_, err := registry.Remove(context.Background(), requester, request.ID)
	assertStatusCode(t, err, http.StatusUnprocessableEntity)
}

func TestFormatRemaining_RoundsUp(t *testing.T) {
	cases := []struct {
		remaining time.Duration
		want      string
	}{
		{7*24*time.Hour + time.Minute, "8 days"},
		{7 * 24 * time.Hour, "7 days"},
		{24 * time.Hour, "1 day"},
		{23 * time.Hour, "23 hours"},
		{61 * time.Minute, "2 hours"},
		{2 * time.Hour, "2 hours"},
		{59 * time.Minute, "less than an hour"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, formatRemaining(tc.remaining), "remaining %s", tc.remaining)
	}
}

func TestList_PartitionsByDirectionAndStatus(t *testing.T) {
	userID := uuid.New().String()
	other := uuid.New().String()

	repo := &fakeRequestRepo{listResult: []models.ConnectionRequest{
		{ID: "in", RequesterUserID: other, RecipientUserID: userID, Status: models.ConnectionStatusPending},
		{ID: "out", RequesterUserID: userID, RecipientUserID: other, Status: models.ConnectionStatusPending},
		{ID: "acc", RequesterUserID: userID, RecipientUserID: other, Status: models.ConnectionStatusAccepted},
		{ID: "dec", RequesterUserID: userID, RecipientUserID: other, Status: models.ConnectionStatusDeclined},
		{ID: "rem", RequesterUserID: other, RecipientUserID: userID, Status: models.ConnectionStatusRemoved},
	}}
	registry := newTestRegistry(repo, &fakeResolver{}, &fakeNotifications{})

	list, err := registry.List(context.Background(), userID)

	require.NoError(t, err)
	require.Len(t, list.Incoming, 1)
	assert.Equal(t, "in", list.Incoming[0].ID)
	require.Len(t, list.Outgoing, 1)
	assert.Equal(t, "out", list.Outgoing[0].ID)
	require.Len(t, list.Accepted, 1)
	assert.Equal(t, "acc", list.Accepted[0].ID)
}
