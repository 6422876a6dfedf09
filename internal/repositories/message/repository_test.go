package message_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	conversationrepo "github.com/Ramsey-B/clover/internal/repositories/conversation"
	"github.com/Ramsey-B/clover/internal/repositories/message"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "clover"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

func newTestConversation(t *testing.T, db database.DB) *models.Conversation {
	t.Helper()
	repo := conversationrepo.NewRepository(db, getTestLogger())
	conv, err := repo.GetOrCreate(context.Background(), uuid.New().String(), uuid.New().String())
	require.NoError(t, err)
	return conv
}

func TestListPage_KeysetOrderAndResume(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db := getTestDB(t)
	repo := message.NewRepository(db, getTestLogger())
	ctx := context.Background()
	conv := newTestConversation(t, db)

	var inserted []string
	for i := 0; i < 5; i++ {
		msg, err := repo.Insert(ctx, conv.ID, conv.Participant1ID, "message")
		require.NoError(t, err)
		inserted = append(inserted, msg.ID)
	}

	first, err := repo.ListPage(ctx, conv.ID, nil, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, inserted[0], first[0].ID)
	assert.Equal(t, inserted[1], first[1].ID)
	assert.Equal(t, inserted[2], first[2].ID)

	last := first[len(first)-1]
	rest, err := repo.ListPage(ctx, conv.ID, &message.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, inserted[3], rest[0].ID)
	assert.Equal(t, inserted[4], rest[1].ID)
}

func TestLatestMessageAndUnreadCount(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db := getTestDB(t)
	repo := message.NewRepository(db, getTestLogger())
	ctx := context.Background()
	conv := newTestConversation(t, db)

	latest, err := repo.LatestMessage(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	_, err = repo.Insert(ctx, conv.ID, conv.Participant1ID, "first")
	require.NoError(t, err)
	second, err := repo.Insert(ctx, conv.ID, conv.Participant2ID, "second")
	require.NoError(t, err)

	latest, err = repo.LatestMessage(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)

	// participant1 has one unread message (the one participant2 sent)
	unread, err := repo.UnreadCount(ctx, conv.ID, conv.Participant1ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	unread, err = repo.UnreadCount(ctx, conv.ID, conv.Participant2ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestMarkRead_IdempotentAndSenderScoped(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db := getTestDB(t)
	repo := message.NewRepository(db, getTestLogger())
	ctx := context.Background()
	conv := newTestConversation(t, db)

	mine, err := repo.Insert(ctx, conv.ID, conv.Participant1ID, "from me")
	require.NoError(t, err)
	theirs, err := repo.Insert(ctx, conv.ID, conv.Participant2ID, "from them")
	require.NoError(t, err)

	// only the other participant's message gets a receipt
	receipts, err := repo.MarkRead(ctx, conv.ID, conv.Participant1ID, []string{mine.ID, theirs.ID})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, theirs.ID, receipts[0].MessageID)
	assert.False(t, receipts[0].ReadAt.IsZero())

	// the retry finds nothing left to stamp
	receipts, err = repo.MarkRead(ctx, conv.ID, conv.Participant1ID, []string{mine.ID, theirs.ID})
	require.NoError(t, err)
	assert.Empty(t, receipts)

	got, err := repo.GetByID(ctx, theirs.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ReadAt)

	unread, err := repo.UnreadCount(ctx, conv.ID, conv.Participant1ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}

func TestMarkRead_NoIDsMarksAllUnread(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db := getTestDB(t)
	repo := message.NewRepository(db, getTestLogger())
	ctx := context.Background()
	conv := newTestConversation(t, db)

	mine, err := repo.Insert(ctx, conv.ID, conv.Participant1ID, "from me")
	require.NoError(t, err)
	first, err := repo.Insert(ctx, conv.ID, conv.Participant2ID, "one")
	require.NoError(t, err)
	second, err := repo.Insert(ctx, conv.ID, conv.Participant2ID, "two")
	require.NoError(t, err)

	// no ids: the whole unread backlog from the other participant is stamped
	receipts, err := repo.MarkRead(ctx, conv.ID, conv.Participant1ID, nil)
	require.NoError(t, err)
	require.Len(t, receipts, 2)

	stamped := map[string]bool{}
	for _, receipt := range receipts {
		stamped[receipt.MessageID] = true
	}
	assert.True(t, stamped[first.ID])
	assert.True(t, stamped[second.ID])
	assert.False(t, stamped[mine.ID])

	unread, err := repo.UnreadCount(ctx, conv.ID, conv.Participant1ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}

func TestMarkRead_IgnoresOtherConversations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db := getTestDB(t)
	repo := message.NewRepository(db, getTestLogger())
	ctx := context.Background()

	conv := newTestConversation(t, db)
	other := newTestConversation(t, db)

	msg, err := repo.Insert(ctx, other.ID, other.Participant2ID, "elsewhere")
	require.NoError(t, err)

	receipts, err := repo.MarkRead(ctx, conv.ID, conv.Participant1ID, []string{msg.ID})
	require.NoError(t, err)
	assert.Empty(t, receipts)
}

func TestConversationRepo_GetOrCreateRace(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db := getTestDB(t)
	repo := conversationrepo.NewRepository(db, getTestLogger())
	ctx := context.Background()

	userA := uuid.New().String()
	userB := uuid.New().String()

	type result struct {
		conv *models.Conversation
		err  error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			conv, err := repo.GetOrCreate(ctx, userA, userB)
			results <- result{conv, err}
		}()
	}

	first := <-results
	second := <-results
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	assert.Equal(t, first.conv.ID, second.conv.ID)
}

func TestConversationRepo_BumpNeverMovesBackwards(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db := getTestDB(t)
	repo := conversationrepo.NewRepository(db, getTestLogger())
	ctx := context.Background()
	conv := newTestConversation(t, db)

	later := time.Now().UTC()
	earlier := later.Add(-time.Hour)

	require.NoError(t, repo.BumpLastMessageAt(ctx, conv.ID, later))
	require.NoError(t, repo.BumpLastMessageAt(ctx, conv.ID, earlier))

	got, err := repo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageAt)
	assert.WithinDuration(t, later, *got.LastMessageAt, time.Second)
}
