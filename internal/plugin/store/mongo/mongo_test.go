package mongo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/loqui/chat-service/internal/config"
	"github.com/loqui/chat-service/internal/model"
	registrymigrate "github.com/loqui/chat-service/internal/registry/migrate"
	registrystore "github.com/loqui/chat-service/internal/registry/store"
	"github.com/loqui/chat-service/internal/testutil/testmongo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/loqui/chat-service/internal/plugin/store/mongo"
)

func setupTestStore(t *testing.T) (registrystore.DataStore, context.Context) {
	t.Helper()

	dbURL := testmongo.StartMongo(t)

	cfg := config.DefaultConfig()
	cfg.DBURL = dbURL
	cfg.DatastoreType = "mongo"
	ctx := config.WithContext(context.Background(), &cfg)

	err := registrymigrate.RunAll(ctx)
	require.NoError(t, err)

	loader, err := registrystore.Select("mongo")
	require.NoError(t, err)

	store, err := loader(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	return store, ctx
}

func newUser(username string) *model.User {
	return &model.User{
		ID:       uuid.New().String(),
		Username: username,
		JoinedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestUserRoundTrip(t *testing.T) {
	store, ctx := setupTestStore(t)

	u := newUser("alice")
	blocked := newUser("troll")
	require.NoError(t, store.CreateUser(ctx, blocked))
	u.BlockedUserIDs = []string{blocked.ID}
	require.NoError(t, store.CreateUser(ctx, u))

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, []string{blocked.ID}, got.BlockedUserIDs)

	_, err = store.GetUser(ctx, uuid.New().String())
	var notFound *registrystore.NotFoundError
	require.True(t, errors.As(err, &notFound), "expected not found, got %v", err)
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	store, ctx := setupTestStore(t)

	require.NoError(t, store.CreateUser(ctx, newUser("bob")))
	err := store.CreateUser(ctx, newUser("bob"))

	var conflict *registrystore.ConflictError
	require.True(t, errors.As(err, &conflict), "expected conflict, got %v", err)
}

func TestFindUsers_PartialMatch(t *testing.T) {
	store, ctx := setupTestStore(t)

	a := newUser("a")
	b := newUser("b")
	require.NoError(t, store.CreateUser(ctx, a))
	require.NoError(t, store.CreateUser(ctx, b))

	found, err := store.FindUsers(ctx, []string{a.ID, b.ID, uuid.New().String()})
	require.NoError(t, err)
	require.Len(t, found, 2)
}

func TestMessageOrderingAndReadMarks(t *testing.T) {
	store, ctx := setupTestStore(t)

	convID := uuid.New().String()
	require.NoError(t, store.CreateConversation(ctx, &model.Conversation{
		ID: convID, Name: "ordering", UserIDs: []string{"u1", "u2"}, AdminIDs: []string{"u1"},
		CreatedAt: time.Now().UTC(),
	}))

	base := time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond)
	var last *model.Message
	for i := 0; i < 4; i++ {
		content := "m"
		msg := &model.Message{
			ID:             uuid.New().String(),
			ConversationID: convID,
			AuthorID:       "u1",
			Content:        &content,
			ReadBy:         []string{"u1"},
			State:          model.MessageStateActive,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.CreateMessage(ctx, msg))
		last = msg
	}

	page, err := store.ListMessages(ctx, convID, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 4)
	assert.Equal(t, last.ID, page[0].ID, "newest first")

	marked, err := store.MarkConversationRead(ctx, convID, "u2")
	require.NoError(t, err)
	assert.EqualValues(t, 4, marked)

	again, err := store.MarkConversationRead(ctx, convID, "u2")
	require.NoError(t, err)
	assert.EqualValues(t, 0, again)

	lastRead, err := store.LatestReadMessage(ctx, convID, "u2")
	require.NoError(t, err)
	require.NotNil(t, lastRead)
	assert.Equal(t, last.ID, lastRead.ID)
}

func TestDeleteConversationCascade(t *testing.T) {
	store, ctx := setupTestStore(t)

	convID := uuid.New().String()
	require.NoError(t, store.CreateConversation(ctx, &model.Conversation{
		ID: convID, Name: "doomed", UserIDs: []string{"u1"}, AdminIDs: []string{"u1"},
		CreatedAt: time.Now().UTC(),
	}))
	content := "bye"
	require.NoError(t, store.CreateMessage(ctx, &model.Message{
		ID: uuid.New().String(), ConversationID: convID, AuthorID: "u1",
		Content: &content, ReadBy: []string{"u1"}, State: model.MessageStateActive,
		CreatedAt: time.Now().UTC(),
	}))
	pinner := newUser("pinner")
	pinner.PinnedConversationIDs = []string{convID}
	require.NoError(t, store.CreateUser(ctx, pinner))

	require.NoError(t, store.DeleteConversation(ctx, convID))
	require.NoError(t, store.DeleteConversationMessages(ctx, convID))
	require.NoError(t, store.RemovePinFromUsers(ctx, convID))

	_, err := store.GetConversation(ctx, convID)
	var notFound *registrystore.NotFoundError
	require.True(t, errors.As(err, &notFound))

	count, err := store.CountMessages(ctx, convID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	got, err := store.GetUser(ctx, pinner.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PinnedConversationIDs)
}
