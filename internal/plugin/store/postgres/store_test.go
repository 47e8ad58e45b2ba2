package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/loqui/chat-service/internal/config"
	"github.com/loqui/chat-service/internal/model"
	"github.com/loqui/chat-service/internal/plugin/store/postgres"
	registrymigrate "github.com/loqui/chat-service/internal/registry/migrate"
	registrystore "github.com/loqui/chat-service/internal/registry/store"
	"github.com/loqui/chat-service/internal/testutil/testpg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (registrystore.DataStore, context.Context) {
	t.Helper()

	dbURL := testpg.StartPostgres(t)

	cfg := config.DefaultConfig()
	cfg.DBURL = dbURL
	cfg.DatastoreType = "postgres"
	ctx := config.WithContext(context.Background(), &cfg)

	// Ensure postgres store plugin is registered
	_ = postgres.ForceImport

	err := registrymigrate.RunAll(ctx)
	require.NoError(t, err)

	loader, err := registrystore.Select("postgres")
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
	u.Bio = "hello"
	require.NoError(t, store.CreateUser(ctx, u))

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "hello", got.Bio)

	byName, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	store, ctx := setupTestStore(t)

	require.NoError(t, store.CreateUser(ctx, newUser("bob")))
	err := store.CreateUser(ctx, newUser("bob"))

	var conflict *registrystore.ConflictError
	require.True(t, errors.As(err, &conflict), "expected conflict, got %v", err)
}

func TestGetUser_NotFound(t *testing.T) {
	store, ctx := setupTestStore(t)

	_, err := store.GetUser(ctx, uuid.New().String())
	var notFound *registrystore.NotFoundError
	require.True(t, errors.As(err, &notFound), "expected not found, got %v", err)
}

func TestSearchUsers_PrefixCaseInsensitive(t *testing.T) {
	store, ctx := setupTestStore(t)

	require.NoError(t, store.CreateUser(ctx, newUser("Carla")))
	require.NoError(t, store.CreateUser(ctx, newUser("carlos")))
	require.NoError(t, store.CreateUser(ctx, newUser("dave")))

	found, err := store.SearchUsers(ctx, "car", 10)
	require.NoError(t, err)
	require.Len(t, found, 2)
}

func TestListConversationsByMember_OrderedByCreation(t *testing.T) {
	store, ctx := setupTestStore(t)

	alice := newUser("alice")
	require.NoError(t, store.CreateUser(ctx, alice))

	first := &model.Conversation{
		ID:        uuid.New().String(),
		Name:      "first",
		UserIDs:   []string{alice.ID},
		AdminIDs:  []string{alice.ID},
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	second := &model.Conversation{
		ID:        uuid.New().String(),
		Name:      "second",
		UserIDs:   []string{alice.ID},
		AdminIDs:  []string{alice.ID},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateConversation(ctx, second))
	require.NoError(t, store.CreateConversation(ctx, first))

	convs, err := store.ListConversationsByMember(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "first", convs[0].Name)
	assert.Equal(t, "second", convs[1].Name)
}

func TestMessagePagingAndReadMarks(t *testing.T) {
	store, ctx := setupTestStore(t)

	convID := uuid.New().String()
	conv := &model.Conversation{
		ID:        convID,
		Name:      "paging",
		UserIDs:   []string{"u1", "u2"},
		AdminIDs:  []string{"u1"},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateConversation(ctx, conv))

	base := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 5; i++ {
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
	}

	total, err := store.CountMessages(ctx, convID)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)

	page, err := store.ListMessages(ctx, convID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt), "newest first")

	marked, err := store.MarkConversationRead(ctx, convID, "u2")
	require.NoError(t, err)
	assert.EqualValues(t, 5, marked)

	again, err := store.MarkConversationRead(ctx, convID, "u2")
	require.NoError(t, err)
	assert.EqualValues(t, 0, again)

	lastRead, err := store.LatestReadMessage(ctx, convID, "u2")
	require.NoError(t, err)
	require.NotNil(t, lastRead)

	after, err := store.ListMessagesAfter(ctx, convID, lastRead.CreatedAt, lastRead.ID)
	require.NoError(t, err)
	assert.Empty(t, after)

	all, err := store.ListMessagesAfter(ctx, convID, time.Time{}, "")
	require.NoError(t, err)
	assert.Len(t, all, 5, "zero position selects everything")
}

func TestListMessagesAfter_TimestampTies(t *testing.T) {
	store, ctx := setupTestStore(t)

	convID := uuid.New().String()
	require.NoError(t, store.CreateConversation(ctx, &model.Conversation{
		ID: convID, Name: "ties", UserIDs: []string{"u1"}, AdminIDs: []string{"u1"},
		CreatedAt: time.Now().UTC(),
	}))

	at := time.Now().UTC().Truncate(time.Microsecond)
	ids := []string{"a-" + uuid.New().String(), "b-" + uuid.New().String(), "c-" + uuid.New().String()}
	for _, id := range ids {
		content := "tie " + id
		require.NoError(t, store.CreateMessage(ctx, &model.Message{
			ID:             id,
			ConversationID: convID,
			AuthorID:       "u1",
			Content:        &content,
			ReadBy:         []string{"u1"},
			State:          model.MessageStateActive,
			CreatedAt:      at,
		}))
	}

	after, err := store.ListMessagesAfter(ctx, convID, at, ids[0])
	require.NoError(t, err)
	require.Len(t, after, 2, "same-timestamp messages past the position are returned")
	assert.Equal(t, ids[2], after[0].ID, "newest first by id tie-break")
	assert.Equal(t, ids[1], after[1].ID)
}

func TestLatestMessage_SkipsDeleted(t *testing.T) {
	store, ctx := setupTestStore(t)

	convID := uuid.New().String()
	require.NoError(t, store.CreateConversation(ctx, &model.Conversation{
		ID: convID, Name: "latest", UserIDs: []string{"u1"}, AdminIDs: []string{"u1"},
		CreatedAt: time.Now().UTC(),
	}))

	older := "older"
	newer := "newer"
	first := &model.Message{
		ID: uuid.New().String(), ConversationID: convID, AuthorID: "u1",
		Content: &older, ReadBy: []string{"u1"}, State: model.MessageStateActive,
		CreatedAt: time.Now().UTC().Add(-time.Minute),
	}
	second := &model.Message{
		ID: uuid.New().String(), ConversationID: convID, AuthorID: "u1",
		Content: &newer, ReadBy: []string{"u1"}, State: model.MessageStateActive,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateMessage(ctx, first))
	require.NoError(t, store.CreateMessage(ctx, second))

	now := time.Now().UTC()
	second.State = model.MessageStateDeleted
	second.DeletedAt = &now
	require.NoError(t, store.ReplaceMessage(ctx, second))

	latest, err := store.LatestMessage(ctx, convID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, first.ID, latest.ID)
}

func TestPinCascade(t *testing.T) {
	store, ctx := setupTestStore(t)

	convID := uuid.New().String()
	u := newUser("pinner")
	u.PinnedConversationIDs = []string{convID}
	require.NoError(t, store.CreateUser(ctx, u))

	require.NoError(t, store.RemovePinFromUsers(ctx, convID))

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PinnedConversationIDs)
}
