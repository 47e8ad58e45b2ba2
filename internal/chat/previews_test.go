package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqui/chat-service/internal/model"
	"github.com/loqui/chat-service/internal/plugin/store/memory"
	"github.com/loqui/chat-service/internal/registry/store"
)

func TestMarkConversationReadIdempotent(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice", "bob")
	conv := seedConversation(t, s, ctx, "alice", "bob")
	for i := 0; i < 3; i++ {
		_, err := s.PostMessage(ctx, conv.ID, "alice", "hi", "")
		require.NoError(t, err)
	}

	marked, err := s.MarkConversationRead(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(3), marked)

	marked, err = s.MarkConversationRead(ctx, conv.ID, "bob")
	require.NoError(t, err)
	assert.Zero(t, marked, "second call marks nothing new")
}

func TestMarkConversationReadRequiresMembership(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice", "mallory")
	conv := seedConversation(t, s, ctx, "alice")

	var ferr *store.ForbiddenError
	_, err := s.MarkConversationRead(ctx, conv.ID, "mallory")
	require.ErrorAs(t, err, &ferr)

	var nf *store.NotFoundError
	_, err = s.MarkConversationRead(ctx, "missing", "alice")
	require.ErrorAs(t, err, &nf)
}

func TestListPreviewsEmptyConversation(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice")
	seedConversation(t, s, ctx, "alice")

	previews, err := s.ListPreviews(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.Nil(t, previews[0].LatestMessage)
	assert.Empty(t, previews[0].NewMessages)
}

func TestListPreviewsLatestSkipsDeleted(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice")
	conv := seedConversation(t, s, ctx, "alice")
	_, err := s.PostMessage(ctx, conv.ID, "alice", "older", "")
	require.NoError(t, err)
	newer, err := s.PostMessage(ctx, conv.ID, "alice", "newer", "")
	require.NoError(t, err)
	_, err = s.DeleteMessage(ctx, conv.ID, newer.ID, "alice")
	require.NoError(t, err)

	previews, err := s.ListPreviews(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, previews, 1)
	require.NotNil(t, previews[0].LatestMessage)
	assert.Equal(t, "older", *previews[0].LatestMessage.Content)
}

func TestListPreviewsNewMessages(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice", "bob")
	conv := seedConversation(t, s, ctx, "alice", "bob")

	_, err := s.PostMessage(ctx, conv.ID, "alice", "one", "")
	require.NoError(t, err)
	_, err = s.MarkConversationRead(ctx, conv.ID, "bob")
	require.NoError(t, err)
	_, err = s.PostMessage(ctx, conv.ID, "alice", "two", "")
	require.NoError(t, err)
	_, err = s.PostMessage(ctx, conv.ID, "alice", "three", "")
	require.NoError(t, err)

	previews, err := s.ListPreviews(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, previews, 1)
	require.Len(t, previews[0].NewMessages, 2)
	assert.Equal(t, "three", *previews[0].NewMessages[0].Content, "newest first")
	assert.Equal(t, "two", *previews[0].NewMessages[1].Content)
}

func TestListPreviewsUserWhoReadNothing(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice", "bob")
	conv := seedConversation(t, s, ctx, "alice", "bob")
	_, err := s.PostMessage(ctx, conv.ID, "alice", "one", "")
	require.NoError(t, err)
	_, err = s.PostMessage(ctx, conv.ID, "alice", "two", "")
	require.NoError(t, err)

	previews, err := s.ListPreviews(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.Len(t, previews[0].NewMessages, 2, "everything is new to bob")

	// Alice authored both, so nothing is new to her.
	previews, err = s.ListPreviews(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.Empty(t, previews[0].NewMessages)
}

func TestListPreviewsManyUnreadMessages(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice", "bob")
	conv := seedConversation(t, s, ctx, "alice", "bob")

	const total = model.MaxMessagesPerPage + 20
	for i := 0; i < total; i++ {
		_, err := s.PostMessage(ctx, conv.ID, "alice", fmt.Sprintf("message %d", i), "")
		require.NoError(t, err)
	}

	previews, err := s.ListPreviews(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.Len(t, previews[0].NewMessages, total, "unread messages are not capped to one page")
}

func TestListPreviewsNewMessagesSameTimestamp(t *testing.T) {
	st := memory.NewStore()
	s := NewService(st, nil, 0)
	ctx := context.Background()
	seedUsers(t, s, ctx, "alice", "bob")
	conv := seedConversation(t, s, ctx, "alice", "bob")

	at := time.Now().UTC().Truncate(time.Millisecond)
	for i, text := range []string{"one", "two", "three"} {
		msg := &model.Message{
			ID:             uuid.New().String(),
			ConversationID: conv.ID,
			AuthorID:       "alice",
			Content:        &text,
			ReadBy:         []string{"alice"},
			State:          model.MessageStateActive,
			CreatedAt:      at,
		}
		if i == 0 {
			msg.ReadBy = append(msg.ReadBy, "bob")
		}
		require.NoError(t, st.CreateMessage(ctx, msg))
	}

	previews, err := s.ListPreviews(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, previews, 1)
	require.Len(t, previews[0].NewMessages, 2, "ties on the read position's timestamp are still new")
	assert.Equal(t, "three", *previews[0].NewMessages[0].Content)
	assert.Equal(t, "two", *previews[0].NewMessages[1].Content)
}

func TestListPreviewsOrderedByConversationCreation(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice")
	first := seedConversation(t, s, ctx, "alice")
	second := seedConversation(t, s, ctx, "alice")

	previews, err := s.ListPreviews(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, previews, 2)
	assert.Equal(t, first.ID, previews[0].ID)
	assert.Equal(t, second.ID, previews[1].ID)
}
