package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqui/chat-service/internal/registry/store"
)

func TestPostMessage(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice", "bob")
	conv := seedConversation(t, s, ctx, "alice", "bob")

	msg, err := s.PostMessage(ctx, conv.ID, "alice", "  hello bob  ", "")
	require.NoError(t, err)
	require.NotNil(t, msg.Content)
	assert.Equal(t, "hello bob", *msg.Content, "content is trimmed")
	assert.Nil(t, msg.ImageURL)
	assert.Equal(t, []string{"alice"}, msg.ReadBy, "author has read their own message")
	assert.False(t, msg.Deleted())
}

func TestPostMessageImageOnly(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice")
	conv := seedConversation(t, s, ctx, "alice")

	msg, err := s.PostMessage(ctx, conv.ID, "alice", "", "https://cdn.example.com/pics/cat.png")
	require.NoError(t, err)
	assert.Nil(t, msg.Content)
	require.NotNil(t, msg.ImageURL)
}

func TestPostMessageEmpty(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice")
	conv := seedConversation(t, s, ctx, "alice")

	var verr *store.ValidationError
	_, err := s.PostMessage(ctx, conv.ID, "alice", "   ", "")
	require.ErrorAs(t, err, &verr)
}

func TestPostMessageContentTooLong(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice")
	conv := seedConversation(t, s, ctx, "alice")

	var verr *store.ValidationError
	_, err := s.PostMessage(ctx, conv.ID, "alice", strings.Repeat("a", 1025), "")
	require.ErrorAs(t, err, &verr)

	_, err = s.PostMessage(ctx, conv.ID, "alice", strings.Repeat("a", 1024), "")
	require.NoError(t, err)
}

func TestPostMessageImageURLValidation(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice")
	conv := seedConversation(t, s, ctx, "alice")

	var verr *store.ValidationError
	for _, bad := range []string{
		"ftp.gif", // too short
		"https://example.com/doc.pdf",
		"not a url at all.png",
		"https://" + strings.Repeat("a", 2048) + ".com/x.png", // too long
	} {
		_, err := s.PostMessage(ctx, conv.ID, "alice", "", bad)
		require.ErrorAs(t, err, &verr, "imageUrl %q should be rejected", bad)
	}

	for _, good := range []string{
		"https://example.com/x.png",
		"https://example.com/x.JPG",
		"http://example.com/a/b/c.webp",
	} {
		_, err := s.PostMessage(ctx, conv.ID, "alice", "", good)
		require.NoError(t, err, "imageUrl %q should be accepted", good)
	}
}

func TestPostMessageUnknownConversation(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice")

	var iref *store.InvalidReferenceError
	_, err := s.PostMessage(ctx, "missing", "alice", "hello", "")
	require.ErrorAs(t, err, &iref)
	assert.Equal(t, "conversation", iref.Resource)
}

func TestPostMessageUnknownAuthor(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice")
	conv := seedConversation(t, s, ctx, "alice")

	var iref *store.InvalidReferenceError
	_, err := s.PostMessage(ctx, conv.ID, "ghost", "hello", "")
	require.ErrorAs(t, err, &iref)
	assert.Equal(t, "user", iref.Resource)
}

func TestEditMessage(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice")
	conv := seedConversation(t, s, ctx, "alice")
	msg, err := s.PostMessage(ctx, conv.ID, "alice", "first draft", "")
	require.NoError(t, err)
	require.Nil(t, msg.EditedAt)

	edited, err := s.EditMessage(ctx, conv.ID, msg.ID, "alice", "final draft")
	require.NoError(t, err)
	assert.Equal(t, "final draft", *edited.Content)
	require.NotNil(t, edited.EditedAt)
}

func TestEditMessageOnlyAuthor(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice", "bob")
	conv := seedConversation(t, s, ctx, "alice", "bob")
	msg, err := s.PostMessage(ctx, conv.ID, "alice", "mine", "")
	require.NoError(t, err)

	var ferr *store.ForbiddenError
	_, err = s.EditMessage(ctx, conv.ID, msg.ID, "bob", "stolen")
	require.ErrorAs(t, err, &ferr)
}

func TestEditMessageUnchangedContent(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice")
	conv := seedConversation(t, s, ctx, "alice")
	msg, err := s.PostMessage(ctx, conv.ID, "alice", "same", "")
	require.NoError(t, err)

	var nerr *store.NoOpError
	_, err = s.EditMessage(ctx, conv.ID, msg.ID, "alice", "same")
	require.ErrorAs(t, err, &nerr)
}

func TestEditMessageRequiresMembership(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice", "bob")
	conv := seedConversation(t, s, ctx, "alice", "bob")
	msg, err := s.PostMessage(ctx, conv.ID, "bob", "posted before leaving", "")
	require.NoError(t, err)

	require.NoError(t, s.Leave(ctx, conv.ID, "bob"))

	var ferr *store.ForbiddenError
	_, err = s.EditMessage(ctx, conv.ID, msg.ID, "bob", "edited after leaving")
	require.ErrorAs(t, err, &ferr)
}

func TestEditDeletedMessage(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice")
	conv := seedConversation(t, s, ctx, "alice")
	msg, err := s.PostMessage(ctx, conv.ID, "alice", "short lived", "")
	require.NoError(t, err)
	_, err = s.DeleteMessage(ctx, conv.ID, msg.ID, "alice")
	require.NoError(t, err)

	var ierr *store.InvalidOperationError
	_, err = s.EditMessage(ctx, conv.ID, msg.ID, "alice", "resurrected")
	require.ErrorAs(t, err, &ierr)
}

func TestDeleteMessage(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice")
	conv := seedConversation(t, s, ctx, "alice")
	msg, err := s.PostMessage(ctx, conv.ID, "alice", "to be removed", "")
	require.NoError(t, err)

	deleted, err := s.DeleteMessage(ctx, conv.ID, msg.ID, "alice")
	require.NoError(t, err)
	assert.True(t, deleted.Deleted())
	require.NotNil(t, deleted.DeletedAt)
	assert.NotNil(t, deleted.Content, "content is retained after soft delete")
}

func TestDeleteMessageTwice(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice")
	conv := seedConversation(t, s, ctx, "alice")
	msg, err := s.PostMessage(ctx, conv.ID, "alice", "once only", "")
	require.NoError(t, err)

	_, err = s.DeleteMessage(ctx, conv.ID, msg.ID, "alice")
	require.NoError(t, err)

	var aerr *store.AlreadyDeletedError
	_, err = s.DeleteMessage(ctx, conv.ID, msg.ID, "alice")
	require.ErrorAs(t, err, &aerr)
}

func TestDeleteMessageOnlyAuthor(t *testing.T) {
	s, ctx := newTestService(t)
	seedUsers(t, s, ctx, "alice", "bob")
	conv := seedConversation(t, s, ctx, "alice", "bob")
	msg, err := s.PostMessage(ctx, conv.ID, "alice", "mine", "")
	require.NoError(t, err)

	var ferr *store.ForbiddenError
	_, err = s.DeleteMessage(ctx, conv.ID, msg.ID, "bob")
	require.ErrorAs(t, err, &ferr)
}
