package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loqui/chat-service/internal/model"
	"github.com/loqui/chat-service/internal/plugin/store/memory"
)

func newTestService(t *testing.T) (*Service, context.Context) {
	t.Helper()
	return NewService(memory.NewStore(), nil, 0), context.Background()
}

// seedUsers registers one user per name, with the name as both ID and
// username.
func seedUsers(t *testing.T, s *Service, ctx context.Context, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := s.RegisterUser(ctx, name, name, "", nil)
		require.NoError(t, err)
	}
}

func seedConversation(t *testing.T, s *Service, ctx context.Context, creator string, members ...string) *model.Conversation {
	t.Helper()
	conv, err := s.CreateConversation(ctx, creator, "test conversation", append([]string{creator}, members...))
	require.NoError(t, err)
	return conv
}
