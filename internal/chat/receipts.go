package chat

import (
	"context"

	"github.com/loqui/chat-service/internal/registry/store"
)

// MarkConversationRead adds the user to the read set of every message in the
// conversation, including soft-deleted ones, and returns how many messages
// were newly marked. Repeating the call changes nothing.
func (s *Service) MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.HasMember(userID) {
		return 0, &store.ForbiddenError{Message: "not a member of this conversation"}
	}
	return s.store.MarkConversationRead(ctx, conversationID, userID)
}
