package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/loqui/chat-service/internal/model"
)

// ListPreviews builds the per-user summary of every conversation the user
// belongs to, ordered by conversation creation time. A preview carries the
// most recent non-deleted message and the messages newer than the user's
// last read position, newest first.
//
// A conversation whose messages cannot be loaded still yields a preview with
// empty message fields; the listing as a whole does not fail on one bad
// conversation.
func (s *Service) ListPreviews(ctx context.Context, userID string) ([]model.Preview, error) {
	conversations, err := s.store.ListConversationsByMember(ctx, userID)
	if err != nil {
		return nil, err
	}

	previews := make([]model.Preview, 0, len(conversations))
	for _, conv := range conversations {
		p := model.Preview{
			ID:          conv.ID,
			Name:        conv.Name,
			UserIDs:     conv.UserIDs,
			CreatedAt:   conv.CreatedAt,
			NewMessages: []model.Message{},
		}

		latest, err := s.store.LatestMessage(ctx, conv.ID)
		if err != nil {
			log.Error("preview: latest message lookup failed", "conversationId", conv.ID, "err", err)
			previews = append(previews, p)
			continue
		}
		p.LatestMessage = latest

		if latest != nil {
			newMessages, err := s.newMessagesFor(ctx, conv.ID, userID)
			if err != nil {
				log.Error("preview: unread lookup failed", "conversationId", conv.ID, "err", err)
			} else {
				p.NewMessages = newMessages
			}
		}
		previews = append(previews, p)
	}
	return previews, nil
}

// newMessagesFor returns the messages created after the user's last read
// position, newest first. A user who has read nothing sees every message as
// new, with no page cap.
func (s *Service) newMessagesFor(ctx context.Context, conversationID, userID string) ([]model.Message, error) {
	lastRead, err := s.store.LatestReadMessage(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if lastRead == nil {
		return s.store.ListMessagesAfter(ctx, conversationID, time.Time{}, "")
	}
	return s.store.ListMessagesAfter(ctx, conversationID, lastRead.CreatedAt, lastRead.ID)
}
