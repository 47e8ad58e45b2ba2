package chat

import (
	"context"

	"github.com/loqui/chat-service/internal/model"
	"github.com/loqui/chat-service/internal/registry/store"
)

// ListMessages returns one page of the conversation's messages, most recent
// first. Soft-deleted messages still occupy their slot so that page windows
// stay stable; callers decide how to render them. Page numbering starts at 1.
func (s *Service) ListMessages(ctx context.Context, conversationID, actingUserID string, page, limit int) (*store.MessagePage, error) {
	if page < 1 {
		return nil, &store.InvalidRangeError{Field: "page", Message: "must be at least 1"}
	}
	if limit < 1 || limit > model.MaxMessagesPerPage {
		return nil, &store.InvalidRangeError{Field: "limit", Message: "must be between 1 and 100"}
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(actingUserID) {
		return nil, &store.ForbiddenError{Message: "not a member of this conversation"}
	}

	total, err := s.store.CountMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, conversationID, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &store.MessagePage{
		Data:       messages,
		Page:       page,
		Limit:      limit,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}
