package chat

import (
	"errors"
	"net/url"
	"path"
	"strings"
	"time"

	"context"

	"github.com/google/uuid"

	"github.com/loqui/chat-service/internal/model"
	"github.com/loqui/chat-service/internal/registry/store"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// PostMessage creates a message in the conversation. At least one of content
// and imageURL must be non-empty after trimming. The author is recorded as
// having read their own message. A conversation or author that does not
// exist is an invalid reference, not a lookup miss.
func (s *Service) PostMessage(ctx context.Context, conversationID, authorID, content, imageURL string) (*model.Message, error) {
	var nf *store.NotFoundError
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		if errors.As(err, &nf) {
			return nil, &store.InvalidReferenceError{Resource: "conversation", ID: conversationID}
		}
		return nil, err
	}
	if _, err := s.getUser(ctx, authorID); err != nil {
		if errors.As(err, &nf) {
			return nil, &store.InvalidReferenceError{Resource: "user", ID: authorID}
		}
		return nil, err
	}

	content = strings.TrimSpace(content)
	imageURL = strings.TrimSpace(imageURL)
	if content == "" && imageURL == "" {
		return nil, &store.ValidationError{Field: "content", Message: "message needs content or an image"}
	}
	if content != "" {
		if err := validateContent(content); err != nil {
			return nil, err
		}
	}
	if imageURL != "" {
		if err := validateImageURL(imageURL); err != nil {
			return nil, err
		}
	}

	msg := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		AuthorID:       authorID,
		ReadBy:         []string{authorID},
		State:          model.MessageStateActive,
		CreatedAt:      time.Now().UTC(),
	}
	if content != "" {
		msg.Content = &content
	}
	if imageURL != "" {
		msg.ImageURL = &imageURL
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// EditMessage replaces a message's text content. Only the author may edit,
// the author must still be a member of the conversation, deleted messages are
// immutable, and an edit that changes nothing is rejected.
func (s *Service) EditMessage(ctx context.Context, conversationID, messageID, actingUserID, newContent string) (*model.Message, error) {
	msg, err := s.store.GetMessage(ctx, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.AuthorID != actingUserID {
		return nil, &store.ForbiddenError{Message: "only the author can edit a message"}
	}
	if msg.Deleted() {
		return nil, &store.InvalidOperationError{Message: "cannot edit a deleted message"}
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(actingUserID) {
		return nil, &store.ForbiddenError{Message: "not a member of this conversation"}
	}

	newContent = strings.TrimSpace(newContent)
	if err := validateContent(newContent); err != nil {
		return nil, err
	}
	if msg.Content != nil && *msg.Content == newContent {
		return nil, &store.NoOpError{Message: "content is unchanged"}
	}

	now := time.Now().UTC()
	msg.Content = &newContent
	msg.EditedAt = &now
	if err := s.store.ReplaceMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// DeleteMessage soft-deletes a message. Only the author may delete, and the
// deleted state is terminal.
func (s *Service) DeleteMessage(ctx context.Context, conversationID, messageID, actingUserID string) (*model.Message, error) {
	msg, err := s.store.GetMessage(ctx, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.AuthorID != actingUserID {
		return nil, &store.ForbiddenError{Message: "only the author can delete a message"}
	}
	if msg.Deleted() {
		return nil, &store.AlreadyDeletedError{ID: messageID}
	}

	now := time.Now().UTC()
	msg.State = model.MessageStateDeleted
	msg.DeletedAt = &now
	if err := s.store.ReplaceMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func validateContent(content string) error {
	if len(content) < model.MinMessageContentLength || len(content) > model.MaxMessageContentLength {
		return &store.ValidationError{Field: "content", Message: "must be between 1 and 1024 characters"}
	}
	return nil
}

func validateImageURL(raw string) error {
	if len(raw) < model.MinImageURLLength || len(raw) > model.MaxImageURLLength {
		return &store.ValidationError{Field: "imageUrl", Message: "must be between 10 and 2048 characters"}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &store.ValidationError{Field: "imageUrl", Message: "must be a valid URL"}
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if !imageExtensions[ext] {
		return &store.ValidationError{Field: "imageUrl", Message: "must point at a png, jpg, jpeg, gif or webp image"}
	}
	return nil
}
