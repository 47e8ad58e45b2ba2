package chat

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/loqui/chat-service/internal/model"
	"github.com/loqui/chat-service/internal/registry/store"
)

// RegisterUser creates a directory entry for an authenticated principal.
// Usernames are unique; registering a taken name fails with a conflict.
func (s *Service) RegisterUser(ctx context.Context, userID, username, bio string, avatar *string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if len(username) < model.MinUsernameLength || len(username) > model.MaxUsernameLength {
		return nil, &store.ValidationError{Field: "username", Message: "must be between 2 and 32 characters"}
	}
	if len(bio) > model.MaxBioLength {
		return nil, &store.ValidationError{Field: "bio", Message: "must be at most 255 characters"}
	}
	if userID == "" {
		userID = uuid.New().String()
	}

	if existing, err := s.store.GetUserByUsername(ctx, username); err == nil && existing != nil {
		return nil, &store.ConflictError{Message: "username is taken"}
	} else if err != nil {
		var nf *store.NotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
	}

	user := &model.User{
		ID:                    userID,
		Username:              username,
		Bio:                   bio,
		Avatar:                avatar,
		BlockedUserIDs:        []string{},
		PinnedConversationIDs: []string{},
		JoinedAt:              time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser returns the full user record, blocked list and pins included. Meant
// for the user themselves; use GetProfile for other users.
func (s *Service) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return s.getUser(ctx, userID)
}

// GetProfile returns a user's public profile.
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.PublicProfile, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := u.Public()
	return &p, nil
}

// UpdateProfile applies the non-nil fields of update to the user's profile.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update store.UserUpdate) (*model.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if update.Username != nil {
		username := strings.TrimSpace(*update.Username)
		if len(username) < model.MinUsernameLength || len(username) > model.MaxUsernameLength {
			return nil, &store.ValidationError{Field: "username", Message: "must be between 2 and 32 characters"}
		}
		if username != user.Username {
			if existing, err := s.store.GetUserByUsername(ctx, username); err == nil && existing != nil {
				return nil, &store.ConflictError{Message: "username is taken"}
			} else if err != nil {
				var nf *store.NotFoundError
				if !errors.As(err, &nf) {
					return nil, err
				}
			}
		}
		user.Username = username
	}
	if update.Bio != nil {
		if len(*update.Bio) > model.MaxBioLength {
			return nil, &store.ValidationError{Field: "bio", Message: "must be at most 255 characters"}
		}
		user.Bio = *update.Bio
	}
	if update.Avatar != nil {
		user.Avatar = *update.Avatar
	}
	if err := s.store.ReplaceUser(ctx, user); err != nil {
		return nil, err
	}
	s.invalidateUser(ctx, userID)
	return user, nil
}

// DeleteUser removes the user from the directory after leaving every
// conversation they belong to, so membership invariants keep holding.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return err
	}
	conversations, err := s.store.ListConversationsByMember(ctx, userID)
	if err != nil {
		return err
	}
	for _, conv := range conversations {
		if err := s.Leave(ctx, conv.ID, userID); err != nil {
			log.Error("delete user: leave failed", "userId", userID, "conversationId", conv.ID, "err", err)
		}
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	return nil
}

// SearchUsers returns public profiles whose username starts with the given
// prefix.
func (s *Service) SearchUsers(ctx context.Context, prefix string, limit int) ([]model.PublicProfile, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, &store.ValidationError{Field: "q", Message: "search term is required"}
	}
	if limit < 1 || limit > model.MaxMessagesPerPage {
		limit = model.DefaultMessagesPerPage
	}
	users, err := s.store.SearchUsers(ctx, prefix, limit)
	if err != nil {
		return nil, err
	}
	profiles := make([]model.PublicProfile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, u.Public())
	}
	return profiles, nil
}

// BlockUser adds targetID to the acting user's block list. Blocking yourself
// or re-blocking an already blocked user is rejected.
func (s *Service) BlockUser(ctx context.Context, actingUserID, targetID string) (*model.User, error) {
	if actingUserID == targetID {
		return nil, &store.InvalidOperationError{Message: "cannot block yourself"}
	}
	if _, err := s.store.GetUser(ctx, targetID); err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, actingUserID)
	if err != nil {
		return nil, err
	}
	if user.HasBlocked(targetID) {
		return nil, &store.InvalidOperationError{Message: "user is already blocked"}
	}
	user.BlockedUserIDs = append(user.BlockedUserIDs, targetID)
	if err := s.store.ReplaceUser(ctx, user); err != nil {
		return nil, err
	}
	s.invalidateUser(ctx, actingUserID)
	return user, nil
}

// UnblockUser removes targetID from the acting user's block list.
func (s *Service) UnblockUser(ctx context.Context, actingUserID, targetID string) (*model.User, error) {
	user, err := s.store.GetUser(ctx, actingUserID)
	if err != nil {
		return nil, err
	}
	if !user.HasBlocked(targetID) {
		return nil, &store.InvalidOperationError{Message: "user is not blocked"}
	}
	user.BlockedUserIDs = slices.DeleteFunc(user.BlockedUserIDs, func(id string) bool { return id == targetID })
	if err := s.store.ReplaceUser(ctx, user); err != nil {
		return nil, err
	}
	s.invalidateUser(ctx, actingUserID)
	return user, nil
}

// PinConversation bookmarks a conversation the user belongs to.
func (s *Service) PinConversation(ctx context.Context, userID, conversationID string) (*model.User, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(userID) {
		return nil, &store.ForbiddenError{Message: "not a member of this conversation"}
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if slices.Contains(user.PinnedConversationIDs, conversationID) {
		return nil, &store.NoOpError{Message: "conversation is already pinned"}
	}
	user.PinnedConversationIDs = append(user.PinnedConversationIDs, conversationID)
	if err := s.store.ReplaceUser(ctx, user); err != nil {
		return nil, err
	}
	s.invalidateUser(ctx, userID)
	return user, nil
}

// UnpinConversation removes a bookmark.
func (s *Service) UnpinConversation(ctx context.Context, userID, conversationID string) (*model.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(user.PinnedConversationIDs, conversationID) {
		return nil, &store.NoOpError{Message: "conversation is not pinned"}
	}
	user.PinnedConversationIDs = slices.DeleteFunc(user.PinnedConversationIDs, func(id string) bool { return id == conversationID })
	if err := s.store.ReplaceUser(ctx, user); err != nil {
		return nil, err
	}
	s.invalidateUser(ctx, userID)
	return user, nil
}
