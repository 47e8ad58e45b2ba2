package chat

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/loqui/chat-service/internal/model"
	"github.com/loqui/chat-service/internal/registry/store"
)

// CreateConversation creates a conversation owned by creatorID. The creator
// must appear in requestedUserIDs and every requested ID must exist.
// Requested users who have blocked the creator are silently dropped; if that
// leaves only the creator, the conversation is still created with a single
// member rather than failing, since the creator's intent is still
// satisfiable.
func (s *Service) CreateConversation(ctx context.Context, creatorID, name string, requestedUserIDs []string) (*model.Conversation, error) {
	name = strings.TrimSpace(name)
	if len(name) < model.MinConversationNameLength || len(name) > model.MaxConversationNameLength {
		return nil, &store.ValidationError{Field: "name", Message: "must be between 2 and 100 characters"}
	}

	requested := dedupe(requestedUserIDs)
	if !slices.Contains(requested, creatorID) {
		return nil, &store.ValidationError{Field: "users", Message: "creator must be included in the user list"}
	}
	// Capacity is checked against the requested set, before blocking
	// filters anyone out.
	if len(requested) > model.MaxConversationUsers {
		return nil, &store.ConflictError{Message: "conversation cannot have more than 12 users"}
	}

	resolved, err := s.store.FindUsers(ctx, requested)
	if err != nil {
		return nil, err
	}
	if missing := missingIDs(requested, resolved); len(missing) > 0 {
		return nil, &store.InvalidUsersError{IDs: missing}
	}

	eligible := filterBlocked(ctx, resolved, creatorID)
	memberIDs := make([]string, 0, len(eligible))
	// Creator first, then the others in requested order.
	memberIDs = append(memberIDs, creatorID)
	for _, id := range requested {
		if id == creatorID {
			continue
		}
		for _, u := range eligible {
			if u.ID == id {
				memberIDs = append(memberIDs, id)
				break
			}
		}
	}

	conv := &model.Conversation{
		ID:        uuid.New().String(),
		Name:      name,
		UserIDs:   memberIDs,
		AdminIDs:  []string{creatorID},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation returns a conversation the acting user belongs to.
// Non-members get NotFound rather than Forbidden so that conversation IDs do
// not leak existence.
func (s *Service) GetConversation(ctx context.Context, conversationID, actingUserID string) (*model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(actingUserID) {
		return nil, &store.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	return conv, nil
}

// ListConversations returns the conversations the user belongs to, ordered by
// creation time.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	return s.store.ListConversationsByMember(ctx, userID)
}

// AddUsers adds candidateIDs to the conversation. Only admins may add.
// Candidates already present are dropped; a lone self-add is rejected.
// Candidates who have blocked the acting user are filtered out, and unlike
// creation an empty filtered set is an error here.
func (s *Service) AddUsers(ctx context.Context, conversationID, actingUserID string, candidateIDs []string) (*model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasAdmin(actingUserID) {
		return nil, &store.ForbiddenError{Message: "only admins can add users"}
	}

	candidates := dedupe(candidateIDs)
	if len(candidates) == 0 {
		return nil, &store.ValidationError{Field: "users", Message: "no users given"}
	}
	if len(candidates) == 1 && candidates[0] == actingUserID {
		return nil, &store.InvalidOperationError{Message: "cannot add yourself to a conversation"}
	}

	pending := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if id == actingUserID || conv.HasMember(id) {
			continue
		}
		pending = append(pending, id)
	}
	if len(pending) == 0 {
		return nil, &store.NoOpError{Message: "all given users are already members"}
	}

	resolved, err := s.store.FindUsers(ctx, pending)
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, &store.NotFoundError{Resource: "user", ID: strings.Join(pending, ",")}
	}

	eligible := filterBlocked(ctx, resolved, actingUserID)
	if len(eligible) == 0 {
		return nil, &store.ForbiddenError{Message: "no eligible users to add"}
	}
	if len(conv.UserIDs)+len(eligible) > model.MaxConversationUsers {
		return nil, &store.ConflictError{Message: "conversation cannot have more than 12 users"}
	}

	for _, u := range eligible {
		conv.UserIDs = append(conv.UserIDs, u.ID)
	}
	if err := s.store.ReplaceConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// RemoveUsers removes targetIDs from the conversation. Only admins may
// remove, and self-removal must go through Leave. Removed users lose their
// admin role and their pin of the conversation.
func (s *Service) RemoveUsers(ctx context.Context, conversationID, actingUserID string, targetIDs []string) (*model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasAdmin(actingUserID) {
		return nil, &store.ForbiddenError{Message: "only admins can remove users"}
	}
	targets := dedupe(targetIDs)
	if slices.Contains(targets, actingUserID) {
		return nil, &store.InvalidOperationError{Message: "use leave to remove yourself"}
	}

	removed := make([]string, 0, len(targets))
	for _, id := range targets {
		if conv.HasMember(id) {
			removed = append(removed, id)
		}
	}
	if len(removed) == 0 {
		return nil, &store.NotFoundError{Resource: "member", ID: strings.Join(targets, ",")}
	}

	conv.UserIDs = slices.DeleteFunc(conv.UserIDs, func(id string) bool { return slices.Contains(removed, id) })
	conv.AdminIDs = slices.DeleteFunc(conv.AdminIDs, func(id string) bool { return slices.Contains(removed, id) })
	if err := s.store.ReplaceConversation(ctx, conv); err != nil {
		return nil, err
	}

	for _, id := range removed {
		s.unpinForUser(ctx, id, conversationID)
	}
	return conv, nil
}

// Leave removes the acting user from the conversation. The last member
// leaving deletes the conversation and its messages; otherwise, if no admin
// remains, the earliest-joined remaining member is promoted.
func (s *Service) Leave(ctx context.Context, conversationID, actingUserID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasMember(actingUserID) {
		return &store.NotFoundError{Resource: "conversation", ID: conversationID}
	}

	conv.UserIDs = slices.DeleteFunc(conv.UserIDs, func(id string) bool { return id == actingUserID })
	conv.AdminIDs = slices.DeleteFunc(conv.AdminIDs, func(id string) bool { return id == actingUserID })

	if len(conv.UserIDs) == 0 {
		if err := s.store.DeleteConversation(ctx, conversationID); err != nil {
			return err
		}
		s.cleanupConversation(ctx, conversationID)
	} else {
		if len(conv.AdminIDs) == 0 {
			// UserIDs is kept in join order, so index 0 is the
			// earliest-joined remaining member.
			conv.AdminIDs = []string{conv.UserIDs[0]}
		}
		if err := s.store.ReplaceConversation(ctx, conv); err != nil {
			return err
		}
	}

	s.unpinForUser(ctx, actingUserID, conversationID)
	return nil
}

// DeleteConversation deletes the conversation, hard-deletes its messages, and
// unpins it from every member. Only admins may delete.
func (s *Service) DeleteConversation(ctx context.Context, conversationID, actingUserID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasAdmin(actingUserID) {
		return &store.ForbiddenError{Message: "only admins can delete a conversation"}
	}
	if err := s.store.DeleteConversation(ctx, conversationID); err != nil {
		return err
	}
	s.cleanupConversation(ctx, conversationID)
	return nil
}

// cleanupConversation runs the post-delete cascade. The conversation record
// is already gone at this point, so failures here leave orphans rather than
// broken state; they are logged and the primary operation still succeeds.
func (s *Service) cleanupConversation(ctx context.Context, conversationID string) {
	if err := s.store.DeleteConversationMessages(ctx, conversationID); err != nil {
		log.Error("cascade: message cleanup failed", "conversationId", conversationID, "err", err)
	}
	if err := s.store.RemovePinFromUsers(ctx, conversationID); err != nil {
		log.Error("cascade: pin cleanup failed", "conversationId", conversationID, "err", err)
	}
}

// unpinForUser drops a single user's pin of the conversation, best effort.
func (s *Service) unpinForUser(ctx context.Context, userID, conversationID string) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		log.Debug("cascade: unpin lookup failed", "userId", userID, "err", err)
		return
	}
	before := len(user.PinnedConversationIDs)
	user.PinnedConversationIDs = slices.DeleteFunc(user.PinnedConversationIDs, func(id string) bool { return id == conversationID })
	if len(user.PinnedConversationIDs) == before {
		return
	}
	if err := s.store.ReplaceUser(ctx, user); err != nil {
		log.Error("cascade: unpin failed", "userId", userID, "conversationId", conversationID, "err", err)
		return
	}
	s.invalidateUser(ctx, userID)
}

// dedupe returns ids with duplicates removed, preserving first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// missingIDs returns the requested IDs absent from the resolved users.
func missingIDs(requested []string, resolved []model.User) []string {
	found := make(map[string]struct{}, len(resolved))
	for _, u := range resolved {
		found[u.ID] = struct{}{}
	}
	var missing []string
	for _, id := range requested {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
