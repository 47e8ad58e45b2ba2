// Package memory provides an in-process DataStore used for development and
// tests. It keeps everything behind one mutex, which is plenty for its
// purpose and gives every mutation the same per-aggregate atomicity the real
// backends provide.
package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/loqui/chat-service/internal/model"
	registrystore "github.com/loqui/chat-service/internal/registry/store"

	"sync"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrystore.DataStore, error) {
			return NewStore(), nil
		},
	})
}

// Store is the in-memory DataStore.
type Store struct {
	mu            sync.Mutex
	users         map[string]*model.User
	conversations map[string]*model.Conversation
	messages      map[string]*model.Message
	// seq breaks creation-time ties so ordering stays insertion-stable.
	seq     map[string]int64
	nextSeq int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:         map[string]*model.User{},
		conversations: map[string]*model.Conversation{},
		messages:      map[string]*model.Message{},
		seq:           map[string]int64{},
	}
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.BlockedUserIDs = slices.Clone(u.BlockedUserIDs)
	c.PinnedConversationIDs = slices.Clone(u.PinnedConversationIDs)
	return &c
}

func cloneConversation(c *model.Conversation) *model.Conversation {
	cc := *c
	cc.UserIDs = slices.Clone(c.UserIDs)
	cc.AdminIDs = slices.Clone(c.AdminIDs)
	return &cc
}

func cloneMessage(m *model.Message) *model.Message {
	cm := *m
	cm.ReadBy = slices.Clone(m.ReadBy)
	return &cm
}

func (s *Store) CreateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return &registrystore.ConflictError{Message: "user already exists"}
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *Store) GetUser(_ context.Context, userID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "user", ID: userID}
	}
	return cloneUser(u), nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, &registrystore.NotFoundError{Resource: "user", ID: username}
}

func (s *Store) FindUsers(_ context.Context, userIDs []string) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := make([]model.User, 0, len(userIDs))
	for _, id := range userIDs {
		if u, ok := s.users[id]; ok {
			found = append(found, *cloneUser(u))
		}
	}
	return found, nil
}

func (s *Store) SearchUsers(_ context.Context, usernamePrefix string, limit int) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := strings.ToLower(usernamePrefix)
	var found []model.User
	for _, u := range s.users {
		if strings.HasPrefix(strings.ToLower(u.Username), prefix) {
			found = append(found, *cloneUser(u))
		}
	}
	slices.SortFunc(found, func(a, b model.User) int {
		return strings.Compare(a.Username, b.Username)
	})
	if len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

func (s *Store) ReplaceUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return &registrystore.NotFoundError{Resource: "user", ID: user.ID}
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *Store) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return &registrystore.NotFoundError{Resource: "user", ID: userID}
	}
	delete(s.users, userID)
	return nil
}

func (s *Store) RemovePinFromUsers(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		u.PinnedConversationIDs = slices.DeleteFunc(u.PinnedConversationIDs, func(id string) bool {
			return id == conversationID
		})
	}
	return nil
}

func (s *Store) CreateConversation(_ context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conv.ID]; ok {
		return &registrystore.ConflictError{Message: "conversation already exists"}
	}
	s.conversations[conv.ID] = cloneConversation(conv)
	s.nextSeq++
	s.seq[conv.ID] = s.nextSeq
	return nil
}

func (s *Store) GetConversation(_ context.Context, conversationID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	return cloneConversation(c), nil
}

func (s *Store) ListConversationsByMember(_ context.Context, userID string) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []model.Conversation
	for _, c := range s.conversations {
		if c.HasMember(userID) {
			found = append(found, *cloneConversation(c))
		}
	}
	slices.SortFunc(found, func(a, b model.Conversation) int {
		if cmp := a.CreatedAt.Compare(b.CreatedAt); cmp != 0 {
			return cmp
		}
		return int(s.seq[a.ID] - s.seq[b.ID])
	})
	return found, nil
}

func (s *Store) ReplaceConversation(_ context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conv.ID]; !ok {
		return &registrystore.NotFoundError{Resource: "conversation", ID: conv.ID}
	}
	s.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

func (s *Store) DeleteConversation(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	delete(s.conversations, conversationID)
	return nil
}

func (s *Store) CreateMessage(_ context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.ID]; ok {
		return &registrystore.ConflictError{Message: "message already exists"}
	}
	s.messages[msg.ID] = cloneMessage(msg)
	s.nextSeq++
	s.seq[msg.ID] = s.nextSeq
	return nil
}

func (s *Store) GetMessage(_ context.Context, conversationID, messageID string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok || m.ConversationID != conversationID {
		return nil, &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	return cloneMessage(m), nil
}

// conversationMessages returns the conversation's messages newest first.
// Callers must hold the lock.
func (s *Store) conversationMessages(conversationID string) []*model.Message {
	var found []*model.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			found = append(found, m)
		}
	}
	slices.SortFunc(found, func(a, b *model.Message) int {
		if cmp := b.CreatedAt.Compare(a.CreatedAt); cmp != 0 {
			return cmp
		}
		return int(s.seq[b.ID] - s.seq[a.ID])
	})
	return found
}

func (s *Store) ListMessages(_ context.Context, conversationID string, skip, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.conversationMessages(conversationID)
	if skip >= len(all) {
		return []model.Message{}, nil
	}
	all = all[skip:]
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]model.Message, 0, len(all))
	for _, m := range all {
		out = append(out, *cloneMessage(m))
	}
	return out, nil
}

func (s *Store) CountMessages(_ context.Context, conversationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			n++
		}
	}
	return n, nil
}

func (s *Store) LatestMessage(_ context.Context, conversationID string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.conversationMessages(conversationID) {
		if !m.Deleted() {
			return cloneMessage(m), nil
		}
	}
	return nil, nil
}

func (s *Store) ListMessagesAfter(_ context.Context, conversationID string, after time.Time, afterID string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mark := s.seq[afterID]
	var out []model.Message
	for _, m := range s.conversationMessages(conversationID) {
		if m.CreatedAt.After(after) || (m.CreatedAt.Equal(after) && s.seq[m.ID] > mark) {
			out = append(out, *cloneMessage(m))
		}
	}
	if out == nil {
		out = []model.Message{}
	}
	return out, nil
}

func (s *Store) LatestReadMessage(_ context.Context, conversationID, userID string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.conversationMessages(conversationID) {
		if m.IsReadBy(userID) {
			return cloneMessage(m), nil
		}
	}
	return nil, nil
}

func (s *Store) ReplaceMessage(_ context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.ID]; !ok {
		return &registrystore.NotFoundError{Resource: "message", ID: msg.ID}
	}
	s.messages[msg.ID] = cloneMessage(msg)
	return nil
}

func (s *Store) MarkConversationRead(_ context.Context, conversationID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var marked int64
	for _, m := range s.messages {
		if m.ConversationID != conversationID || m.IsReadBy(userID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, userID)
		marked++
	}
	return marked, nil
}

func (s *Store) DeleteConversationMessages(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.messages {
		if m.ConversationID == conversationID {
			delete(s.messages, id)
			delete(s.seq, id)
		}
	}
	return nil
}

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close(_ context.Context) error { return nil }
