package metrics

import (
	"context"
	"time"

	"github.com/loqui/chat-service/internal/model"
	"github.com/loqui/chat-service/internal/registry/store"
	"github.com/loqui/chat-service/internal/security"
)

// Wrap returns a DataStore that records StoreLatency for every operation.
func Wrap(inner store.DataStore) store.DataStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.DataStore
}

func observe(op string, start time.Time) {
	security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) CreateUser(ctx context.Context, user *model.User) error {
	defer observe("create_user", time.Now())
	return m.inner.CreateUser(ctx, user)
}

func (m *metricsStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	defer observe("get_user", time.Now())
	return m.inner.GetUser(ctx, userID)
}

func (m *metricsStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	defer observe("get_user_by_username", time.Now())
	return m.inner.GetUserByUsername(ctx, username)
}

func (m *metricsStore) FindUsers(ctx context.Context, userIDs []string) ([]model.User, error) {
	defer observe("find_users", time.Now())
	return m.inner.FindUsers(ctx, userIDs)
}

func (m *metricsStore) SearchUsers(ctx context.Context, usernamePrefix string, limit int) ([]model.User, error) {
	defer observe("search_users", time.Now())
	return m.inner.SearchUsers(ctx, usernamePrefix, limit)
}

func (m *metricsStore) ReplaceUser(ctx context.Context, user *model.User) error {
	defer observe("replace_user", time.Now())
	return m.inner.ReplaceUser(ctx, user)
}

func (m *metricsStore) DeleteUser(ctx context.Context, userID string) error {
	defer observe("delete_user", time.Now())
	return m.inner.DeleteUser(ctx, userID)
}

func (m *metricsStore) RemovePinFromUsers(ctx context.Context, conversationID string) error {
	defer observe("remove_pin_from_users", time.Now())
	return m.inner.RemovePinFromUsers(ctx, conversationID)
}

func (m *metricsStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	defer observe("create_conversation", time.Now())
	return m.inner.CreateConversation(ctx, conv)
}

func (m *metricsStore) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	defer observe("get_conversation", time.Now())
	return m.inner.GetConversation(ctx, conversationID)
}

func (m *metricsStore) ListConversationsByMember(ctx context.Context, userID string) ([]model.Conversation, error) {
	defer observe("list_conversations_by_member", time.Now())
	return m.inner.ListConversationsByMember(ctx, userID)
}

func (m *metricsStore) ReplaceConversation(ctx context.Context, conv *model.Conversation) error {
	defer observe("replace_conversation", time.Now())
	return m.inner.ReplaceConversation(ctx, conv)
}

func (m *metricsStore) DeleteConversation(ctx context.Context, conversationID string) error {
	defer observe("delete_conversation", time.Now())
	return m.inner.DeleteConversation(ctx, conversationID)
}

func (m *metricsStore) CreateMessage(ctx context.Context, msg *model.Message) error {
	defer observe("create_message", time.Now())
	return m.inner.CreateMessage(ctx, msg)
}

func (m *metricsStore) GetMessage(ctx context.Context, conversationID, messageID string) (*model.Message, error) {
	defer observe("get_message", time.Now())
	return m.inner.GetMessage(ctx, conversationID, messageID)
}

func (m *metricsStore) ListMessages(ctx context.Context, conversationID string, skip, limit int) ([]model.Message, error) {
	defer observe("list_messages", time.Now())
	return m.inner.ListMessages(ctx, conversationID, skip, limit)
}

func (m *metricsStore) CountMessages(ctx context.Context, conversationID string) (int64, error) {
	defer observe("count_messages", time.Now())
	return m.inner.CountMessages(ctx, conversationID)
}

func (m *metricsStore) LatestMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	defer observe("latest_message", time.Now())
	return m.inner.LatestMessage(ctx, conversationID)
}

func (m *metricsStore) ListMessagesAfter(ctx context.Context, conversationID string, after time.Time, afterID string) ([]model.Message, error) {
	defer observe("list_messages_after", time.Now())
	return m.inner.ListMessagesAfter(ctx, conversationID, after, afterID)
}

func (m *metricsStore) LatestReadMessage(ctx context.Context, conversationID, userID string) (*model.Message, error) {
	defer observe("latest_read_message", time.Now())
	return m.inner.LatestReadMessage(ctx, conversationID, userID)
}

func (m *metricsStore) ReplaceMessage(ctx context.Context, msg *model.Message) error {
	defer observe("replace_message", time.Now())
	return m.inner.ReplaceMessage(ctx, msg)
}

func (m *metricsStore) MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error) {
	defer observe("mark_conversation_read", time.Now())
	return m.inner.MarkConversationRead(ctx, conversationID, userID)
}

func (m *metricsStore) DeleteConversationMessages(ctx context.Context, conversationID string) error {
	defer observe("delete_conversation_messages", time.Now())
	return m.inner.DeleteConversationMessages(ctx, conversationID)
}

func (m *metricsStore) Ping(ctx context.Context) error {
	return m.inner.Ping(ctx)
}

func (m *metricsStore) Close(ctx context.Context) error {
	return m.inner.Close(ctx)
}
