package store

import (
	"context"
	"fmt"
	"time"

	"github.com/loqui/chat-service/internal/model"
)

// MessagePage is a skip/limit page of messages with its pagination envelope.
type MessagePage struct {
	Data       []model.Message `json:"data"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalItems int64           `json:"totalItems"`
	TotalPages int             `json:"totalPages"`
}

// UserUpdate defines the mutable fields of a user profile. Nil fields are
// left unchanged; a non-nil Avatar pointing at nil clears the avatar.
type UserUpdate struct {
	Username *string
	Bio      *string
	Avatar   **string
}

// DataStore is the persistence interface the chat engine runs on. It is a
// thin record-and-query layer: all domain rules (membership invariants,
// blocking, validation) live above it in the engine, so every backend shares
// one set of semantics.
//
// Read-modify-write cycles on conversations and messages go through Replace
// methods that overwrite the full record.
type DataStore interface {
	// Users
	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	// FindUsers returns the users with the given IDs, in no particular
	// order. Missing IDs are simply absent from the result.
	FindUsers(ctx context.Context, userIDs []string) ([]model.User, error)
	SearchUsers(ctx context.Context, usernamePrefix string, limit int) ([]model.User, error)
	ReplaceUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, userID string) error
	// RemovePinFromUsers drops conversationID from every user's pinned list.
	RemovePinFromUsers(ctx context.Context, conversationID string) error

	// Conversations
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	// ListConversationsByMember returns the conversations userID belongs to,
	// ordered by creation time ascending.
	ListConversationsByMember(ctx context.Context, userID string) ([]model.Conversation, error)
	ReplaceConversation(ctx context.Context, conv *model.Conversation) error
	DeleteConversation(ctx context.Context, conversationID string) error

	// Messages
	CreateMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, conversationID, messageID string) (*model.Message, error)
	// ListMessages returns one skip/limit page of the conversation's
	// messages, newest first, including soft-deleted ones.
	ListMessages(ctx context.Context, conversationID string, skip, limit int) ([]model.Message, error)
	CountMessages(ctx context.Context, conversationID string) (int64, error)
	// LatestMessage returns the newest non-deleted message, or nil if the
	// conversation has none.
	LatestMessage(ctx context.Context, conversationID string) (*model.Message, error)
	// ListMessagesAfter returns the messages positioned strictly after
	// (after, afterID) in the store's creation order, newest first. The
	// ID component breaks creation-time ties the same way the store's
	// message sort does. Zero values select every message.
	ListMessagesAfter(ctx context.Context, conversationID string, after time.Time, afterID string) ([]model.Message, error)
	// LatestReadMessage returns the newest message already read by userID,
	// or nil if the user has read nothing in the conversation.
	LatestReadMessage(ctx context.Context, conversationID, userID string) (*model.Message, error)
	ReplaceMessage(ctx context.Context, msg *model.Message) error
	// MarkConversationRead adds userID to the read set of every message in
	// the conversation and returns how many messages were newly marked.
	MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error)
	DeleteConversationMessages(ctx context.Context, conversationID string) error

	// Ping verifies backend connectivity for health checks.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// Loader creates a DataStore from config.
type Loader func(ctx context.Context) (DataStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
