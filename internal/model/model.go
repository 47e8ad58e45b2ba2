package model

import (
	"slices"
	"time"
)

// Limits enforced by the chat engine. These mirror the product rules and are
// shared by the engine and the route layer.
const (
	// MaxConversationUsers bounds the member set of a conversation.
	MaxConversationUsers = 12

	MinConversationNameLength = 2
	MaxConversationNameLength = 100

	MinMessageContentLength = 1
	MaxMessageContentLength = 1024

	MinImageURLLength = 10
	MaxImageURLLength = 2048

	MinUsernameLength = 2
	MaxUsernameLength = 32
	MaxBioLength      = 255

	// MaxMessagesPerPage bounds the page size of message listings.
	MaxMessagesPerPage     = 100
	DefaultMessagesPerPage = 10
)

// User is a member of the chat directory. Authentication is handled outside
// this service; a User row carries only profile and relationship state.
type User struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Bio      string  `json:"bio"`
	Avatar   *string `json:"avatar,omitempty"`

	// BlockedUserIDs is the set of users this user has blocked. The relation
	// is directed: it hides this user from conversations the blocked user
	// creates or joins them into.
	BlockedUserIDs []string `json:"blockedUserIds"`

	// PinnedConversationIDs is an ordered list of conversation bookmarks.
	PinnedConversationIDs []string `json:"pinnedConversationIds"`

	JoinedAt time.Time `json:"joinedAt"`
}

// HasBlocked reports whether the user has blocked targetID.
func (u *User) HasBlocked(targetID string) bool {
	return slices.Contains(u.BlockedUserIDs, targetID)
}

// PublicProfile is the externally visible subset of a User.
type PublicProfile struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Bio      string    `json:"bio"`
	Avatar   *string   `json:"avatar,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Public projects the user to its externally visible fields.
func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:       u.ID,
		Username: u.Username,
		Bio:      u.Bio,
		Avatar:   u.Avatar,
		JoinedAt: u.JoinedAt,
	}
}

// Conversation is a multi-user chat room.
//
// Invariants maintained by the engine: 1 <= len(UserIDs) <= MaxConversationUsers,
// AdminIDs is a subset of UserIDs, and AdminIDs is non-empty whenever UserIDs
// is non-empty. UserIDs is kept in join order; the earliest remaining member is
// promoted when the last admin leaves.
type Conversation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserIDs   []string  `json:"users"`
	AdminIDs  []string  `json:"admins"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasMember reports whether userID is in the conversation's member set.
func (c *Conversation) HasMember(userID string) bool {
	return slices.Contains(c.UserIDs, userID)
}

// HasAdmin reports whether userID is in the conversation's admin set.
func (c *Conversation) HasAdmin(userID string) bool {
	return slices.Contains(c.AdminIDs, userID)
}

// MessageState is the lifecycle state of a message. Deleted is terminal.
type MessageState string

const (
	MessageStateActive  MessageState = "active"
	MessageStateDeleted MessageState = "deleted"
)

// Message is a single post in a conversation. At least one of Content and
// ImageURL is set. Soft deletion flips State to deleted and records the time;
// the content is retained for audit.
type Message struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversationId"`
	AuthorID       string  `json:"userId"`
	Content        *string `json:"content,omitempty"`
	ImageURL       *string `json:"imageUrl,omitempty"`

	// ReadBy is the set of member user IDs that have read the message.
	// The author is a reader from creation.
	ReadBy []string `json:"readBy"`

	State     MessageState `json:"state"`
	CreatedAt time.Time    `json:"postTime"`
	EditedAt  *time.Time   `json:"editTime,omitempty"`
	DeletedAt *time.Time   `json:"deletedAt,omitempty"`
}

// Deleted reports whether the message has been soft-deleted.
func (m *Message) Deleted() bool {
	return m.State == MessageStateDeleted
}

// IsReadBy reports whether userID has read the message.
func (m *Message) IsReadBy(userID string) bool {
	return slices.Contains(m.ReadBy, userID)
}

// Preview is the derived per-user summary of one conversation. It is computed
// at read time and never persisted.
type Preview struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserIDs   []string  `json:"users"`
	CreatedAt time.Time `json:"createdAt"`

	// LatestMessage is the most recent non-deleted message, if any.
	LatestMessage *Message `json:"latestMessage"`

	// NewMessages are the messages newer than the requesting user's last read
	// position, most recent first.
	NewMessages []Message `json:"newMessages"`
}
