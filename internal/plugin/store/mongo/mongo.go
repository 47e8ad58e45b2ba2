// Package mongo implements the DataStore interface on MongoDB. It is the
// default backend.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/charmbracelet/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/loqui/chat-service/internal/config"
	"github.com/loqui/chat-service/internal/model"
	registrymigrate "github.com/loqui/chat-service/internal/registry/migrate"
	registrystore "github.com/loqui/chat-service/internal/registry/store"
)

const dbName = "chat_service"

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrystore.DataStore, error) {
			cfg := config.FromContext(ctx)
			opts := options.Client().ApplyURI(cfg.DBURL)
			if cfg.DBMaxOpenConns > 0 {
				opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
			}
			if cfg.DBMaxIdleConns > 0 {
				opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
			}
			client, err := mongo.Connect(opts)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
			}
			if err := client.Ping(ctx, nil); err != nil {
				return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
			}
			return &MongoStore{
				client: client,
				db:     client.Database(dbName),
			}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }
func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg != nil && !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "mongo" {
		return nil // skip if not using mongo
	}

	log.Info("Running migration", "name", m.Name())
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(dbName)

	collections := map[string][]mongo.IndexModel{
		"users": {
			{
				Keys:    bson.D{{Key: "username", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "pinned_conversation_ids", Value: 1}}},
		},
		"conversations": {
			{Keys: bson.D{{Key: "user_ids", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		"messages": {
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "read_by", Value: 1}}},
		},
	}
	for name, indexes := range collections {
		// Ensure collection exists
		db.CreateCollection(ctx, name)
		if len(indexes) > 0 {
			if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
				return fmt.Errorf("mongo migration: indexes for %s: %w", name, err)
			}
		}
	}
	return nil
}

// MongoStore implements the DataStore interface using MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func (s *MongoStore) users() *mongo.Collection         { return s.db.Collection("users") }
func (s *MongoStore) conversations() *mongo.Collection { return s.db.Collection("conversations") }
func (s *MongoStore) messages() *mongo.Collection      { return s.db.Collection("messages") }

type userDoc struct {
	ID                    string    `bson:"_id"`
	Username              string    `bson:"username"`
	Bio                   string    `bson:"bio"`
	Avatar                *string   `bson:"avatar,omitempty"`
	BlockedUserIDs        []string  `bson:"blocked_user_ids"`
	PinnedConversationIDs []string  `bson:"pinned_conversation_ids"`
	JoinedAt              time.Time `bson:"joined_at"`
}

type conversationDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	UserIDs   []string  `bson:"user_ids"`
	AdminIDs  []string  `bson:"admin_ids"`
	CreatedAt time.Time `bson:"created_at"`
}

type messageDoc struct {
	ID             string     `bson:"_id"`
	ConversationID string     `bson:"conversation_id"`
	AuthorID       string     `bson:"author_id"`
	Content        *string    `bson:"content,omitempty"`
	ImageURL       *string    `bson:"image_url,omitempty"`
	ReadBy         []string   `bson:"read_by"`
	State          string     `bson:"state"`
	CreatedAt      time.Time  `bson:"created_at"`
	EditedAt       *time.Time `bson:"edited_at,omitempty"`
	DeletedAt      *time.Time `bson:"deleted_at,omitempty"`
}

func toUserDoc(u *model.User) userDoc {
	return userDoc{
		ID:                    u.ID,
		Username:              u.Username,
		Bio:                   u.Bio,
		Avatar:                u.Avatar,
		BlockedUserIDs:        orEmpty(u.BlockedUserIDs),
		PinnedConversationIDs: orEmpty(u.PinnedConversationIDs),
		JoinedAt:              u.JoinedAt,
	}
}

func (d userDoc) toModel() model.User {
	return model.User{
		ID:                    d.ID,
		Username:              d.Username,
		Bio:                   d.Bio,
		Avatar:                d.Avatar,
		BlockedUserIDs:        orEmpty(d.BlockedUserIDs),
		PinnedConversationIDs: orEmpty(d.PinnedConversationIDs),
		JoinedAt:              d.JoinedAt,
	}
}

func toConversationDoc(c *model.Conversation) conversationDoc {
	return conversationDoc{
		ID:        c.ID,
		Name:      c.Name,
		UserIDs:   orEmpty(c.UserIDs),
		AdminIDs:  orEmpty(c.AdminIDs),
		CreatedAt: c.CreatedAt,
	}
}

func (d conversationDoc) toModel() model.Conversation {
	return model.Conversation{
		ID:        d.ID,
		Name:      d.Name,
		UserIDs:   orEmpty(d.UserIDs),
		AdminIDs:  orEmpty(d.AdminIDs),
		CreatedAt: d.CreatedAt,
	}
}

func toMessageDoc(m *model.Message) messageDoc {
	return messageDoc{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		AuthorID:       m.AuthorID,
		Content:        m.Content,
		ImageURL:       m.ImageURL,
		ReadBy:         orEmpty(m.ReadBy),
		State:          string(m.State),
		CreatedAt:      m.CreatedAt,
		EditedAt:       m.EditedAt,
		DeletedAt:      m.DeletedAt,
	}
}

func (d messageDoc) toModel() model.Message {
	return model.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		AuthorID:       d.AuthorID,
		Content:        d.Content,
		ImageURL:       d.ImageURL,
		ReadBy:         orEmpty(d.ReadBy),
		State:          model.MessageState(d.State),
		CreatedAt:      d.CreatedAt,
		EditedAt:       d.EditedAt,
		DeletedAt:      d.DeletedAt,
	}
}

func orEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// --- Users ---

func (s *MongoStore) CreateUser(ctx context.Context, user *model.User) error {
	_, err := s.users().InsertOne(ctx, toUserDoc(user))
	if mongo.IsDuplicateKeyError(err) {
		return &registrystore.ConflictError{Message: "user already exists"}
	}
	return err
}

func (s *MongoStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var doc userDoc
	err := s.users().FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &registrystore.NotFoundError{Resource: "user", ID: userID}
	}
	if err != nil {
		return nil, err
	}
	u := doc.toModel()
	return &u, nil
}

func (s *MongoStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var doc userDoc
	err := s.users().FindOne(ctx, bson.M{"username": username}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &registrystore.NotFoundError{Resource: "user", ID: username}
	}
	if err != nil {
		return nil, err
	}
	u := doc.toModel()
	return &u, nil
}

func (s *MongoStore) FindUsers(ctx context.Context, userIDs []string) ([]model.User, error) {
	cursor, err := s.users().Find(ctx, bson.M{"_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	return decodeUsers(ctx, cursor)
}

func (s *MongoStore) SearchUsers(ctx context.Context, usernamePrefix string, limit int) ([]model.User, error) {
	filter := bson.M{"username": bson.M{
		"$regex":   "^" + regexp.QuoteMeta(usernamePrefix),
		"$options": "i",
	}}
	opts := options.Find().
		SetSort(bson.D{{Key: "username", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := s.users().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	return decodeUsers(ctx, cursor)
}

func decodeUsers(ctx context.Context, cursor *mongo.Cursor) ([]model.User, error) {
	users := []model.User{}
	for cursor.Next(ctx) {
		var doc userDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		users = append(users, doc.toModel())
	}
	return users, cursor.Err()
}

func (s *MongoStore) ReplaceUser(ctx context.Context, user *model.User) error {
	res, err := s.users().ReplaceOne(ctx, bson.M{"_id": user.ID}, toUserDoc(user))
	if mongo.IsDuplicateKeyError(err) {
		return &registrystore.ConflictError{Message: "username is taken"}
	}
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return &registrystore.NotFoundError{Resource: "user", ID: user.ID}
	}
	return nil
}

func (s *MongoStore) DeleteUser(ctx context.Context, userID string) error {
	res, err := s.users().DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return &registrystore.NotFoundError{Resource: "user", ID: userID}
	}
	return nil
}

func (s *MongoStore) RemovePinFromUsers(ctx context.Context, conversationID string) error {
	_, err := s.users().UpdateMany(ctx,
		bson.M{"pinned_conversation_ids": conversationID},
		bson.M{"$pull": bson.M{"pinned_conversation_ids": conversationID}},
	)
	return err
}

// --- Conversations ---

func (s *MongoStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	_, err := s.conversations().InsertOne(ctx, toConversationDoc(conv))
	if mongo.IsDuplicateKeyError(err) {
		return &registrystore.ConflictError{Message: "conversation already exists"}
	}
	return err
}

func (s *MongoStore) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	var doc conversationDoc
	err := s.conversations().FindOne(ctx, bson.M{"_id": conversationID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	if err != nil {
		return nil, err
	}
	c := doc.toModel()
	return &c, nil
}

func (s *MongoStore) ListConversationsByMember(ctx context.Context, userID string) ([]model.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.conversations().Find(ctx, bson.M{"user_ids": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	conversations := []model.Conversation{}
	for cursor.Next(ctx) {
		var doc conversationDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		conversations = append(conversations, doc.toModel())
	}
	return conversations, cursor.Err()
}

func (s *MongoStore) ReplaceConversation(ctx context.Context, conv *model.Conversation) error {
	res, err := s.conversations().ReplaceOne(ctx, bson.M{"_id": conv.ID}, toConversationDoc(conv))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return &registrystore.NotFoundError{Resource: "conversation", ID: conv.ID}
	}
	return nil
}

func (s *MongoStore) DeleteConversation(ctx context.Context, conversationID string) error {
	res, err := s.conversations().DeleteOne(ctx, bson.M{"_id": conversationID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	return nil
}

// --- Messages ---

// messageSort orders newest first; _id breaks creation-time ties so paging is
// stable.
var messageSort = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

func (s *MongoStore) CreateMessage(ctx context.Context, msg *model.Message) error {
	_, err := s.messages().InsertOne(ctx, toMessageDoc(msg))
	if mongo.IsDuplicateKeyError(err) {
		return &registrystore.ConflictError{Message: "message already exists"}
	}
	return err
}

func (s *MongoStore) GetMessage(ctx context.Context, conversationID, messageID string) (*model.Message, error) {
	var doc messageDoc
	err := s.messages().FindOne(ctx, bson.M{"_id": messageID, "conversation_id": conversationID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	if err != nil {
		return nil, err
	}
	m := doc.toModel()
	return &m, nil
}

func (s *MongoStore) ListMessages(ctx context.Context, conversationID string, skip, limit int) ([]model.Message, error) {
	opts := options.Find().
		SetSort(messageSort).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))
	cursor, err := s.messages().Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	return decodeMessages(ctx, cursor)
}

func (s *MongoStore) CountMessages(ctx context.Context, conversationID string) (int64, error) {
	return s.messages().CountDocuments(ctx, bson.M{"conversation_id": conversationID})
}

func (s *MongoStore) LatestMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	filter := bson.M{
		"conversation_id": conversationID,
		"state":           string(model.MessageStateActive),
	}
	var doc messageDoc
	err := s.messages().FindOne(ctx, filter, options.FindOne().SetSort(messageSort)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m := doc.toModel()
	return &m, nil
}

func (s *MongoStore) ListMessagesAfter(ctx context.Context, conversationID string, after time.Time, afterID string) ([]model.Message, error) {
	filter := bson.M{
		"conversation_id": conversationID,
		"$or": bson.A{
			bson.M{"created_at": bson.M{"$gt": after}},
			bson.M{"created_at": after, "_id": bson.M{"$gt": afterID}},
		},
	}
	cursor, err := s.messages().Find(ctx, filter, options.Find().SetSort(messageSort))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	return decodeMessages(ctx, cursor)
}

func (s *MongoStore) LatestReadMessage(ctx context.Context, conversationID, userID string) (*model.Message, error) {
	filter := bson.M{
		"conversation_id": conversationID,
		"read_by":         userID,
	}
	var doc messageDoc
	err := s.messages().FindOne(ctx, filter, options.FindOne().SetSort(messageSort)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m := doc.toModel()
	return &m, nil
}

func decodeMessages(ctx context.Context, cursor *mongo.Cursor) ([]model.Message, error) {
	messages := []model.Message{}
	for cursor.Next(ctx) {
		var doc messageDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		messages = append(messages, doc.toModel())
	}
	return messages, cursor.Err()
}

func (s *MongoStore) ReplaceMessage(ctx context.Context, msg *model.Message) error {
	res, err := s.messages().ReplaceOne(ctx, bson.M{"_id": msg.ID}, toMessageDoc(msg))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return &registrystore.NotFoundError{Resource: "message", ID: msg.ID}
	}
	return nil
}

func (s *MongoStore) MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error) {
	res, err := s.messages().UpdateMany(ctx,
		bson.M{"conversation_id": conversationID},
		bson.M{"$addToSet": bson.M{"read_by": userID}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) DeleteConversationMessages(ctx context.Context, conversationID string) error {
	_, err := s.messages().DeleteMany(ctx, bson.M{"conversation_id": conversationID})
	return err
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
