// Package postgres implements the DataStore interface using GORM + PostgreSQL.
// Identifier sets (members, admins, blocks, pins, read receipts) are stored as
// JSONB arrays so membership and read-state filters can use GIN indexes.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/loqui/chat-service/internal/config"
	"github.com/loqui/chat-service/internal/model"
	registrymigrate "github.com/loqui/chat-service/internal/registry/migrate"
	registrystore "github.com/loqui/chat-service/internal/registry/store"
	"github.com/loqui/chat-service/internal/security"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrystore.DataStore, error) {
			cfg := config.FromContext(ctx)
			db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
			if err != nil {
				return nil, fmt.Errorf("failed to connect to postgres: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
			if security.DBPoolMaxConnections != nil {
				security.DBPoolMaxConnections.Set(float64(cfg.DBMaxOpenConns))
			}

			// Periodically update the open connections gauge.
			go func() {
				ticker := time.NewTicker(15 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if security.DBPoolOpenConnections != nil {
							security.DBPoolOpenConnections.Set(float64(sqlDB.Stats().OpenConnections))
						}
					}
				}
			}()

			return &PostgresStore{db: db}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &postgresMigrator{}})
}

type postgresMigrator struct{}

func (m *postgresMigrator) Name() string { return "postgres-schema" }
func (m *postgresMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg != nil && !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "postgres" {
		return nil // skip if not using postgres
	}
	log.Info("Running migration", "name", m.Name())
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("migration: failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if _, err := sqlDB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	log.Info("Postgres schema migration complete")
	return nil
}

// PostgresStore implements the DataStore interface using GORM + PostgreSQL.
type PostgresStore struct {
	db *gorm.DB
}

type userRow struct {
	ID                    string    `gorm:"column:id;primaryKey"`
	Username              string    `gorm:"column:username"`
	Bio                   string    `gorm:"column:bio"`
	Avatar                *string   `gorm:"column:avatar"`
	BlockedUserIDs        []string  `gorm:"column:blocked_user_ids;serializer:json"`
	PinnedConversationIDs []string  `gorm:"column:pinned_conversation_ids;serializer:json"`
	JoinedAt              time.Time `gorm:"column:joined_at"`
}

func (userRow) TableName() string { return "users" }

type conversationRow struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name"`
	UserIDs   []string  `gorm:"column:user_ids;serializer:json"`
	AdminIDs  []string  `gorm:"column:admin_ids;serializer:json"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (conversationRow) TableName() string { return "conversations" }

type messageRow struct {
	ID             string     `gorm:"column:id;primaryKey"`
	ConversationID string     `gorm:"column:conversation_id"`
	AuthorID       string     `gorm:"column:author_id"`
	Content        *string    `gorm:"column:content"`
	ImageURL       *string    `gorm:"column:image_url"`
	ReadBy         []string   `gorm:"column:read_by;serializer:json"`
	State          string     `gorm:"column:state"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	EditedAt       *time.Time `gorm:"column:edited_at"`
	DeletedAt      *time.Time `gorm:"column:deleted_at"`
}

func (messageRow) TableName() string { return "messages" }

func toUserRow(u *model.User) userRow {
	return userRow{
		ID:                    u.ID,
		Username:              u.Username,
		Bio:                   u.Bio,
		Avatar:                u.Avatar,
		BlockedUserIDs:        orEmpty(u.BlockedUserIDs),
		PinnedConversationIDs: orEmpty(u.PinnedConversationIDs),
		JoinedAt:              u.JoinedAt,
	}
}

func (r userRow) toModel() model.User {
	return model.User{
		ID:                    r.ID,
		Username:              r.Username,
		Bio:                   r.Bio,
		Avatar:                r.Avatar,
		BlockedUserIDs:        orEmpty(r.BlockedUserIDs),
		PinnedConversationIDs: orEmpty(r.PinnedConversationIDs),
		JoinedAt:              r.JoinedAt,
	}
}

func toConversationRow(c *model.Conversation) conversationRow {
	return conversationRow{
		ID:        c.ID,
		Name:      c.Name,
		UserIDs:   orEmpty(c.UserIDs),
		AdminIDs:  orEmpty(c.AdminIDs),
		CreatedAt: c.CreatedAt,
	}
}

func (r conversationRow) toModel() model.Conversation {
	return model.Conversation{
		ID:        r.ID,
		Name:      r.Name,
		UserIDs:   orEmpty(r.UserIDs),
		AdminIDs:  orEmpty(r.AdminIDs),
		CreatedAt: r.CreatedAt,
	}
}

func toMessageRow(m *model.Message) messageRow {
	return messageRow{
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

func (r messageRow) toModel() model.Message {
	return model.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		AuthorID:       r.AuthorID,
		Content:        r.Content,
		ImageURL:       r.ImageURL,
		ReadBy:         orEmpty(r.ReadBy),
		State:          model.MessageState(r.State),
		CreatedAt:      r.CreatedAt,
		EditedAt:       r.EditedAt,
		DeletedAt:      r.DeletedAt,
	}
}

func orEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, user *model.User) error {
	err := s.db.WithContext(ctx).Create(toUserRow(user)).Error
	if isUniqueViolation(err) {
		return &registrystore.ConflictError{Message: "user already exists"}
	}
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "user", ID: userID}
	}
	if err != nil {
		return nil, err
	}
	u := row.toModel()
	return &u, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "user", ID: username}
	}
	if err != nil {
		return nil, err
	}
	u := row.toModel()
	return &u, nil
}

func (s *PostgresStore) FindUsers(ctx context.Context, userIDs []string) ([]model.User, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	users := make([]model.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toModel())
	}
	return users, nil
}

func (s *PostgresStore) SearchUsers(ctx context.Context, usernamePrefix string, limit int) ([]model.User, error) {
	pattern := escapeLike(usernamePrefix) + "%"
	var rows []userRow
	err := s.db.WithContext(ctx).
		Where("username ILIKE ?", pattern).
		Order("username ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	users := make([]model.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toModel())
	}
	return users, nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

func (s *PostgresStore) ReplaceUser(ctx context.Context, user *model.User) error {
	res := s.db.WithContext(ctx).Where("id = ?", user.ID).Select("*").Updates(toUserRow(user))
	if isUniqueViolation(res.Error) {
		return &registrystore.ConflictError{Message: "username is taken"}
	}
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: "user", ID: user.ID}
	}
	return nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	res := s.db.WithContext(ctx).Where("id = ?", userID).Delete(&userRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: "user", ID: userID}
	}
	return nil
}

func (s *PostgresStore) RemovePinFromUsers(ctx context.Context, conversationID string) error {
	return s.db.WithContext(ctx).Exec(
		`UPDATE users SET pinned_conversation_ids = pinned_conversation_ids - ?
		 WHERE jsonb_exists(pinned_conversation_ids, ?)`,
		conversationID, conversationID,
	).Error
}

// --- Conversations ---

func (s *PostgresStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	err := s.db.WithContext(ctx).Create(toConversationRow(conv)).Error
	if isUniqueViolation(err) {
		return &registrystore.ConflictError{Message: "conversation already exists"}
	}
	return err
}

func (s *PostgresStore) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	var row conversationRow
	err := s.db.WithContext(ctx).Where("id = ?", conversationID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	if err != nil {
		return nil, err
	}
	c := row.toModel()
	return &c, nil
}

func (s *PostgresStore) ListConversationsByMember(ctx context.Context, userID string) ([]model.Conversation, error) {
	var rows []conversationRow
	err := s.db.WithContext(ctx).
		Where("jsonb_exists(user_ids, ?)", userID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	conversations := make([]model.Conversation, 0, len(rows))
	for _, r := range rows {
		conversations = append(conversations, r.toModel())
	}
	return conversations, nil
}

func (s *PostgresStore) ReplaceConversation(ctx context.Context, conv *model.Conversation) error {
	res := s.db.WithContext(ctx).Where("id = ?", conv.ID).Select("*").Updates(toConversationRow(conv))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: "conversation", ID: conv.ID}
	}
	return nil
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, conversationID string) error {
	res := s.db.WithContext(ctx).Where("id = ?", conversationID).Delete(&conversationRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	return nil
}

// --- Messages ---

// messageOrder sorts newest first; id breaks creation-time ties so paging is
// stable.
const messageOrder = "created_at DESC, id DESC"

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *model.Message) error {
	err := s.db.WithContext(ctx).Create(toMessageRow(msg)).Error
	if isUniqueViolation(err) {
		return &registrystore.ConflictError{Message: "message already exists"}
	}
	return err
}

func (s *PostgresStore) GetMessage(ctx context.Context, conversationID, messageID string) (*model.Message, error) {
	var row messageRow
	err := s.db.WithContext(ctx).
		Where("id = ? AND conversation_id = ?", messageID, conversationID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	if err != nil {
		return nil, err
	}
	m := row.toModel()
	return &m, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string, skip, limit int) ([]model.Message, error) {
	var rows []messageRow
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order(messageOrder).
		Offset(skip).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toMessages(rows), nil
}

func (s *PostgresStore) CountMessages(ctx context.Context, conversationID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&messageRow{}).
		Where("conversation_id = ?", conversationID).
		Count(&count).Error
	return count, err
}

func (s *PostgresStore) LatestMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	var row messageRow
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND state = ?", conversationID, string(model.MessageStateActive)).
		Order(messageOrder).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m := row.toModel()
	return &m, nil
}

func (s *PostgresStore) ListMessagesAfter(ctx context.Context, conversationID string, after time.Time, afterID string) ([]model.Message, error) {
	var rows []messageRow
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND (created_at > ? OR (created_at = ? AND id > ?))",
			conversationID, after, after, afterID).
		Order(messageOrder).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toMessages(rows), nil
}

func (s *PostgresStore) LatestReadMessage(ctx context.Context, conversationID, userID string) (*model.Message, error) {
	var row messageRow
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND jsonb_exists(read_by, ?)", conversationID, userID).
		Order(messageOrder).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m := row.toModel()
	return &m, nil
}

func toMessages(rows []messageRow) []model.Message {
	messages := make([]model.Message, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, r.toModel())
	}
	return messages
}

func (s *PostgresStore) ReplaceMessage(ctx context.Context, msg *model.Message) error {
	res := s.db.WithContext(ctx).Where("id = ?", msg.ID).Select("*").Updates(toMessageRow(msg))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &registrystore.NotFoundError{Resource: "message", ID: msg.ID}
	}
	return nil
}

func (s *PostgresStore) MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error) {
	res := s.db.WithContext(ctx).Exec(
		`UPDATE messages SET read_by = read_by || to_jsonb(?::text)
		 WHERE conversation_id = ? AND NOT jsonb_exists(read_by, ?)`,
		userID, conversationID, userID,
	)
	return res.RowsAffected, res.Error
}

func (s *PostgresStore) DeleteConversationMessages(ctx context.Context, conversationID string) error {
	return s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Delete(&messageRow{}).Error
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
