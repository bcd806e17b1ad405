package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatflow/chatflow/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ConversationStore owns conversation and message persistence. Every
// read is scoped to a principal; a conversation owned by someone else
// is indistinguishable from a missing one.
type ConversationStore struct {
	db *gorm.DB
}

func NewConversationStore(db *gorm.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

func (s *ConversationStore) ListConversations(ctx context.Context, principal Principal) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", principal.ID).
		Order("updated_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, storageErr(err)
	}
	return convs, nil
}

func (s *ConversationStore) CreateConversation(ctx context.Context, principal Principal, title string) (*models.Conversation, error) {
	conv := models.Conversation{
		OwnerID: principal.ID,
		Title:   title, // BeforeCreate fills the placeholder when empty
	}
	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return nil, storageErr(err)
	}
	return &conv, nil
}

func (s *ConversationStore) GetConversation(ctx context.Context, principal Principal, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		First(&conv, "id = ? AND owner_id = ?", id, principal.ID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, id)
		}
		return nil, storageErr(err)
	}
	return &conv, nil
}

// AppendMessage inserts a message and updates the parent conversation's
// message_count and updated_at in one transaction. When the message is
// the conversation's first user message and the title is still the
// placeholder, the derived title is set in the same transaction.
// Returns the message and the conversation as committed.
func (s *ConversationStore) AppendMessage(ctx context.Context, conversationID uuid.UUID, role, content string, metadata datatypes.JSONMap) (*models.Message, *models.Conversation, error) {
	var (
		msg  models.Message
		conv models.Conversation
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&conv, "id = ?", conversationID).Error; err != nil {
			return err
		}

		msg = models.Message{
			ConversationID: conversationID,
			Seq:            conv.MessageCount + 1,
			Role:           role,
			Content:        content,
			Metadata:       metadata,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}

		updates := map[string]any{
			"message_count": gorm.Expr("message_count + ?", 1),
			"updated_at":    time.Now(),
		}
		if role == models.RoleUser && conv.MessageCount == 0 && conv.Title == models.DefaultConversationTitle {
			updates["title"] = DeriveTitle(content)
		}
		if err := tx.Model(&models.Conversation{}).Where("id = ?", conversationID).Updates(updates).Error; err != nil {
			return err
		}

		return tx.First(&conv, "id = ?", conversationID).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
		}
		return nil, nil, storageErr(err)
	}
	return &msg, &conv, nil
}

func (s *ConversationStore) ListMessages(ctx context.Context, principal Principal, conversationID uuid.UUID) ([]models.Message, error) {
	if _, err := s.GetConversation(ctx, principal, conversationID); err != nil {
		return nil, err
	}

	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, seq ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, storageErr(err)
	}
	return msgs, nil
}

func (s *ConversationStore) RenameConversation(ctx context.Context, principal Principal, conversationID uuid.UUID, title string) (*models.Conversation, error) {
	conv, err := s.GetConversation(ctx, principal, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(conv).Update("title", title).Error; err != nil {
		return nil, storageErr(err)
	}
	return conv, nil
}

// DeleteConversation removes a conversation and its messages. The
// cascade runs in the transaction rather than relying on FK enforcement
// so behavior matches across Postgres and the sqlite test dialector.
func (s *ConversationStore) DeleteConversation(ctx context.Context, principal Principal, conversationID uuid.UUID) error {
	if _, err := s.GetConversation(ctx, principal, conversationID); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Conversation{}, "id = ?", conversationID).Error
	})
	if err != nil {
		return storageErr(err)
	}
	return nil
}

// RecordUsage appends an observability record. Failures here never
// fail the request that produced them.
func (s *ConversationStore) RecordUsage(ctx context.Context, principal Principal, endpoint string, tokensUsed, latencyMs, statusCode int) error {
	rec := models.UsageRecord{
		Principal:  principal.ID,
		Endpoint:   endpoint,
		TokensUsed: tokensUsed,
		LatencyMs:  latencyMs,
		StatusCode: statusCode,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return storageErr(err)
	}
	return nil
}

// UsageStats aggregates the usage log for one principal.
type UsageStats struct {
	TotalRequests       int64   `json:"total_requests"`
	TotalTokensUsed     int64   `json:"total_tokens_used"`
	AverageResponseTime float64 `json:"average_response_time_ms"`
}

func (s *ConversationStore) GetUsageStats(ctx context.Context, principal Principal) (*UsageStats, error) {
	var stats UsageStats
	err := s.db.WithContext(ctx).
		Model(&models.UsageRecord{}).
		Select("COUNT(*) AS total_requests, COALESCE(SUM(tokens_used), 0) AS total_tokens_used, COALESCE(AVG(latency_ms), 0) AS average_response_time").
		Where("principal = ?", principal.ID).
		Scan(&stats).Error
	if err != nil {
		return nil, storageErr(err)
	}
	return &stats, nil
}

// Ping reports whether the storage backend is reachable.
func (s *ConversationStore) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storageErr(err)
	}
	if err := sqlDB.Ping(); err != nil {
		return storageErr(err)
	}
	return nil
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
