package services

import (
	"context"
	"testing"
	"time"

	"github.com/chatflow/chatflow/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *ConversationStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A pooled second connection would see a different empty :memory: db.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Conversation{}, &models.Message{}, &models.UsageRecord{}))
	return NewConversationStore(db)
}

var (
	alice = Principal{ID: "user:alice"}
	guest = Principal{ID: "guest:" + uuid.NewString(), Guest: true}
)

func TestConversationStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, alice, "")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultConversationTitle, conv.Title)
	assert.NotEqual(t, uuid.Nil, conv.ID)
	assert.Zero(t, conv.MessageCount)

	got, err := store.GetConversation(ctx, alice, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	t.Run("explicit title kept", func(t *testing.T) {
		named, err := store.CreateConversation(ctx, alice, "Deploy questions")
		require.NoError(t, err)
		assert.Equal(t, "Deploy questions", named.Title)
	})

	t.Run("missing id is not found", func(t *testing.T) {
		_, err := store.GetConversation(ctx, alice, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestConversationStore_OwnershipIsNotFound(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, alice, "private")
	require.NoError(t, err)

	// Cross-principal access never distinguishes "exists but forbidden".
	_, err = store.GetConversation(ctx, guest, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.ListMessages(ctx, guest, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.DeleteConversation(ctx, guest, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.RenameConversation(ctx, guest, conv.ID, "stolen")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationStore_AppendMessage(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, alice, "")
	require.NoError(t, err)

	msg, updated, err := store.AppendMessage(ctx, conv.ID, models.RoleUser, "How do I deploy Docker containers?", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, msg.Seq)
	assert.Equal(t, 1, updated.MessageCount)

	// First user message sets the title in the same transaction.
	assert.Equal(t, "How do I deploy Docker containers?", updated.Title)

	_, updated, err = store.AppendMessage(ctx, conv.ID, models.RoleAssistant, "Use docker run.", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.MessageCount)

	// Later user messages never touch the title.
	_, updated, err = store.AppendMessage(ctx, conv.ID, models.RoleUser, "And compose?", nil)
	require.NoError(t, err)
	assert.Equal(t, "How do I deploy Docker containers?", updated.Title)

	msgs, err := store.ListMessages(ctx, alice, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, updated.MessageCount, len(msgs))
	assert.Equal(t, "And compose?", msgs[len(msgs)-1].Content)

	t.Run("unknown conversation", func(t *testing.T) {
		_, _, err := store.AppendMessage(ctx, uuid.New(), models.RoleUser, "hello", nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestConversationStore_ExplicitTitleNotOverwritten(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, alice, "My Notes")
	require.NoError(t, err)

	_, updated, err := store.AppendMessage(ctx, conv.ID, models.RoleUser, "first message", nil)
	require.NoError(t, err)
	assert.Equal(t, "My Notes", updated.Title)
}

func TestConversationStore_ListOrdering(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.CreateConversation(ctx, alice, "first")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	second, err := store.CreateConversation(ctx, alice, "second")
	require.NoError(t, err)

	convs, err := store.ListConversations(ctx, alice)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, second.ID, convs[0].ID)

	// Appending bumps updated_at, reordering the list.
	time.Sleep(10 * time.Millisecond)
	_, _, err = store.AppendMessage(ctx, first.ID, models.RoleUser, "bump", nil)
	require.NoError(t, err)

	convs, err = store.ListConversations(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, first.ID, convs[0].ID)

	t.Run("empty for fresh principal", func(t *testing.T) {
		convs, err := store.ListConversations(ctx, guest)
		require.NoError(t, err)
		assert.Empty(t, convs)
	})
}

func TestConversationStore_Rename(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, alice, "")
	require.NoError(t, err)

	renamed, err := store.RenameConversation(ctx, alice, conv.ID, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Title)

	got, err := store.GetConversation(ctx, alice, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
}

func TestConversationStore_DeleteCascades(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, alice, "")
	require.NoError(t, err)
	_, _, err = store.AppendMessage(ctx, conv.ID, models.RoleUser, "hello", nil)
	require.NoError(t, err)

	require.NoError(t, store.DeleteConversation(ctx, alice, conv.ID))

	_, err = store.GetConversation(ctx, alice, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var orphans int64
	require.NoError(t, store.db.Model(&models.Message{}).Where("conversation_id = ?", conv.ID).Count(&orphans).Error)
	assert.Zero(t, orphans)
}

func TestConversationStore_UsageStats(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordUsage(ctx, alice, "chat", 100, 250, 200))
	require.NoError(t, store.RecordUsage(ctx, alice, "chat", 50, 150, 200))
	require.NoError(t, store.RecordUsage(ctx, guest, "chat", 999, 10, 200))

	stats, err := store.GetUsageStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalRequests)
	assert.Equal(t, int64(150), stats.TotalTokensUsed)
	assert.InDelta(t, 200.0, stats.AverageResponseTime, 0.01)
}
