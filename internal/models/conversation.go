package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const DefaultConversationTitle = "New Conversation"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Conversation is an ordered thread of messages owned by a single
// principal (authenticated user or guest session).
type Conversation struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID      string    `gorm:"index;not null" json:"-"`
	Title        string    `gorm:"not null" json:"title"`
	MessageCount int       `gorm:"not null;default:0" json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Messages     []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Title == "" {
		c.Title = DefaultConversationTitle
	}
	return nil
}

// Message is immutable once created. Seq is the insertion sequence
// within its conversation; ordering is created_at, then seq, then id.
type Message struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID         `gorm:"type:uuid;index;not null" json:"conversation_id"`
	Seq            int               `gorm:"not null" json:"-"`
	Role           string            `gorm:"not null" json:"role"`
	Content        string            `gorm:"type:text;not null" json:"content"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt      time.Time         `json:"created_at"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
