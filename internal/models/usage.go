package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageRecord is an append-only log of API calls, kept for
// observability only.
type UsageRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Principal  string    `gorm:"index;not null" json:"-"`
	Endpoint   string    `gorm:"not null" json:"endpoint"`
	TokensUsed int       `gorm:"not null;default:0" json:"tokens_used"`
	LatencyMs  int       `json:"latency_ms"`
	StatusCode int       `json:"status_code"`
	CreatedAt  time.Time `json:"created_at"`
}

func (u *UsageRecord) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
