package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey authenticates an ingest client and binds it to a tenant.
type APIKey struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrgID     string    `gorm:"size:50;not null;index"`
	AccountID string    `gorm:"size:50"`
	Name      string    `gorm:"size:255"`
	Hash      string    `gorm:"size:255;not null;uniqueIndex"`
	Active    bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (APIKey) TableName() string { return "api_keys" }
