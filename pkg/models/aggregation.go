package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AggregationOrgConfig carries a tenant's digest preferences: the wall-clock
// time (UTC, "HH:MM", 15-minute increments) at which its daily digest should
// fire, and the last schedule boundary already processed.
type AggregationOrgConfig struct {
	OrgID                  string    `gorm:"size:50;primaryKey"`
	ScheduledExecutionTime string    `gorm:"size:5;not null;default:'00:00'"`
	LastRun                time.Time `gorm:"not null"`
	EventSourcedEnabled    bool      `gorm:"not null;default:false"`
}

func (AggregationOrgConfig) TableName() string { return "aggregation_org_config" }

// EmailAggregation is one pending piece of digest material for a tenant.
type EmailAggregation struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrgID       string          `gorm:"size:50;not null;index:idx_aggregation_org_bundle_app"`
	Bundle      string          `gorm:"size:255;not null;index:idx_aggregation_org_bundle_app"`
	Application string          `gorm:"size:255;not null;index:idx_aggregation_org_bundle_app"`
	Payload     json.RawMessage `gorm:"type:jsonb"`
	CreatedAt   time.Time       `gorm:"autoCreateTime;index"`
}

func (EmailAggregation) TableName() string { return "email_aggregation" }

// AggregationCommand is the (tenant, bundle, application) unit of pending
// digest work computed per scheduler run. It is never persisted.
type AggregationCommand struct {
	OrgID       string    `json:"org_id"`
	Bundle      string    `json:"bundle"`
	Application string    `json:"application"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}
