package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	StatusProcessing     NotificationStatus = "PROCESSING"
	StatusSent           NotificationStatus = "SENT"
	StatusSuccess        NotificationStatus = "SUCCESS"
	StatusFailedExternal NotificationStatus = "FAILED_EXTERNAL"
	StatusFailedInternal NotificationStatus = "FAILED_INTERNAL"
)

// NotificationHistory records one delivery attempt for one (event, endpoint)
// pair. Rows are created with StatusProcessing at dispatch time and moved to a
// terminal status when the delivery outcome is known. Rows are never deleted.
type NotificationHistory struct {
	ID               uuid.UUID          `gorm:"type:uuid;primaryKey"`
	EventID          uuid.UUID          `gorm:"type:uuid;not null;index"`
	EndpointID       uuid.UUID          `gorm:"type:uuid;index"`
	OrgID            string             `gorm:"size:50;not null;index"`
	EndpointType     EndpointType       `gorm:"size:50;not null"`
	EndpointSubType  string             `gorm:"size:50"`
	InvocationTime   time.Time          `gorm:"not null"`
	InvocationResult bool               `gorm:"not null"`
	Status           NotificationStatus `gorm:"size:20;not null;index"`
	Details          json.RawMessage    `gorm:"type:jsonb"`
	CreatedAt        time.Time          `gorm:"autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"autoUpdateTime"`
}

// HistoryStub builds the PROCESSING row the router persists before the
// delivery outcome is known.
func HistoryStub(eventID uuid.UUID, orgID string, endpoint *Endpoint) NotificationHistory {
	return NotificationHistory{
		ID:              uuid.New(),
		EventID:         eventID,
		EndpointID:      endpoint.ID,
		OrgID:           orgID,
		EndpointType:    endpoint.Type,
		EndpointSubType: endpoint.SubType,
		InvocationTime:  time.Now().UTC(),
		Status:          StatusProcessing,
	}
}

// DetailsMap decodes the free-form details column, returning an empty map for
// rows without details.
func (h *NotificationHistory) DetailsMap() map[string]any {
	out := map[string]any{}
	if len(h.Details) > 0 {
		_ = json.Unmarshal(h.Details, &out)
	}
	return out
}

func (h *NotificationHistory) SetDetails(details map[string]any) {
	raw, err := json.Marshal(details)
	if err != nil {
		return
	}
	h.Details = raw
}
