package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AggregationEventType marks the synthetic events the aggregation scheduler
// feeds back into the intake stream. They bypass endpoint targeting and go to
// the tenant's default email subscription endpoint.
const AggregationEventType = "aggregation"

// Event is the structured intake payload produced by upstream applications.
// The engine treats it as read-only; its ID doubles as the default
// deduplication key.
type Event struct {
	ID                    uuid.UUID       `json:"id"`
	AccountID             string          `json:"account_id,omitempty"`
	OrgID                 string          `json:"org_id"`
	Bundle                string          `json:"bundle"`
	Application           string          `json:"application"`
	EventType             string          `json:"event_type"`
	Timestamp             time.Time       `json:"timestamp"`
	Context               map[string]any  `json:"context,omitempty"`
	Payload               json.RawMessage `json:"payload,omitempty"`
	AuthorizationCriteria json.RawMessage `json:"authorization_criteria,omitempty"`
}

// Envelope wraps an event on the intake stream together with its redelivery
// state. A fresh event has ReinjectionCount zero and no failed-recipient
// scoping; a reinjected one carries the incremented counter and, for
// batch-oriented adapters, the subset of recipients still failing.
type Envelope struct {
	Event            Event      `json:"event"`
	ReinjectionCount int        `json:"reinjection_count,omitempty"`
	EndpointID       *uuid.UUID `json:"endpoint_id,omitempty"`
	FailedRecipients []string   `json:"failed_recipients,omitempty"`
}
