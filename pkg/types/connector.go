package types

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ConnectorMessage is the envelope emitted on the connector outbound channel
// for one dispatch. ID equals the history record created for the dispatch so
// the outcome callback can be correlated back.
type ConnectorMessage struct {
	ID         uuid.UUID       `json:"id"`
	OrgID      string          `json:"org_id"`
	Connector  string          `json:"connector"`
	TargetURL  string          `json:"target_url,omitempty"`
	TrustAll   bool            `json:"trust_all,omitempty"`
	AuthSecret string          `json:"auth_secret,omitempty"`
	Recipients []string        `json:"recipients,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	Envelope   Envelope        `json:"envelope"`
}

// ConnectorResult is the delivery-outcome callback consumed from the
// connector return channel, keyed by the history id of the dispatch.
type ConnectorResult struct {
	ID               uuid.UUID `json:"id"`
	OrgID            string    `json:"org_id"`
	Successful       bool      `json:"successful"`
	Message          string    `json:"message,omitempty"`
	StatusCode       int       `json:"status_code,omitempty"`
	FailureKind      string    `json:"failure_kind,omitempty"`
	FailedRecipients []string  `json:"failed_recipients,omitempty"`
	Envelope         Envelope  `json:"envelope"`
}
