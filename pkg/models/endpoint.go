package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EndpointType string

const (
	EndpointTypeWebhook           EndpointType = "webhook"
	EndpointTypeEmailSubscription EndpointType = "email_subscription"
	EndpointTypeCamel             EndpointType = "camel"
)

// Camel sub types identify the chat connector family an endpoint targets.
const (
	SubTypeSlack      = "slack"
	SubTypeTeams      = "teams"
	SubTypeGoogleChat = "google_chat"
)

// Endpoint is a tenant-owned destination configuration. Properties holds the
// raw type-specific settings; decode them with one of the typed accessors
// below, switching on Type.
type Endpoint struct {
	ID         uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrgID      string          `gorm:"size:50;not null;index"`
	AccountID  string          `gorm:"size:50"`
	Name       string          `gorm:"size:255;not null"`
	Type       EndpointType    `gorm:"size:50;not null;index"`
	SubType    string          `gorm:"size:50"`
	Enabled    bool            `gorm:"not null;default:true"`
	Properties json.RawMessage `gorm:"type:jsonb"`
	CreatedAt  time.Time       `gorm:"autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime"`
}

// WebhookProperties configures a webhook endpoint. Only https targets are
// accepted at delivery time.
type WebhookProperties struct {
	URL                    string `json:"url"`
	Method                 string `json:"method"`
	DisableSSLVerification bool   `json:"disable_ssl_verification"`
	SecretToken            string `json:"secret_token,omitempty"`
	BasicAuthUser          string `json:"basic_auth_user,omitempty"`
	BasicAuthPassword      string `json:"basic_auth_password,omitempty"`
}

// EmailSubscriptionProperties selects the recipient subset for an email
// subscription endpoint.
type EmailSubscriptionProperties struct {
	OnlyAdmins            bool       `json:"only_admins"`
	IgnoreUserPreferences bool       `json:"ignore_user_preferences"`
	GroupID               *uuid.UUID `json:"group_id,omitempty"`
	Users                 []string   `json:"users,omitempty"`
}

// CamelProperties configures a chat connector endpoint.
type CamelProperties struct {
	URL                    string            `json:"url"`
	DisableSSLVerification bool              `json:"disable_ssl_verification"`
	SecretToken            string            `json:"secret_token,omitempty"`
	Extras                 map[string]string `json:"extras,omitempty"`
}

func (e *Endpoint) WebhookProperties() (*WebhookProperties, error) {
	if e.Type != EndpointTypeWebhook {
		return nil, fmt.Errorf("endpoint %s is %q, not a webhook", e.ID, e.Type)
	}
	var p WebhookProperties
	if err := json.Unmarshal(e.Properties, &p); err != nil {
		return nil, fmt.Errorf("decode webhook properties of endpoint %s: %w", e.ID, err)
	}
	return &p, nil
}

func (e *Endpoint) EmailSubscriptionProperties() (*EmailSubscriptionProperties, error) {
	if e.Type != EndpointTypeEmailSubscription {
		return nil, fmt.Errorf("endpoint %s is %q, not an email subscription", e.ID, e.Type)
	}
	var p EmailSubscriptionProperties
	if err := json.Unmarshal(e.Properties, &p); err != nil {
		return nil, fmt.Errorf("decode email properties of endpoint %s: %w", e.ID, err)
	}
	return &p, nil
}

func (e *Endpoint) CamelProperties() (*CamelProperties, error) {
	if e.Type != EndpointTypeCamel {
		return nil, fmt.Errorf("endpoint %s is %q, not a camel endpoint", e.ID, e.Type)
	}
	var p CamelProperties
	if err := json.Unmarshal(e.Properties, &p); err != nil {
		return nil, fmt.Errorf("decode camel properties of endpoint %s: %w", e.ID, err)
	}
	return &p, nil
}
