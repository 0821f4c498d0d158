package models

import "time"

// Subscription types mirror how a user wants to be notified about an event
// type by email.
const (
	SubscriptionInstant = "INSTANT"
	SubscriptionDaily   = "DAILY"
)

// EmailSubscription records one user's opt-in for one event type. The
// recipient resolver consults these rows unless a recipient setting ignores
// user preferences.
type EmailSubscription struct {
	OrgID            string    `gorm:"size:50;primaryKey"`
	Username         string    `gorm:"size:255;primaryKey"`
	Bundle           string    `gorm:"size:255;primaryKey"`
	Application      string    `gorm:"size:255;primaryKey"`
	EventType        string    `gorm:"size:255;primaryKey"`
	SubscriptionType string    `gorm:"size:20;primaryKey;default:INSTANT"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
}

func (EmailSubscription) TableName() string {
	return "email_subscriptions"
}
