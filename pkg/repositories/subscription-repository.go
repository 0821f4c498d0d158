package repositories

import (
	"gorm.io/gorm"

	"github.com/signalmesh/hermes/pkg/models"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// SubscribedUsernames returns the users opted in to instant emails for one
// event type.
func (r *SubscriptionRepository) SubscribedUsernames(orgID, bundle, application, eventType string) ([]string, error) {
	var usernames []string
	err := r.db.Model(&models.EmailSubscription{}).
		Where("org_id = ? AND bundle = ? AND application = ? AND event_type = ? AND subscription_type = ?",
			orgID, bundle, application, eventType, models.SubscriptionInstant).
		Pluck("username", &usernames).Error
	if err != nil {
		return nil, err
	}
	return usernames, nil
}

// DailySubscribedUsernames returns the users opted in to the daily digest for
// an application, independent of event type.
func (r *SubscriptionRepository) DailySubscribedUsernames(orgID, bundle, application string) ([]string, error) {
	var usernames []string
	err := r.db.Model(&models.EmailSubscription{}).
		Where("org_id = ? AND bundle = ? AND application = ? AND subscription_type = ?",
			orgID, bundle, application, models.SubscriptionDaily).
		Distinct().
		Pluck("username", &usernames).Error
	if err != nil {
		return nil, err
	}
	return usernames, nil
}

func (r *SubscriptionRepository) Subscribe(sub *models.EmailSubscription) error {
	return r.db.Save(sub).Error
}

func (r *SubscriptionRepository) Unsubscribe(sub *models.EmailSubscription) error {
	return r.db.Where("org_id = ? AND username = ? AND bundle = ? AND application = ? AND event_type = ? AND subscription_type = ?",
		sub.OrgID, sub.Username, sub.Bundle, sub.Application, sub.EventType, sub.SubscriptionType).
		Delete(&models.EmailSubscription{}).Error
}
