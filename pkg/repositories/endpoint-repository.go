package repositories

import (
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/signalmesh/hermes/pkg/models"
)

type EndpointRepository struct {
	db *gorm.DB
}

func NewEndpointRepository(db *gorm.DB) *EndpointRepository {
	return &EndpointRepository{db: db}
}

func (r *EndpointRepository) Create(endpoint *models.Endpoint) error {
	return r.db.Create(endpoint).Error
}

func (r *EndpointRepository) GetByID(orgID string, id uuid.UUID) (*models.Endpoint, error) {
	var endpoint models.Endpoint
	if err := r.db.First(&endpoint, "id = ? AND org_id = ?", id, orgID).Error; err != nil {
		return nil, err
	}
	return &endpoint, nil
}

// TargetEndpoints returns the enabled endpoints linked to an event type for a
// tenant. The link table is written by the out-of-scope configuration API; the
// engine only reads it.
func (r *EndpointRepository) TargetEndpoints(orgID, bundle, application, eventType string) ([]models.Endpoint, error) {
	var endpoints []models.Endpoint
	err := r.db.
		Joins("JOIN endpoint_event_type eet ON eet.endpoint_id = endpoints.id").
		Where("endpoints.org_id = ? AND endpoints.enabled AND eet.bundle = ? AND eet.application = ? AND eet.event_type = ?",
			orgID, bundle, application, eventType).
		Find(&endpoints).Error
	if err != nil {
		return nil, err
	}
	return endpoints, nil
}

// GetOrCreateDefaultEmailSubscription returns the tenant's system email
// subscription endpoint, creating it on first use. Aggregation events always
// target this endpoint.
func (r *EndpointRepository) GetOrCreateDefaultEmailSubscription(accountID, orgID string) (*models.Endpoint, error) {
	var endpoint models.Endpoint
	err := r.db.
		Where("org_id = ? AND type = ? AND name = ?", orgID, models.EndpointTypeEmailSubscription, defaultEmailEndpointName).
		First(&endpoint).Error
	if err == nil {
		return &endpoint, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	props, _ := json.Marshal(models.EmailSubscriptionProperties{})
	endpoint = models.Endpoint{
		ID:         uuid.New(),
		OrgID:      orgID,
		AccountID:  accountID,
		Name:       defaultEmailEndpointName,
		Type:       models.EndpointTypeEmailSubscription,
		Enabled:    true,
		Properties: props,
	}
	if err := r.db.Create(&endpoint).Error; err != nil {
		return nil, err
	}
	return &endpoint, nil
}

const defaultEmailEndpointName = "Default email subscription"
