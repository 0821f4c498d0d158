package repositories

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/signalmesh/hermes/pkg/models"
)

type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Create(history *models.NotificationHistory) error {
	return r.db.Create(history).Error
}

func (r *HistoryRepository) GetByID(id uuid.UUID) (*models.NotificationHistory, error) {
	var history models.NotificationHistory
	if err := r.db.First(&history, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &history, nil
}

func (r *HistoryRepository) ListByEvent(eventID uuid.UUID) ([]models.NotificationHistory, error) {
	var histories []models.NotificationHistory
	if err := r.db.Where("event_id = ?", eventID).Order("created_at").Find(&histories).Error; err != nil {
		return nil, err
	}
	return histories, nil
}

// Finalize transitions a PROCESSING row to its terminal status once the
// delivery outcome is known.
func (r *HistoryRepository) Finalize(id uuid.UUID, status models.NotificationStatus, invocationResult bool, details []byte) error {
	updates := map[string]any{
		"status":            status,
		"invocation_result": invocationResult,
	}
	if details != nil {
		updates["details"] = details
	}
	return r.db.Model(&models.NotificationHistory{}).
		Where("id = ?", id).
		Updates(updates).Error
}
