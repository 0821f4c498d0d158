package repositories

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/signalmesh/hermes/pkg/models"
)

type AggregationRepository struct {
	db *gorm.DB
}

func NewAggregationRepository(db *gorm.DB) *AggregationRepository {
	return &AggregationRepository{db: db}
}

// CreateMissingDefaultConfigs inserts a default digest-time row for every
// tenant that has pending aggregation material but no configuration yet.
func (r *AggregationRepository) CreateMissingDefaultConfigs(defaultTime string) error {
	return r.db.Exec(`
		INSERT INTO aggregation_org_config (org_id, scheduled_execution_time, last_run, event_sourced_enabled)
		SELECT DISTINCT ea.org_id, ?, to_timestamp(0), false
		FROM email_aggregation ea
		ON CONFLICT (org_id) DO NOTHING`, defaultTime).Error
}

// PendingCommands returns the distinct (org, bundle, application) tuples with
// digest material created before the boundary, restricted to tenants whose
// digest time matches the boundary's time of day and whose last run predates
// the boundary. The last-run guard is what makes a boundary processable at
// most once.
func (r *AggregationRepository) PendingCommands(boundary time.Time) ([]models.AggregationCommand, error) {
	var commands []models.AggregationCommand
	err := r.db.Raw(`
		SELECT ea.org_id, ea.bundle, ea.application, c.last_run AS start, ? AS "end"
		FROM email_aggregation ea
		JOIN aggregation_org_config c ON c.org_id = ea.org_id
		WHERE c.scheduled_execution_time = ?
		  AND c.last_run < ?
		  AND ea.created_at < ?
		GROUP BY ea.org_id, ea.bundle, ea.application, c.last_run`,
		boundary, boundary.Format("15:04"), boundary, boundary).
		Scan(&commands).Error
	if err != nil {
		return nil, err
	}
	return commands, nil
}

// PendingCommandsScan is the older scan-based collection strategy, retained
// while the event-sourced path above is being validated. It derives the same
// tuples from the raw material without consulting the per-tenant config.
func (r *AggregationRepository) PendingCommandsScan(boundary time.Time) ([]models.AggregationCommand, error) {
	var commands []models.AggregationCommand
	err := r.db.Raw(`
		SELECT ea.org_id, ea.bundle, ea.application, min(ea.created_at) AS start, ? AS "end"
		FROM email_aggregation ea
		WHERE ea.created_at < ?
		GROUP BY ea.org_id, ea.bundle, ea.application`,
		boundary, boundary).
		Scan(&commands).Error
	if err != nil {
		return nil, err
	}
	return commands, nil
}

func (r *AggregationRepository) OrgConfig(orgID string) (*models.AggregationOrgConfig, error) {
	var cfg models.AggregationOrgConfig
	if err := r.db.First(&cfg, "org_id = ?", orgID).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UpdateLastRun advances the processed tenants' last-run timestamp to the
// boundary so the same window is never reprocessed.
func (r *AggregationRepository) UpdateLastRun(orgIDs []string, boundary time.Time) error {
	if len(orgIDs) == 0 {
		return nil
	}
	return r.db.Model(&models.AggregationOrgConfig{}).
		Where("org_id IN ?", orgIDs).
		Update("last_run", boundary).Error
}

func (r *AggregationRepository) AddMaterial(aggregation *models.EmailAggregation) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(aggregation).Error
}
