package repositories

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/signalmesh/hermes/pkg/models"
)

type DedupRepository struct {
	db *gorm.DB
}

func NewDedupRepository(db *gorm.DB) *DedupRepository {
	return &DedupRepository{db: db}
}

// InsertIfAbsent records a dedup key and reports whether this call was the
// first to see it. The check and the insert are a single statement (insert
// with on-conflict-do-nothing on the primary key), so two concurrent callers
// with the same key cannot both observe true.
func (r *DedupRepository) InsertIfAbsent(key, orgID string, deleteAfter *time.Time) (bool, error) {
	record := models.EventDeduplication{
		Key:         key,
		OrgID:       orgID,
		DeleteAfter: deleteAfter,
	}
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
