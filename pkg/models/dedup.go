package models

import "time"

// EventDeduplication is one processed dedup key. Rows are inserted once and
// never updated; an external reaper purges rows past DeleteAfter.
type EventDeduplication struct {
	Key         string     `gorm:"size:512;primaryKey"`
	OrgID       string     `gorm:"size:50;index"`
	DeleteAfter *time.Time `gorm:"index"`
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
}

func (EventDeduplication) TableName() string { return "event_deduplication" }
