package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ScheduleKind distinguishes independently billed per-check schedules
// from a combined schedule that supersedes them.
type ScheduleKind string

const (
	KindIndividual   ScheduleKind = "individual"
	KindConsolidated ScheduleKind = "consolidated"
)

// ScheduleStatus is the billing state of a schedule. Only active
// schedules commit credits when their external trigger fires.
type ScheduleStatus string

const (
	StatusActive ScheduleStatus = "active"
	StatusPaused ScheduleStatus = "paused"
)

// CheckSchedule is the billing bookkeeping for one recurring check.
// Execution is driven by an external trigger and out of scope here.
type CheckSchedule struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	AccountID snowflake.ID `gorm:"not null;index:ix_check_schedules_account_subject,priority:1"`
	SubjectID string       `gorm:"type:text;not null;index:ix_check_schedules_account_subject,priority:2"`

	Kind      ScheduleKind   `gorm:"type:text;not null"`
	CheckType string         `gorm:"type:text;not null"`
	Status    ScheduleStatus `gorm:"type:text;not null;index"`
	Cadence   string         `gorm:"type:text;not null"`

	Config datatypes.JSONMap `gorm:"type:jsonb"`

	// PausedScheduleIDs is set only on consolidated rows: the individual
	// schedules suspended when this one was created, kept so they can be
	// restored verbatim.
	PausedScheduleIDs datatypes.JSONSlice[string] `gorm:"type:jsonb"`

	EstimatedCost int64 `gorm:"not null;default:0"`

	CreatedBy string    `gorm:"type:text;not null;default:'system'"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CheckSchedule) TableName() string { return "check_schedules" }
