package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, schedule *CheckSchedule) error

	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CheckSchedule, error)

	// ListActive returns active schedules of the given kind for a
	// subject; kind may be empty to match both.
	ListActive(ctx context.Context, db *gorm.DB, accountID snowflake.ID, subjectID string, kind ScheduleKind) ([]CheckSchedule, error)

	// UpdateStatus flips schedules from one status to another and
	// reports how many rows actually changed.
	UpdateStatus(ctx context.Context, db *gorm.DB, ids []snowflake.ID, from, to ScheduleStatus, at time.Time) (int64, error)

	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
