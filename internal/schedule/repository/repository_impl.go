package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/reviewstack/creditledger/internal/schedule/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, schedule *domain.CheckSchedule) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO check_schedules (
			id, account_id, subject_id, kind, check_type, status, cadence,
			config, paused_schedule_ids, estimated_cost, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID,
		schedule.AccountID,
		schedule.SubjectID,
		schedule.Kind,
		schedule.CheckType,
		schedule.Status,
		schedule.Cadence,
		schedule.Config,
		schedule.PausedScheduleIDs,
		schedule.EstimatedCost,
		schedule.CreatedBy,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CheckSchedule, error) {
	var s domain.CheckSchedule
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, subject_id, kind, check_type, status, cadence,
		        config, paused_schedule_ids, estimated_cost, created_by, created_at, updated_at
		 FROM check_schedules WHERE id = ?`,
		id,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, accountID snowflake.ID, subjectID string, kind domain.ScheduleKind) ([]domain.CheckSchedule, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.CheckSchedule{}).
		Where("account_id = ? AND subject_id = ? AND status = ?", accountID, subjectID, domain.StatusActive)

	if kind != "" {
		stmt = stmt.Where("kind = ?", kind)
	}

	var items []domain.CheckSchedule
	if err := stmt.Order("id").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, ids []snowflake.ID, from, to domain.ScheduleStatus, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE check_schedules
		 SET status = ?, updated_at = ?
		 WHERE id IN ? AND status = ?`,
		to,
		at,
		ids,
		from,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM check_schedules WHERE id = ?`,
		id,
	).Error
}
