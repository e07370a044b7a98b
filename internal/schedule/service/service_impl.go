package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/reviewstack/creditledger/internal/clock"
	"github.com/reviewstack/creditledger/internal/costing"
	"github.com/reviewstack/creditledger/internal/schedule/domain"
	"github.com/reviewstack/creditledger/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	metrics *telemetry.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("schedule.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) CreateIndividual(ctx context.Context, req domain.CreateIndividualRequest) (*domain.CheckSchedule, error) {
	if req.AccountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	subjectID := strings.TrimSpace(req.SubjectID)
	if subjectID == "" {
		return nil, domain.ErrInvalidSubject
	}
	checkType := strings.TrimSpace(req.CheckType)
	if checkType == "" {
		return nil, domain.ErrInvalidCheckType
	}
	cadence := strings.TrimSpace(req.Cadence)
	if cadence == "" {
		return nil, domain.ErrInvalidCadence
	}

	now := s.clock.Now()
	record := &domain.CheckSchedule{
		ID:        s.genID.Generate(),
		AccountID: req.AccountID,
		SubjectID: subjectID,
		Kind:      domain.KindIndividual,
		CheckType: checkType,
		Status:    domain.StatusActive,
		Cadence:   cadence,
		CreatedBy: createdByOrSystem(req.CreatedBy),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Config != nil {
		record.Config = datatypes.JSONMap(req.Config)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A live consolidated schedule already bills the subject; an
		// active individual next to it would bill the checks twice.
		consolidated, err := s.repo.ListActive(ctx, tx, req.AccountID, subjectID, domain.KindConsolidated)
		if err != nil {
			return err
		}
		if len(consolidated) > 0 {
			return domain.ErrSubjectConsolidated
		}
		return s.repo.Insert(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) PauseExistingSchedules(ctx context.Context, accountID snowflake.ID, subjectID string) ([]snowflake.ID, error) {
	if accountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, domain.ErrInvalidSubject
	}

	var paused []snowflake.ID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := s.repo.ListActive(ctx, tx, accountID, subjectID, domain.KindIndividual)
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(active))
		for _, schedule := range active {
			ids = append(ids, schedule.ID)
		}
		if _, err := s.repo.UpdateStatus(ctx, tx, ids, domain.StatusActive, domain.StatusPaused, s.clock.Now()); err != nil {
			return err
		}
		paused = ids
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paused, nil
}

func (s *Service) RestorePausedSchedulesByConsolidatedID(ctx context.Context, consolidatedID snowflake.ID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		schedule, err := s.repo.FindByID(ctx, tx, consolidatedID)
		if err != nil {
			return err
		}
		if schedule == nil {
			return domain.ErrScheduleNotFound
		}
		if schedule.Kind != domain.KindConsolidated {
			return domain.ErrNotConsolidated
		}

		now := s.clock.Now()

		// The consolidated schedule steps aside in the same transaction:
		// restoring individuals under a still-active consolidated row
		// would bill the subject twice.
		if schedule.Status == domain.StatusActive {
			if _, err := s.repo.UpdateStatus(ctx, tx, []snowflake.ID{schedule.ID}, domain.StatusActive, domain.StatusPaused, now); err != nil {
				return err
			}
		}

		if len(schedule.PausedScheduleIDs) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(schedule.PausedScheduleIDs))
		for _, raw := range schedule.PausedScheduleIDs {
			parsed, err := snowflake.ParseString(raw)
			if err != nil {
				// A malformed reference is stale by definition.
				s.log.Warn("skipping unparseable paused schedule reference",
					zap.String("consolidated_id", consolidatedID.String()),
					zap.String("reference", raw),
				)
				continue
			}
			ids = append(ids, parsed)
		}

		// Deleted originals simply do not match; restoration of the rest
		// proceeds.
		restored, err := s.repo.UpdateStatus(ctx, tx, ids, domain.StatusPaused, domain.StatusActive, now)
		if err != nil {
			return err
		}
		if restored < int64(len(ids)) {
			s.log.Info("some paused schedules were stale during restore",
				zap.String("consolidated_id", consolidatedID.String()),
				zap.Int64("restored", restored),
				zap.Int("referenced", len(ids)),
			)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.metrics.RecordScheduleOverride("restore")
	return nil
}

func (s *Service) CreateConsolidated(ctx context.Context, req domain.CreateConsolidatedRequest) (*domain.ConsolidatedResponse, error) {
	if req.AccountID == 0 {
		return nil, domain.ErrInvalidAccount
	}
	subjectID := strings.TrimSpace(req.SubjectID)
	if subjectID == "" {
		return nil, domain.ErrInvalidSubject
	}
	cadence := strings.TrimSpace(req.Cadence)
	if cadence == "" {
		return nil, domain.ErrInvalidCadence
	}

	breakdown := costing.Calculate(req.Selections)

	var response *domain.ConsolidatedResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.ListActive(ctx, tx, req.AccountID, subjectID, domain.KindConsolidated)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return domain.ErrConsolidatedExists
		}

		now := s.clock.Now()

		active, err := s.repo.ListActive(ctx, tx, req.AccountID, subjectID, domain.KindIndividual)
		if err != nil {
			return err
		}
		pausedIDs := make([]string, 0, len(active))
		if len(active) > 0 {
			ids := make([]snowflake.ID, 0, len(active))
			for _, schedule := range active {
				ids = append(ids, schedule.ID)
				pausedIDs = append(pausedIDs, schedule.ID.String())
			}
			if _, err := s.repo.UpdateStatus(ctx, tx, ids, domain.StatusActive, domain.StatusPaused, now); err != nil {
				return err
			}
		}

		record := &domain.CheckSchedule{
			ID:                s.genID.Generate(),
			AccountID:         req.AccountID,
			SubjectID:         subjectID,
			Kind:              domain.KindConsolidated,
			CheckType:         "combined",
			Status:            domain.StatusActive,
			Cadence:           cadence,
			PausedScheduleIDs: datatypes.JSONSlice[string](pausedIDs),
			EstimatedCost:     breakdown.Total,
			CreatedBy:         createdByOrSystem(req.CreatedBy),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if req.Config != nil {
			record.Config = datatypes.JSONMap(req.Config)
		}

		if err := s.repo.Insert(ctx, tx, record); err != nil {
			return err
		}

		response = &domain.ConsolidatedResponse{
			Schedule:  *record,
			Breakdown: breakdown,
			PausedIDs: pausedIDs,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordScheduleOverride("consolidate")
	return response, nil
}

func (s *Service) DeleteConsolidated(ctx context.Context, consolidatedID snowflake.ID) error {
	schedule, err := s.repo.FindByID(ctx, s.db, consolidatedID)
	if err != nil {
		return err
	}
	if schedule == nil {
		return domain.ErrScheduleNotFound
	}
	if schedule.Kind != domain.KindConsolidated {
		return domain.ErrNotConsolidated
	}

	// Restoration failure must not block deletion: an orphaned paused
	// schedule is recoverable manually, a stuck consolidated one is not.
	if err := s.RestorePausedSchedulesByConsolidatedID(ctx, consolidatedID); err != nil {
		s.log.Warn("failed to restore paused schedules before delete",
			zap.String("consolidated_id", consolidatedID.String()),
			zap.Error(err),
		)
	}

	if err := s.repo.Delete(ctx, s.db, consolidatedID); err != nil {
		return err
	}
	s.metrics.RecordScheduleOverride("delete")
	return nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.CheckSchedule, error) {
	schedule, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, domain.ErrScheduleNotFound
	}
	return schedule, nil
}

func createdByOrSystem(createdBy string) string {
	createdBy = strings.TrimSpace(createdBy)
	if createdBy == "" {
		return "system"
	}
	return createdBy
}
