package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/reviewstack/creditledger/internal/costing"
)

type Service interface {
	// PauseExistingSchedules suspends every active individual schedule
	// for the subject and returns their ids. No schedules is not an
	// error; the returned slice is simply empty.
	PauseExistingSchedules(ctx context.Context, accountID snowflake.ID, subjectID string) ([]snowflake.ID, error)

	// RestorePausedSchedulesByConsolidatedID pauses the consolidated
	// schedule and flips the schedules recorded on it back to active,
	// both in one transaction. Stale references are skipped, not
	// failures.
	RestorePausedSchedulesByConsolidatedID(ctx context.Context, consolidatedID snowflake.ID) error

	// CreateConsolidated pauses the subject's individual schedules and
	// creates the combined schedule priced from its feature selections.
	CreateConsolidated(ctx context.Context, req CreateConsolidatedRequest) (*ConsolidatedResponse, error)

	// DeleteConsolidated always attempts restoration first, then
	// deletes. Restoration failure is logged and never blocks deletion.
	DeleteConsolidated(ctx context.Context, consolidatedID snowflake.ID) error

	// CreateIndividual rejects with ErrSubjectConsolidated while a
	// consolidated schedule is active for the subject: the two kinds
	// never bill concurrently.
	CreateIndividual(ctx context.Context, req CreateIndividualRequest) (*CheckSchedule, error)

	GetByID(ctx context.Context, id snowflake.ID) (*CheckSchedule, error)
}

type CreateIndividualRequest struct {
	AccountID snowflake.ID
	SubjectID string
	CheckType string
	Cadence   string
	Config    map[string]any
	CreatedBy string
}

type CreateConsolidatedRequest struct {
	AccountID  snowflake.ID
	SubjectID  string
	Cadence    string
	Selections costing.FeatureSelections
	Config     map[string]any
	CreatedBy  string
}

type ConsolidatedResponse struct {
	Schedule  CheckSchedule         `json:"schedule"`
	Breakdown costing.CostBreakdown `json:"breakdown"`
	PausedIDs []string              `json:"paused_schedule_ids"`
}

var (
	ErrInvalidAccount     = errors.New("invalid_account")
	ErrInvalidSubject     = errors.New("invalid_subject")
	ErrInvalidCheckType   = errors.New("invalid_check_type")
	ErrInvalidCadence     = errors.New("invalid_cadence")
	ErrScheduleNotFound    = errors.New("schedule_not_found")
	ErrNotConsolidated     = errors.New("schedule_not_consolidated")
	ErrConsolidatedExists  = errors.New("consolidated_schedule_exists")
	ErrSubjectConsolidated = errors.New("subject_has_consolidated_schedule")
)
