package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/reviewstack/creditledger/internal/clock"
	"github.com/reviewstack/creditledger/internal/costing"
	"github.com/reviewstack/creditledger/internal/schedule/domain"
	"github.com/reviewstack/creditledger/internal/schedule/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc   domain.Service
	db    *gorm.DB
	clock *clock.FakeClock
	genID *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&domain.CheckSchedule{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
	})
	return &fixture{svc: svc, db: db, clock: fake, genID: node}
}

func (f *fixture) createIndividual(t *testing.T, accountID snowflake.ID, subjectID, checkType string) *domain.CheckSchedule {
	t.Helper()
	schedule, err := f.svc.CreateIndividual(context.Background(), domain.CreateIndividualRequest{
		AccountID: accountID,
		SubjectID: subjectID,
		CheckType: checkType,
		Cadence:   "daily",
		Config:    map[string]any{"search_terms": []any{"plumber near me"}},
	})
	require.NoError(t, err)
	return schedule
}

func TestCreateConsolidated_PausesIndividuals(t *testing.T) {
	f := newFixture(t)
	accountID := f.genID.Generate()
	ctx := context.Background()

	first := f.createIndividual(t, accountID, "location-1", "rank_check")
	second := f.createIndividual(t, accountID, "location-1", "geo_grid")
	other := f.createIndividual(t, accountID, "location-2", "rank_check")

	resp, err := f.svc.CreateConsolidated(ctx, domain.CreateConsolidatedRequest{
		AccountID: accountID,
		SubjectID: "location-1",
		Cadence:   "weekly",
		Selections: costing.FeatureSelections{
			RankCheck: costing.RankCheckSelection{SearchTerms: 5, Devices: 2},
			GeoGrid:   costing.GeoGridSelection{Enabled: true, GridPoints: 9},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(19), resp.Breakdown.Total)
	assert.Equal(t, int64(19), resp.Schedule.EstimatedCost)
	assert.ElementsMatch(t, []string{first.ID.String(), second.ID.String()}, resp.PausedIDs)

	paused, err := f.svc.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, paused.Status)

	// Config on paused schedules survives untouched for restoration.
	assert.Len(t, paused.Config, 1)

	// A different subject is unaffected.
	untouched, err := f.svc.GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, untouched.Status)
}

func TestCreateConsolidated_NoExistingSchedules(t *testing.T) {
	f := newFixture(t)
	accountID := f.genID.Generate()

	resp, err := f.svc.CreateConsolidated(context.Background(), domain.CreateConsolidatedRequest{
		AccountID: accountID,
		SubjectID: "location-9",
		Cadence:   "weekly",
	})
	require.NoError(t, err)
	assert.Empty(t, resp.PausedIDs)
	assert.Zero(t, resp.Breakdown.Total)
	assert.Equal(t, domain.StatusActive, resp.Schedule.Status)
}

func TestCreateIndividual_RejectedUnderActiveConsolidated(t *testing.T) {
	f := newFixture(t)
	accountID := f.genID.Generate()
	ctx := context.Background()

	resp, err := f.svc.CreateConsolidated(ctx, domain.CreateConsolidatedRequest{
		AccountID: accountID,
		SubjectID: "location-1",
		Cadence:   "weekly",
	})
	require.NoError(t, err)

	_, err = f.svc.CreateIndividual(ctx, domain.CreateIndividualRequest{
		AccountID: accountID,
		SubjectID: "location-1",
		CheckType: "rank_check",
		Cadence:   "daily",
	})
	assert.ErrorIs(t, err, domain.ErrSubjectConsolidated)

	// Only the consolidated schedule bills the subject.
	var active int64
	require.NoError(t, f.db.Raw(
		`SELECT COUNT(*) FROM check_schedules WHERE account_id = ? AND subject_id = ? AND status = ?`,
		accountID, "location-1", domain.StatusActive,
	).Scan(&active).Error)
	assert.Equal(t, int64(1), active)

	// Other subjects are unaffected.
	f.createIndividual(t, accountID, "location-2", "rank_check")

	// Once the consolidated schedule is removed the subject accepts
	// individual schedules again.
	require.NoError(t, f.svc.DeleteConsolidated(ctx, resp.Schedule.ID))
	f.createIndividual(t, accountID, "location-1", "rank_check")
}

func TestCreateConsolidated_RejectsSecondActive(t *testing.T) {
	f := newFixture(t)
	accountID := f.genID.Generate()
	ctx := context.Background()

	_, err := f.svc.CreateConsolidated(ctx, domain.CreateConsolidatedRequest{
		AccountID: accountID,
		SubjectID: "location-1",
		Cadence:   "weekly",
	})
	require.NoError(t, err)

	_, err = f.svc.CreateConsolidated(ctx, domain.CreateConsolidatedRequest{
		AccountID: accountID,
		SubjectID: "location-1",
		Cadence:   "daily",
	})
	assert.ErrorIs(t, err, domain.ErrConsolidatedExists)
}

func TestRestore_RoundTrip(t *testing.T) {
	f := newFixture(t)
	accountID := f.genID.Generate()
	ctx := context.Background()

	individual := f.createIndividual(t, accountID, "location-1", "rank_check")

	resp, err := f.svc.CreateConsolidated(ctx, domain.CreateConsolidatedRequest{
		AccountID: accountID,
		SubjectID: "location-1",
		Cadence:   "weekly",
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.RestorePausedSchedulesByConsolidatedID(ctx, resp.Schedule.ID))

	restored, err := f.svc.GetByID(ctx, individual.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, restored.Status)
	assert.Equal(t, "daily", restored.Cadence)

	// Restore pauses the consolidated row in the same stroke; the
	// restored individual is the subject's only active schedule.
	consolidated, err := f.svc.GetByID(ctx, resp.Schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, consolidated.Status)

	var active int64
	require.NoError(t, f.db.Raw(
		`SELECT COUNT(*) FROM check_schedules WHERE account_id = ? AND subject_id = ? AND status = ?`,
		accountID, "location-1", domain.StatusActive,
	).Scan(&active).Error)
	assert.Equal(t, int64(1), active)
}

func TestRestore_SkipsStaleReferences(t *testing.T) {
	f := newFixture(t)
	accountID := f.genID.Generate()
	ctx := context.Background()

	kept := f.createIndividual(t, accountID, "location-1", "rank_check")
	deleted := f.createIndividual(t, accountID, "location-1", "geo_grid")

	resp, err := f.svc.CreateConsolidated(ctx, domain.CreateConsolidatedRequest{
		AccountID: accountID,
		SubjectID: "location-1",
		Cadence:   "weekly",
	})
	require.NoError(t, err)

	// One of the paused originals disappears before restore.
	require.NoError(t, f.db.Exec(`DELETE FROM check_schedules WHERE id = ?`, deleted.ID).Error)

	require.NoError(t, f.svc.RestorePausedSchedulesByConsolidatedID(ctx, resp.Schedule.ID))

	restored, err := f.svc.GetByID(ctx, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, restored.Status)
}

func TestRestore_Validation(t *testing.T) {
	f := newFixture(t)
	accountID := f.genID.Generate()

	err := f.svc.RestorePausedSchedulesByConsolidatedID(context.Background(), f.genID.Generate())
	assert.ErrorIs(t, err, domain.ErrScheduleNotFound)

	individual := f.createIndividual(t, accountID, "location-1", "rank_check")
	err = f.svc.RestorePausedSchedulesByConsolidatedID(context.Background(), individual.ID)
	assert.ErrorIs(t, err, domain.ErrNotConsolidated)
}

func TestDeleteConsolidated_RestoresFirst(t *testing.T) {
	f := newFixture(t)
	accountID := f.genID.Generate()
	ctx := context.Background()

	individual := f.createIndividual(t, accountID, "location-1", "rank_check")

	resp, err := f.svc.CreateConsolidated(ctx, domain.CreateConsolidatedRequest{
		AccountID: accountID,
		SubjectID: "location-1",
		Cadence:   "weekly",
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteConsolidated(ctx, resp.Schedule.ID))

	_, err = f.svc.GetByID(ctx, resp.Schedule.ID)
	assert.ErrorIs(t, err, domain.ErrScheduleNotFound)

	restored, err := f.svc.GetByID(ctx, individual.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, restored.Status)

	// With the consolidated schedule gone, a new one may be created.
	_, err = f.svc.CreateConsolidated(ctx, domain.CreateConsolidatedRequest{
		AccountID: accountID,
		SubjectID: "location-1",
		Cadence:   "monthly",
	})
	require.NoError(t, err)
}

func TestPauseExistingSchedules_AlreadyPausedNotDoublePaused(t *testing.T) {
	f := newFixture(t)
	accountID := f.genID.Generate()
	ctx := context.Background()

	individual := f.createIndividual(t, accountID, "location-1", "rank_check")

	paused, err := f.svc.PauseExistingSchedules(ctx, accountID, "location-1")
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{individual.ID}, paused)

	// A second pause finds nothing active.
	paused, err = f.svc.PauseExistingSchedules(ctx, accountID, "location-1")
	require.NoError(t, err)
	assert.Empty(t, paused)
}
