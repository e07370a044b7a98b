package grants

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	balancedomain "github.com/reviewstack/creditledger/internal/balance/domain"
	balancerepo "github.com/reviewstack/creditledger/internal/balance/repository"
	"github.com/reviewstack/creditledger/internal/clock"
	"github.com/reviewstack/creditledger/internal/config"
	ledgerdomain "github.com/reviewstack/creditledger/internal/ledger/domain"
	ledgerrepo "github.com/reviewstack/creditledger/internal/ledger/repository"
	ledgerservice "github.com/reviewstack/creditledger/internal/ledger/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type sweepFixture struct {
	worker    *Worker
	db        *gorm.DB
	clock     *clock.FakeClock
	genID     *snowflake.Node
	balRepo   balancedomain.Repository
	ledgerSvc ledgerdomain.Service
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&balancedomain.CreditBalance{}, &ledgerdomain.CreditTransaction{}))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 4, 15, 8, 0, 0, 0, time.UTC))
	balRepo := balancerepo.Provide()
	ledgerSvc := ledgerservice.New(ledgerservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fake,
		Repo:        ledgerrepo.Provide(),
		BalanceRepo: balRepo,
	})

	plans, err := config.NewPlansHolder()
	require.NoError(t, err)

	worker := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		Config:      config.Config{GrantSweep: config.GrantSweepConfig{Enabled: true, BatchSize: 10}},
		Plans:       plans,
		Clock:       fake,
		BalanceRepo: balRepo,
		LedgerSvc:   ledgerSvc,
	})

	return &sweepFixture{
		worker:    worker,
		db:        db,
		clock:     fake,
		genID:     node,
		balRepo:   balRepo,
		ledgerSvc: ledgerSvc,
	}
}

func (f *sweepFixture) seedAccount(t *testing.T, plan string) snowflake.ID {
	t.Helper()
	accountID := f.genID.Generate()
	now := f.clock.Now()
	require.NoError(t, f.db.Exec(
		`INSERT INTO credit_balances (id, account_id, plan, included_credits, purchased_credits, version, created_at, updated_at)
		 VALUES (?, ?, ?, 0, 0, 0, ?, ?)`,
		f.genID.Generate(), accountID, plan, now, now,
	).Error)
	return accountID
}

func (f *sweepFixture) balance(t *testing.T, accountID snowflake.ID) balancedomain.CreditBalance {
	t.Helper()
	bal, err := f.balRepo.FindByAccountID(context.Background(), f.db, accountID)
	require.NoError(t, err)
	require.NotNil(t, bal)
	return *bal
}

func TestRunOnce_GrantsPaidPlans(t *testing.T) {
	f := newSweepFixture(t)

	starter := f.seedAccount(t, "starter")
	growth := f.seedAccount(t, "growth")
	free := f.seedAccount(t, "free")

	require.NoError(t, f.worker.RunOnce(context.Background()))

	assert.Equal(t, int64(100), f.balance(t, starter).IncludedCredits)
	assert.Equal(t, int64(500), f.balance(t, growth).IncludedCredits)
	assert.Equal(t, int64(0), f.balance(t, free).IncludedCredits)

	bal := f.balance(t, starter)
	require.NotNil(t, bal.IncludedCreditsExpireAt)
	periodStart := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, bal.IncludedCreditsExpireAt.Equal(periodStart.AddDate(0, 0, 31)))

	rows, err := f.ledgerSvc.ListTransactions(context.Background(), starter, ledgerdomain.ListFilter{
		TransactionType: ledgerdomain.TransactionTypeMonthlyGrant,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, fmt.Sprintf("monthly_grant:%s:2025-04", starter), rows[0].IdempotencyKey)
}

func TestRunOnce_SecondSweepSamePeriodIsNoOp(t *testing.T) {
	f := newSweepFixture(t)
	starter := f.seedAccount(t, "starter")

	require.NoError(t, f.worker.RunOnce(context.Background()))
	require.NoError(t, f.worker.RunOnce(context.Background()))

	assert.Equal(t, int64(100), f.balance(t, starter).IncludedCredits)

	rows, err := f.ledgerSvc.ListTransactions(context.Background(), starter, ledgerdomain.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRunOnce_NextPeriodGrantsAgainAndSupersedesRemainder(t *testing.T) {
	f := newSweepFixture(t)
	starter := f.seedAccount(t, "starter")
	ctx := context.Background()

	require.NoError(t, f.worker.RunOnce(ctx))

	// Spend part of the allotment, then cross into May past the
	// 31-day validity window.
	_, err := f.ledgerSvc.Debit(ctx, starter, 60, ledgerdomain.DebitOptions{IdempotencyKey: "apr-check"})
	require.NoError(t, err)

	f.clock.Advance(45 * 24 * time.Hour)

	require.NoError(t, f.worker.RunOnce(ctx))

	bal := f.balance(t, starter)
	assert.Equal(t, int64(100), bal.IncludedCredits)

	// The forfeited April remainder is recorded, so ledger and
	// projection still agree.
	replay, err := f.ledgerSvc.ReplayBalance(ctx, starter, false)
	require.NoError(t, err)
	assert.True(t, replay.Consistent)
}

func TestRunOnce_UnknownPlanVisitedOnce(t *testing.T) {
	f := newSweepFixture(t)
	odd := f.seedAccount(t, "legacy_gold")

	require.NoError(t, f.worker.RunOnce(context.Background()))

	bal := f.balance(t, odd)
	assert.Equal(t, int64(0), bal.IncludedCredits)
	require.NotNil(t, bal.LastMonthlyGrantAt)

	rows, err := f.ledgerSvc.ListTransactions(context.Background(), odd, ledgerdomain.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
