package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/reviewstack/creditledger/internal/balance/domain"
	"github.com/reviewstack/creditledger/internal/balance/repository"
	"github.com/reviewstack/creditledger/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&domain.CreditBalance{}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
	})
	return svc, db, fake, node
}

func TestEnsureBalanceExists_Idempotent(t *testing.T) {
	svc, db, _, node := newTestService(t)
	accountID := node.Generate()
	ctx := context.Background()

	require.NoError(t, svc.EnsureBalanceExists(ctx, accountID))
	require.NoError(t, svc.EnsureBalanceExists(ctx, accountID))

	var count int64
	require.NoError(t, db.Raw(
		`SELECT COUNT(*) FROM credit_balances WHERE account_id = ?`, accountID,
	).Scan(&count).Error)
	assert.Equal(t, int64(1), count)

	balance, err := svc.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, "free", balance.Plan)
	assert.Zero(t, balance.TotalCredits)
}

func TestEnsureBalanceExists_ConcurrentCallers(t *testing.T) {
	svc, db, _, node := newTestService(t)
	accountID := node.Generate()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.EnsureBalanceExists(context.Background(), accountID)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoErrorf(t, err, "caller %d", i)
	}

	var count int64
	require.NoError(t, db.Raw(
		`SELECT COUNT(*) FROM credit_balances WHERE account_id = ?`, accountID,
	).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGetBalance_ExpiredIncludedReadsAsZero(t *testing.T) {
	svc, db, fake, node := newTestService(t)
	accountID := node.Generate()
	ctx := context.Background()

	require.NoError(t, svc.EnsureBalanceExists(ctx, accountID))

	expireAt := fake.Now().Add(time.Hour)
	require.NoError(t, db.Exec(
		`UPDATE credit_balances
		 SET included_credits = 40, included_credits_expire_at = ?, purchased_credits = 7
		 WHERE account_id = ?`,
		expireAt, accountID,
	).Error)

	balance, err := svc.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance.IncludedCredits)
	assert.Equal(t, int64(47), balance.TotalCredits)

	fake.Advance(2 * time.Hour)

	balance, err = svc.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.IncludedCredits)
	assert.Equal(t, int64(7), balance.TotalCredits)
	assert.Equal(t, int64(7), balance.PurchasedCredits)
}

func TestGetBalance_UnknownAccount(t *testing.T) {
	svc, _, _, node := newTestService(t)

	_, err := svc.GetBalance(context.Background(), node.Generate())
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = svc.GetBalance(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)
}

func TestSetPlan(t *testing.T) {
	svc, _, _, node := newTestService(t)
	accountID := node.Generate()
	ctx := context.Background()

	require.NoError(t, svc.EnsureBalanceExists(ctx, accountID))
	require.NoError(t, svc.SetPlan(ctx, accountID, " Growth "))

	balance, err := svc.GetBalance(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, "growth", balance.Plan)

	assert.ErrorIs(t, svc.SetPlan(ctx, accountID, "  "), domain.ErrInvalidPlan)
	assert.ErrorIs(t, svc.SetPlan(ctx, node.Generate(), "starter"), domain.ErrAccountNotFound)
}
