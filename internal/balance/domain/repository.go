package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Ensure inserts the balance row, treating a unique-constraint
	// conflict on account_id as success.
	Ensure(ctx context.Context, db *gorm.DB, balance *CreditBalance) error

	FindByAccountID(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*CreditBalance, error)

	// SpendPools decrements both pools in one conditional UPDATE guarded
	// by the version read beforehand. Returns false when the guard did
	// not match and the caller must re-read.
	SpendPools(ctx context.Context, db *gorm.DB, accountID snowflake.ID, fromIncluded, fromPurchased, version int64, at time.Time) (bool, error)

	// AddIncluded increments the included pool and, when expireAt is
	// non-nil, overwrites the pool expiration (last writer wins).
	AddIncluded(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64, expireAt *time.Time, at time.Time) (bool, error)

	AddPurchased(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64, at time.Time) (bool, error)

	// ResetIncluded replaces the included pool and its expiration under a
	// version guard. Used when a grant supersedes an expired remainder.
	ResetIncluded(ctx context.Context, db *gorm.DB, accountID snowflake.ID, newIncluded int64, expireAt *time.Time, version int64, at time.Time) (bool, error)

	// MarkMonthlyGrant records the periodic grant instant. Returns false
	// when a grant at or after periodStart is already recorded.
	MarkMonthlyGrant(ctx context.Context, db *gorm.DB, accountID snowflake.ID, periodStart, at time.Time) (bool, error)

	// ListDueForGrant returns balances whose last grant precedes before
	// (or that never received one), limited for batched sweeps.
	ListDueForGrant(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]CreditBalance, error)

	SetPlan(ctx context.Context, db *gorm.DB, accountID snowflake.ID, plan string, at time.Time) (bool, error)

	// OverwritePools replaces both stored pools, used by ledger replay
	// reconciliation.
	OverwritePools(ctx context.Context, db *gorm.DB, accountID snowflake.ID, included, purchased int64, at time.Time) (bool, error)
}
