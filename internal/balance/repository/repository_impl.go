package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/reviewstack/creditledger/internal/balance/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Ensure(ctx context.Context, db *gorm.DB, balance *domain.CreditBalance) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_balances (
			id, account_id, plan, included_credits, included_credits_expire_at,
			purchased_credits, last_monthly_grant_at, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id) DO NOTHING`,
		balance.ID,
		balance.AccountID,
		balance.Plan,
		balance.IncludedCredits,
		balance.IncludedCreditsExpireAt,
		balance.PurchasedCredits,
		balance.LastMonthlyGrantAt,
		balance.Version,
		balance.CreatedAt,
		balance.UpdatedAt,
	).Error
}

func (r *repo) FindByAccountID(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*domain.CreditBalance, error) {
	var b domain.CreditBalance
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, plan, included_credits, included_credits_expire_at,
		        purchased_credits, last_monthly_grant_at, version, created_at, updated_at
		 FROM credit_balances WHERE account_id = ?`,
		accountID,
	).Scan(&b).Error
	if err != nil {
		return nil, err
	}
	if b.ID == 0 {
		return nil, nil
	}
	return &b, nil
}

func (r *repo) SpendPools(ctx context.Context, db *gorm.DB, accountID snowflake.ID, fromIncluded, fromPurchased, version int64, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE credit_balances
		 SET included_credits = included_credits - ?,
		     purchased_credits = purchased_credits - ?,
		     version = version + 1,
		     updated_at = ?
		 WHERE account_id = ?
		   AND version = ?
		   AND included_credits >= ?
		   AND purchased_credits >= ?`,
		fromIncluded,
		fromPurchased,
		at,
		accountID,
		version,
		fromIncluded,
		fromPurchased,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) AddIncluded(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64, expireAt *time.Time, at time.Time) (bool, error) {
	var result *gorm.DB
	if expireAt != nil {
		result = db.WithContext(ctx).Exec(
			`UPDATE credit_balances
			 SET included_credits = included_credits + ?,
			     included_credits_expire_at = ?,
			     version = version + 1,
			     updated_at = ?
			 WHERE account_id = ?`,
			amount,
			expireAt.UTC(),
			at,
			accountID,
		)
	} else {
		result = db.WithContext(ctx).Exec(
			`UPDATE credit_balances
			 SET included_credits = included_credits + ?,
			     version = version + 1,
			     updated_at = ?
			 WHERE account_id = ?`,
			amount,
			at,
			accountID,
		)
	}
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) AddPurchased(ctx context.Context, db *gorm.DB, accountID snowflake.ID, amount int64, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE credit_balances
		 SET purchased_credits = purchased_credits + ?,
		     version = version + 1,
		     updated_at = ?
		 WHERE account_id = ?`,
		amount,
		at,
		accountID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ResetIncluded(ctx context.Context, db *gorm.DB, accountID snowflake.ID, newIncluded int64, expireAt *time.Time, version int64, at time.Time) (bool, error) {
	var expireValue any
	if expireAt != nil {
		expireValue = expireAt.UTC()
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE credit_balances
		 SET included_credits = ?,
		     included_credits_expire_at = ?,
		     version = version + 1,
		     updated_at = ?
		 WHERE account_id = ?
		   AND version = ?`,
		newIncluded,
		expireValue,
		at,
		accountID,
		version,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkMonthlyGrant(ctx context.Context, db *gorm.DB, accountID snowflake.ID, periodStart, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE credit_balances
		 SET last_monthly_grant_at = ?,
		     version = version + 1,
		     updated_at = ?
		 WHERE account_id = ?
		   AND (last_monthly_grant_at IS NULL OR last_monthly_grant_at < ?)`,
		at,
		at,
		accountID,
		periodStart.UTC(),
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListDueForGrant(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.CreditBalance, error) {
	var items []domain.CreditBalance
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, plan, included_credits, included_credits_expire_at,
		        purchased_credits, last_monthly_grant_at, version, created_at, updated_at
		 FROM credit_balances
		 WHERE plan <> 'free'
		   AND (last_monthly_grant_at IS NULL OR last_monthly_grant_at < ?)
		 ORDER BY id
		 LIMIT ?`,
		before.UTC(),
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SetPlan(ctx context.Context, db *gorm.DB, accountID snowflake.ID, plan string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE credit_balances
		 SET plan = ?, updated_at = ?
		 WHERE account_id = ?`,
		plan,
		at,
		accountID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) OverwritePools(ctx context.Context, db *gorm.DB, accountID snowflake.ID, included, purchased int64, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE credit_balances
		 SET included_credits = ?,
		     purchased_credits = ?,
		     version = version + 1,
		     updated_at = ?
		 WHERE account_id = ?`,
		included,
		purchased,
		at,
		accountID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
