package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/reviewstack/creditledger/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, txn *domain.CreditTransaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_transactions (
			id, account_id, amount, credit_pool, transaction_type, idempotency_key,
			feature_type, feature_metadata, description, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.AccountID,
		txn.Amount,
		txn.CreditPool,
		txn.TransactionType,
		txn.IdempotencyKey,
		txn.FeatureType,
		txn.FeatureMetadata,
		txn.Description,
		txn.CreatedBy,
		txn.CreatedAt,
	).Error
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, accountID snowflake.ID, key string) ([]domain.CreditTransaction, error) {
	// The companion forfeiture row lives under a derived key; fetching
	// both keeps replayed calls identical to the original result.
	var items []domain.CreditTransaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, amount, credit_pool, transaction_type, idempotency_key,
		        feature_type, feature_metadata, description, created_by, created_at
		 FROM credit_transactions
		 WHERE account_id = ? AND idempotency_key IN (?, ?)
		 ORDER BY credit_pool, id`,
		accountID,
		key,
		domain.ExpiryResetKey(key),
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, accountID snowflake.ID, filter domain.ListFilter) ([]domain.CreditTransaction, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.CreditTransaction{}).
		Where("account_id = ?", accountID)

	if filter.TransactionType != "" {
		stmt = stmt.Where("transaction_type = ?", filter.TransactionType)
	}
	if filter.FeatureType != "" {
		stmt = stmt.Where("feature_type = ?", filter.FeatureType)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var items []domain.CreditTransaction
	if err := stmt.Order("created_at DESC, id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SumPools(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, int64, error) {
	type poolSum struct {
		CreditPool string
		Total      int64
	}
	var sums []poolSum
	err := db.WithContext(ctx).Raw(
		`SELECT credit_pool, COALESCE(SUM(amount), 0) AS total
		 FROM credit_transactions
		 WHERE account_id = ?
		 GROUP BY credit_pool`,
		accountID,
	).Scan(&sums).Error
	if err != nil {
		return 0, 0, err
	}

	var included, purchased int64
	for _, s := range sums {
		switch domain.CreditPool(s.CreditPool) {
		case domain.PoolIncluded:
			included = s.Total
		case domain.PoolPurchased:
			purchased = s.Total
		}
	}
	return included, purchased, nil
}
