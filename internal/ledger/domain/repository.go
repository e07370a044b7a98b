package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, txn *CreditTransaction) error

	// FindByIdempotencyKey returns every row recorded under the key for
	// the account, ordered by pool so pool-spanning debits replay
	// deterministically.
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, accountID snowflake.ID, key string) ([]CreditTransaction, error)

	List(ctx context.Context, db *gorm.DB, accountID snowflake.ID, filter ListFilter) ([]CreditTransaction, error)

	// SumPools returns the signed sum of all rows per pool.
	SumPools(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (included, purchased int64, err error)
}
