package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Debit atomically checks and decrements the balance, preferring the
	// included pool, and appends one ledger row per pool touched. A
	// repeated idempotency key returns the originally written rows
	// without re-evaluating the balance.
	Debit(ctx context.Context, accountID snowflake.ID, amount int64, opts DebitOptions) ([]CreditTransaction, error)

	// Credit atomically increments the chosen pool and appends one
	// ledger row, with the same idempotency short-circuit as Debit.
	Credit(ctx context.Context, accountID snowflake.ID, amount int64, opts CreditOptions) ([]CreditTransaction, error)

	// Refund is the compensating-credit primitive for callers whose paid
	// work failed after a successful debit. Never invoked automatically.
	Refund(ctx context.Context, accountID snowflake.ID, amount int64, opts CreditOptions) ([]CreditTransaction, error)

	ListTransactions(ctx context.Context, accountID snowflake.ID, filter ListFilter) ([]CreditTransaction, error)

	// ReplayBalance reconstructs both pools from the transaction log and
	// compares them with the stored projection, optionally repairing it.
	ReplayBalance(ctx context.Context, accountID snowflake.ID, repair bool) (ReplayResult, error)
}

var (
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrMissingIdempotencyKey  = errors.New("missing_idempotency_key")
	ErrInvalidPool            = errors.New("invalid_credit_pool")
	ErrInvalidTransactionType = errors.New("invalid_transaction_type")
	ErrInvalidExpiration      = errors.New("invalid_expiration")
	ErrAlreadyGranted         = errors.New("monthly_grant_already_recorded")
	ErrSpendContention        = errors.New("spend_contention")
)

// InsufficientCreditsError is the only expected failure mode for Debit.
// It is never a side effect: nothing is written when it is returned.
type InsufficientCreditsError struct {
	Required  int64 `json:"required"`
	Available int64 `json:"available"`
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}
