package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// EnsureBalanceExists creates a zero-valued balance row if none
	// exists. Concurrent callers racing on the same account all succeed.
	EnsureBalanceExists(ctx context.Context, accountID snowflake.ID) error

	// GetBalance returns the effective balance at read time: an expired
	// included pool counts as zero.
	GetBalance(ctx context.Context, accountID snowflake.ID) (Balance, error)

	// SetPlan tags the account with a plan code used by the monthly
	// grant sweep.
	SetPlan(ctx context.Context, accountID snowflake.ID, plan string) error
}

var (
	ErrInvalidAccount  = errors.New("invalid_account")
	ErrAccountNotFound = errors.New("account_not_found")
	ErrInvalidPlan     = errors.New("invalid_plan")
)
