package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// CreditPool identifies which balance pool a transaction touched.
type CreditPool string

const (
	// PoolIncluded expires periodically and is spent first.
	PoolIncluded CreditPool = "included"
	// PoolPurchased never expires.
	PoolPurchased CreditPool = "purchased"
)

// TransactionType classifies a ledger row.
type TransactionType string

const (
	TransactionTypeDebit        TransactionType = "debit"
	TransactionTypeCredit       TransactionType = "credit"
	TransactionTypePromoGrant   TransactionType = "promo_grant"
	TransactionTypeMonthlyGrant TransactionType = "monthly_grant"
	TransactionTypeRefund       TransactionType = "refund"

	// TransactionTypeExpiryReset records the forfeiture of an expired
	// included remainder at the moment a new grant replaces it, so the
	// ledger sum always reconstructs the stored pools exactly.
	TransactionTypeExpiryReset TransactionType = "expiry_reset"
)

// ExpiryResetKey derives the reserved idempotency key of the forfeiture
// row recorded alongside the credit stored under key. Lookups by key
// must return both rows so a replayed call sees the original result.
func ExpiryResetKey(key string) string {
	return "expiry_reset:" + key
}

// CreditTransaction is an append-only ledger row. Rows are never mutated
// or deleted; compensating actions are new refund/credit rows.
//
// Uniqueness is enforced per (account_id, idempotency_key, credit_pool):
// a debit spanning both pools records one row per pool under a single
// caller-supplied key, and the idempotency lookup is by account and key.
type CreditTransaction struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	AccountID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_credit_transactions_idem,priority:1"`

	// Amount is signed: positive for credit, negative for debit.
	Amount          int64           `gorm:"not null"`
	CreditPool      CreditPool      `gorm:"type:text;not null;uniqueIndex:ux_credit_transactions_idem,priority:3"`
	TransactionType TransactionType `gorm:"type:text;not null"`
	IdempotencyKey  string          `gorm:"type:text;not null;uniqueIndex:ux_credit_transactions_idem,priority:2"`

	FeatureType     string            `gorm:"type:text"`
	FeatureMetadata datatypes.JSONMap `gorm:"type:jsonb"`
	Description     string            `gorm:"type:text"`
	CreatedBy       string            `gorm:"type:text;not null;default:'system'"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

// TableName sets the database table name.
func (CreditTransaction) TableName() string { return "credit_transactions" }

// DebitOptions carries the idempotency key and audit context for a debit.
type DebitOptions struct {
	IdempotencyKey  string
	FeatureType     string
	FeatureMetadata map[string]any
	Description     string
	CreatedBy       string
}

// CreditOptions carries pool selection, audit context and the optional
// new included-pool expiration for a credit.
type CreditOptions struct {
	IdempotencyKey  string
	CreditType      CreditPool
	TransactionType TransactionType
	FeatureType     string
	FeatureMetadata map[string]any
	Description     string
	CreatedBy       string

	// ExpiresAt overwrites the included pool expiration (last writer
	// wins). Only valid with CreditType included.
	ExpiresAt *time.Time

	// PeriodStart marks the billing period for monthly grants; a grant
	// already recorded at or after it is rejected.
	PeriodStart *time.Time
}

// ListFilter narrows transaction listings for reporting.
type ListFilter struct {
	TransactionType TransactionType
	FeatureType     string
	Limit           int
}

// ReplayResult compares the ledger-derived pools with the stored
// projection.
type ReplayResult struct {
	AccountID         string `json:"account_id"`
	IncludedComputed  int64  `json:"included_computed"`
	PurchasedComputed int64  `json:"purchased_computed"`
	IncludedStored    int64  `json:"included_stored"`
	PurchasedStored   int64  `json:"purchased_stored"`
	Consistent        bool   `json:"consistent"`
	Repaired          bool   `json:"repaired"`
}
