package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// CreditBalance is the materialized projection of an account's ledger.
// It is mutated only through ledger operations; the transaction log is
// the source of truth.
type CreditBalance struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	AccountID snowflake.ID `gorm:"not null;uniqueIndex:ux_credit_balances_account"`
	Plan      string       `gorm:"type:text;not null;default:'free'"`

	IncludedCredits         int64      `gorm:"not null;default:0"`
	IncludedCreditsExpireAt *time.Time `gorm:""`
	PurchasedCredits        int64      `gorm:"not null;default:0"`

	LastMonthlyGrantAt *time.Time `gorm:""`

	// Version guards the read-compute-write debit cycle. Every pool
	// mutation bumps it; a stale version means the caller must re-read.
	Version int64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CreditBalance) TableName() string { return "credit_balances" }

// EffectiveIncluded returns the spendable included credits at the given
// instant. An expired pool reads as zero even though the stored value is
// untouched until the next grant.
func (b *CreditBalance) EffectiveIncluded(now time.Time) int64 {
	if b.IncludedCreditsExpireAt != nil && !b.IncludedCreditsExpireAt.After(now) {
		return 0
	}
	return b.IncludedCredits
}

// Balance is the effective view returned to callers.
type Balance struct {
	AccountID               string     `json:"account_id"`
	Plan                    string     `json:"plan"`
	TotalCredits            int64      `json:"total_credits"`
	IncludedCredits         int64      `json:"included_credits"`
	IncludedCreditsExpireAt *time.Time `json:"included_credits_expire_at,omitempty"`
	PurchasedCredits        int64      `json:"purchased_credits"`
}
