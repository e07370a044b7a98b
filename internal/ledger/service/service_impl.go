package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/reviewstack/creditledger/internal/actorctx"
	balancedomain "github.com/reviewstack/creditledger/internal/balance/domain"
	"github.com/reviewstack/creditledger/internal/clock"
	ledgerdomain "github.com/reviewstack/creditledger/internal/ledger/domain"
	"github.com/reviewstack/creditledger/pkg/db"
	"github.com/reviewstack/creditledger/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// spendRetries bounds the version-guard retry loop. Contention on one
// account beyond this is surfaced to the caller for retry.
const spendRetries = 5

var errSpendConflict = errors.New("balance version conflict")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        ledgerdomain.Repository
	BalanceRepo balancedomain.Repository
	Metrics     *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        ledgerdomain.Repository
	balanceRepo balancedomain.Repository
	metrics     *telemetry.Metrics
}

func New(p Params) ledgerdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ledger.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		balanceRepo: p.BalanceRepo,
		metrics:     p.Metrics,
	}
}

func (s *Service) Debit(ctx context.Context, accountID snowflake.ID, amount int64, opts ledgerdomain.DebitOptions) ([]ledgerdomain.CreditTransaction, error) {
	if accountID == 0 {
		return nil, balancedomain.ErrInvalidAccount
	}
	if amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	key := strings.TrimSpace(opts.IdempotencyKey)
	if key == "" {
		return nil, ledgerdomain.ErrMissingIdempotencyKey
	}

	// Idempotency check first: a retried call must see the recorded
	// outcome without touching the balance again.
	existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, accountID, key)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		s.metrics.RecordIdempotentReplay("debit")
		return existing, nil
	}

	createdBy := strings.TrimSpace(opts.CreatedBy)
	if createdBy == "" {
		createdBy = actorctx.ActorFromContext(ctx)
	}

	start := time.Now()
	for attempt := 0; attempt < spendRetries; attempt++ {
		var (
			written   []ledgerdomain.CreditTransaction
			duplicate bool
		)
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			bal, err := s.balanceRepo.FindByAccountID(ctx, tx, accountID)
			if err != nil {
				return err
			}
			if bal == nil {
				return balancedomain.ErrAccountNotFound
			}

			now := s.clock.Now()
			effIncluded := bal.EffectiveIncluded(now)
			available := effIncluded + bal.PurchasedCredits
			if available < amount {
				return &ledgerdomain.InsufficientCreditsError{Required: amount, Available: available}
			}

			// Spend the expiring pool first.
			fromIncluded := amount
			if fromIncluded > effIncluded {
				fromIncluded = effIncluded
			}
			fromPurchased := amount - fromIncluded

			ok, err := s.balanceRepo.SpendPools(ctx, tx, accountID, fromIncluded, fromPurchased, bal.Version, now)
			if err != nil {
				return err
			}
			if !ok {
				return errSpendConflict
			}

			rows := make([]ledgerdomain.CreditTransaction, 0, 2)
			if fromIncluded > 0 {
				rows = append(rows, s.buildRow(accountID, -fromIncluded, ledgerdomain.PoolIncluded, ledgerdomain.TransactionTypeDebit, key, opts, createdBy, now))
			}
			if fromPurchased > 0 {
				rows = append(rows, s.buildRow(accountID, -fromPurchased, ledgerdomain.PoolPurchased, ledgerdomain.TransactionTypeDebit, key, opts, createdBy, now))
			}
			for i := range rows {
				if err := s.repo.Insert(ctx, tx, &rows[i]); err != nil {
					if db.IsDuplicateKeyErr(err) {
						duplicate = true
					}
					return err
				}
			}
			written = rows
			return nil
		})
		if err == nil {
			s.metrics.RecordDebit(opts.FeatureType)
			s.metrics.ObserveDebitDuration("accepted", time.Since(start))
			return written, nil
		}

		if duplicate {
			// A concurrent call with the same key committed first; the
			// whole transaction rolled back, so the balance was charged
			// exactly once. Return its recorded outcome.
			rows, ferr := s.repo.FindByIdempotencyKey(ctx, s.db, accountID, key)
			if ferr != nil {
				return nil, ferr
			}
			s.metrics.RecordIdempotentReplay("debit")
			return rows, nil
		}
		if errors.Is(err, errSpendConflict) {
			continue
		}

		var insufficient *ledgerdomain.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			s.metrics.RecordInsufficientCredits(opts.FeatureType)
			s.metrics.ObserveDebitDuration("insufficient", time.Since(start))
			return nil, insufficient
		}
		return nil, err
	}

	s.log.Warn("debit retries exhausted",
		zap.String("account_id", accountID.String()),
		zap.String("idempotency_key", key),
	)
	s.metrics.ObserveDebitDuration("contended", time.Since(start))
	return nil, ledgerdomain.ErrSpendContention
}

func (s *Service) Credit(ctx context.Context, accountID snowflake.ID, amount int64, opts ledgerdomain.CreditOptions) ([]ledgerdomain.CreditTransaction, error) {
	if accountID == 0 {
		return nil, balancedomain.ErrInvalidAccount
	}
	if amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	key := strings.TrimSpace(opts.IdempotencyKey)
	if key == "" {
		return nil, ledgerdomain.ErrMissingIdempotencyKey
	}

	pool, err := normalizePool(opts.CreditType)
	if err != nil {
		return nil, err
	}
	txnType, err := normalizeCreditType(opts.TransactionType)
	if err != nil {
		return nil, err
	}
	if opts.ExpiresAt != nil && pool != ledgerdomain.PoolIncluded {
		return nil, ledgerdomain.ErrInvalidExpiration
	}

	existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, accountID, key)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		s.metrics.RecordIdempotentReplay("credit")
		return existing, nil
	}

	createdBy := strings.TrimSpace(opts.CreatedBy)
	if createdBy == "" {
		createdBy = actorctx.ActorFromContext(ctx)
	}

	for attempt := 0; attempt < spendRetries; attempt++ {
		var (
			written   []ledgerdomain.CreditTransaction
			duplicate bool
		)
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			now := s.clock.Now()

			seed := &balancedomain.CreditBalance{
				ID:        s.genID.Generate(),
				AccountID: accountID,
				Plan:      "free",
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.balanceRepo.Ensure(ctx, tx, seed); err != nil {
				return err
			}
			bal, err := s.balanceRepo.FindByAccountID(ctx, tx, accountID)
			if err != nil {
				return err
			}
			if bal == nil {
				return balancedomain.ErrAccountNotFound
			}

			if txnType == ledgerdomain.TransactionTypeMonthlyGrant {
				// Absent a caller-supplied period, the calendar month
				// boundary guards the grant: a repeat within the same
				// month under a fresh key must still be rejected.
				periodStart := monthStart(now)
				if opts.PeriodStart != nil {
					periodStart = opts.PeriodStart.UTC()
				}
				marked, err := s.balanceRepo.MarkMonthlyGrant(ctx, tx, accountID, periodStart, now)
				if err != nil {
					return err
				}
				if !marked {
					return ledgerdomain.ErrAlreadyGranted
				}
				// Marking bumped the version; re-read so the pool
				// update below guards against the current one.
				bal, err = s.balanceRepo.FindByAccountID(ctx, tx, accountID)
				if err != nil {
					return err
				}
				if bal == nil {
					return balancedomain.ErrAccountNotFound
				}
			}

			rows := make([]ledgerdomain.CreditTransaction, 0, 2)

			switch pool {
			case ledgerdomain.PoolIncluded:
				// A new expiration supersedes an expired remainder: the
				// forfeiture is recorded so the ledger sum still matches
				// the stored pool.
				leftover := int64(0)
				if opts.ExpiresAt != nil && bal.EffectiveIncluded(now) == 0 {
					leftover = bal.IncludedCredits
				}
				if leftover > 0 {
					reset := ledgerdomain.CreditTransaction{
						ID:              s.genID.Generate(),
						AccountID:       accountID,
						Amount:          -leftover,
						CreditPool:      ledgerdomain.PoolIncluded,
						TransactionType: ledgerdomain.TransactionTypeExpiryReset,
						IdempotencyKey:  ledgerdomain.ExpiryResetKey(key),
						Description:     "expired included credits superseded by new grant",
						CreatedBy:       createdBy,
						CreatedAt:       now,
					}
					ok, err := s.balanceRepo.ResetIncluded(ctx, tx, accountID, amount, opts.ExpiresAt, bal.Version, now)
					if err != nil {
						return err
					}
					if !ok {
						return errSpendConflict
					}
					if err := s.repo.Insert(ctx, tx, &reset); err != nil {
						if db.IsDuplicateKeyErr(err) {
							duplicate = true
						}
						return err
					}
					rows = append(rows, reset)
				} else {
					ok, err := s.balanceRepo.AddIncluded(ctx, tx, accountID, amount, opts.ExpiresAt, now)
					if err != nil {
						return err
					}
					if !ok {
						return balancedomain.ErrAccountNotFound
					}
				}
			case ledgerdomain.PoolPurchased:
				ok, err := s.balanceRepo.AddPurchased(ctx, tx, accountID, amount, now)
				if err != nil {
					return err
				}
				if !ok {
					return balancedomain.ErrAccountNotFound
				}
			}

			row := ledgerdomain.CreditTransaction{
				ID:              s.genID.Generate(),
				AccountID:       accountID,
				Amount:          amount,
				CreditPool:      pool,
				TransactionType: txnType,
				IdempotencyKey:  key,
				FeatureType:     opts.FeatureType,
				Description:     opts.Description,
				CreatedBy:       createdBy,
				CreatedAt:       now,
			}
			if opts.FeatureMetadata != nil {
				row.FeatureMetadata = datatypes.JSONMap(opts.FeatureMetadata)
			}
			if err := s.repo.Insert(ctx, tx, &row); err != nil {
				if db.IsDuplicateKeyErr(err) {
					duplicate = true
				}
				return err
			}
			written = append(rows, row)
			return nil
		})
		if err == nil {
			s.metrics.RecordCredit(string(txnType), string(pool))
			return written, nil
		}
		if duplicate {
			rows, ferr := s.repo.FindByIdempotencyKey(ctx, s.db, accountID, key)
			if ferr != nil {
				return nil, ferr
			}
			s.metrics.RecordIdempotentReplay("credit")
			return rows, nil
		}
		if errors.Is(err, errSpendConflict) {
			continue
		}
		return nil, err
	}

	return nil, ledgerdomain.ErrSpendContention
}

func (s *Service) Refund(ctx context.Context, accountID snowflake.ID, amount int64, opts ledgerdomain.CreditOptions) ([]ledgerdomain.CreditTransaction, error) {
	opts.TransactionType = ledgerdomain.TransactionTypeRefund
	return s.Credit(ctx, accountID, amount, opts)
}

func (s *Service) ListTransactions(ctx context.Context, accountID snowflake.ID, filter ledgerdomain.ListFilter) ([]ledgerdomain.CreditTransaction, error) {
	if accountID == 0 {
		return nil, balancedomain.ErrInvalidAccount
	}
	return s.repo.List(ctx, s.db, accountID, filter)
}

func (s *Service) ReplayBalance(ctx context.Context, accountID snowflake.ID, repair bool) (ledgerdomain.ReplayResult, error) {
	if accountID == 0 {
		return ledgerdomain.ReplayResult{}, balancedomain.ErrInvalidAccount
	}

	var result ledgerdomain.ReplayResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bal, err := s.balanceRepo.FindByAccountID(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if bal == nil {
			return balancedomain.ErrAccountNotFound
		}

		included, purchased, err := s.repo.SumPools(ctx, tx, accountID)
		if err != nil {
			return err
		}

		result = ledgerdomain.ReplayResult{
			AccountID:         accountID.String(),
			IncludedComputed:  included,
			PurchasedComputed: purchased,
			IncludedStored:    bal.IncludedCredits,
			PurchasedStored:   bal.PurchasedCredits,
			Consistent:        included == bal.IncludedCredits && purchased == bal.PurchasedCredits,
		}

		if !result.Consistent && repair {
			ok, err := s.balanceRepo.OverwritePools(ctx, tx, accountID, included, purchased, s.clock.Now())
			if err != nil {
				return err
			}
			if !ok {
				return balancedomain.ErrAccountNotFound
			}
			result.Repaired = true
			s.log.Warn("balance projection repaired from ledger",
				zap.String("account_id", accountID.String()),
				zap.Int64("included", included),
				zap.Int64("purchased", purchased),
			)
		}
		return nil
	})
	if err != nil {
		return ledgerdomain.ReplayResult{}, err
	}
	return result, nil
}

func (s *Service) buildRow(
	accountID snowflake.ID,
	amount int64,
	pool ledgerdomain.CreditPool,
	txnType ledgerdomain.TransactionType,
	key string,
	opts ledgerdomain.DebitOptions,
	createdBy string,
	now time.Time,
) ledgerdomain.CreditTransaction {
	row := ledgerdomain.CreditTransaction{
		ID:              s.genID.Generate(),
		AccountID:       accountID,
		Amount:          amount,
		CreditPool:      pool,
		TransactionType: txnType,
		IdempotencyKey:  key,
		FeatureType:     opts.FeatureType,
		Description:     opts.Description,
		CreatedBy:       createdBy,
		CreatedAt:       now,
	}
	if opts.FeatureMetadata != nil {
		row.FeatureMetadata = datatypes.JSONMap(opts.FeatureMetadata)
	}
	return row
}

func monthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func normalizePool(pool ledgerdomain.CreditPool) (ledgerdomain.CreditPool, error) {
	switch ledgerdomain.CreditPool(strings.ToLower(strings.TrimSpace(string(pool)))) {
	case ledgerdomain.PoolIncluded:
		return ledgerdomain.PoolIncluded, nil
	case ledgerdomain.PoolPurchased:
		return ledgerdomain.PoolPurchased, nil
	default:
		return "", ledgerdomain.ErrInvalidPool
	}
}

func normalizeCreditType(txnType ledgerdomain.TransactionType) (ledgerdomain.TransactionType, error) {
	normalized := ledgerdomain.TransactionType(strings.ToLower(strings.TrimSpace(string(txnType))))
	switch normalized {
	case "":
		return ledgerdomain.TransactionTypeCredit, nil
	case ledgerdomain.TransactionTypeCredit,
		ledgerdomain.TransactionTypePromoGrant,
		ledgerdomain.TransactionTypeMonthlyGrant,
		ledgerdomain.TransactionTypeRefund:
		return normalized, nil
	default:
		return "", fmt.Errorf("%w: %s", ledgerdomain.ErrInvalidTransactionType, txnType)
	}
}
