package grants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reviewstack/creditledger/internal/actorctx"
	balancedomain "github.com/reviewstack/creditledger/internal/balance/domain"
	"github.com/reviewstack/creditledger/internal/clock"
	"github.com/reviewstack/creditledger/internal/config"
	ledgerdomain "github.com/reviewstack/creditledger/internal/ledger/domain"
	"github.com/reviewstack/creditledger/internal/ratelimit"
	"github.com/reviewstack/creditledger/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultInterval  = time.Hour
	defaultBatchSize = 100
	sweepTimeout     = 5 * time.Minute
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Config      config.Config
	Plans       *config.PlansHolder
	Clock       clock.Clock
	BalanceRepo balancedomain.Repository
	LedgerSvc   ledgerdomain.Service
	Limiter     *ratelimit.DebitLimiter `optional:"true"`
	Metrics     *telemetry.Metrics      `optional:"true"`
}

// Worker refills included credits for paid plans once per calendar
// month. The grant itself goes through the ledger service, so the sweep
// stays idempotent: a concurrent or repeated run for the same period is
// rejected by the grant guard and the deterministic idempotency key.
type Worker struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         config.GrantSweepConfig
	plans       *config.PlansHolder
	clock       clock.Clock
	balanceRepo balancedomain.Repository
	ledgerSvc   ledgerdomain.Service
	limiter     *ratelimit.DebitLimiter
	metrics     *telemetry.Metrics
}

func New(p Params) *Worker {
	return &Worker{
		db:          p.DB,
		log:         p.Log.Named("grants.worker"),
		cfg:         p.Config.GrantSweep,
		plans:       p.Plans,
		clock:       p.Clock,
		balanceRepo: p.BalanceRepo,
		ledgerSvc:   p.LedgerSvc,
		limiter:     p.Limiter,
		metrics:     p.Metrics,
	}
}

func (w *Worker) interval() time.Duration {
	if w.cfg.IntervalSeconds <= 0 {
		return defaultInterval
	}
	return time.Duration(w.cfg.IntervalSeconds) * time.Second
}

func (w *Worker) batchSize() int {
	if w.cfg.BatchSize <= 0 {
		return defaultBatchSize
	}
	return w.cfg.BatchSize
}

// RunForever sweeps on a fixed interval until the context is canceled.
func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("grant sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce grants every account whose last monthly grant predates the
// current calendar month. Per-account failures are logged and skipped so
// one bad row never starves the rest of the batch.
func (w *Worker) RunOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, sweepTimeout)
	defer cancel()
	ctx = actorctx.WithActor(ctx, "grants.worker")

	// Replica election is an optimization: the sweep is already
	// idempotent without it.
	token, acquired, err := w.limiter.TryLockGrantSweep(ctx, sweepTimeout)
	if err != nil {
		w.log.Warn("grant sweep lock unavailable, proceeding", zap.Error(err))
	} else if !acquired {
		return nil
	} else if token != "" {
		defer func() {
			if err := w.limiter.ReleaseGrantSweep(context.WithoutCancel(ctx), token); err != nil {
				w.log.Warn("grant sweep lock release failed", zap.Error(err))
			}
		}()
	}

	now := w.clock.Now()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	granted := 0
	var sweepErr error
	for {
		due, err := w.balanceRepo.ListDueForGrant(ctx, w.db, periodStart, w.batchSize())
		if err != nil {
			sweepErr = err
			break
		}
		if len(due) == 0 {
			break
		}

		progressed := false
		for _, balance := range due {
			if err := ctx.Err(); err != nil {
				sweepErr = err
				break
			}
			if err := w.grantOne(ctx, &balance, periodStart); err != nil {
				if errors.Is(err, ledgerdomain.ErrAlreadyGranted) {
					// Another replica got there first; not a failure.
					progressed = true
					continue
				}
				w.log.Warn("monthly grant failed",
					zap.String("account_id", balance.AccountID.String()),
					zap.String("plan", balance.Plan),
					zap.Error(err),
				)
				continue
			}
			granted++
			progressed = true
		}
		if sweepErr != nil {
			break
		}
		// Every remaining row failed: bail instead of spinning on the
		// same batch.
		if !progressed {
			break
		}
	}

	status := "ok"
	if sweepErr != nil {
		status = "error"
	}
	w.metrics.RecordGrantRun(status)
	if granted > 0 {
		w.log.Info("grant sweep completed",
			zap.Int("granted", granted),
			zap.Time("period_start", periodStart),
		)
	}
	return sweepErr
}

func (w *Worker) grantOne(ctx context.Context, balance *balancedomain.CreditBalance, periodStart time.Time) error {
	allotment := w.plans.Allotment(balance.Plan)
	if allotment.MonthlyCredits <= 0 {
		// Unknown or zero-allotment plan: record the visit so the
		// account leaves the due set until next period.
		w.log.Warn("plan has no monthly allotment",
			zap.String("account_id", balance.AccountID.String()),
			zap.String("plan", balance.Plan),
		)
		_, err := w.balanceRepo.MarkMonthlyGrant(ctx, w.db, balance.AccountID, periodStart, w.clock.Now())
		return err
	}

	expiresAt := periodStart.AddDate(0, 0, allotment.ValidityDays)
	key := fmt.Sprintf("monthly_grant:%s:%s", balance.AccountID.String(), periodStart.Format("2006-01"))

	_, err := w.ledgerSvc.Credit(ctx, balance.AccountID, allotment.MonthlyCredits, ledgerdomain.CreditOptions{
		IdempotencyKey:  key,
		CreditType:      ledgerdomain.PoolIncluded,
		TransactionType: ledgerdomain.TransactionTypeMonthlyGrant,
		Description:     fmt.Sprintf("monthly grant for plan %s", balance.Plan),
		CreatedBy:       "grants.worker",
		ExpiresAt:       &expiresAt,
		PeriodStart:     &periodStart,
	})
	if err != nil {
		return err
	}

	w.metrics.AddGrantedCredits(allotment.MonthlyCredits)
	return nil
}
