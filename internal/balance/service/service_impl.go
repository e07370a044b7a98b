package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/reviewstack/creditledger/internal/balance/domain"
	"github.com/reviewstack/creditledger/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("balance.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) EnsureBalanceExists(ctx context.Context, accountID snowflake.ID) error {
	if accountID == 0 {
		return domain.ErrInvalidAccount
	}

	now := s.clock.Now()
	record := &domain.CreditBalance{
		ID:        s.genID.Generate(),
		AccountID: accountID,
		Plan:      "free",
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.repo.Ensure(ctx, s.db, record)
}

func (s *Service) GetBalance(ctx context.Context, accountID snowflake.ID) (domain.Balance, error) {
	if accountID == 0 {
		return domain.Balance{}, domain.ErrInvalidAccount
	}

	record, err := s.repo.FindByAccountID(ctx, s.db, accountID)
	if err != nil {
		return domain.Balance{}, err
	}
	if record == nil {
		return domain.Balance{}, domain.ErrAccountNotFound
	}

	included := record.EffectiveIncluded(s.clock.Now())
	return domain.Balance{
		AccountID:               record.AccountID.String(),
		Plan:                    record.Plan,
		TotalCredits:            included + record.PurchasedCredits,
		IncludedCredits:         included,
		IncludedCreditsExpireAt: record.IncludedCreditsExpireAt,
		PurchasedCredits:        record.PurchasedCredits,
	}, nil
}

func (s *Service) SetPlan(ctx context.Context, accountID snowflake.ID, plan string) error {
	if accountID == 0 {
		return domain.ErrInvalidAccount
	}
	plan = strings.ToLower(strings.TrimSpace(plan))
	if plan == "" {
		return domain.ErrInvalidPlan
	}

	updated, err := s.repo.SetPlan(ctx, s.db, accountID, plan, s.clock.Now())
	if err != nil {
		return err
	}
	if !updated {
		return domain.ErrAccountNotFound
	}
	return nil
}
