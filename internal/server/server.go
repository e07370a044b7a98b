package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reviewstack/creditledger/internal/balance"
	balancedomain "github.com/reviewstack/creditledger/internal/balance/domain"
	"github.com/reviewstack/creditledger/internal/config"
	"github.com/reviewstack/creditledger/internal/ledger"
	ledgerdomain "github.com/reviewstack/creditledger/internal/ledger/domain"
	"github.com/reviewstack/creditledger/internal/ratelimit"
	"github.com/reviewstack/creditledger/internal/schedule"
	scheduledomain "github.com/reviewstack/creditledger/internal/schedule/domain"
	"github.com/reviewstack/creditledger/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	balance.Module,
	ledger.Module,
	schedule.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ActorContext())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	genID        *snowflake.Node
	balanceSvc   balancedomain.Service
	ledgerSvc    ledgerdomain.Service
	scheduleSvc  scheduledomain.Service
	debitLimiter *ratelimit.DebitLimiter
	metrics      *telemetry.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	GenID        *snowflake.Node
	BalanceSvc   balancedomain.Service
	LedgerSvc    ledgerdomain.Service
	ScheduleSvc  scheduledomain.Service
	DebitLimiter *ratelimit.DebitLimiter `optional:"true"`
	Metrics      *telemetry.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		genID:        p.GenID,
		balanceSvc:   p.BalanceSvc,
		ledgerSvc:    p.LedgerSvc,
		scheduleSvc:  p.ScheduleSvc,
		debitLimiter: p.DebitLimiter,
		metrics:      p.Metrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Balances --------
	v1.POST("/accounts/:accountId/balance", s.EnsureBalance)
	v1.GET("/accounts/:accountId/balance", s.GetBalance)
	v1.POST("/accounts/:accountId/balance/replay", s.ReplayBalance)
	v1.PUT("/accounts/:accountId/plan", s.SetPlan)

	// -------- Ledger --------
	v1.POST("/accounts/:accountId/debits", s.DebitRateLimit(), s.Debit)
	v1.POST("/accounts/:accountId/credits", s.Credit)
	v1.POST("/accounts/:accountId/refunds", s.Refund)
	v1.GET("/accounts/:accountId/transactions", s.ListTransactions)

	// -------- Costing --------
	v1.POST("/costs/preview", s.PreviewCost)

	// -------- Schedules --------
	v1.POST("/accounts/:accountId/schedules", s.CreateIndividualSchedule)
	v1.POST("/accounts/:accountId/schedules/consolidate", s.CreateConsolidatedSchedule)
	v1.GET("/schedules/:id", s.GetSchedule)
	v1.DELETE("/schedules/:id", s.DeleteConsolidatedSchedule)
	v1.POST("/schedules/:id/restore", s.RestorePausedSchedules)
}
