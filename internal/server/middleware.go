package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/reviewstack/creditledger/internal/accountctx"
	"github.com/reviewstack/creditledger/internal/actorctx"
	"go.uber.org/zap"
)

const HeaderActor = "X-Actor-Id"

func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// Health and metrics scrapes would drown everything else.
		path := c.FullPath()
		if path == "/health" || path == "/metrics" {
			return
		}

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// ActorContext carries the caller identity header into the request
// context so ledger rows record who initiated them.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := strings.TrimSpace(c.GetHeader(HeaderActor)); actor != "" {
			ctx := actorctx.WithActor(c.Request.Context(), actor)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// accountIDParam parses the path account id and stashes it in the
// request context for downstream audit logging.
func (s *Server) accountIDParam(c *gin.Context) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.Param("accountId"))
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError("accountId", "invalid_account", "account id must be a valid identifier"))
		return 0, false
	}
	ctx := accountctx.WithAccountID(c.Request.Context(), int64(id))
	c.Request = c.Request.WithContext(ctx)
	return id, true
}

// DebitRateLimit throttles per-account debit attempts when the
// redis-backed limiter is configured. Redis being down fails open.
func (s *Server) DebitRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.debitLimiter.Enabled() {
			c.Next()
			return
		}

		accountID := strings.TrimSpace(c.Param("accountId"))
		allowed, err := s.debitLimiter.AllowDebit(c.Request.Context(), accountID)
		if err != nil {
			c.Next()
			return
		}
		if !allowed {
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
