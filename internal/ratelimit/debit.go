package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/reviewstack/creditledger/internal/config"
)

const (
	keyDebitAccount = "credits:debit:account:%s"
	keyGrantSweep   = "credits:grant:sweep"
)

// DebitLimiter throttles debit attempts per account so a misbehaving
// integration cannot hammer the balance row. A nil limiter allows
// everything.
type DebitLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	rate  float64
	burst int
}

func NewDebitLimiter(cfg config.Config) (*DebitLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.DebitRate <= 0 || limitCfg.DebitBurst <= 0 {
		return nil, errors.New("debit rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &DebitLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    limitCfg.DebitRate,
		burst:   limitCfg.DebitBurst,
	}, nil
}

func (l *DebitLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *DebitLimiter) AllowDebit(ctx context.Context, accountID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyDebitAccount, strings.TrimSpace(accountID)), l.rate, l.burst)
}

// TryLockGrantSweep elects one replica to run the monthly grant sweep.
func (l *DebitLimiter) TryLockGrantSweep(ctx context.Context, ttl time.Duration) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, keyGrantSweep, ttl)
}

func (l *DebitLimiter) ReleaseGrantSweep(ctx context.Context, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, keyGrantSweep, token)
}
