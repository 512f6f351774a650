// Package ratelimit enforces a persistent sliding-window request limit per
// client identity. Raw identities never reach storage; records are keyed by
// a truncated SHA-256 digest.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/icoforge/icoforge/pkg/utils"
)

// Store is the windowed counter backend. Increment must be atomic per
// identity: existing live windows increment, expired windows reset to 1,
// missing records insert with count 1.
type Store interface {
	Increment(ctx context.Context, identityHash string, now time.Time, window time.Duration) (count int, expiresAt time.Time, err error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Decision is the outcome of one rate-limit check.
type Decision struct {
	TotalHits    int
	TimeToExpire time.Duration
	Blocked      bool
}

type Limiter struct {
	store         Store
	window        time.Duration
	maxRequests   int
	sweepInterval time.Duration
	logger        *zap.Logger
}

func New(store Store, window time.Duration, maxRequests int, sweepInterval time.Duration, logger *zap.Logger) *Limiter {
	return &Limiter{
		store:         store,
		window:        window,
		maxRequests:   maxRequests,
		sweepInterval: sweepInterval,
		logger:        logger,
	}
}

// CheckAndIncrement counts the request against the identity's current
// window and reports whether it exceeds the limit.
func (l *Limiter) CheckAndIncrement(ctx context.Context, identity string, now time.Time) (*Decision, error) {
	hash := utils.IdentityHash(identity)
	count, expiresAt, err := l.store.Increment(ctx, hash, now, l.window)
	if err != nil {
		return nil, err
	}

	tte := expiresAt.Sub(now)
	if tte < 0 {
		tte = 0
	}
	return &Decision{
		TotalHits:    count,
		TimeToExpire: tte,
		Blocked:      count > l.maxRequests,
	}, nil
}

// StartSweeper deletes expired records on a fixed interval until ctx is
// canceled. Sweep failures are logged, never propagated.
func (l *Limiter) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(l.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := l.store.DeleteExpired(ctx, time.Now())
				if err != nil {
					l.logger.Warn("rate limit sweep failed", zap.Error(err))
					continue
				}
				if deleted > 0 {
					l.logger.Debug("rate limit sweep", zap.Int64("deleted", deleted))
				}
			}
		}
	}()
}
