// Package rategate throttles and retries every outbound call to the
// upstream feed. One Gate exists per provider; all syncers share it, which
// is what makes the provider-wide rate limit hold regardless of how many
// jobs run concurrently.
package rategate

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/minionszyw/leeksaver/internal/errs"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config tunes the bucket and the retry loop.
type Config struct {
	// QPS is the token refill rate R (tokens/sec).
	QPS float64
	// Burst is the bucket capacity C.
	Burst int
	// MaxAttempts is the retry budget M per call, first attempt included.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff: attempt i waits
	// BaseDelay*2^i plus jitter in [0, BaseDelay).
	BaseDelay time.Duration
	// MaxDelay caps a single backoff sleep.
	MaxDelay time.Duration
	// CallDeadline bounds one Do invocation end to end, retries and
	// backoff sleeps included.
	CallDeadline time.Duration
}

// DefaultConfig returns the provider defaults: C=5, R=5/s, 3 attempts,
// 1s base backoff capped at 30s, 60s total per call.
func DefaultConfig() Config {
	return Config{
		QPS:          5,
		Burst:        5,
		MaxAttempts:  3,
		BaseDelay:    time.Second,
		MaxDelay:     30 * time.Second,
		CallDeadline: 60 * time.Second,
	}
}

// Gate is the token bucket plus retry wrapper. rate.Limiter serves waiters
// in FIFO order and suspends rather than spins, which is exactly the
// cooperative waiting the concurrency model asks for.
type Gate struct {
	limiter *rate.Limiter
	cfg     Config
	log     zerolog.Logger

	mu      sync.Mutex
	rng     *rand.Rand
	sleepFn func(context.Context, time.Duration) error
}

// New creates a Gate. Zero-valued config fields fall back to defaults.
func New(cfg Config, log zerolog.Logger) *Gate {
	def := DefaultConfig()
	if cfg.QPS <= 0 {
		cfg.QPS = def.QPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.CallDeadline <= 0 {
		cfg.CallDeadline = def.CallDeadline
	}
	return &Gate{
		limiter: rate.NewLimiter(rate.Limit(cfg.QPS), cfg.Burst),
		cfg:     cfg,
		log:     log.With().Str("component", "rate_gate").Logger(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		sleepFn: sleepCtx,
	}
}

// Do runs fn under the rate limit with retry. Each attempt acquires one
// token first; retryable failures back off exponentially with jitter and
// try again until the attempt budget or the call deadline runs out. The
// last error is returned verbatim so its kind survives for the syncer's
// bookkeeping.
func (g *Gate) Do(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CallDeadline)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := g.backoff(attempt - 1)
			g.log.Debug().Str("call", name).Int("attempt", attempt).
				Dur("backoff", delay).Msg("retrying after backoff")
			if err := g.sleepFn(ctx, delay); err != nil {
				return mapCtxErr(ctx, lastErr)
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return mapCtxErr(ctx, lastErr)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errs.KindOf(lastErr).Retryable() {
			return lastErr
		}
		g.log.Warn().Str("call", name).Int("attempt", attempt+1).
			Str("kind", errs.KindOf(lastErr).String()).Msg("retryable upstream failure")
	}
	return lastErr
}

// backoff returns base*2^i plus jitter in [0, base), capped at MaxDelay.
func (g *Gate) backoff(i int) time.Duration {
	delay := g.cfg.BaseDelay << uint(i)
	if delay > g.cfg.MaxDelay || delay <= 0 {
		delay = g.cfg.MaxDelay
	}
	g.mu.Lock()
	jitter := time.Duration(g.rng.Int63n(int64(g.cfg.BaseDelay)))
	g.mu.Unlock()
	if delay+jitter > g.cfg.MaxDelay {
		return g.cfg.MaxDelay
	}
	return delay + jitter
}

func mapCtxErr(ctx context.Context, lastErr error) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return errs.Wrap(errs.DeadlineExceeded, lastErr, "call deadline exhausted")
	case context.Canceled:
		return errs.Wrap(errs.Cancelled, lastErr, "call cancelled")
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
