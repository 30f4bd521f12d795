package rategate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minionszyw/leeksaver/internal/errs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastGate disables real backoff sleeps but records what would have been
// slept, so retry timing is assertable without slow tests.
func fastGate(cfg Config) (*Gate, *[]time.Duration) {
	g := New(cfg, zerolog.Nop())
	var slept []time.Duration
	var mu sync.Mutex
	g.sleepFn = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return nil
	}
	return g, &slept
}

func TestRetryRecoversTransientFailure(t *testing.T) {
	g, slept := fastGate(Config{QPS: 1000, Burst: 1000, BaseDelay: time.Second})

	var calls atomic.Int64
	err := g.Do(context.Background(), "test", func(ctx context.Context) error {
		if calls.Add(1) <= 2 {
			return errs.New(errs.RateLimited, "throttled")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int64(3), calls.Load())

	// Backoff schedule: base*2^0 and base*2^1, each plus jitter in
	// [0, base).
	require.Len(t, *slept, 2)
	assert.GreaterOrEqual(t, (*slept)[0], 1*time.Second)
	assert.Less(t, (*slept)[0], 2*time.Second)
	assert.GreaterOrEqual(t, (*slept)[1], 2*time.Second)
	assert.Less(t, (*slept)[1], 3*time.Second)
}

func TestNonRetryableFailsImmediately(t *testing.T) {
	g, slept := fastGate(Config{QPS: 1000, Burst: 1000})

	var calls atomic.Int64
	err := g.Do(context.Background(), "test", func(ctx context.Context) error {
		calls.Add(1)
		return errs.New(errs.SchemaDrift, "columns changed")
	})

	require.Error(t, err)
	assert.Equal(t, errs.SchemaDrift, errs.KindOf(err))
	assert.Equal(t, int64(1), calls.Load())
	assert.Empty(t, *slept)
}

func TestRetryBudgetExhausted(t *testing.T) {
	g, _ := fastGate(Config{QPS: 1000, Burst: 1000, MaxAttempts: 3})

	var calls atomic.Int64
	err := g.Do(context.Background(), "test", func(ctx context.Context) error {
		calls.Add(1)
		return errs.New(errs.UpstreamUnavailable, "still down")
	})

	require.Error(t, err)
	assert.Equal(t, errs.UpstreamUnavailable, errs.KindOf(err))
	assert.Equal(t, int64(3), calls.Load())
}

func TestRateLimitCeiling(t *testing.T) {
	// R=50/s, C=5 over a 200ms window: at most R*window + C calls can
	// acquire tokens.
	g := New(Config{QPS: 50, Burst: 5}, zerolog.Nop())

	var calls atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				_ = g.Do(ctx, "probe", func(ctx context.Context) error {
					calls.Add(1)
					return nil
				})
			}
		}()
	}
	wg.Wait()

	ceiling := int64(50*0.2 + 5 + 1) // +1 for timer slop
	assert.LessOrEqual(t, calls.Load(), ceiling)
}

func TestDeadlineStopsRetrying(t *testing.T) {
	g := New(Config{QPS: 1000, Burst: 1000, BaseDelay: 50 * time.Millisecond, CallDeadline: 80 * time.Millisecond}, zerolog.Nop())

	start := time.Now()
	err := g.Do(context.Background(), "test", func(ctx context.Context) error {
		return errs.New(errs.UpstreamUnavailable, "down")
	})

	require.Error(t, err)
	assert.Equal(t, errs.DeadlineExceeded, errs.KindOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCancelledContextSurfaces(t *testing.T) {
	g := New(Config{QPS: 1000, Burst: 1000}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Do(ctx, "test", func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Equal(t, errs.Cancelled, errs.KindOf(err))
}
