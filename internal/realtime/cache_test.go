package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minionszyw/leeksaver/internal/rategate"
	"github.com/minionszyw/leeksaver/internal/upstream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feedStub struct {
	mu       sync.Mutex
	hits     atomic.Int64
	failNext bool
	price    float64
}

func (f *feedStub) handler(w http.ResponseWriter, r *http.Request) {
	f.hits.Add(1)
	f.mu.Lock()
	fail := f.failNext
	price := f.price
	f.mu.Unlock()

	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"code":    0,
		"columns": []string{"code", "price", "change_pct", "volume", "amount", "timestamp"},
		"rows": [][]any{
			{r.URL.Query().Get("code"), price, 1.5, 1000, 10500.0, "2024-01-15T10:30:00Z"},
		},
	})
}

func newTestCache(t *testing.T, cfg Config) (*Cache, *feedStub) {
	t.Helper()
	stub := &feedStub{price: 10.5}
	srv := httptest.NewServer(http.HandlerFunc(stub.handler))
	t.Cleanup(srv.Close)

	adapter := upstream.New(upstream.NewClient(srv.URL, zerolog.Nop()), upstream.Config{}, zerolog.Nop())
	gate := rategate.New(rategate.Config{QPS: 1000, Burst: 1000, MaxAttempts: 1, CallDeadline: 5 * time.Second}, zerolog.Nop())
	return New(adapter, gate, cfg, zerolog.Nop()), stub
}

func TestCacheHitWithinTTL(t *testing.T) {
	c, stub := newTestCache(t, Config{TTL: time.Minute})
	ctx := context.Background()

	q1, err := c.Quote(ctx, "600519")
	require.NoError(t, err)
	assert.Equal(t, 10.5, q1.Price)

	q2, err := c.Quote(ctx, "600519")
	require.NoError(t, err)
	assert.Equal(t, q1.Price, q2.Price)
	assert.Equal(t, int64(1), stub.hits.Load())
}

func TestCacheExpiry(t *testing.T) {
	c, stub := newTestCache(t, Config{TTL: 10 * time.Second})
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }

	_, err := c.Quote(ctx, "600519")
	require.NoError(t, err)

	stub.mu.Lock()
	stub.price = 11.0
	stub.mu.Unlock()

	// Advance past the TTL: next read refetches.
	c.now = func() time.Time { return base.Add(11 * time.Second) }
	q, err := c.Quote(ctx, "600519")
	require.NoError(t, err)
	assert.Equal(t, 11.0, q.Price)
	assert.Equal(t, int64(2), stub.hits.Load())
}

func TestSingleflightCoalescesConcurrentMisses(t *testing.T) {
	c, stub := newTestCache(t, Config{TTL: time.Minute})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Quote(ctx, "600519")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// All 16 readers shared at most a couple of in-flight fetches.
	assert.LessOrEqual(t, stub.hits.Load(), int64(2))
}

func TestStaleGraceFallback(t *testing.T) {
	c, stub := newTestCache(t, Config{TTL: 10 * time.Second, StaleGrace: time.Minute})
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }

	q, err := c.Quote(ctx, "600519")
	require.NoError(t, err)
	assert.False(t, q.Stale)

	stub.mu.Lock()
	stub.failNext = true
	stub.mu.Unlock()

	// Past the TTL but inside the grace: the prior entry comes back,
	// marked stale.
	c.now = func() time.Time { return base.Add(30 * time.Second) }
	q, err = c.Quote(ctx, "600519")
	require.NoError(t, err)
	assert.True(t, q.Stale)
	assert.Equal(t, 10.5, q.Price)

	// Past the grace: the failure surfaces.
	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = c.Quote(ctx, "600519")
	assert.Error(t, err)
}
