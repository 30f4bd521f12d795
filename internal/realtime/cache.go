// Package realtime is the L3 tier: a TTL cache in front of on-demand
// single-symbol upstream queries, with singleflight fetch coalescing and a
// stale-grace fallback when the feed is briefly down.
package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/minionszyw/leeksaver/internal/rategate"
	"github.com/minionszyw/leeksaver/internal/upstream"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Quote is the user-facing realtime snapshot for one symbol.
type Quote struct {
	Code      string
	Price     float64
	ChangePct float64
	Volume    int64
	Amount    float64
	Timestamp time.Time
	FetchedAt time.Time
	Stale     bool
}

type entry struct {
	quote     Quote
	fetchedAt time.Time
}

// Cache is keyed by (dataset, code); today the only L3 dataset is the
// realtime quote, but the key shape keeps room for more.
type Cache struct {
	adapter    *upstream.Adapter
	gate       *rategate.Gate
	ttl        time.Duration
	staleGrace time.Duration
	log        zerolog.Logger
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

// Config tunes the cache.
type Config struct {
	TTL        time.Duration
	StaleGrace time.Duration
}

// New creates a Cache. Zero config fields fall back to 10s TTL and 60s
// stale grace.
func New(adapter *upstream.Adapter, gate *rategate.Gate, cfg Config, log zerolog.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.StaleGrace <= 0 {
		cfg.StaleGrace = 60 * time.Second
	}
	return &Cache{
		adapter:    adapter,
		gate:       gate,
		ttl:        cfg.TTL,
		staleGrace: cfg.StaleGrace,
		log:        log.With().Str("component", "realtime_cache").Logger(),
		now:        time.Now,
		entries:    make(map[string]entry),
	}
}

// Quote returns the realtime quote for code. A fresh cache entry is served
// directly; a miss triggers exactly one upstream fetch no matter how many
// readers arrive concurrently; a failed fetch falls back to the prior entry
// while it is within the stale grace, marked Stale.
func (c *Cache) Quote(ctx context.Context, code string) (Quote, error) {
	key := "quote:" + code
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && now.Sub(e.fetchedAt) < c.ttl {
		return e.quote, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		q, err := c.fetch(ctx, code)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = entry{quote: q, fetchedAt: c.now()}
		c.mu.Unlock()
		return q, nil
	})
	if err == nil {
		return v.(Quote), nil
	}

	// Fetch failed; the prior entry is still better than nothing while
	// it is young enough.
	c.mu.RLock()
	e, ok = c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.fetchedAt) < c.staleGrace {
		q := e.quote
		q.Stale = true
		c.log.Warn().Err(err).Str("code", code).Msg("serving stale quote")
		return q, nil
	}
	return Quote{}, err
}

func (c *Cache) fetch(ctx context.Context, code string) (Quote, error) {
	var frame *upstream.Frame
	err := c.gate.Do(ctx, "realtime_quote:"+code, func(ctx context.Context) error {
		var err error
		frame, err = c.adapter.RealtimeQuote(ctx, code)
		return err
	})
	if err != nil {
		return Quote{}, err
	}
	if frame.Len() == 0 {
		return Quote{}, fmt.Errorf("no quote row for %s", code)
	}

	price, _ := frame.Float(0, "price")
	changePct, _ := frame.Float(0, "change_pct")
	volume, _ := frame.Int(0, "volume")
	amount, _ := frame.Float(0, "amount")

	q := Quote{
		Code:      code,
		Price:     price,
		ChangePct: changePct,
		Volume:    volume,
		Amount:    amount,
		FetchedAt: c.now(),
	}
	if ts := frame.Str(0, "timestamp"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			q.Timestamp = t
		}
	}
	return q, nil
}
