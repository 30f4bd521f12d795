// Package syncer holds one syncer per dataset. Every syncer follows the
// same three-phase shape: resolve scope, fetch per target through the rate
// gate, transform and upsert. Failures are never swallowed: a per-target
// failure lands in sync_errors keyed by (task, code) before the loop moves
// on, and a task-level failure bubbles out of the callable for the job
// runtime to record.
package syncer

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/minionszyw/leeksaver/internal/config"
	"github.com/minionszyw/leeksaver/internal/errs"
	"github.com/minionszyw/leeksaver/internal/jobs"
	"github.com/minionszyw/leeksaver/internal/rategate"
	"github.com/minionszyw/leeksaver/internal/store"
	"github.com/minionszyw/leeksaver/internal/upstream"
	"github.com/rs/zerolog"
)

// Embedder is the "text in, vector out" contract the embeddings syncer
// consumes. The actual service integration lives outside the core.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	MaxBatchSize() int
}

// Syncers bundles every dataset syncer over one shared dependency set.
// Construct once at boot; each *Task method hands the schedule registry a
// callable bound to these dependencies.
type Syncers struct {
	adapter  *upstream.Adapter
	gate     *rategate.Gate
	cfg      *config.Config
	log      zerolog.Logger
	now      func() time.Time
	embedder Embedder

	symbols    *store.SymbolRepository
	dailyBars  *store.DailyBarRepository
	minuteBars *store.MinuteBarRepository
	financials *store.FinancialRepository
	valuations *store.ValuationRepository
	indicators *store.TechIndicatorRepository
	aggregates *store.AggregateRepository
	news       *store.NewsRepository
	watchlist  *store.WatchlistRepository
	syncErrors *store.SyncErrorRepository
}

// Deps lists everything a Syncers needs.
type Deps struct {
	Adapter  *upstream.Adapter
	Gate     *rategate.Gate
	Config   *config.Config
	Log      zerolog.Logger
	Embedder Embedder

	Symbols    *store.SymbolRepository
	DailyBars  *store.DailyBarRepository
	MinuteBars *store.MinuteBarRepository
	Financials *store.FinancialRepository
	Valuations *store.ValuationRepository
	Indicators *store.TechIndicatorRepository
	Aggregates *store.AggregateRepository
	News       *store.NewsRepository
	Watchlist  *store.WatchlistRepository
	SyncErrors *store.SyncErrorRepository
}

// New creates the syncer set.
func New(d Deps) *Syncers {
	return &Syncers{
		adapter:    d.Adapter,
		gate:       d.Gate,
		cfg:        d.Config,
		log:        d.Log.With().Str("component", "syncer").Logger(),
		now:        time.Now,
		embedder:   d.Embedder,
		symbols:    d.Symbols,
		dailyBars:  d.DailyBars,
		minuteBars: d.MinuteBars,
		financials: d.Financials,
		valuations: d.Valuations,
		indicators: d.Indicators,
		aggregates: d.Aggregates,
		news:       d.News,
		watchlist:  d.Watchlist,
		syncErrors: d.SyncErrors,
	}
}

// shard splits codes into slices of at most size, the unit of cancellation:
// a syncer checks its context between shards, never mid-shard.
func shard(codes []string, size int) [][]string {
	if size <= 0 {
		size = 50
	}
	var out [][]string
	for start := 0; start < len(codes); start += size {
		end := start + size
		if end > len(codes) {
			end = len(codes)
		}
		out = append(out, codes[start:end])
	}
	return out
}

// checkCancel maps a fired context onto the tagged kinds the job runtime
// classifies on. Returns nil while the context is live.
func checkCancel(ctx context.Context) error {
	switch ctx.Err() {
	case context.Canceled:
		return errs.New(errs.Cancelled, "cancelled between shards")
	case context.DeadlineExceeded:
		return errs.New(errs.DeadlineExceeded, "deadline expired between shards")
	}
	return nil
}

// recordTargetError books a per-target failure row. The write uses a fresh
// context: the failure must be visible even when the job's own deadline is
// what caused it.
func (s *Syncers) recordTargetError(task, code string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.syncErrors.Record(ctx, task, code, errs.KindOf(cause).String(), cause.Error(), s.now()); err != nil {
		s.log.Error().Err(err).Str("task", task).Str("code", code).Msg("record sync error")
	}
}

// resolveTarget closes any open failure row for (task, code) after a
// success.
func (s *Syncers) resolveTarget(ctx context.Context, task, code string) {
	if err := s.syncErrors.Resolve(ctx, task, code, s.now()); err != nil {
		s.log.Error().Err(err).Str("task", task).Str("code", code).Msg("resolve sync error")
	}
}

// perTarget runs fn for every code, shard by shard, observing ctx between
// shards. A failing target is recorded and counted but does not stop the
// loop: the remaining targets still deserve their sync. The aggregated
// error is logged, not returned — per-target failures are fully accounted
// for in sync_errors, so surfacing them again as a job failure would
// double-book them as task-level rows.
func (s *Syncers) perTarget(ctx context.Context, task string, codes []string, progress *jobs.Progress, fn func(ctx context.Context, code string) error) error {
	progress.Total.Store(int64(len(codes)))

	var all *multierror.Error
	for _, batch := range shard(codes, s.cfg.SyncBatchSize) {
		if err := checkCancel(ctx); err != nil {
			return err
		}
		for _, code := range batch {
			if err := fn(ctx, code); err != nil {
				// The job's own context deciding is what distinguishes
				// cancellation from a target that merely timed out.
				if cerr := checkCancel(ctx); cerr != nil {
					return cerr
				}
				progress.Errors.Add(1)
				s.recordTargetError(task, code, err)
				all = multierror.Append(all, err)
				continue
			}
			s.resolveTarget(ctx, task, code)
		}
	}

	if all != nil {
		s.log.Warn().Str("task", task).Int("failed_targets", all.Len()).
			Err(all.ErrorOrNil()).Msg("targets failed during sync")
	}
	return nil
}

// activeCodes resolves the all-symbols scope.
func (s *Syncers) activeCodes(ctx context.Context) ([]string, error) {
	symbols, err := s.symbols.AllActive(ctx)
	if err != nil {
		return nil, err
	}
	codes := make([]string, len(symbols))
	for i, sym := range symbols {
		codes[i] = sym.Code
	}
	return codes, nil
}

// isEmpty reports whether err is the adapter's "no rows" outcome, a valid
// result for non-trading days and fresh listings.
func isEmpty(err error) bool {
	return errs.KindOf(err) == errs.Empty
}
