package syncer

import (
	"context"
	"time"

	"github.com/minionszyw/leeksaver/internal/domain"
	"github.com/minionszyw/leeksaver/internal/jobs"
	"github.com/minionszyw/leeksaver/internal/transform"
	"github.com/minionszyw/leeksaver/internal/upstream"
)

// safetyWindowDays is how far back a cold-start fetch reaches. A week
// absorbs late corrections without re-pulling a symbol's whole history.
const safetyWindowDays = 7

// DailyQuotesTask pulls daily bars incrementally: per symbol, the fetch
// starts at the day after the stored high-water mark, clamped forward to
// the symbol's list date; a symbol with no stored bars gets the last week.
func (s *Syncers) DailyQuotesTask() func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		codes, err := s.activeCodes(ctx)
		if err != nil {
			return err
		}
		return s.perTarget(ctx, "daily_quotes", codes, progress, func(ctx context.Context, code string) error {
			return s.syncDailyBars(ctx, code, progress)
		})
	}
}

// DailyQuotesBackfill returns a callable scoped to an explicit symbol set,
// the shape the Data Doctor's backfill shards use.
func (s *Syncers) DailyQuotesBackfill(codes []string) func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		return s.perTarget(ctx, "daily_quotes", codes, progress, func(ctx context.Context, code string) error {
			return s.syncDailyBars(ctx, code, progress)
		})
	}
}

// DailyQuotesForCode returns a callable for one ad-hoc CLI trigger,
// optionally re-fetching a specific date rather than the incremental range.
func (s *Syncers) DailyQuotesForCode(code string, date *time.Time) func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		if date != nil {
			return s.fetchAndWriteBars(ctx, code, *date, *date, progress)
		}
		return s.syncDailyBars(ctx, code, progress)
	}
}

func (s *Syncers) syncDailyBars(ctx context.Context, code string, progress *jobs.Progress) error {
	today := s.now()

	last, err := s.dailyBars.LastTradeDate(ctx, code)
	if err != nil {
		return err
	}

	var start time.Time
	if last.IsZero() {
		start = today.AddDate(0, 0, -safetyWindowDays)
	} else {
		start = last.AddDate(0, 0, 1)
	}

	sym, err := s.symbols.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if sym != nil && !sym.ListDate.IsZero() && start.Before(sym.ListDate) {
		start = sym.ListDate
	}
	if start.After(today) {
		return nil // already current
	}

	return s.fetchAndWriteBars(ctx, code, start, today, progress)
}

func (s *Syncers) fetchAndWriteBars(ctx context.Context, code string, start, end time.Time, progress *jobs.Progress) error {
	var frame *upstream.Frame
	err := s.gate.Do(ctx, "daily_bars:"+code, func(ctx context.Context) error {
		var err error
		frame, err = s.adapter.DailyBars(ctx, code, start, end)
		return err
	})
	if isEmpty(err) {
		return nil // non-trading window, nothing to write
	}
	if err != nil {
		return err
	}
	progress.Fetched.Add(int64(frame.Len()))

	bars, counters := transform.DailyBars(frame)
	progress.Accepted.Add(int64(counters.Accepted))
	if err := counters.DriftCheck(); err != nil {
		return err
	}
	if len(bars) == 0 {
		return nil
	}

	if err := s.dailyBars.Upsert(ctx, bars); err != nil {
		return err
	}
	progress.Written.Add(int64(len(bars)))
	return nil
}

// barsToSeries splits bars into the parallel slices the indicator formulas
// consume.
func barsToSeries(bars []domain.DailyBar) (high, low, closes, volume []float64) {
	high = make([]float64, len(bars))
	low = make([]float64, len(bars))
	closes = make([]float64, len(bars))
	volume = make([]float64, len(bars))
	for i, b := range bars {
		high[i] = b.High
		low[i] = b.Low
		closes[i] = b.Close
		volume[i] = float64(b.Volume)
	}
	return high, low, closes, volume
}
