package syncer

import (
	"context"

	"github.com/minionszyw/leeksaver/internal/jobs"
	"github.com/minionszyw/leeksaver/internal/transform"
	"github.com/minionszyw/leeksaver/internal/upstream"
)

// MinuteBarsTask is the L2 intraday poll: 1-minute bars for watchlist
// symbols only. Bars for symbols dropped from the watchlist are pruned at
// the end of each run so retention tracks the list.
func (s *Syncers) MinuteBarsTask() func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		w, err := s.watchlist.Get(ctx)
		if err != nil {
			return err
		}
		if len(w.Codes) == 0 {
			return nil // nothing watched, nothing polled
		}

		err = s.perTarget(ctx, "minute_bars", w.Codes, progress, func(ctx context.Context, code string) error {
			return s.syncMinuteBars(ctx, code, progress)
		})
		if err != nil {
			return err
		}

		return s.minuteBars.DeleteNotIn(ctx, w.Codes)
	}
}

func (s *Syncers) syncMinuteBars(ctx context.Context, code string, progress *jobs.Progress) error {
	var frame *upstream.Frame
	err := s.gate.Do(ctx, "minute_bars:"+code, func(ctx context.Context) error {
		var err error
		frame, err = s.adapter.MinuteBars(ctx, code)
		return err
	})
	if isEmpty(err) {
		return nil // market closed
	}
	if err != nil {
		return err
	}
	progress.Fetched.Add(int64(frame.Len()))

	bars, counters := transform.MinuteBars(frame)
	progress.Accepted.Add(int64(counters.Accepted))
	if err := counters.DriftCheck(); err != nil {
		return err
	}
	if len(bars) == 0 {
		return nil
	}

	if err := s.minuteBars.Upsert(ctx, bars); err != nil {
		return err
	}
	progress.Written.Add(int64(len(bars)))
	return nil
}
