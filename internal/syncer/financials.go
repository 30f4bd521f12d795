package syncer

import (
	"context"

	"github.com/minionszyw/leeksaver/internal/jobs"
	"github.com/minionszyw/leeksaver/internal/transform"
	"github.com/minionszyw/leeksaver/internal/upstream"
)

// FinancialStatementsTask is the weekly full rescan: every active symbol's
// complete report history is re-pulled and upserted. Dedup on
// (code, end_date) is the upsert key, so a rescan is idempotent.
func (s *Syncers) FinancialStatementsTask() func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		codes, err := s.activeCodes(ctx)
		if err != nil {
			return err
		}
		return s.perTarget(ctx, "financial_statements", codes, progress, func(ctx context.Context, code string) error {
			return s.syncFinancials(ctx, code, progress)
		})
	}
}

func (s *Syncers) syncFinancials(ctx context.Context, code string, progress *jobs.Progress) error {
	var frame *upstream.Frame
	err := s.gate.Do(ctx, "financial:"+code, func(ctx context.Context) error {
		var err error
		frame, err = s.adapter.Financial(ctx, code)
		return err
	})
	if isEmpty(err) {
		return nil // no reports published yet
	}
	if err != nil {
		return err
	}
	progress.Fetched.Add(int64(frame.Len()))

	reports, counters := transform.Financials(frame)
	progress.Accepted.Add(int64(counters.Accepted))
	if err := counters.DriftCheck(); err != nil {
		return err
	}
	if len(reports) == 0 {
		return nil
	}

	if err := s.financials.Upsert(ctx, reports); err != nil {
		return err
	}
	progress.Written.Add(int64(len(reports)))
	return nil
}

// ValuationsTask pulls the daily valuation snapshot for every active symbol.
func (s *Syncers) ValuationsTask() func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		codes, err := s.activeCodes(ctx)
		if err != nil {
			return err
		}
		return s.perTarget(ctx, "valuations", codes, progress, func(ctx context.Context, code string) error {
			return s.syncValuations(ctx, code, progress)
		})
	}
}

func (s *Syncers) syncValuations(ctx context.Context, code string, progress *jobs.Progress) error {
	var frame *upstream.Frame
	err := s.gate.Do(ctx, "valuation:"+code, func(ctx context.Context) error {
		var err error
		frame, err = s.adapter.Valuations(ctx, code)
		return err
	})
	if isEmpty(err) {
		return nil
	}
	if err != nil {
		return err
	}
	progress.Fetched.Add(int64(frame.Len()))

	vals, counters := transform.Valuations(frame)
	progress.Accepted.Add(int64(counters.Accepted))
	if err := counters.DriftCheck(); err != nil {
		return err
	}
	if len(vals) == 0 {
		return nil
	}

	if err := s.valuations.Upsert(ctx, vals); err != nil {
		return err
	}
	progress.Written.Add(int64(len(vals)))
	return nil
}
