package syncer

import (
	"context"
	"time"

	"github.com/minionszyw/leeksaver/internal/domain"
	"github.com/minionszyw/leeksaver/internal/jobs"
	"github.com/minionszyw/leeksaver/internal/transform"
	"github.com/minionszyw/leeksaver/internal/upstream"
	"github.com/minionszyw/leeksaver/pkg/formulas"
)

// The post-close aggregates all follow the same single-fetch shape: one
// market-wide frame for today, cleaned, upserted. Empty is a valid outcome
// on non-trading days.

func (s *Syncers) fetchDated(ctx context.Context, name string, fetch func(ctx context.Context, date time.Time) (*upstream.Frame, error)) (*upstream.Frame, error) {
	var frame *upstream.Frame
	date := s.now()
	err := s.gate.Do(ctx, name, func(ctx context.Context) error {
		var err error
		frame, err = fetch(ctx, date)
		return err
	})
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// FundFlowTask pulls today's per-symbol fund flows in one market-wide call.
func (s *Syncers) FundFlowTask() func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		frame, err := s.fetchDated(ctx, "fund_flow", s.adapter.FundFlows)
		if isEmpty(err) {
			return nil
		}
		if err != nil {
			return err
		}
		progress.Fetched.Add(int64(frame.Len()))

		flows, counters := transform.FundFlows(frame)
		progress.Accepted.Add(int64(counters.Accepted))
		if err := counters.DriftCheck(); err != nil {
			return err
		}
		if err := s.aggregates.UpsertFundFlows(ctx, flows); err != nil {
			return err
		}
		progress.Written.Add(int64(len(flows)))
		return nil
	}
}

// MarginTask pulls today's margin balances.
func (s *Syncers) MarginTask() func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		frame, err := s.fetchDated(ctx, "margin", s.adapter.Margins)
		if isEmpty(err) {
			return nil
		}
		if err != nil {
			return err
		}
		progress.Fetched.Add(int64(frame.Len()))

		margins, counters := transform.Margins(frame)
		progress.Accepted.Add(int64(counters.Accepted))
		if err := counters.DriftCheck(); err != nil {
			return err
		}
		if err := s.aggregates.UpsertMargins(ctx, margins); err != nil {
			return err
		}
		progress.Written.Add(int64(len(margins)))
		return nil
	}
}

// DragonTigerTask appends today's dragon-tiger listings.
func (s *Syncers) DragonTigerTask() func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		frame, err := s.fetchDated(ctx, "dragon_tiger", s.adapter.DragonTiger)
		if isEmpty(err) {
			return nil
		}
		if err != nil {
			return err
		}
		progress.Fetched.Add(int64(frame.Len()))

		listings, counters := transform.DragonTigers(frame)
		progress.Accepted.Add(int64(counters.Accepted))
		if err := counters.DriftCheck(); err != nil {
			return err
		}
		if err := s.aggregates.InsertDragonTigers(ctx, listings); err != nil {
			return err
		}
		progress.Written.Add(int64(len(listings)))
		return nil
	}
}

// NorthboundTask pulls today's market-wide Stock-Connect flow.
func (s *Syncers) NorthboundTask() func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		frame, err := s.fetchDated(ctx, "northbound", s.adapter.NorthboundFlow)
		if isEmpty(err) {
			return nil
		}
		if err != nil {
			return err
		}
		progress.Fetched.Add(int64(frame.Len()))

		flows, counters := transform.NorthboundFlows(frame)
		progress.Accepted.Add(int64(counters.Accepted))
		if err := counters.DriftCheck(); err != nil {
			return err
		}
		if err := s.aggregates.UpsertNorthboundFlows(ctx, flows); err != nil {
			return err
		}
		progress.Written.Add(int64(len(flows)))
		return nil
	}
}

// LimitUpTask pulls today's limit-up/limit-down list.
func (s *Syncers) LimitUpTask() func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		frame, err := s.fetchDated(ctx, "limit_up", s.adapter.LimitUpStocks)
		if isEmpty(err) {
			return nil
		}
		if err != nil {
			return err
		}
		progress.Fetched.Add(int64(frame.Len()))

		stocks, counters := transform.LimitUpStocks(frame)
		progress.Accepted.Add(int64(counters.Accepted))
		if err := counters.DriftCheck(); err != nil {
			return err
		}
		if err := s.aggregates.UpsertLimitUpStocks(ctx, stocks); err != nil {
			return err
		}
		progress.Written.Add(int64(len(stocks)))
		return nil
	}
}

// MarketSentimentTask is derived, not fetched: it aggregates today's stored
// change_pct distribution and limit counts into one sentiment row. Runs
// after daily_quotes and limit_up in the L1 wave.
func (s *Syncers) MarketSentimentTask() func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		today := s.now()

		pcts, err := s.aggregates.ChangePctsOn(ctx, today)
		if err != nil {
			return err
		}
		if len(pcts) == 0 {
			return nil // non-trading day
		}
		progress.Fetched.Add(int64(len(pcts)))

		up, down, err := s.aggregates.LimitCountsOn(ctx, today)
		if err != nil {
			return err
		}

		advances, declines := 0, 0
		for _, p := range pcts {
			switch {
			case p > 0:
				advances++
			case p < 0:
				declines++
			}
		}

		sentiment := domain.MarketSentiment{
			TradeDate:      today,
			AdvanceCount:   advances,
			DeclineCount:   declines,
			LimitUpCount:   up,
			LimitDownCount: down,
			SentimentScore: sentimentScore(pcts, advances, declines),
		}
		if err := s.aggregates.UpsertMarketSentiment(ctx, sentiment); err != nil {
			return err
		}
		progress.Written.Add(1)
		return nil
	}
}

// sentimentScore maps the day's breadth and mean move onto 0-100, with 50
// neutral. The mean change carries half the weight, breadth the other half;
// dispersion damps the mean so one wild outlier cannot swing the score.
func sentimentScore(pcts []float64, advances, declines int) float64 {
	mean := formulas.Mean(pcts)
	sd := formulas.StdDev(pcts)
	if sd > 0 {
		mean = mean / (1 + sd/10)
	}

	breadth := 0.0
	if advances+declines > 0 {
		breadth = float64(advances-declines) / float64(advances+declines)
	}

	score := 50 + mean*5 + breadth*25
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// SectorQuotesTask refreshes the sector hierarchy and today's sector
// indexes in one pass.
func (s *Syncers) SectorQuotesTask() func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		var sectorFrame *upstream.Frame
		err := s.gate.Do(ctx, "sectors", func(ctx context.Context) error {
			var err error
			sectorFrame, err = s.adapter.Sectors(ctx)
			return err
		})
		if err != nil && !isEmpty(err) {
			return err
		}
		if sectorFrame != nil {
			progress.Fetched.Add(int64(sectorFrame.Len()))
			sectors, counters := transform.Sectors(sectorFrame)
			progress.Accepted.Add(int64(counters.Accepted))
			if err := counters.DriftCheck(); err != nil {
				return err
			}
			if err := s.aggregates.UpsertSectors(ctx, sectors); err != nil {
				return err
			}
			progress.Written.Add(int64(len(sectors)))
		}

		frame, err := s.fetchDated(ctx, "sector_quotes", s.adapter.SectorQuotes)
		if isEmpty(err) {
			return nil
		}
		if err != nil {
			return err
		}
		progress.Fetched.Add(int64(frame.Len()))

		quotes, counters := transform.SectorQuotes(frame)
		progress.Accepted.Add(int64(counters.Accepted))
		if err := counters.DriftCheck(); err != nil {
			return err
		}
		if err := s.aggregates.UpsertSectorQuotes(ctx, quotes); err != nil {
			return err
		}
		progress.Written.Add(int64(len(quotes)))
		return nil
	}
}
