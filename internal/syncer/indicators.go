package syncer

import (
	"context"

	"github.com/minionszyw/leeksaver/internal/domain"
	"github.com/minionszyw/leeksaver/internal/jobs"
	"github.com/minionszyw/leeksaver/pkg/formulas"
)

// TechIndicatorsTask derives indicators from stored daily bars. It never
// touches the upstream feed: the bars are the input, talib does the math,
// and the write set depends on the recompute policy — by default only days
// at or past the previous indicator high-water mark (the stored latest day
// is recomputed so an upstream correction to it is absorbed); with the
// recompute-history flag the whole lookback window is rewritten.
func (s *Syncers) TechIndicatorsTask() func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		codes, err := s.activeCodes(ctx)
		if err != nil {
			return err
		}
		return s.perTarget(ctx, "tech_indicators", codes, progress, func(ctx context.Context, code string) error {
			return s.computeIndicators(ctx, code, progress)
		})
	}
}

func (s *Syncers) computeIndicators(ctx context.Context, code string, progress *jobs.Progress) error {
	// Twice the longest window: enough history that the first day we
	// intend to write has a fully warmed-up indicator set behind it.
	bars, err := s.dailyBars.Tail(ctx, code, formulas.MaxLookback*2)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return nil
	}
	progress.Fetched.Add(int64(len(bars)))

	high, low, closes, volume := barsToSeries(bars)
	rows := formulas.ComputeIndicators(high, low, closes, volume)

	lastWritten, err := s.indicators.LastTradeDate(ctx, code)
	if err != nil {
		return err
	}

	var out []domain.TechIndicator
	for i, bar := range bars {
		if !s.cfg.TechIndicatorsRecomputeHistory {
			if !lastWritten.IsZero() && bar.TradeDate.Before(lastWritten) {
				continue
			}
		}
		r := rows[i]
		out = append(out, domain.TechIndicator{
			Code: code, TradeDate: bar.TradeDate,
			MA5: r.MA5, MA10: r.MA10, MA20: r.MA20, MA60: r.MA60,
			MACD: r.MACD, MACDSig: r.MACDSig, MACDHist: r.MACDHist,
			RSI14: r.RSI14,
			KDJK: r.KDJK, KDJD: r.KDJD, KDJJ: r.KDJJ,
			BOLLUpper: r.BOLLUpper, BOLLMid: r.BOLLMid, BOLLLower: r.BOLLLower,
			CCI: r.CCI, ATR: r.ATR, OBV: r.OBV,
		})
	}
	if len(out) == 0 {
		return nil
	}

	progress.Accepted.Add(int64(len(out)))
	if err := s.indicators.Upsert(ctx, out); err != nil {
		return err
	}
	progress.Written.Add(int64(len(out)))
	return nil
}
