package syncer

import (
	"context"

	"github.com/minionszyw/leeksaver/internal/jobs"
	"github.com/minionszyw/leeksaver/internal/transform"
	"github.com/minionszyw/leeksaver/internal/upstream"
)

// SymbolListTask refreshes the symbol universe: upserts everything upstream
// lists and soft-deactivates what it no longer mentions. Runs first in the
// L1 wave since every other syncer's scope depends on it.
func (s *Syncers) SymbolListTask() func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		var frame *upstream.Frame
		err := s.gate.Do(ctx, "symbol_list", func(ctx context.Context) error {
			var err error
			frame, err = s.adapter.SymbolList(ctx)
			return err
		})
		if err != nil {
			return err
		}
		progress.Fetched.Add(int64(frame.Len()))

		symbols, counters := transform.Symbols(frame)
		progress.Accepted.Add(int64(counters.Accepted))
		if err := counters.DriftCheck(); err != nil {
			return err
		}

		known, err := s.symbols.AllCodes(ctx)
		if err != nil {
			return err
		}
		listed := make(map[string]bool, len(symbols))
		for _, sym := range symbols {
			listed[sym.Code] = true
		}
		var gone []string
		for _, code := range known {
			if !listed[code] {
				gone = append(gone, code)
			}
		}

		if err := s.symbols.Upsert(ctx, symbols); err != nil {
			return err
		}
		progress.Written.Add(int64(len(symbols)))

		if len(gone) > 0 {
			if err := s.symbols.Deactivate(ctx, gone); err != nil {
				return err
			}
			s.log.Info().Int("count", len(gone)).Msg("deactivated delisted symbols")
		}
		return nil
	}
}
