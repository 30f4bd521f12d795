package syncer

import (
	"time"

	"github.com/minionszyw/leeksaver/internal/domain"
	"github.com/minionszyw/leeksaver/internal/schedule"
)

// Tasks returns the declarative registry records for every dataset syncer.
// The L1 wave is ordered by offset multiplier: symbol_list lands first
// because every other scope resolves against it, daily_quotes before
// tech_indicators because indicators derive from bars, sentiment after
// both quotes and the limit list since it aggregates them.
func (s *Syncers) Tasks() []schedule.Task {
	return []schedule.Task{
		{Name: "symbol_list", Tier: domain.TierL1, OffsetMultiplier: 0, Callable: s.SymbolListTask()},
		{Name: "daily_quotes", Tier: domain.TierL1, OffsetMultiplier: 1, Callable: s.DailyQuotesTask(), Deadline: 30 * time.Minute},
		{Name: "valuations", Tier: domain.TierL1, OffsetMultiplier: 2, Callable: s.ValuationsTask(), Deadline: 30 * time.Minute},
		{Name: "fund_flow", Tier: domain.TierL1, OffsetMultiplier: 3, Callable: s.FundFlowTask()},
		{Name: "margin", Tier: domain.TierL1, OffsetMultiplier: 4, Callable: s.MarginTask()},
		{Name: "dragon_tiger", Tier: domain.TierL1, OffsetMultiplier: 5, Callable: s.DragonTigerTask()},
		{Name: "northbound", Tier: domain.TierL1, OffsetMultiplier: 6, Callable: s.NorthboundTask()},
		{Name: "limit_up", Tier: domain.TierL1, OffsetMultiplier: 7, Callable: s.LimitUpTask()},
		{Name: "sector_quotes", Tier: domain.TierL1, OffsetMultiplier: 8, Callable: s.SectorQuotesTask()},
		{Name: "tech_indicators", Tier: domain.TierL1, OffsetMultiplier: 9, Callable: s.TechIndicatorsTask(), Deadline: 30 * time.Minute},
		{Name: "market_sentiment", Tier: domain.TierL1, OffsetMultiplier: 10, Callable: s.MarketSentimentTask()},

		{Name: "minute_bars", Tier: domain.TierL2, OffsetMultiplier: 0, Callable: s.MinuteBarsTask()},
		{Name: "news", Tier: domain.TierL2, OffsetMultiplier: 1, Callable: s.NewsTask()},
		{Name: "embeddings", Tier: domain.TierL2, OffsetMultiplier: 2, Callable: s.EmbeddingsTask(), Deadline: 10 * time.Minute},

		{
			Name: "financial_statements", Tier: domain.TierSpecial,
			ScheduleSpec: schedule.WeeklyCron(s.cfg.SyncFinancialDayOfWeek, s.cfg.SyncFinancialHour, s.cfg.SyncFinancialMinute),
			Callable:     s.FinancialStatementsTask(), Deadline: time.Hour,
		},
		{
			Name: "news_cleanup", Tier: domain.TierSpecial,
			ScheduleSpec: schedule.WeeklyCron(s.cfg.CleanupNewsDayOfWeek, s.cfg.CleanupNewsHour, s.cfg.CleanupNewsMinute),
			Callable:     s.NewsCleanupTask(),
		},
	}
}
