package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/minionszyw/leeksaver/internal/domain"
	"github.com/rs/zerolog"
)

// AggregateRepository owns the assorted post-close aggregate tables: fund
// flows, margin balances, dragon-tiger listings, northbound flow, market
// sentiment, limit-up stocks, sectors and sector quotes. They share one
// repository because every one of them is a thin time-keyed upsert with at
// most one read path.
type AggregateRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewAggregateRepository(db *sql.DB, log zerolog.Logger) *AggregateRepository {
	return &AggregateRepository{db: db, log: log.With().Str("repo", "aggregate").Logger()}
}

// UpsertFundFlows inserts or replaces flows by (code, trade_date).
func (r *AggregateRepository) UpsertFundFlows(ctx context.Context, flows []domain.FundFlow) error {
	cols := []string{"code", "trade_date", "main_net_inflow", "retail_net_inflow"}
	rows := make([][]any, len(flows))
	for i, f := range flows {
		rows[i] = []any{f.Code, formatDate(f.TradeDate), f.MainNetInflow, f.RetailNetInflow}
	}
	return Upsert(ctx, r.db, "fund_flows", cols, rows)
}

// UpsertMargins inserts or replaces margin rows by (code, trade_date).
func (r *AggregateRepository) UpsertMargins(ctx context.Context, margins []domain.Margin) error {
	cols := []string{"code", "trade_date", "margin_balance", "short_balance"}
	rows := make([][]any, len(margins))
	for i, m := range margins {
		rows[i] = []any{m.Code, formatDate(m.TradeDate), m.MarginBalance, m.ShortBalance}
	}
	return Upsert(ctx, r.db, "margins", cols, rows)
}

// InsertDragonTigers appends listings; repeats of the same (code, trade_date,
// seat_name) are ignored, never updated — a historical listing has no update.
func (r *AggregateRepository) InsertDragonTigers(ctx context.Context, listings []domain.DragonTiger) error {
	cols := []string{"code", "trade_date", "seat_name", "buy_amount", "sell_amount"}
	rows := make([][]any, len(listings))
	for i, d := range listings {
		rows[i] = []any{d.Code, formatDate(d.TradeDate), d.SeatName, d.BuyAmount, d.SellAmount}
	}
	return BulkInsertIgnore(ctx, r.db, "dragon_tigers", cols, rows)
}

// UpsertNorthboundFlows inserts or replaces the market-wide flow by trade_date.
func (r *AggregateRepository) UpsertNorthboundFlows(ctx context.Context, flows []domain.NorthboundFlow) error {
	cols := []string{"trade_date", "net_inflow"}
	rows := make([][]any, len(flows))
	for i, f := range flows {
		rows[i] = []any{formatDate(f.TradeDate), f.NetInflow}
	}
	return Upsert(ctx, r.db, "northbound_flows", cols, rows)
}

// UpsertMarketSentiment inserts or replaces the daily sentiment aggregate.
func (r *AggregateRepository) UpsertMarketSentiment(ctx context.Context, s domain.MarketSentiment) error {
	cols := []string{"trade_date", "advance_count", "decline_count", "limit_up_count", "limit_down_count", "sentiment_score"}
	rows := [][]any{{
		formatDate(s.TradeDate), s.AdvanceCount, s.DeclineCount, s.LimitUpCount, s.LimitDownCount, s.SentimentScore,
	}}
	return Upsert(ctx, r.db, "market_sentiments", cols, rows)
}

// UpsertLimitUpStocks inserts or replaces limit-list rows by (code, trade_date).
func (r *AggregateRepository) UpsertLimitUpStocks(ctx context.Context, stocks []domain.LimitUpStock) error {
	cols := []string{"code", "trade_date", "limit_type", "seal_amount"}
	rows := make([][]any, len(stocks))
	for i, s := range stocks {
		rows[i] = []any{s.Code, formatDate(s.TradeDate), s.LimitType, s.SealAmount}
	}
	return Upsert(ctx, r.db, "limit_up_stocks", cols, rows)
}

// LimitCountsOn returns (limit_up, limit_down) counts for a trade date, an
// input into the sentiment score.
func (r *AggregateRepository) LimitCountsOn(ctx context.Context, date time.Time) (up, down int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN limit_type = 'up' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN limit_type = 'down' THEN 1 ELSE 0 END), 0)
		FROM limit_up_stocks WHERE trade_date = ?`, formatDate(date)).Scan(&up, &down)
	return up, down, err
}

// ChangePctsOn returns every symbol's change_pct for a trade date, the raw
// material for the sentiment aggregate.
func (r *AggregateRepository) ChangePctsOn(ctx context.Context, date time.Time) ([]float64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT change_pct FROM daily_bars WHERE trade_date = ?`, formatDate(date))
	if err != nil {
		return nil, fmt.Errorf("query change pcts: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertSectors inserts or replaces sectors by code.
func (r *AggregateRepository) UpsertSectors(ctx context.Context, sectors []domain.Sector) error {
	cols := []string{"code", "name", "kind"}
	rows := make([][]any, len(sectors))
	for i, s := range sectors {
		rows[i] = []any{s.Code, s.Name, s.Kind}
	}
	return Upsert(ctx, r.db, "sectors", cols, rows)
}

// UpsertSectorQuotes inserts or replaces quotes by (sector_code, trade_date).
func (r *AggregateRepository) UpsertSectorQuotes(ctx context.Context, quotes []domain.SectorQuote) error {
	cols := []string{"sector_code", "trade_date", "index_value", "change_pct"}
	rows := make([][]any, len(quotes))
	for i, q := range quotes {
		rows[i] = []any{q.SectorCode, formatDate(q.TradeDate), q.Index, q.ChangePct}
	}
	return Upsert(ctx, r.db, "sector_quotes", cols, rows)
}
