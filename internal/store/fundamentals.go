package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/minionszyw/leeksaver/internal/domain"
	"github.com/rs/zerolog"
)

// FinancialRepository owns the financials table, keyed by (code, end_date).
type FinancialRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewFinancialRepository(db *sql.DB, log zerolog.Logger) *FinancialRepository {
	return &FinancialRepository{db: db, log: log.With().Str("repo", "financial").Logger()}
}

// Upsert inserts or replaces reports by (code, end_date).
func (r *FinancialRepository) Upsert(ctx context.Context, reports []domain.Financial) error {
	cols := []string{"code", "end_date", "pub_date", "revenue", "net_profit", "total_asset", "total_equity", "eps", "roe"}
	rows := make([][]any, len(reports))
	for i, f := range reports {
		rows[i] = []any{
			f.Code, formatDate(f.EndDate), formatDate(f.PubDate),
			f.Revenue, f.NetProfit, f.TotalAsset, f.TotalEquity, f.EPS, f.ROE,
		}
	}
	return Upsert(ctx, r.db, "financials", cols, rows)
}

// ByCode returns all stored reports for code, newest end_date first.
func (r *FinancialRepository) ByCode(ctx context.Context, code string) ([]domain.Financial, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT code, end_date, pub_date, revenue, net_profit, total_asset, total_equity, eps, roe
		FROM financials WHERE code = ? ORDER BY end_date DESC`, code)
	if err != nil {
		return nil, fmt.Errorf("query financials: %w", err)
	}
	defer rows.Close()

	var out []domain.Financial
	for rows.Next() {
		var f domain.Financial
		var endDate, pubDate string
		if err := rows.Scan(&f.Code, &endDate, &pubDate,
			&f.Revenue, &f.NetProfit, &f.TotalAsset, &f.TotalEquity, &f.EPS, &f.ROE); err != nil {
			return nil, err
		}
		if f.EndDate, err = parseDate(endDate); err != nil {
			return nil, err
		}
		if f.PubDate, err = parseDate(pubDate); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ValuationRepository owns the valuations table, keyed by (code, trade_date).
type ValuationRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewValuationRepository(db *sql.DB, log zerolog.Logger) *ValuationRepository {
	return &ValuationRepository{db: db, log: log.With().Str("repo", "valuation").Logger()}
}

// Upsert inserts or replaces valuations by (code, trade_date).
func (r *ValuationRepository) Upsert(ctx context.Context, vals []domain.Valuation) error {
	cols := []string{"code", "trade_date", "pe_ttm", "pb", "ps", "peg", "market_cap", "dividend_yield"}
	rows := make([][]any, len(vals))
	for i, v := range vals {
		rows[i] = []any{
			v.Code, formatDate(v.TradeDate),
			v.PETTM, v.PB, v.PS, v.PEG, v.MarketCap, v.DividendYield,
		}
	}
	return Upsert(ctx, r.db, "valuations", cols, rows)
}

// Latest returns the most recent valuation for code, or nil when none exists.
func (r *ValuationRepository) Latest(ctx context.Context, code string) (*domain.Valuation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT code, trade_date, pe_ttm, pb, ps, peg, market_cap, dividend_yield
		FROM valuations WHERE code = ? ORDER BY trade_date DESC LIMIT 1`, code)

	var v domain.Valuation
	var d string
	err := row.Scan(&v.Code, &d, &v.PETTM, &v.PB, &v.PS, &v.PEG, &v.MarketCap, &v.DividendYield)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if v.TradeDate, err = parseDate(d); err != nil {
		return nil, err
	}
	return &v, nil
}

// TechIndicatorRepository owns the tech_indicators table. Rows are derived
// from daily_bars by the tech_indicators syncer; nothing else writes here.
type TechIndicatorRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewTechIndicatorRepository(db *sql.DB, log zerolog.Logger) *TechIndicatorRepository {
	return &TechIndicatorRepository{db: db, log: log.With().Str("repo", "tech_indicator").Logger()}
}

var techIndicatorColumns = []string{
	"code", "trade_date",
	"ma5", "ma10", "ma20", "ma60",
	"macd", "macd_sig", "macd_hist",
	"rsi14",
	"kdj_k", "kdj_d", "kdj_j",
	"boll_upper", "boll_mid", "boll_lower",
	"cci", "atr", "obv",
}

// Upsert inserts or replaces indicators by (code, trade_date).
func (r *TechIndicatorRepository) Upsert(ctx context.Context, inds []domain.TechIndicator) error {
	rows := make([][]any, len(inds))
	for i, t := range inds {
		rows[i] = []any{
			t.Code, formatDate(t.TradeDate),
			t.MA5, t.MA10, t.MA20, t.MA60,
			t.MACD, t.MACDSig, t.MACDHist,
			t.RSI14,
			t.KDJK, t.KDJD, t.KDJJ,
			t.BOLLUpper, t.BOLLMid, t.BOLLLower,
			t.CCI, t.ATR, t.OBV,
		}
	}
	return Upsert(ctx, r.db, "tech_indicators", techIndicatorColumns, rows)
}

// LastTradeDate returns the newest indicator date for code, or the zero time.
// The tech_indicators syncer compares it against the daily_bars high-water
// mark to decide which days need (re)computation.
func (r *TechIndicatorRepository) LastTradeDate(ctx context.Context, code string) (time.Time, error) {
	var d sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(trade_date) FROM tech_indicators WHERE code = ?`, code).Scan(&d)
	if err != nil {
		return time.Time{}, err
	}
	if !d.Valid || d.String == "" {
		return time.Time{}, nil
	}
	return parseDate(d.String)
}

// Range returns indicators for code within [start, end], ascending.
func (r *TechIndicatorRepository) Range(ctx context.Context, code string, start, end time.Time) ([]domain.TechIndicator, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT code, trade_date, ma5, ma10, ma20, ma60, macd, macd_sig, macd_hist,
		       rsi14, kdj_k, kdj_d, kdj_j, boll_upper, boll_mid, boll_lower, cci, atr, obv
		FROM tech_indicators
		WHERE code = ? AND trade_date >= ? AND trade_date <= ?
		ORDER BY trade_date ASC`,
		code, formatDate(start), formatDate(end))
	if err != nil {
		return nil, fmt.Errorf("query tech indicators: %w", err)
	}
	defer rows.Close()

	var out []domain.TechIndicator
	for rows.Next() {
		var t domain.TechIndicator
		var d string
		if err := rows.Scan(&t.Code, &d, &t.MA5, &t.MA10, &t.MA20, &t.MA60,
			&t.MACD, &t.MACDSig, &t.MACDHist, &t.RSI14,
			&t.KDJK, &t.KDJD, &t.KDJJ,
			&t.BOLLUpper, &t.BOLLMid, &t.BOLLLower, &t.CCI, &t.ATR, &t.OBV); err != nil {
			return nil, err
		}
		if t.TradeDate, err = parseDate(d); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
