package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/minionszyw/leeksaver/internal/domain"
	"github.com/rs/zerolog"
)

// DailyBarRepository owns the daily_bars hypertable. Range queries always
// constrain trade_date so the partition index is usable.
type DailyBarRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewDailyBarRepository(db *sql.DB, log zerolog.Logger) *DailyBarRepository {
	return &DailyBarRepository{db: db, log: log.With().Str("repo", "daily_bar").Logger()}
}

var dailyBarColumns = []string{
	"code", "trade_date", "open", "high", "low", "close",
	"volume", "amount", "change", "change_pct", "turnover_rate",
}

// Upsert inserts or replaces bars by (code, trade_date).
func (r *DailyBarRepository) Upsert(ctx context.Context, bars []domain.DailyBar) error {
	rows := make([][]any, len(bars))
	for i, b := range bars {
		rows[i] = []any{
			b.Code, formatDate(b.TradeDate), b.Open, b.High, b.Low, b.Close,
			b.Volume, b.Amount, b.Change, b.ChangePct, b.TurnoverRate,
		}
	}
	return Upsert(ctx, r.db, "daily_bars", dailyBarColumns, rows)
}

// LastTradeDate returns the most recent stored trade_date for code, or the
// zero time when no bar exists yet.
func (r *DailyBarRepository) LastTradeDate(ctx context.Context, code string) (time.Time, error) {
	var d sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(trade_date) FROM daily_bars WHERE code = ?`, code).Scan(&d)
	if err != nil {
		return time.Time{}, fmt.Errorf("query last trade date: %w", err)
	}
	if !d.Valid || d.String == "" {
		return time.Time{}, nil
	}
	return parseDate(d.String)
}

// Range returns bars for code within [start, end], ascending by trade_date.
func (r *DailyBarRepository) Range(ctx context.Context, code string, start, end time.Time) ([]domain.DailyBar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT code, trade_date, open, high, low, close, volume, amount, change, change_pct, turnover_rate
		FROM daily_bars
		WHERE code = ? AND trade_date >= ? AND trade_date <= ?
		ORDER BY trade_date ASC`,
		code, formatDate(start), formatDate(end))
	if err != nil {
		return nil, fmt.Errorf("query daily bars: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyBar
	for rows.Next() {
		var b domain.DailyBar
		var d string
		if err := rows.Scan(&b.Code, &d, &b.Open, &b.High, &b.Low, &b.Close,
			&b.Volume, &b.Amount, &b.Change, &b.ChangePct, &b.TurnoverRate); err != nil {
			return nil, err
		}
		if b.TradeDate, err = parseDate(d); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Tail returns the most recent n bars for code, ascending by trade_date.
// Used by the tech_indicators syncer to load its lookback window.
func (r *DailyBarRepository) Tail(ctx context.Context, code string, n int) ([]domain.DailyBar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT code, trade_date, open, high, low, close, volume, amount, change, change_pct, turnover_rate
		FROM (
			SELECT * FROM daily_bars WHERE code = ? ORDER BY trade_date DESC LIMIT ?
		) ORDER BY trade_date ASC`,
		code, n)
	if err != nil {
		return nil, fmt.Errorf("query bar tail: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyBar
	for rows.Next() {
		var b domain.DailyBar
		var d string
		if err := rows.Scan(&b.Code, &d, &b.Open, &b.High, &b.Low, &b.Close,
			&b.Volume, &b.Amount, &b.Change, &b.ChangePct, &b.TurnoverRate); err != nil {
			return nil, err
		}
		if b.TradeDate, err = parseDate(d); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CodesWithBarsSince returns the distinct codes that have at least one bar
// on or after since. The Data Doctor computes coverage with the
// table-generic DistinctCodesSince instead.
func (r *DailyBarRepository) CodesWithBarsSince(ctx context.Context, since time.Time) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT code FROM daily_bars WHERE trade_date >= ?`, formatDate(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out[c] = true
	}
	return out, rows.Err()
}

// MaxTradeDate returns the newest trade_date across all codes, or zero time
// for an empty table. The Data Doctor probes freshness with the
// table-generic MaxDateOf instead.
func (r *DailyBarRepository) MaxTradeDate(ctx context.Context) (time.Time, error) {
	var d sql.NullString
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(trade_date) FROM daily_bars`).Scan(&d); err != nil {
		return time.Time{}, err
	}
	if !d.Valid || d.String == "" {
		return time.Time{}, nil
	}
	return parseDate(d.String)
}

// InvariantViolationsSince counts stored rows violating the OHLC or
// change_pct invariants on or after since. Expected to be 0: the Transformer
// rejects such rows before they reach this table, so a non-zero count means
// something bypassed the pipeline.
func (r *DailyBarRepository) InvariantViolationsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM daily_bars
		WHERE trade_date >= ?
		  AND (high < low
		   OR high < open OR high < close
		   OR low > open OR low > close
		   OR open <= 0 OR close <= 0 OR high <= 0 OR low <= 0
		   OR change_pct > 30 OR change_pct < -30)`,
		formatDate(since)).Scan(&n)
	return n, err
}

// Count returns the total row count, used by tests and sync status.
func (r *DailyBarRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM daily_bars`).Scan(&n)
	return n, err
}

// MinuteBarRepository owns the minute_bars table. Rows exist only for
// watchlist symbols; retention is enforced by the writer's scope, not here.
type MinuteBarRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewMinuteBarRepository(db *sql.DB, log zerolog.Logger) *MinuteBarRepository {
	return &MinuteBarRepository{db: db, log: log.With().Str("repo", "minute_bar").Logger()}
}

// Upsert inserts or replaces bars by (code, timestamp).
func (r *MinuteBarRepository) Upsert(ctx context.Context, bars []domain.MinuteBar) error {
	cols := []string{"code", "timestamp", "open", "high", "low", "close", "volume", "amount"}
	rows := make([][]any, len(bars))
	for i, b := range bars {
		rows[i] = []any{b.Code, formatTimestamp(b.Timestamp), b.Open, b.High, b.Low, b.Close, b.Volume, b.Amount}
	}
	return Upsert(ctx, r.db, "minute_bars", cols, rows)
}

// Range returns minute bars for code within [start, end], ascending.
func (r *MinuteBarRepository) Range(ctx context.Context, code string, start, end time.Time) ([]domain.MinuteBar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT code, timestamp, open, high, low, close, volume, amount
		FROM minute_bars
		WHERE code = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC`,
		code, formatTimestamp(start), formatTimestamp(end))
	if err != nil {
		return nil, fmt.Errorf("query minute bars: %w", err)
	}
	defer rows.Close()

	var out []domain.MinuteBar
	for rows.Next() {
		var b domain.MinuteBar
		var ts string
		if err := rows.Scan(&b.Code, &ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Amount); err != nil {
			return nil, err
		}
		if b.Timestamp, err = parseTimestamp(ts); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteNotIn removes minute bars for codes no longer on the watchlist.
func (r *MinuteBarRepository) DeleteNotIn(ctx context.Context, keep []string) error {
	if len(keep) == 0 {
		_, err := r.db.ExecContext(ctx, `DELETE FROM minute_bars`)
		return err
	}
	query, args := inClause(`DELETE FROM minute_bars WHERE code NOT IN (%s)`, keep)
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}
