package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/minionszyw/leeksaver/internal/domain"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// SymbolRepository owns the symbols table: every other time-series table
// references a Symbol.Code but this is the only place that writes one.
type SymbolRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewSymbolRepository(db *sql.DB, log zerolog.Logger) *SymbolRepository {
	return &SymbolRepository{db: db, log: log.With().Str("repo", "symbol").Logger()}
}

// Upsert inserts or replaces symbols by code.
func (r *SymbolRepository) Upsert(ctx context.Context, symbols []domain.Symbol) error {
	cols := []string{"code", "name", "market", "asset_type", "industry", "list_date", "active"}
	rows := make([][]any, len(symbols))
	for i, s := range symbols {
		active := 0
		if s.Active {
			active = 1
		}
		rows[i] = []any{s.Code, s.Name, string(s.Market), string(s.Asset), s.Industry, s.ListDate.Format(dateLayout), active}
	}
	return Upsert(ctx, r.db, "symbols", cols, rows)
}

// Deactivate soft-deactivates symbols upstream no longer lists. Symbols are
// never hard-deleted: delisted codes stay visible to historical reads.
func (r *SymbolRepository) Deactivate(ctx context.Context, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	query, args := inClause(`UPDATE symbols SET active = 0 WHERE code IN (%s)`, codes)
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// GetByCode returns nil, nil if not found — "not found" is not an error.
func (r *SymbolRepository) GetByCode(ctx context.Context, code string) (*domain.Symbol, error) {
	row := r.db.QueryRowContext(ctx, `SELECT code, name, market, asset_type, industry, list_date, active FROM symbols WHERE code = ?`, code)
	s, err := scanSymbol(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// AllActive returns every active symbol, the default scope for most syncers.
func (r *SymbolRepository) AllActive(ctx context.Context) ([]domain.Symbol, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code, name, market, asset_type, industry, list_date, active FROM symbols WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("query active symbols: %w", err)
	}
	defer rows.Close()

	var out []domain.Symbol
	for rows.Next() {
		s, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// AllCodes returns every symbol code that has ever been seen, active or not,
// used by Data Doctor coverage math (the denominator is the whole universe).
func (r *SymbolRepository) AllCodes(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code FROM symbols`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSymbol(row rowScanner) (*domain.Symbol, error) {
	var s domain.Symbol
	var market, asset, listDate string
	var active int
	if err := row.Scan(&s.Code, &s.Name, &market, &asset, &s.Industry, &listDate, &active); err != nil {
		return nil, err
	}
	s.Market = domain.Market(market)
	s.Asset = domain.AssetType(asset)
	s.Active = active != 0
	if listDate != "" {
		t, err := parseDate(listDate)
		if err == nil {
			s.ListDate = t
		}
	}
	return &s, nil
}
