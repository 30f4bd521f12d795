package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// coverageTables whitelists the per-symbol hypertables the Data Doctor may
// audit, mapping each to its time column. Interpolating a table name into
// SQL is only safe because the name must come from this map.
var coverageTables = map[string]string{
	"daily_bars":      "trade_date",
	"valuations":      "trade_date",
	"fund_flows":      "trade_date",
	"margins":         "trade_date",
	"tech_indicators": "trade_date",
}

// DistinctCodesSince returns the set of codes with at least one row in
// table on or after since. The doctor's coverage numerator, generic across
// audited datasets.
func DistinctCodesSince(ctx context.Context, db *sql.DB, table string, since time.Time) (map[string]bool, error) {
	dateCol, ok := coverageTables[table]
	if !ok {
		return nil, fmt.Errorf("table %q is not auditable", table)
	}
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf(`SELECT DISTINCT code FROM %s WHERE %s >= ?`, table, dateCol),
		formatDate(since))
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

// MaxDateOf returns the newest time-column value in an auditable table, or
// the zero time when the table is empty.
func MaxDateOf(ctx context.Context, db *sql.DB, table string) (time.Time, error) {
	dateCol, ok := coverageTables[table]
	if !ok {
		return time.Time{}, fmt.Errorf("table %q is not auditable", table)
	}
	var d sql.NullString
	if err := db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT MAX(%s) FROM %s`, dateCol, table)).Scan(&d); err != nil {
		return time.Time{}, err
	}
	if !d.Valid || d.String == "" {
		return time.Time{}, nil
	}
	return parseDate(d.String)
}
