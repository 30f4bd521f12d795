package store

import (
	"context"
	"database/sql"

	"github.com/minionszyw/leeksaver/internal/domain"
	"github.com/rs/zerolog"
)

// WatchlistRepository owns the user-maintained watchlist that drives L2
// scope and MinuteBar retention.
type WatchlistRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewWatchlistRepository(db *sql.DB, log zerolog.Logger) *WatchlistRepository {
	return &WatchlistRepository{db: db, log: log.With().Str("repo", "watchlist").Logger()}
}

// Get returns the current watchlist.
func (r *WatchlistRepository) Get(ctx context.Context) (domain.Watchlist, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code FROM watchlist ORDER BY code`)
	if err != nil {
		return domain.Watchlist{}, err
	}
	defer rows.Close()

	var w domain.Watchlist
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return domain.Watchlist{}, err
		}
		w.Codes = append(w.Codes, c)
	}
	return w, rows.Err()
}

// Add puts a code on the watchlist; adding an existing code is a no-op.
func (r *WatchlistRepository) Add(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO watchlist (code) VALUES (?)`, code)
	return err
}

// Remove takes a code off the watchlist.
func (r *WatchlistRepository) Remove(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM watchlist WHERE code = ?`, code)
	return err
}
