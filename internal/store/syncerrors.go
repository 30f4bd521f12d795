package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/minionszyw/leeksaver/internal/domain"
	"github.com/rs/zerolog"
)

// SyncErrorRepository owns the sync_errors bookkeeping table. Rows are
// keyed logically by (task_name, target_code): a failure either bumps the
// open row for that key or opens a new one, and a subsequent success closes
// it by setting resolved_at. Nothing is ever deleted; the table is the
// operator's audit trail.
type SyncErrorRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewSyncErrorRepository(db *sql.DB, log zerolog.Logger) *SyncErrorRepository {
	return &SyncErrorRepository{db: db, log: log.With().Str("repo", "sync_error").Logger()}
}

// Record notes a failure for (taskName, targetCode). If an unresolved row
// already exists for the key, its retry_count is bumped and last_retry_at
// refreshed; otherwise a new row is inserted. At most one unresolved row
// exists per key at any time.
func (r *SyncErrorRepository) Record(ctx context.Context, taskName, targetCode, kind, message string, now time.Time) error {
	ts := formatTimestamp(now)
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_errors
		SET retry_count = retry_count + 1, last_retry_at = ?, kind = ?, message = ?
		WHERE task_name = ? AND target_code = ? AND resolved_at IS NULL`,
		ts, kind, message, taskName, targetCode)
	if err != nil {
		return fmt.Errorf("update sync error: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n > 0 {
		return nil
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sync_errors (task_name, target_code, kind, message, retry_count, last_retry_at, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		taskName, targetCode, kind, message, ts, ts)
	if err != nil {
		return fmt.Errorf("insert sync error: %w", err)
	}
	return nil
}

// Resolve closes any unresolved row for (taskName, targetCode). Called on
// every success; a success with no open row is a no-op.
func (r *SyncErrorRepository) Resolve(ctx context.Context, taskName, targetCode string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_errors SET resolved_at = ?
		WHERE task_name = ? AND target_code = ? AND resolved_at IS NULL`,
		formatTimestamp(now), taskName, targetCode)
	return err
}

// Unresolved returns every open row, optionally filtered by task name.
func (r *SyncErrorRepository) Unresolved(ctx context.Context, taskName string) ([]domain.SyncError, error) {
	query := `
		SELECT id, task_name, target_code, kind, message, retry_count, last_retry_at, created_at, resolved_at
		FROM sync_errors WHERE resolved_at IS NULL`
	args := []any{}
	if taskName != "" {
		query += ` AND task_name = ?`
		args = append(args, taskName)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unresolved sync errors: %w", err)
	}
	defer rows.Close()
	return scanSyncErrors(rows)
}

// ByKey returns every row (resolved or not) for a logical key, newest first.
func (r *SyncErrorRepository) ByKey(ctx context.Context, taskName, targetCode string) ([]domain.SyncError, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_name, target_code, kind, message, retry_count, last_retry_at, created_at, resolved_at
		FROM sync_errors WHERE task_name = ? AND target_code = ?
		ORDER BY created_at DESC`, taskName, targetCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSyncErrors(rows)
}

// Quarantined returns unresolved rows whose retry budget is exhausted.
// Quarantined keys are excluded from automatic retry; only an operator
// trigger touches them again.
func (r *SyncErrorRepository) Quarantined(ctx context.Context, threshold int) ([]domain.SyncError, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_name, target_code, kind, message, retry_count, last_retry_at, created_at, resolved_at
		FROM sync_errors WHERE resolved_at IS NULL AND retry_count >= ?
		ORDER BY created_at ASC`, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSyncErrors(rows)
}

func scanSyncErrors(rows *sql.Rows) ([]domain.SyncError, error) {
	var out []domain.SyncError
	for rows.Next() {
		var e domain.SyncError
		var lastRetry, created string
		var resolved sql.NullString
		if err := rows.Scan(&e.ID, &e.TaskName, &e.TargetCode, &e.Kind, &e.Message,
			&e.RetryCount, &lastRetry, &created, &resolved); err != nil {
			return nil, err
		}
		t, err := parseTimestamp(lastRetry)
		if err != nil {
			return nil, err
		}
		e.LastRetryAt = t
		if t, err = parseTimestamp(created); err != nil {
			return nil, err
		}
		e.CreatedAt = t
		if resolved.Valid {
			rt, err := parseTimestamp(resolved.String)
			if err != nil {
				return nil, err
			}
			e.ResolvedAt = &rt
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
