package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ChunkError surfaces which chunk failed first, so a syncer can report how
// much of a shard actually landed. Earlier chunks stay committed; a failing
// chunk never rolls them back.
type ChunkError struct {
	FailedChunkIndex int
	Cause            error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d failed: %v", e.FailedChunkIndex, e.Cause)
}

func (e *ChunkError) Unwrap() error { return e.Cause }

// Upsert writes rows to table in chunked, independently-committed
// transactions using INSERT OR REPLACE, which is idempotent on whatever
// primary key the table declares: re-applying the same rows leaves the
// store in the same state.
func Upsert(ctx context.Context, db *sql.DB, table string, columns []string, rows [][]any) error {
	return execChunked(ctx, db, "INSERT OR REPLACE", table, columns, rows)
}

// BulkInsertIgnore writes rows to an append-only table (news, dragon_tiger)
// using INSERT OR IGNORE: rows that would collide on the unique/primary key
// are silently skipped rather than replaced, since append-only tables treat
// a repeat as "already recorded", not "update in place".
func BulkInsertIgnore(ctx context.Context, db *sql.DB, table string, columns []string, rows [][]any) error {
	return execChunked(ctx, db, "INSERT OR IGNORE", table, columns, rows)
}

func execChunked(ctx context.Context, db *sql.DB, verb, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	size := ChunkSize(len(columns), DefaultChunkSize)
	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	query := fmt.Sprintf("%s INTO %s (%s) VALUES (%s)",
		verb, table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	for idx, bounds := range chunkIndices(len(rows), size) {
		if err := execChunk(ctx, db, query, rows[bounds[0]:bounds[1]]); err != nil {
			return &ChunkError{FailedChunkIndex: idx, Cause: err}
		}
	}
	return nil
}

func execChunk(ctx context.Context, db *sql.DB, query string, rows [][]any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // no-op once Commit succeeds

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("exec row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
