package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncErrorClosure(t *testing.T) {
	db := testDB(t)
	repo := NewSyncErrorRepository(db.Conn(), testLogger())
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)

	// n failures for the same key collapse into one open row with a
	// bumped retry count.
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Record(ctx, "daily_quotes", "000002", "UpstreamUnavailable", "boom", now.Add(time.Duration(i)*time.Minute)))
	}

	open, err := repo.Unresolved(ctx, "daily_quotes")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "000002", open[0].TargetCode)
	assert.Equal(t, 2, open[0].RetryCount)
	assert.Nil(t, open[0].ResolvedAt)

	// One success closes the row and leaves no orphans.
	require.NoError(t, repo.Resolve(ctx, "daily_quotes", "000002", now.Add(time.Hour)))

	open, err = repo.Unresolved(ctx, "daily_quotes")
	require.NoError(t, err)
	assert.Empty(t, open)

	history, err := repo.ByKey(ctx, "daily_quotes", "000002")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].ResolvedAt)

	// A failure after resolution opens a fresh row instead of reopening
	// the closed one.
	require.NoError(t, repo.Record(ctx, "daily_quotes", "000002", "RateLimited", "again", now.Add(2*time.Hour)))
	history, err = repo.ByKey(ctx, "daily_quotes", "000002")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSyncErrorKeysAreIndependent(t *testing.T) {
	db := testDB(t)
	repo := NewSyncErrorRepository(db.Conn(), testLogger())
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Record(ctx, "daily_quotes", "000002", "Unknown", "a", now))
	require.NoError(t, repo.Record(ctx, "daily_quotes", "600519", "Unknown", "b", now))
	require.NoError(t, repo.Record(ctx, "valuations", "000002", "Unknown", "c", now))

	require.NoError(t, repo.Resolve(ctx, "daily_quotes", "000002", now))

	open, err := repo.Unresolved(ctx, "")
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestSyncErrorQuarantine(t *testing.T) {
	db := testDB(t)
	repo := NewSyncErrorRepository(db.Conn(), testLogger())
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 6; i++ {
		require.NoError(t, repo.Record(ctx, "daily_quotes", "000002", "UpstreamUnavailable", "boom", now))
	}
	require.NoError(t, repo.Record(ctx, "daily_quotes", "600519", "UpstreamUnavailable", "boom", now))

	quarantined, err := repo.Quarantined(ctx, 5)
	require.NoError(t, err)
	require.Len(t, quarantined, 1)
	assert.Equal(t, "000002", quarantined[0].TargetCode)
	assert.True(t, quarantined[0].Quarantined(5))
}
