package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/minionszyw/leeksaver/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Bootstrap())
	t.Cleanup(func() { db.Close() })
	return db
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleBars(code string) []domain.DailyBar {
	dates := []string{"2024-01-15", "2024-01-16", "2024-01-17", "2024-01-18", "2024-01-19"}
	bars := make([]domain.DailyBar, len(dates))
	for i, d := range dates {
		bars[i] = domain.DailyBar{
			Code: code, TradeDate: day(d),
			Open: 10, High: 11, Low: 9.5, Close: 10.5,
			Volume: 100000, Amount: 1050000,
			Change: 0.5, ChangePct: 5, TurnoverRate: 1.2,
		}
	}
	return bars
}

func TestDailyBarUpsertIdempotent(t *testing.T) {
	db := testDB(t)
	repo := NewDailyBarRepository(db.Conn(), testLogger())
	ctx := context.Background()

	bars := sampleBars("000001")
	require.NoError(t, repo.Upsert(ctx, bars))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	// Applying the same rows again must leave the store unchanged.
	require.NoError(t, repo.Upsert(ctx, bars))
	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	got, err := repo.Range(ctx, "000001", day("2024-01-15"), day("2024-01-19"))
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, 10.5, got[0].Close)
}

func TestDailyBarLastTradeDate(t *testing.T) {
	db := testDB(t)
	repo := NewDailyBarRepository(db.Conn(), testLogger())
	ctx := context.Background()

	last, err := repo.LastTradeDate(ctx, "000001")
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	require.NoError(t, repo.Upsert(ctx, sampleBars("000001")))

	last, err = repo.LastTradeDate(ctx, "000001")
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-19"), last)
}

func TestDailyBarTail(t *testing.T) {
	db := testDB(t)
	repo := NewDailyBarRepository(db.Conn(), testLogger())
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, sampleBars("000001")))

	tail, err := repo.Tail(ctx, "000001", 3)
	require.NoError(t, err)
	require.Len(t, tail, 3)
	// Ascending order, newest three days.
	assert.Equal(t, day("2024-01-17"), tail[0].TradeDate)
	assert.Equal(t, day("2024-01-19"), tail[2].TradeDate)
}

func TestChunkSizeRespectsBindCeiling(t *testing.T) {
	tests := []struct {
		name    string
		columns int
		want    int
	}{
		{name: "narrow table keeps default", columns: 2, want: DefaultChunkSize},
		{name: "eleven columns clamps under the ceiling", columns: 11, want: maxBindParams / 11},
		{name: "wide table clamps harder", columns: 19, want: maxBindParams / 19},
		{name: "degenerate column count", columns: 0, want: DefaultChunkSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChunkSize(tt.columns, DefaultChunkSize)
			assert.Equal(t, tt.want, got)
			cols := tt.columns
			if cols <= 0 {
				cols = 1
			}
			assert.LessOrEqual(t, got*cols, maxBindParams)
		})
	}
}

func TestChunkIndices(t *testing.T) {
	idx := chunkIndices(7, 3)
	assert.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 7}}, idx)

	idx = chunkIndices(3, 0)
	assert.Equal(t, [][2]int{{0, 3}}, idx)
}

func TestSymbolUpsertAndDeactivate(t *testing.T) {
	db := testDB(t)
	repo := NewSymbolRepository(db.Conn(), testLogger())
	ctx := context.Background()

	symbols := []domain.Symbol{
		{Code: "000001", Name: "PAB", Market: domain.MarketSZ, Asset: domain.AssetStock, Industry: "bank", ListDate: day("1991-04-03"), Active: true},
		{Code: "600519", Name: "Moutai", Market: domain.MarketSH, Asset: domain.AssetStock, Industry: "liquor", ListDate: day("2001-08-27"), Active: true},
	}
	require.NoError(t, repo.Upsert(ctx, symbols))

	active, err := repo.AllActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	require.NoError(t, repo.Deactivate(ctx, []string{"000001"}))

	active, err = repo.AllActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "600519", active[0].Code)

	// Soft-deactivated, never deleted: still visible to the universe scan.
	all, err := repo.AllCodes(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	sym, err := repo.GetByCode(ctx, "000001")
	require.NoError(t, err)
	require.NotNil(t, sym)
	assert.False(t, sym.Active)
	assert.Equal(t, day("1991-04-03"), sym.ListDate)
}

func TestNewsInsertDeduplicates(t *testing.T) {
	db := testDB(t)
	repo := NewNewsRepository(db.Conn(), testLogger())
	ctx := context.Background()

	articles := []domain.NewsArticle{
		{SourceID: "a1", Source: "wire", Title: "first", Body: "b", PublishTime: day("2024-01-15"), RelatedSymbols: []string{"000001"}},
		{SourceID: "a2", Source: "wire", Title: "second", Body: "b", PublishTime: day("2024-01-16")},
	}
	require.NoError(t, repo.Insert(ctx, articles))
	require.NoError(t, repo.Insert(ctx, articles)) // repeats are ignored

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNewsCleanupProtectsWatchlist(t *testing.T) {
	db := testDB(t)
	repo := NewNewsRepository(db.Conn(), testLogger())
	ctx := context.Background()

	old := day("2023-01-01")
	articles := []domain.NewsArticle{
		{SourceID: "old-watched", Source: "wire", Title: "watched", Body: "b", PublishTime: old, RelatedSymbols: []string{"600519", "000001"}},
		{SourceID: "old-unwatched", Source: "wire", Title: "unwatched", Body: "b", PublishTime: old, RelatedSymbols: []string{"300750"}},
		{SourceID: "recent", Source: "wire", Title: "recent", Body: "b", PublishTime: day("2024-06-01")},
	}
	require.NoError(t, repo.Insert(ctx, articles))

	deleted, err := repo.DeleteOlderThan(ctx, day("2024-01-01"), []string{"600519"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNewsEmbeddingRoundTrip(t *testing.T) {
	db := testDB(t)
	repo := NewNewsRepository(db.Conn(), testLogger())
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, []domain.NewsArticle{
		{SourceID: "a1", Source: "wire", Title: "t", Body: "b", PublishTime: day("2024-01-15")},
	}))

	pending, err := repo.WithoutEmbedding(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, repo.SetEmbedding(ctx, pending[0].ID, []float32{0.1, 0.2, 0.3}))

	pending, err = repo.WithoutEmbedding(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestVectorCodec(t *testing.T) {
	v := []float32{1.5, -2.25, 0}
	assert.Equal(t, v, DecodeVector(encodeVector(v)))
}

func TestDistinctCodesSince(t *testing.T) {
	db := testDB(t)
	bars := NewDailyBarRepository(db.Conn(), testLogger())
	ctx := context.Background()

	require.NoError(t, bars.Upsert(ctx, sampleBars("000001")))
	require.NoError(t, bars.Upsert(ctx, sampleBars("600519")))

	covered, err := DistinctCodesSince(ctx, db.Conn(), "daily_bars", day("2024-01-15"))
	require.NoError(t, err)
	assert.Len(t, covered, 2)

	covered, err = DistinctCodesSince(ctx, db.Conn(), "daily_bars", day("2024-02-01"))
	require.NoError(t, err)
	assert.Empty(t, covered)

	_, err = DistinctCodesSince(ctx, db.Conn(), "sync_errors", day("2024-01-01"))
	assert.Error(t, err)
}
