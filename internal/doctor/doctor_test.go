package doctor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/minionszyw/leeksaver/internal/config"
	"github.com/minionszyw/leeksaver/internal/domain"
	"github.com/minionszyw/leeksaver/internal/jobs"
	"github.com/minionszyw/leeksaver/internal/rategate"
	"github.com/minionszyw/leeksaver/internal/store"
	"github.com/minionszyw/leeksaver/internal/syncer"
	"github.com/minionszyw/leeksaver/internal/upstream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	doctor    *Doctor
	runtime   *jobs.Runtime
	dailyBars *store.DailyBarRepository
	reports   *store.DoctorReportRepository
	gateFeed  chan struct{}
	testDay   time.Time
}

// newFixture builds a doctor over a store seeded with symbols and an
// upstream whose /api/daily responses block until gateFeed is closed.
func newFixture(t *testing.T, codes []string) *fixture {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Bootstrap())
	t.Cleanup(func() { db.Close() })
	conn := db.Conn()

	gateFeed := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-gateFeed
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"columns": []string{"code", "trade_date", "open", "high", "low", "close",
				"volume", "amount", "change", "change_pct", "turnover_rate"},
			"rows": [][]any{
				{r.URL.Query().Get("code"), "2024-01-19", 10.0, 11.0, 9.5, 10.5, 100000, 1050000.0, 0.5, 5.0, 1.2},
			},
		})
	}))
	t.Cleanup(srv.Close)

	log := zerolog.Nop()
	cfg := &config.Config{
		SyncBatchSize:              50,
		DoctorCoverageLookbackDays: 5,
		DoctorCoverageTarget:       0.95,
		DoctorShardSize:            100,
		EmbeddingsBatchSize:        64,
	}

	symbols := store.NewSymbolRepository(conn, log)
	dailyBars := store.NewDailyBarRepository(conn, log)
	syncErrors := store.NewSyncErrorRepository(conn, log)
	reports := store.NewDoctorReportRepository(conn, log)

	syncers := syncer.New(syncer.Deps{
		Adapter: upstream.New(upstream.NewClient(srv.URL, log), upstream.Config{}, log),
		Gate: rategate.New(rategate.Config{
			QPS: 1000, Burst: 1000, MaxAttempts: 1, CallDeadline: 30 * time.Second,
		}, log),
		Config:     cfg,
		Log:        log,
		Symbols:    symbols,
		DailyBars:  dailyBars,
		MinuteBars: store.NewMinuteBarRepository(conn, log),
		Financials: store.NewFinancialRepository(conn, log),
		Valuations: store.NewValuationRepository(conn, log),
		Indicators: store.NewTechIndicatorRepository(conn, log),
		Aggregates: store.NewAggregateRepository(conn, log),
		News:       store.NewNewsRepository(conn, log),
		Watchlist:  store.NewWatchlistRepository(conn, log),
		SyncErrors: syncErrors,
	})

	runtime := jobs.New(jobs.Config{Workers: 2, DefaultDeadline: time.Minute}, syncErrors, log)
	runtime.Start()
	t.Cleanup(runtime.Stop)

	doc := New(conn, symbols, dailyBars, reports, runtime, syncers, cfg, log)
	testDay := time.Date(2024, 1, 19, 9, 0, 0, 0, time.UTC) // a Friday
	doc.now = func() time.Time { return testDay }

	seed := make([]domain.Symbol, len(codes))
	for i, c := range codes {
		seed[i] = domain.Symbol{Code: c, Name: "sym-" + c, Market: domain.MarketSZ, Asset: domain.AssetStock, Active: true}
	}
	require.NoError(t, symbols.Upsert(context.Background(), seed))

	return &fixture{
		doctor:    doc,
		runtime:   runtime,
		dailyBars: dailyBars,
		reports:   reports,
		gateFeed:  gateFeed,
		testDay:   testDay,
	}
}

func seedBars(t *testing.T, fx *fixture, code string, lastDay time.Time) {
	t.Helper()
	bars := make([]domain.DailyBar, 3)
	for i := range bars {
		bars[i] = domain.DailyBar{
			Code: code, TradeDate: lastDay.AddDate(0, 0, -i),
			Open: 10, High: 11, Low: 9.5, Close: 10.5,
			Volume: 1000, Amount: 10500, ChangePct: 1,
		}
	}
	require.NoError(t, fx.dailyBars.Upsert(context.Background(), bars))
}

func TestAuditPassesOnHealthyStore(t *testing.T) {
	fx := newFixture(t, []string{"000001", "600519"})
	close(fx.gateFeed)

	seedBars(t, fx, "000001", fx.testDay)
	seedBars(t, fx, "600519", fx.testDay)

	report, err := fx.doctor.Run(context.Background())
	require.NoError(t, err)

	var daily DatasetReport
	for _, dr := range report.Datasets {
		if dr.Dataset == "daily_quotes" {
			daily = dr
		}
	}
	assert.Equal(t, 1.0, daily.Coverage)
	assert.True(t, daily.CoveragePass)
	assert.True(t, daily.Fresh)
	assert.Zero(t, daily.QualityViolations)
	assert.Zero(t, daily.BackfillJobs)

	// The report is persisted for operator review.
	stored, err := fx.reports.Latest(context.Background())
	require.NoError(t, err)
	assert.Contains(t, stored, `"daily_quotes"`)
}

func TestCoverageGapEnqueuesBackfill(t *testing.T) {
	fx := newFixture(t, []string{"000001", "600519", "300750"})

	// Only one of three symbols has bars: coverage 1/3, below target.
	seedBars(t, fx, "000001", fx.testDay)

	report, err := fx.doctor.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.ActionRequired)

	var daily DatasetReport
	for _, dr := range report.Datasets {
		if dr.Dataset == "daily_quotes" {
			daily = dr
		}
	}
	assert.False(t, daily.CoveragePass)
	assert.Equal(t, 2, daily.MissingSymbols)
	assert.Equal(t, 1, daily.BackfillJobs)

	// A second audit while the backfill is still blocked on the feed
	// enqueues nothing new: same missing set, same fingerprint, dedup.
	report2, err := fx.doctor.Run(context.Background())
	require.NoError(t, err)

	for _, dr := range report2.Datasets {
		if dr.Dataset == "daily_quotes" {
			assert.Zero(t, dr.BackfillJobs)
		}
	}
	assert.Equal(t, int64(1), fx.runtime.Metrics().DedupSkipped.Load())

	close(fx.gateFeed) // let the backfill finish before teardown
}

func TestFreshnessFailsOnStaleStore(t *testing.T) {
	fx := newFixture(t, []string{"000001"})
	close(fx.gateFeed)

	// Bars end three days before the audit day.
	seedBars(t, fx, "000001", fx.testDay.AddDate(0, 0, -3))

	report, err := fx.doctor.Run(context.Background())
	require.NoError(t, err)

	var daily DatasetReport
	for _, dr := range report.Datasets {
		if dr.Dataset == "daily_quotes" {
			daily = dr
		}
	}
	assert.False(t, daily.Fresh)
	assert.True(t, report.ActionRequired)
}

func TestShardFingerprintStable(t *testing.T) {
	a := shardFingerprint([]string{"000001", "600519"})
	b := shardFingerprint([]string{"000001", "600519"})
	c := shardFingerprint([]string{"000001", "300750"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
