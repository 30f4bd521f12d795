package main

import (
	"time"

	"github.com/minionszyw/leeksaver/internal/config"
	"github.com/minionszyw/leeksaver/internal/doctor"
	"github.com/minionszyw/leeksaver/internal/domain"
	"github.com/minionszyw/leeksaver/internal/embeddings"
	"github.com/minionszyw/leeksaver/internal/jobs"
	"github.com/minionszyw/leeksaver/internal/rategate"
	"github.com/minionszyw/leeksaver/internal/realtime"
	"github.com/minionszyw/leeksaver/internal/schedule"
	"github.com/minionszyw/leeksaver/internal/store"
	"github.com/minionszyw/leeksaver/internal/syncer"
	"github.com/minionszyw/leeksaver/internal/upstream"
	"github.com/minionszyw/leeksaver/pkg/logger"
	"github.com/rs/zerolog"
)

// app is the composition root: everything is constructed once here and
// passed down as explicit dependencies.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	db       *store.DB
	gate     *rategate.Gate
	adapter  *upstream.Adapter
	syncers  *syncer.Syncers
	runtime  *jobs.Runtime
	registry *schedule.Registry
	doctor   *doctor.Doctor
	cache    *realtime.Cache
	syncErrs *store.SyncErrorRepository
}

// newApp wires the full dependency graph: logger, config, store, rate gate,
// adapter, repositories, syncers, job runtime, registry, doctor, cache.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := db.Bootstrap(); err != nil {
		db.Close()
		return nil, err
	}
	conn := db.Conn()

	gate := rategate.New(rategate.Config{
		QPS:   cfg.UpstreamRateQPS,
		Burst: cfg.UpstreamRateBurst,
	}, log)

	adapter := upstream.New(
		upstream.NewClient(cfg.UpstreamBaseURL, log),
		upstream.Config{SecondaryWins: cfg.SymbolIndustrySecondaryWins},
		log,
	)

	var embedder syncer.Embedder
	if cfg.EmbeddingsBaseURL != "" {
		embedder = embeddings.NewClient(cfg.EmbeddingsBaseURL, cfg.EmbeddingsBatchSize, log)
	}

	symbols := store.NewSymbolRepository(conn, log)
	dailyBars := store.NewDailyBarRepository(conn, log)
	syncErrors := store.NewSyncErrorRepository(conn, log)
	reports := store.NewDoctorReportRepository(conn, log)

	syncers := syncer.New(syncer.Deps{
		Adapter:    adapter,
		Gate:       gate,
		Config:     cfg,
		Log:        log,
		Embedder:   embedder,
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

	runtime := jobs.New(jobs.Config{
		Workers:         cfg.JobRuntimeWorkers,
		DefaultDeadline: cfg.JobDefaultDeadline,
	}, syncErrors, log)

	doc := doctor.New(conn, symbols, dailyBars, reports, runtime, syncers, cfg, log)

	tasks := append(syncers.Tasks(), schedule.Task{
		Name:         "data_doctor",
		Tier:         domain.TierSpecial,
		ScheduleSpec: schedule.DailyCron(9, 0),
		Callable:     doc.Task(),
		Deadline:     time.Hour,
	})
	registry, err := schedule.NewRegistry(tasks)
	if err != nil {
		db.Close()
		return nil, err
	}

	cache := realtime.New(adapter, gate, realtime.Config{
		TTL: cfg.RealtimeCacheTTL,
	}, log)

	return &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		gate:     gate,
		adapter:  adapter,
		syncers:  syncers,
		runtime:  runtime,
		registry: registry,
		doctor:   doc,
		cache:    cache,
		syncErrs: syncErrors,
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Error().Err(err).Msg("close database")
	}
}
