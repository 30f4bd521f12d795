// Package doctor is the daily self-healing audit: it measures coverage,
// freshness and quality per tracked dataset, persists the report, and turns
// coverage gaps into sharded backfill jobs with at-most-once-per-fingerprint
// dedup keys.
package doctor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/minionszyw/leeksaver/internal/config"
	"github.com/minionszyw/leeksaver/internal/jobs"
	"github.com/minionszyw/leeksaver/internal/store"
	"github.com/minionszyw/leeksaver/internal/syncer"
	"github.com/rs/zerolog"
)

// DatasetReport is one dataset's audit outcome.
type DatasetReport struct {
	Dataset           string  `json:"dataset"`
	Coverage          float64 `json:"coverage"`
	CoverageTarget    float64 `json:"coverage_target"`
	CoveragePass      bool    `json:"coverage_pass"`
	Fresh             bool    `json:"fresh"`
	QualityViolations int     `json:"quality_violations"`
	MissingSymbols    int     `json:"missing_symbols"`
	BackfillJobs      int     `json:"backfill_jobs"`
}

// Report is the full audit document, persisted for operator review and
// printed verbatim by `doctor run`.
type Report struct {
	GeneratedAt    time.Time       `json:"generated_at"`
	TradingDay     bool            `json:"trading_day"`
	Datasets       []DatasetReport `json:"datasets"`
	ActionRequired bool            `json:"action_required"`
}

// dataset describes one audited table. Per-symbol datasets get coverage
// math and sharded backfill; market-wide ones only freshness.
type dataset struct {
	name      string
	table     string
	perSymbol bool
	quality   bool
}

var auditedDatasets = []dataset{
	{name: "daily_quotes", table: "daily_bars", perSymbol: true, quality: true},
	{name: "valuations", table: "valuations", perSymbol: true},
	{name: "fund_flow", table: "fund_flows", perSymbol: true},
	{name: "margin", table: "margins", perSymbol: true},
	{name: "tech_indicators", table: "tech_indicators", perSymbol: true},
}

// Doctor runs the audit.
type Doctor struct {
	conn      *sql.DB
	symbols   *store.SymbolRepository
	dailyBars *store.DailyBarRepository
	reports   *store.DoctorReportRepository
	runtime   *jobs.Runtime
	syncers   *syncer.Syncers
	cfg       *config.Config
	log       zerolog.Logger
	now       func() time.Time
}

// New creates a Doctor.
func New(conn *sql.DB, symbols *store.SymbolRepository, dailyBars *store.DailyBarRepository,
	reports *store.DoctorReportRepository, runtime *jobs.Runtime, syncers *syncer.Syncers,
	cfg *config.Config, log zerolog.Logger) *Doctor {
	return &Doctor{
		conn:      conn,
		symbols:   symbols,
		dailyBars: dailyBars,
		reports:   reports,
		runtime:   runtime,
		syncers:   syncers,
		cfg:       cfg,
		log:       log.With().Str("component", "doctor").Logger(),
		now:       time.Now,
	}
}

// Run audits every tracked dataset, persists the report, and enqueues
// backfill for coverage gaps. The report comes back even when some
// datasets fail to audit; those failures aggregate into the returned error.
func (d *Doctor) Run(ctx context.Context) (*Report, error) {
	now := d.now()
	report := &Report{
		GeneratedAt: now,
		TradingDay:  isTradingDay(now),
	}

	codes, err := d.symbols.AllCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve symbol universe: %w", err)
	}

	var audit *multierror.Error
	for _, ds := range auditedDatasets {
		dr, err := d.auditDataset(ctx, ds, codes, report.TradingDay)
		if err != nil {
			audit = multierror.Append(audit, fmt.Errorf("%s: %w", ds.name, err))
			continue
		}
		if !dr.CoveragePass || !dr.Fresh || dr.QualityViolations > 0 {
			report.ActionRequired = true
		}
		report.Datasets = append(report.Datasets, dr)
	}

	if err := d.persist(ctx, report); err != nil {
		audit = multierror.Append(audit, err)
	}
	return report, audit.ErrorOrNil()
}

// Task adapts Run to the schedule registry's callable shape.
func (d *Doctor) Task() func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		report, err := d.Run(ctx)
		if report != nil {
			progress.Written.Add(int64(len(report.Datasets)))
		}
		return err
	}
}

func (d *Doctor) auditDataset(ctx context.Context, ds dataset, universe []string, tradingDay bool) (DatasetReport, error) {
	dr := DatasetReport{
		Dataset:        ds.name,
		CoverageTarget: d.cfg.DoctorCoverageTarget,
	}
	now := d.now()
	lookback := now.AddDate(0, 0, -d.cfg.DoctorCoverageLookbackDays)

	// Freshness: the newest row must be today, but only trading days can
	// fail the check.
	maxDate, err := store.MaxDateOf(ctx, d.conn, ds.table)
	if err != nil {
		return dr, err
	}
	dr.Fresh = !tradingDay || sameDay(maxDate, now)

	if ds.quality {
		violations, err := d.dailyBars.InvariantViolationsSince(ctx, now.AddDate(0, 0, -3))
		if err != nil {
			return dr, err
		}
		dr.QualityViolations = violations
	}

	if !ds.perSymbol || len(universe) == 0 {
		dr.Coverage = 1
		dr.CoveragePass = true
		return dr, nil
	}

	covered, err := store.DistinctCodesSince(ctx, d.conn, ds.table, lookback)
	if err != nil {
		return dr, err
	}
	dr.Coverage = float64(len(covered)) / float64(len(universe))
	dr.CoveragePass = dr.Coverage >= d.cfg.DoctorCoverageTarget

	if dr.CoveragePass && dr.Fresh {
		return dr, nil
	}

	var missing []string
	for _, code := range universe {
		if !covered[code] {
			missing = append(missing, code)
		}
	}
	sort.Strings(missing)
	dr.MissingSymbols = len(missing)

	// Backfill is wired for daily_quotes; other datasets refresh as whole
	// tasks at their next trigger, so the doctor only reports on them.
	if ds.name != "daily_quotes" || len(missing) == 0 {
		return dr, nil
	}

	for _, sh := range shardStrings(missing, d.cfg.DoctorShardSize) {
		key := fmt.Sprintf("backfill:%s:%s", ds.name, shardFingerprint(sh))
		submitted := d.runtime.Submit(jobs.Job{
			Name:     "backfill_" + ds.name,
			DedupKey: key,
			Deadline: 30 * time.Minute,
			Fn:       d.syncers.DailyQuotesBackfill(sh),
		})
		if submitted {
			dr.BackfillJobs++
		}
	}
	d.log.Info().Str("dataset", ds.name).Int("missing", len(missing)).
		Int("jobs", dr.BackfillJobs).Msg("backfill enqueued")
	return dr, nil
}

func (d *Doctor) persist(ctx context.Context, report *Report) error {
	blob, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal doctor report: %w", err)
	}
	return d.reports.Insert(ctx, report.GeneratedAt, string(blob))
}

// shardFingerprint hashes a shard's membership so the same missing-symbol
// set always produces the same dedup key, and the same backfill never runs
// twice concurrently.
func shardFingerprint(codes []string) string {
	h := fnv.New64a()
	h.Write([]byte(strings.Join(codes, ",")))
	return fmt.Sprintf("%016x", h.Sum64())
}

func shardStrings(codes []string, size int) [][]string {
	if size <= 0 {
		size = 100
	}
	var out [][]string
	for start := 0; start < len(codes); start += size {
		end := start + size
		if end > len(codes) {
			end = len(codes)
		}
		out = append(out, codes[start:end])
	}
	return out
}

// isTradingDay approximates the exchange calendar as weekdays; public
// holidays show up as a false freshness alarm the operator can ignore.
func isTradingDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
