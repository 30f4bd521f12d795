package upstream

import (
	"context"
	"net/url"
	"time"

	"github.com/minionszyw/leeksaver/internal/errs"
	"github.com/rs/zerolog"
)

// ErrEmpty is returned when an endpoint answers well-formed but with zero
// rows. Callers that consider empty a valid outcome (a non-trading day, a
// freshly listed symbol) check for it explicitly; the Rate Gate never
// retries it.
var ErrEmpty = errs.New(errs.Empty, "upstream returned no rows")

// Adapter exposes one method per logical dataset. Every method returns a
// Frame whose documented canonical columns the Transformer projects from.
type Adapter struct {
	client    *Client
	secondary bool
	log       zerolog.Logger
}

// Config tunes adapter behavior.
type Config struct {
	// SecondaryWins reverses the symbol-list merge precedence: when true
	// the enrichment endpoint's industry/list_date overwrite the primary's
	// values instead of only filling blanks.
	SecondaryWins bool
}

// New creates an adapter over a feed client.
func New(client *Client, cfg Config, log zerolog.Logger) *Adapter {
	return &Adapter{
		client:    client,
		secondary: cfg.SecondaryWins,
		log:       log.With().Str("component", "adapter").Logger(),
	}
}

const dateParam = "2006-01-02"

// Canonical column sets, one per dataset. The feed may rename or reorder;
// lookup is by name and only these are required.
var (
	symbolColumns    = []string{"code", "name", "market", "asset_type"}
	enrichColumns    = []string{"code", "industry", "list_date"}
	dailyBarColumns  = []string{"code", "trade_date", "open", "high", "low", "close", "volume", "amount", "change", "change_pct", "turnover_rate"}
	minuteBarColumns = []string{"code", "timestamp", "open", "high", "low", "close", "volume", "amount"}
	financialColumns = []string{"code", "end_date", "pub_date", "revenue", "net_profit", "total_asset", "total_equity", "eps", "roe"}
	valuationColumns = []string{"code", "trade_date", "pe_ttm", "pb", "ps", "peg", "market_cap", "dividend_yield"}
	fundFlowColumns  = []string{"code", "trade_date", "main_net_inflow", "retail_net_inflow"}
	marginColumns    = []string{"code", "trade_date", "margin_balance", "short_balance"}
	dragonColumns    = []string{"code", "trade_date", "seat_name", "buy_amount", "sell_amount"}
	northColumns     = []string{"trade_date", "net_inflow"}
	limitUpColumns   = []string{"code", "trade_date", "limit_type", "seal_amount"}
	newsColumns      = []string{"source_id", "source", "url", "title", "body", "publish_time", "related_symbols"}
	sectorColumns    = []string{"code", "name", "kind"}
	sectorQColumns   = []string{"sector_code", "trade_date", "index_value", "change_pct"}
	quoteColumns     = []string{"code", "price", "change_pct", "volume", "amount", "timestamp"}
)

// fetch wraps client.get with the shared require/extra-column handling.
func (a *Adapter) fetch(ctx context.Context, endpoint string, params url.Values, required []string) (*Frame, error) {
	frame, err := a.client.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	if err := frame.Require(required...); err != nil {
		return nil, err
	}
	if extra := frame.Extra(required...); len(extra) > 0 {
		a.log.Debug().Str("endpoint", endpoint).Strs("columns", extra).Msg("ignoring unexpected columns")
	}
	if frame.Len() == 0 {
		return nil, ErrEmpty
	}
	return frame, nil
}

// SymbolList returns the full symbol universe, enriched with industry and
// list-date from the secondary endpoint, merged left-join on code. Merge
// precedence is fixed by config so the result is deterministic.
func (a *Adapter) SymbolList(ctx context.Context) (*Frame, error) {
	primary, err := a.fetch(ctx, "/api/symbols", nil, symbolColumns)
	if err != nil {
		return nil, err
	}

	enrich, err := a.fetch(ctx, "/api/symbols/detail", nil, enrichColumns)
	if err != nil {
		// Enrichment is best-effort: the primary list alone is a valid
		// universe, so only the primary's failure aborts the sync.
		a.log.Warn().Err(err).Msg("symbol enrichment unavailable, using primary only")
		enrich = NewFrame(enrichColumns...)
	}

	byCode := make(map[string]int, enrich.Len())
	for i := 0; i < enrich.Len(); i++ {
		byCode[enrich.Str(i, "code")] = i
	}

	merged := NewFrame("code", "name", "market", "asset_type", "industry", "list_date")
	for i := 0; i < primary.Len(); i++ {
		code := primary.Str(i, "code")
		industry := primary.Str(i, "industry")
		listDate := primary.Str(i, "list_date")
		if j, ok := byCode[code]; ok {
			industry = mergeField(industry, enrich.Str(j, "industry"), a.secondary)
			listDate = mergeField(listDate, enrich.Str(j, "list_date"), a.secondary)
		}
		merged.Append(code, primary.Str(i, "name"), primary.Str(i, "market"),
			primary.Str(i, "asset_type"), industry, listDate)
	}
	return merged, nil
}

// mergeField picks between the primary and secondary value of an enrichment
// field: the richer source wins; on a tie the configured precedence decides.
func mergeField(primary, secondary string, secondaryWins bool) string {
	if primary == "" {
		return secondary
	}
	if secondary == "" {
		return primary
	}
	if secondaryWins {
		return secondary
	}
	return primary
}

// DailyBars returns bars for one code within [start, end].
func (a *Adapter) DailyBars(ctx context.Context, code string, start, end time.Time) (*Frame, error) {
	params := url.Values{}
	params.Set("code", code)
	params.Set("start", start.Format(dateParam))
	params.Set("end", end.Format(dateParam))
	return a.fetch(ctx, "/api/daily", params, dailyBarColumns)
}

// MinuteBars returns 1-minute bars for one code for the current session.
func (a *Adapter) MinuteBars(ctx context.Context, code string) (*Frame, error) {
	params := url.Values{}
	params.Set("code", code)
	params.Set("period", "1")
	return a.fetch(ctx, "/api/minute", params, minuteBarColumns)
}

// Financial returns every published report for one code.
func (a *Adapter) Financial(ctx context.Context, code string) (*Frame, error) {
	params := url.Values{}
	params.Set("code", code)
	return a.fetch(ctx, "/api/financial", params, financialColumns)
}

// Valuations returns the latest valuation snapshot for one code.
func (a *Adapter) Valuations(ctx context.Context, code string) (*Frame, error) {
	params := url.Values{}
	params.Set("code", code)
	return a.fetch(ctx, "/api/valuation", params, valuationColumns)
}

// RealtimeQuote returns one code's live quote row.
func (a *Adapter) RealtimeQuote(ctx context.Context, code string) (*Frame, error) {
	params := url.Values{}
	params.Set("code", code)
	return a.fetch(ctx, "/api/quote", params, quoteColumns)
}

// NewsSince returns articles published on or after ts.
func (a *Adapter) NewsSince(ctx context.Context, ts time.Time) (*Frame, error) {
	params := url.Values{}
	params.Set("since", ts.UTC().Format(time.RFC3339))
	return a.fetch(ctx, "/api/news", params, newsColumns)
}

// FundFlows returns the whole market's per-symbol fund flows for one day.
func (a *Adapter) FundFlows(ctx context.Context, date time.Time) (*Frame, error) {
	params := url.Values{}
	params.Set("date", date.Format(dateParam))
	return a.fetch(ctx, "/api/fund_flow", params, fundFlowColumns)
}

// Margins returns per-symbol margin balances for one day.
func (a *Adapter) Margins(ctx context.Context, date time.Time) (*Frame, error) {
	params := url.Values{}
	params.Set("date", date.Format(dateParam))
	return a.fetch(ctx, "/api/margin", params, marginColumns)
}

// DragonTiger returns the day's dragon-tiger list.
func (a *Adapter) DragonTiger(ctx context.Context, date time.Time) (*Frame, error) {
	params := url.Values{}
	params.Set("date", date.Format(dateParam))
	return a.fetch(ctx, "/api/dragon_tiger", params, dragonColumns)
}

// NorthboundFlow returns the market-wide Stock-Connect flow for one day.
func (a *Adapter) NorthboundFlow(ctx context.Context, date time.Time) (*Frame, error) {
	params := url.Values{}
	params.Set("date", date.Format(dateParam))
	return a.fetch(ctx, "/api/northbound", params, northColumns)
}

// LimitUpStocks returns the day's limit-up/limit-down list.
func (a *Adapter) LimitUpStocks(ctx context.Context, date time.Time) (*Frame, error) {
	params := url.Values{}
	params.Set("date", date.Format(dateParam))
	return a.fetch(ctx, "/api/limit_up", params, limitUpColumns)
}

// Sectors returns the industry/concept hierarchy.
func (a *Adapter) Sectors(ctx context.Context) (*Frame, error) {
	return a.fetch(ctx, "/api/sectors", nil, sectorColumns)
}

// SectorQuotes returns every sector's daily index for one day.
func (a *Adapter) SectorQuotes(ctx context.Context, date time.Time) (*Frame, error) {
	params := url.Values{}
	params.Set("date", date.Format(dateParam))
	return a.fetch(ctx, "/api/sector_quotes", params, sectorQColumns)
}
