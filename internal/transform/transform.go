// Package transform turns upstream frames into typed domain rows. Every
// function here is pure and deterministic: same frame in, same rows and
// counters out. The cleaning rules run in a fixed order and each rejection
// is attributed to exactly one rule, so the counters reconcile with the
// input row count less the duplicate rows that dedup folds into an earlier
// one (those are neither accepted nor rejected).
package transform

import (
	"fmt"
	"time"

	"github.com/minionszyw/leeksaver/internal/domain"
	"github.com/minionszyw/leeksaver/internal/errs"
	"github.com/minionszyw/leeksaver/internal/upstream"
)

// Rule indexes for the counter map. Order matters: a row is tested against
// rule 1 first and attributed to the first rule it trips.
const (
	RuleNullKey   = 1 // null primary-key component
	RuleOHLC      = 2 // high < low or a non-positive price
	RuleChangePct = 3 // |change_pct| > 30
	RuleTypecast  = 4 // unparseable cell in a required field
)

// Counters is the per-batch outcome tally that flows to observability.
type Counters struct {
	Accepted int
	Rejected map[int]int
}

func newCounters() Counters {
	return Counters{Rejected: make(map[int]int)}
}

func (c *Counters) reject(rule int) {
	c.Rejected[rule]++
}

// TotalRejected sums rejections across all rules.
func (c Counters) TotalRejected() int {
	n := 0
	for _, v := range c.Rejected {
		n += v
	}
	return n
}

// DriftCheck raises SchemaDrift when more than half the batch was rejected,
// the signature of an upstream format change rather than a few bad rows.
func (c Counters) DriftCheck() error {
	total := c.Accepted + c.TotalRejected()
	if total == 0 {
		return nil
	}
	if c.TotalRejected()*2 > total {
		return errs.New(errs.SchemaDrift,
			fmt.Sprintf("%d of %d rows rejected", c.TotalRejected(), total))
	}
	return nil
}

const (
	dateLayout = "2006-01-02"
)

func parseDate(s string) (time.Time, bool) {
	t, err := time.Parse(dateLayout, s)
	return t, err == nil
}

func parseTimestamp(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	return t, err == nil
}

// DailyBars projects, typecasts and cleans a daily-bar frame. All four
// rules apply; dedup keeps the last occurrence per (code, trade_date).
func DailyBars(f *upstream.Frame) ([]domain.DailyBar, Counters) {
	c := newCounters()
	byKey := make(map[string]int)
	var out []domain.DailyBar

	for i := 0; i < f.Len(); i++ {
		code := f.Str(i, "code")
		dateStr := f.Str(i, "trade_date")
		if code == "" || dateStr == "" {
			c.reject(RuleNullKey)
			continue
		}
		date, ok := parseDate(dateStr)
		if !ok {
			c.reject(RuleTypecast)
			continue
		}

		open, ok1 := f.Float(i, "open")
		high, ok2 := f.Float(i, "high")
		low, ok3 := f.Float(i, "low")
		cls, ok4 := f.Float(i, "close")
		volume, ok5 := f.Int(i, "volume")
		amount, ok6 := f.Float(i, "amount")
		if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
			c.reject(RuleTypecast)
			continue
		}
		if high < low || open <= 0 || cls <= 0 || high <= 0 || low <= 0 {
			c.reject(RuleOHLC)
			continue
		}

		changePct, _ := f.Float(i, "change_pct")
		if changePct > 30 || changePct < -30 {
			c.reject(RuleChangePct)
			continue
		}
		change, _ := f.Float(i, "change")
		turnover, _ := f.Float(i, "turnover_rate")

		bar := domain.DailyBar{
			Code: code, TradeDate: date,
			Open: open, High: high, Low: low, Close: cls,
			Volume: volume, Amount: amount,
			Change: change, ChangePct: changePct, TurnoverRate: turnover,
		}
		key := code + "|" + dateStr
		if j, seen := byKey[key]; seen {
			out[j] = bar // dedup: keep the last occurrence
			continue
		}
		byKey[key] = len(out)
		out = append(out, bar)
		c.Accepted++
	}
	return out, c
}

// MinuteBars cleans a 1-minute bar frame with the same OHLC rule as daily
// bars; there is no change_pct on minute bars so rule 3 does not apply.
func MinuteBars(f *upstream.Frame) ([]domain.MinuteBar, Counters) {
	c := newCounters()
	byKey := make(map[string]int)
	var out []domain.MinuteBar

	for i := 0; i < f.Len(); i++ {
		code := f.Str(i, "code")
		tsStr := f.Str(i, "timestamp")
		if code == "" || tsStr == "" {
			c.reject(RuleNullKey)
			continue
		}
		ts, ok := parseTimestamp(tsStr)
		if !ok {
			c.reject(RuleTypecast)
			continue
		}
		open, ok1 := f.Float(i, "open")
		high, ok2 := f.Float(i, "high")
		low, ok3 := f.Float(i, "low")
		cls, ok4 := f.Float(i, "close")
		volume, ok5 := f.Int(i, "volume")
		amount, ok6 := f.Float(i, "amount")
		if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
			c.reject(RuleTypecast)
			continue
		}
		if high < low || open <= 0 || cls <= 0 || high <= 0 || low <= 0 {
			c.reject(RuleOHLC)
			continue
		}

		bar := domain.MinuteBar{
			Code: code, Timestamp: ts,
			Open: open, High: high, Low: low, Close: cls,
			Volume: volume, Amount: amount,
		}
		key := code + "|" + tsStr
		if j, seen := byKey[key]; seen {
			out[j] = bar
			continue
		}
		byKey[key] = len(out)
		out = append(out, bar)
		c.Accepted++
	}
	return out, c
}

// Symbols cleans the merged symbol-list frame. Codes are the only key;
// unknown markets and asset types are rejected as typecast failures so a
// drifted enum value shows up in the counters.
func Symbols(f *upstream.Frame) ([]domain.Symbol, Counters) {
	c := newCounters()
	byKey := make(map[string]int)
	var out []domain.Symbol

	for i := 0; i < f.Len(); i++ {
		code := f.Str(i, "code")
		if code == "" {
			c.reject(RuleNullKey)
			continue
		}
		market := domain.Market(f.Str(i, "market"))
		switch market {
		case domain.MarketSH, domain.MarketSZ, domain.MarketBJ:
		default:
			c.reject(RuleTypecast)
			continue
		}
		asset := domain.AssetType(f.Str(i, "asset_type"))
		switch asset {
		case domain.AssetStock, domain.AssetETF:
		default:
			c.reject(RuleTypecast)
			continue
		}

		var listDate time.Time
		if s := f.Str(i, "list_date"); s != "" {
			if t, ok := parseDate(s); ok {
				listDate = t
			}
		}

		sym := domain.Symbol{
			Code: code, Name: f.Str(i, "name"),
			Market: market, Asset: asset,
			Industry: f.Str(i, "industry"), ListDate: listDate,
			Active: true,
		}
		key := code
		if j, seen := byKey[key]; seen {
			out[j] = sym
			continue
		}
		byKey[key] = len(out)
		out = append(out, sym)
		c.Accepted++
	}
	return out, c
}

// Financials cleans a report frame; a pub_date before end_date violates the
// data model and is rejected as a typecast-class failure.
func Financials(f *upstream.Frame) ([]domain.Financial, Counters) {
	c := newCounters()
	byKey := make(map[string]int)
	var out []domain.Financial

	for i := 0; i < f.Len(); i++ {
		code := f.Str(i, "code")
		endStr := f.Str(i, "end_date")
		if code == "" || endStr == "" {
			c.reject(RuleNullKey)
			continue
		}
		endDate, ok := parseDate(endStr)
		if !ok {
			c.reject(RuleTypecast)
			continue
		}
		pubDate, ok := parseDate(f.Str(i, "pub_date"))
		if !ok || pubDate.Before(endDate) {
			c.reject(RuleTypecast)
			continue
		}

		revenue, _ := f.Float(i, "revenue")
		netProfit, _ := f.Float(i, "net_profit")
		totalAsset, _ := f.Float(i, "total_asset")
		totalEquity, _ := f.Float(i, "total_equity")
		eps, _ := f.Float(i, "eps")
		roe, _ := f.Float(i, "roe")

		rec := domain.Financial{
			Code: code, EndDate: endDate, PubDate: pubDate,
			Revenue: revenue, NetProfit: netProfit,
			TotalAsset: totalAsset, TotalEquity: totalEquity,
			EPS: eps, ROE: roe,
		}
		key := code + "|" + endStr
		if j, seen := byKey[key]; seen {
			out[j] = rec
			continue
		}
		byKey[key] = len(out)
		out = append(out, rec)
		c.Accepted++
	}
	return out, c
}

// Valuations cleans a valuation frame.
func Valuations(f *upstream.Frame) ([]domain.Valuation, Counters) {
	c := newCounters()
	byKey := make(map[string]int)
	var out []domain.Valuation

	for i := 0; i < f.Len(); i++ {
		code := f.Str(i, "code")
		dateStr := f.Str(i, "trade_date")
		if code == "" || dateStr == "" {
			c.reject(RuleNullKey)
			continue
		}
		date, ok := parseDate(dateStr)
		if !ok {
			c.reject(RuleTypecast)
			continue
		}
		pe, _ := f.Float(i, "pe_ttm")
		pb, _ := f.Float(i, "pb")
		ps, _ := f.Float(i, "ps")
		peg, _ := f.Float(i, "peg")
		mcap, _ := f.Float(i, "market_cap")
		dy, _ := f.Float(i, "dividend_yield")

		v := domain.Valuation{
			Code: code, TradeDate: date,
			PETTM: pe, PB: pb, PS: ps, PEG: peg,
			MarketCap: mcap, DividendYield: dy,
		}
		key := code + "|" + dateStr
		if j, seen := byKey[key]; seen {
			out[j] = v
			continue
		}
		byKey[key] = len(out)
		out = append(out, v)
		c.Accepted++
	}
	return out, c
}

// News cleans an article frame. Dedup inside the batch is by source-native
// id, falling back to (source, url); cross-batch dedup is the repository's
// insert-ignore.
func News(f *upstream.Frame) ([]domain.NewsArticle, Counters) {
	c := newCounters()
	byKey := make(map[string]int)
	var out []domain.NewsArticle

	for i := 0; i < f.Len(); i++ {
		source := f.Str(i, "source")
		title := f.Str(i, "title")
		if source == "" || title == "" {
			c.reject(RuleNullKey)
			continue
		}
		pub, ok := parseTimestamp(f.Str(i, "publish_time"))
		if !ok {
			c.reject(RuleTypecast)
			continue
		}

		a := domain.NewsArticle{
			SourceID: f.Str(i, "source_id"), Source: source,
			URL: f.Str(i, "url"), Title: title, Body: f.Str(i, "body"),
			PublishTime: pub,
		}
		if related := f.Str(i, "related_symbols"); related != "" {
			a.RelatedSymbols = splitSymbols(related)
		}

		key := source + "|" + a.SourceID
		if a.SourceID == "" {
			key = source + "|url:" + a.URL
		}
		if j, seen := byKey[key]; seen {
			out[j] = a
			continue
		}
		byKey[key] = len(out)
		out = append(out, a)
		c.Accepted++
	}
	return out, c
}

// FundFlows cleans a per-symbol fund-flow frame.
func FundFlows(f *upstream.Frame) ([]domain.FundFlow, Counters) {
	c := newCounters()
	byKey := make(map[string]int)
	var out []domain.FundFlow

	for i := 0; i < f.Len(); i++ {
		code := f.Str(i, "code")
		dateStr := f.Str(i, "trade_date")
		if code == "" || dateStr == "" {
			c.reject(RuleNullKey)
			continue
		}
		date, ok := parseDate(dateStr)
		if !ok {
			c.reject(RuleTypecast)
			continue
		}
		main, _ := f.Float(i, "main_net_inflow")
		retail, _ := f.Float(i, "retail_net_inflow")

		row := domain.FundFlow{Code: code, TradeDate: date, MainNetInflow: main, RetailNetInflow: retail}
		key := code + "|" + dateStr
		if j, seen := byKey[key]; seen {
			out[j] = row
			continue
		}
		byKey[key] = len(out)
		out = append(out, row)
		c.Accepted++
	}
	return out, c
}

// Margins cleans a per-symbol margin frame.
func Margins(f *upstream.Frame) ([]domain.Margin, Counters) {
	c := newCounters()
	byKey := make(map[string]int)
	var out []domain.Margin

	for i := 0; i < f.Len(); i++ {
		code := f.Str(i, "code")
		dateStr := f.Str(i, "trade_date")
		if code == "" || dateStr == "" {
			c.reject(RuleNullKey)
			continue
		}
		date, ok := parseDate(dateStr)
		if !ok {
			c.reject(RuleTypecast)
			continue
		}
		margin, _ := f.Float(i, "margin_balance")
		short, _ := f.Float(i, "short_balance")

		row := domain.Margin{Code: code, TradeDate: date, MarginBalance: margin, ShortBalance: short}
		key := code + "|" + dateStr
		if j, seen := byKey[key]; seen {
			out[j] = row
			continue
		}
		byKey[key] = len(out)
		out = append(out, row)
		c.Accepted++
	}
	return out, c
}

// DragonTigers cleans a dragon-tiger frame; the seat name is part of the key.
func DragonTigers(f *upstream.Frame) ([]domain.DragonTiger, Counters) {
	c := newCounters()
	byKey := make(map[string]int)
	var out []domain.DragonTiger

	for i := 0; i < f.Len(); i++ {
		code := f.Str(i, "code")
		dateStr := f.Str(i, "trade_date")
		seat := f.Str(i, "seat_name")
		if code == "" || dateStr == "" || seat == "" {
			c.reject(RuleNullKey)
			continue
		}
		date, ok := parseDate(dateStr)
		if !ok {
			c.reject(RuleTypecast)
			continue
		}
		buy, _ := f.Float(i, "buy_amount")
		sell, _ := f.Float(i, "sell_amount")

		row := domain.DragonTiger{Code: code, TradeDate: date, SeatName: seat, BuyAmount: buy, SellAmount: sell}
		key := code + "|" + dateStr + "|" + seat
		if j, seen := byKey[key]; seen {
			out[j] = row
			continue
		}
		byKey[key] = len(out)
		out = append(out, row)
		c.Accepted++
	}
	return out, c
}

// NorthboundFlows cleans the market-wide flow frame.
func NorthboundFlows(f *upstream.Frame) ([]domain.NorthboundFlow, Counters) {
	c := newCounters()
	byKey := make(map[string]int)
	var out []domain.NorthboundFlow

	for i := 0; i < f.Len(); i++ {
		dateStr := f.Str(i, "trade_date")
		if dateStr == "" {
			c.reject(RuleNullKey)
			continue
		}
		date, ok := parseDate(dateStr)
		if !ok {
			c.reject(RuleTypecast)
			continue
		}
		net, ok := f.Float(i, "net_inflow")
		if !ok {
			c.reject(RuleTypecast)
			continue
		}

		row := domain.NorthboundFlow{TradeDate: date, NetInflow: net}
		if j, seen := byKey[dateStr]; seen {
			out[j] = row
			continue
		}
		byKey[dateStr] = len(out)
		out = append(out, row)
		c.Accepted++
	}
	return out, c
}

// LimitUpStocks cleans a limit-list frame.
func LimitUpStocks(f *upstream.Frame) ([]domain.LimitUpStock, Counters) {
	c := newCounters()
	byKey := make(map[string]int)
	var out []domain.LimitUpStock

	for i := 0; i < f.Len(); i++ {
		code := f.Str(i, "code")
		dateStr := f.Str(i, "trade_date")
		if code == "" || dateStr == "" {
			c.reject(RuleNullKey)
			continue
		}
		date, ok := parseDate(dateStr)
		if !ok {
			c.reject(RuleTypecast)
			continue
		}
		limitType := f.Str(i, "limit_type")
		if limitType != "up" && limitType != "down" {
			c.reject(RuleTypecast)
			continue
		}
		seal, _ := f.Float(i, "seal_amount")

		row := domain.LimitUpStock{Code: code, TradeDate: date, LimitType: limitType, SealAmount: seal}
		key := code + "|" + dateStr
		if j, seen := byKey[key]; seen {
			out[j] = row
			continue
		}
		byKey[key] = len(out)
		out = append(out, row)
		c.Accepted++
	}
	return out, c
}

// Sectors cleans the sector-hierarchy frame.
func Sectors(f *upstream.Frame) ([]domain.Sector, Counters) {
	c := newCounters()
	byKey := make(map[string]int)
	var out []domain.Sector

	for i := 0; i < f.Len(); i++ {
		code := f.Str(i, "code")
		if code == "" {
			c.reject(RuleNullKey)
			continue
		}
		kind := f.Str(i, "kind")
		if kind != "industry" && kind != "concept" {
			c.reject(RuleTypecast)
			continue
		}

		row := domain.Sector{Code: code, Name: f.Str(i, "name"), Kind: kind}
		if j, seen := byKey[code]; seen {
			out[j] = row
			continue
		}
		byKey[code] = len(out)
		out = append(out, row)
		c.Accepted++
	}
	return out, c
}

// SectorQuotes cleans a sector-index frame.
func SectorQuotes(f *upstream.Frame) ([]domain.SectorQuote, Counters) {
	c := newCounters()
	byKey := make(map[string]int)
	var out []domain.SectorQuote

	for i := 0; i < f.Len(); i++ {
		code := f.Str(i, "sector_code")
		dateStr := f.Str(i, "trade_date")
		if code == "" || dateStr == "" {
			c.reject(RuleNullKey)
			continue
		}
		date, ok := parseDate(dateStr)
		if !ok {
			c.reject(RuleTypecast)
			continue
		}
		index, ok := f.Float(i, "index_value")
		if !ok {
			c.reject(RuleTypecast)
			continue
		}
		changePct, _ := f.Float(i, "change_pct")

		row := domain.SectorQuote{SectorCode: code, TradeDate: date, Index: index, ChangePct: changePct}
		key := code + "|" + dateStr
		if j, seen := byKey[key]; seen {
			out[j] = row
			continue
		}
		byKey[key] = len(out)
		out = append(out, row)
		c.Accepted++
	}
	return out, c
}

func splitSymbols(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' || s[i] == ';' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
