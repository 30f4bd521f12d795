package transform

import (
	"testing"

	"github.com/minionszyw/leeksaver/internal/errs"
	"github.com/minionszyw/leeksaver/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barFrame(rows ...[]string) *upstream.Frame {
	f := upstream.NewFrame("code", "trade_date", "open", "high", "low", "close",
		"volume", "amount", "change", "change_pct", "turnover_rate")
	for _, r := range rows {
		f.Append(r...)
	}
	return f
}

func goodBar(code, date string) []string {
	return []string{code, date, "10", "11", "9.5", "10.5", "100000", "1050000", "0.5", "5", "1.2"}
}

func TestDailyBarsAcceptsValidRows(t *testing.T) {
	bars, c := DailyBars(barFrame(
		goodBar("000001", "2024-01-15"),
		goodBar("000001", "2024-01-16"),
	))
	require.Len(t, bars, 2)
	assert.Equal(t, 2, c.Accepted)
	assert.Equal(t, 0, c.TotalRejected())

	for _, b := range bars {
		assert.True(t, b.Valid())
	}
}

func TestDailyBarsCleaningRules(t *testing.T) {
	tests := []struct {
		name string
		row  []string
		rule int
	}{
		{
			name: "null code",
			row:  []string{"", "2024-01-15", "10", "11", "9.5", "10.5", "1", "1", "0", "0", "0"},
			rule: RuleNullKey,
		},
		{
			name: "null trade date",
			row:  []string{"000001", "", "10", "11", "9.5", "10.5", "1", "1", "0", "0", "0"},
			rule: RuleNullKey,
		},
		{
			name: "price inversion",
			row:  []string{"000001", "2024-01-15", "9.5", "9.0", "10.0", "9.5", "1", "1", "0", "0", "0"},
			rule: RuleOHLC,
		},
		{
			name: "non-positive open",
			row:  []string{"000001", "2024-01-15", "0", "11", "9.5", "10.5", "1", "1", "0", "0", "0"},
			rule: RuleOHLC,
		},
		{
			name: "change pct above daily limit",
			row:  []string{"000001", "2024-01-15", "10", "14", "9.5", "13.5", "1", "1", "3.5", "35", "0"},
			rule: RuleChangePct,
		},
		{
			name: "change pct below negative limit",
			row:  []string{"000001", "2024-01-15", "10", "10.5", "6", "6.5", "1", "1", "-3.5", "-35", "0"},
			rule: RuleChangePct,
		},
		{
			name: "unparseable close",
			row:  []string{"000001", "2024-01-15", "10", "11", "9.5", "abc", "1", "1", "0", "0", "0"},
			rule: RuleTypecast,
		},
		{
			name: "unparseable date",
			row:  []string{"000001", "15/01/2024", "10", "11", "9.5", "10.5", "1", "1", "0", "0", "0"},
			rule: RuleTypecast,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars, c := DailyBars(barFrame(tt.row))
			assert.Empty(t, bars)
			assert.Equal(t, 0, c.Accepted)
			assert.Equal(t, 1, c.Rejected[tt.rule], "expected rejection by rule %d, got %v", tt.rule, c.Rejected)
		})
	}
}

func TestDailyBarsDedupKeepsLast(t *testing.T) {
	first := goodBar("000001", "2024-01-15")
	second := goodBar("000001", "2024-01-15")
	second[5] = "10.8" // corrected close

	bars, c := DailyBars(barFrame(first, second))
	require.Len(t, bars, 1)
	assert.Equal(t, 10.8, bars[0].Close)
	assert.Equal(t, 1, c.Accepted)
}

func TestDriftCheck(t *testing.T) {
	// One bad row out of three is dirty data, not drift.
	bars, c := DailyBars(barFrame(
		goodBar("000001", "2024-01-15"),
		goodBar("000001", "2024-01-16"),
		[]string{"000001", "2024-01-17", "9.5", "9.0", "10.0", "9.5", "1", "1", "0", "0", "0"},
	))
	require.Len(t, bars, 2)
	assert.NoError(t, c.DriftCheck())

	// Two of three rejected smells like an upstream format change.
	_, c = DailyBars(barFrame(
		goodBar("000001", "2024-01-15"),
		[]string{"000001", "2024-01-16", "x", "11", "9.5", "10.5", "1", "1", "0", "0", "0"},
		[]string{"000001", "2024-01-17", "y", "11", "9.5", "10.5", "1", "1", "0", "0", "0"},
	))
	err := c.DriftCheck()
	require.Error(t, err)
	assert.Equal(t, errs.SchemaDrift, errs.KindOf(err))
}

func TestSymbolsRejectsUnknownEnums(t *testing.T) {
	f := upstream.NewFrame("code", "name", "market", "asset_type", "industry", "list_date")
	f.Append("000001", "PAB", "SZ", "stock", "bank", "1991-04-03")
	f.Append("999999", "bogus", "NYSE", "stock", "", "")
	f.Append("510300", "CSI300 ETF", "SH", "etf", "", "2012-05-28")

	symbols, c := Symbols(f)
	require.Len(t, symbols, 2)
	assert.Equal(t, 2, c.Accepted)
	assert.Equal(t, 1, c.Rejected[RuleTypecast])
	assert.True(t, symbols[0].Active)
}

func TestFinancialsRejectsPubBeforeEnd(t *testing.T) {
	f := upstream.NewFrame("code", "end_date", "pub_date", "revenue", "net_profit",
		"total_asset", "total_equity", "eps", "roe")
	f.Append("000001", "2023-12-31", "2024-03-28", "1000", "100", "5000", "2000", "0.5", "10")
	f.Append("000001", "2023-12-31", "2023-06-30", "1000", "100", "5000", "2000", "0.5", "10")

	reports, c := Financials(f)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, c.Rejected[RuleTypecast])
	assert.False(t, reports[0].PubDate.Before(reports[0].EndDate))
}

func TestNewsDedupBySourceID(t *testing.T) {
	f := upstream.NewFrame("source_id", "source", "url", "title", "body", "publish_time", "related_symbols")
	f.Append("a1", "wire", "http://x/1", "first", "b", "2024-01-15T09:00:00Z", "000001,600519")
	f.Append("a1", "wire", "http://x/1-amended", "first amended", "b", "2024-01-15T09:05:00Z", "000001")
	f.Append("", "wire", "http://x/2", "second", "b", "2024-01-15T10:00:00Z", "")

	articles, c := News(f)
	require.Len(t, articles, 2)
	assert.Equal(t, 2, c.Accepted)
	assert.Equal(t, "first amended", articles[0].Title)
	assert.Equal(t, []string{"000001"}, articles[0].RelatedSymbols)
}

func TestTransformIsDeterministic(t *testing.T) {
	frame := barFrame(
		goodBar("000001", "2024-01-15"),
		goodBar("600519", "2024-01-15"),
		[]string{"000001", "2024-01-16", "9.5", "9.0", "10.0", "9.5", "1", "1", "0", "0", "0"},
	)

	bars1, c1 := DailyBars(frame)
	bars2, c2 := DailyBars(frame)
	assert.Equal(t, bars1, bars2)
	assert.Equal(t, c1, c2)
}
