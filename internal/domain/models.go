// Package domain holds the entities the store persists. Nothing here talks
// to a database or an upstream feed; it is shapes and the invariants that
// apply to them.
package domain

import "time"

// Market is the exchange a Symbol lists on.
type Market string

const (
	MarketSH Market = "SH"
	MarketSZ Market = "SZ"
	MarketBJ Market = "BJ"
)

// AssetType distinguishes stocks from funds for scope-resolution purposes.
type AssetType string

const (
	AssetStock AssetType = "stock"
	AssetETF   AssetType = "etf"
)

// Symbol is the root identity every other time-series entity hangs off of.
type Symbol struct {
	Code     string
	Name     string
	Market   Market
	Asset    AssetType
	Industry string
	ListDate time.Time
	Active   bool
}

// DailyBar is keyed by (Code, TradeDate). Open/High/Low/Close and Amount are
// expressed as float64 yuan values; the Transformer enforces the OHLC and
// change_pct invariants before a row ever reaches the repository, so a
// stored DailyBar can be trusted to satisfy them.
type DailyBar struct {
	Code         string
	TradeDate    time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       int64
	Amount       float64
	Change       float64
	ChangePct    float64
	TurnoverRate float64
}

// Valid reports whether low <= min(open,close) <= max(open,close) <= high,
// all prices are positive, and |change_pct| <= 30.
func (b DailyBar) Valid() bool {
	lo, hi := b.Open, b.Close
	if lo > hi {
		lo, hi = hi, lo
	}
	if b.High < b.Low || b.High < hi || b.Low > lo {
		return false
	}
	if b.Open <= 0 || b.Close <= 0 || b.High <= 0 || b.Low <= 0 {
		return false
	}
	if b.ChangePct > 30 || b.ChangePct < -30 {
		return false
	}
	return true
}

// MinuteBar mirrors DailyBar's OHLCV shape at one-minute cadence. Retained
// only for watchlist symbols.
type MinuteBar struct {
	Code      string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Amount    float64
}

// Financial is a quarterly or annual report row. PubDate must not precede
// EndDate; the Transformer rejects rows that violate this.
type Financial struct {
	Code        string
	EndDate     time.Time
	PubDate     time.Time
	Revenue     float64
	NetProfit   float64
	TotalAsset  float64
	TotalEquity float64
	EPS         float64
	ROE         float64
}

// Valuation is a daily per-symbol valuation snapshot.
type Valuation struct {
	Code          string
	TradeDate     time.Time
	PETTM         float64
	PB            float64
	PS            float64
	PEG           float64
	MarketCap     float64
	DividendYield float64
}

// TechIndicator is derived solely from DailyBar; it is never populated from
// an upstream fetch.
type TechIndicator struct {
	Code      string
	TradeDate time.Time
	MA5       float64
	MA10      float64
	MA20      float64
	MA60      float64
	MACD      float64
	MACDSig   float64
	MACDHist  float64
	RSI14     float64
	KDJK      float64
	KDJD      float64
	KDJJ      float64
	BOLLUpper float64
	BOLLMid   float64
	BOLLLower float64
	CCI       float64
	ATR       float64
	OBV       float64
}

// FundFlow is a daily per-symbol capital-flow aggregate.
type FundFlow struct {
	Code            string
	TradeDate       time.Time
	MainNetInflow   float64
	RetailNetInflow float64
}

// Margin is a daily per-symbol margin-trading aggregate.
type Margin struct {
	Code          string
	TradeDate     time.Time
	MarginBalance float64
	ShortBalance  float64
}

// DragonTiger is a single appearance on the exchange's dragon-tiger list.
// Append-only: there is no natural update to a historical listing.
type DragonTiger struct {
	Code       string
	TradeDate  time.Time
	SeatName   string
	BuyAmount  float64
	SellAmount float64
}

// NorthboundFlow is the daily Stock-Connect northbound capital flow,
// market-wide rather than per-symbol.
type NorthboundFlow struct {
	TradeDate time.Time
	NetInflow float64
}

// MarketSentiment is a derived daily aggregate across the whole universe.
type MarketSentiment struct {
	TradeDate      time.Time
	AdvanceCount   int
	DeclineCount   int
	LimitUpCount   int
	LimitDownCount int
	SentimentScore float64
}

// LimitUpStock records a single symbol hitting its daily limit.
type LimitUpStock struct {
	Code       string
	TradeDate  time.Time
	LimitType  string // "up" or "down"
	SealAmount float64
}

// NewsArticle is deduplicated by SourceID when present, else by (Source,
// URL). Embedding is nil until the embeddings syncer fills it.
type NewsArticle struct {
	ID             int64
	SourceID       string
	Source         string
	URL            string
	Title          string
	Body           string
	PublishTime    time.Time
	RelatedSymbols []string
	Embedding      []float32
}

// Sector is an industry or concept grouping.
type Sector struct {
	Code string
	Name string
	Kind string // "industry" or "concept"
}

// SectorQuote is a sector's daily index value.
type SectorQuote struct {
	SectorCode string
	TradeDate  time.Time
	Index      float64
	ChangePct  float64
}

// Watchlist is the user-maintained set of codes that drives L2 scope and
// MinuteBar retention.
type Watchlist struct {
	Codes []string
}

// Contains reports whether code is on the watchlist.
func (w Watchlist) Contains(code string) bool {
	for _, c := range w.Codes {
		if c == code {
			return true
		}
	}
	return false
}

// SyncError records a syncer failure keyed by (TaskName, TargetCode).
// TargetCode is empty for task-wide failures (e.g. a market-level aggregate
// sync). ResolvedAt is set when the same key next succeeds.
type SyncError struct {
	ID          int64
	TaskName    string
	TargetCode  string
	Kind        string
	Message     string
	RetryCount  int
	LastRetryAt time.Time
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// Quarantined reports whether this row's retry budget is exhausted.
func (e SyncError) Quarantined(threshold int) bool {
	return e.ResolvedAt == nil && e.RetryCount >= threshold
}

// Tier classifies a task's scheduling class.
type Tier string

const (
	TierL1      Tier = "L1"
	TierL2      Tier = "L2"
	TierSpecial Tier = "SPECIAL"
)
