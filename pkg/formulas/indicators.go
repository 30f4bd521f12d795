package formulas

import (
	"github.com/markcheno/go-talib"
)

// IndicatorRow is one day's worth of derived technical indicators.
type IndicatorRow struct {
	MA5, MA10, MA20, MA60         float64
	MACD, MACDSig, MACDHist       float64
	RSI14                         float64
	KDJK, KDJD, KDJJ              float64
	BOLLUpper, BOLLMid, BOLLLower float64
	CCI, ATR, OBV                 float64
}

// MaxLookback is the longest window any indicator needs; callers load at
// least this many bars of history before the first day they want computed.
const MaxLookback = 60

// ComputeIndicators derives the full indicator set for every input day.
// Inputs are parallel OHLCV slices in ascending date order; the output is
// aligned index-for-index with them. Early indices whose window has not
// filled yet carry zeros, the same convention talib uses.
func ComputeIndicators(high, low, closes []float64, volume []float64) []IndicatorRow {
	n := len(closes)
	if n == 0 {
		return nil
	}

	out := make([]IndicatorRow, n)

	ma5 := movingAverage(closes, 5)
	ma10 := movingAverage(closes, 10)
	ma20 := movingAverage(closes, 20)
	ma60 := movingAverage(closes, 60)

	var macd, macdSig, macdHist []float64
	if n >= 34 { // slow EMA 26 + signal 9 warmup
		macd, macdSig, macdHist = talib.Macd(closes, 12, 26, 9)
	}

	var rsi []float64
	if n >= 15 {
		rsi = talib.Rsi(closes, 14)
	}

	var kdjK, kdjD []float64
	if n >= 12 { // 9-day window + 3-day smoothing
		kdjK, kdjD = talib.Stoch(high, low, closes, 9, 3, talib.SMA, 3, talib.SMA)
	}

	var bollUpper, bollMid, bollLower []float64
	if n >= 20 {
		bollUpper, bollMid, bollLower = talib.BBands(closes, 20, 2, 2, talib.SMA)
	}

	var cci []float64
	if n >= 14 {
		cci = talib.Cci(high, low, closes, 14)
	}

	var atr []float64
	if n >= 15 {
		atr = talib.Atr(high, low, closes, 14)
	}

	obv := talib.Obv(closes, volume)

	for i := 0; i < n; i++ {
		r := &out[i]
		r.MA5 = at(ma5, i)
		r.MA10 = at(ma10, i)
		r.MA20 = at(ma20, i)
		r.MA60 = at(ma60, i)
		r.MACD = at(macd, i)
		r.MACDSig = at(macdSig, i)
		r.MACDHist = at(macdHist, i)
		r.RSI14 = at(rsi, i)
		k := at(kdjK, i)
		d := at(kdjD, i)
		r.KDJK = k
		r.KDJD = d
		r.KDJJ = 3*k - 2*d
		r.BOLLUpper = at(bollUpper, i)
		r.BOLLMid = at(bollMid, i)
		r.BOLLLower = at(bollLower, i)
		r.CCI = at(cci, i)
		r.ATR = at(atr, i)
		r.OBV = at(obv, i)
	}
	return out
}

func movingAverage(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}
	return talib.Sma(values, period)
}

// at reads series[i], treating a short/nil series or a NaN cell as zero.
func at(series []float64, i int) float64 {
	if i >= len(series) {
		return 0
	}
	v := series[i]
	if isNaN(v) {
		return 0
	}
	return v
}
