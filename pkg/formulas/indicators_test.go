package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func synthSeries(n int) (high, low, closes, volume []float64) {
	high = make([]float64, n)
	low = make([]float64, n)
	closes = make([]float64, n)
	volume = make([]float64, n)
	for i := 0; i < n; i++ {
		base := 10 + math.Sin(float64(i)/5)
		closes[i] = base
		high[i] = base + 0.5
		low[i] = base - 0.5
		volume[i] = 1000 + float64(i%7)*100
	}
	return high, low, closes, volume
}

func TestComputeIndicatorsShape(t *testing.T) {
	high, low, closes, volume := synthSeries(120)
	rows := ComputeIndicators(high, low, closes, volume)
	require.Len(t, rows, 120)

	last := rows[119]
	// Every window has warmed up by the last index.
	assert.NotZero(t, last.MA5)
	assert.NotZero(t, last.MA60)
	assert.NotZero(t, last.RSI14)
	assert.NotZero(t, last.BOLLMid)
	assert.NotZero(t, last.ATR)

	// MA5 of the last 5 closes, directly.
	want := Mean(closes[115:120])
	assert.InDelta(t, want, last.MA5, 1e-9)

	// KDJ's J line is 3K-2D by construction.
	assert.InDelta(t, 3*last.KDJK-2*last.KDJD, last.KDJJ, 1e-9)

	// BOLL bands bracket the middle line.
	assert.Greater(t, last.BOLLUpper, last.BOLLMid)
	assert.Less(t, last.BOLLLower, last.BOLLMid)

	// RSI stays within its bounds.
	assert.GreaterOrEqual(t, last.RSI14, 0.0)
	assert.LessOrEqual(t, last.RSI14, 100.0)
}

func TestComputeIndicatorsShortSeries(t *testing.T) {
	high, low, closes, volume := synthSeries(10)
	rows := ComputeIndicators(high, low, closes, volume)
	require.Len(t, rows, 10)

	// Long windows have not filled: zeros, not NaNs.
	assert.Zero(t, rows[9].MA60)
	assert.Zero(t, rows[9].BOLLMid)
	assert.False(t, math.IsNaN(rows[9].MA5))

	assert.Empty(t, ComputeIndicators(nil, nil, nil, nil))
}

func TestCalculateRSI(t *testing.T) {
	_, _, closes, _ := synthSeries(30)

	rsi := CalculateRSI(closes, 14)
	require.NotNil(t, rsi)
	assert.GreaterOrEqual(t, *rsi, 0.0)
	assert.LessOrEqual(t, *rsi, 100.0)

	assert.Nil(t, CalculateRSI(closes[:10], 14))
}
