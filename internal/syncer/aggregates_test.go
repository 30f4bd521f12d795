package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentimentScoreBounds(t *testing.T) {
	tests := []struct {
		name     string
		pcts     []float64
		advances int
		declines int
		check    func(t *testing.T, score float64)
	}{
		{
			name: "flat market is neutral",
			pcts: []float64{0, 0, 0},
			check: func(t *testing.T, score float64) {
				assert.InDelta(t, 50, score, 0.01)
			},
		},
		{
			name:     "broad rally scores high",
			pcts:     []float64{3, 4, 5, 2, 6},
			advances: 5,
			check: func(t *testing.T, score float64) {
				assert.Greater(t, score, 70.0)
				assert.LessOrEqual(t, score, 100.0)
			},
		},
		{
			name:     "broad selloff scores low",
			pcts:     []float64{-3, -4, -5, -2, -6},
			declines: 5,
			check: func(t *testing.T, score float64) {
				assert.Less(t, score, 30.0)
				assert.GreaterOrEqual(t, score, 0.0)
			},
		},
		{
			name:     "extreme day clamps to the scale",
			pcts:     []float64{10, 10, 10, 10},
			advances: 4,
			check: func(t *testing.T, score float64) {
				assert.LessOrEqual(t, score, 100.0)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, sentimentScore(tt.pcts, tt.advances, tt.declines))
		})
	}
}

func TestShard(t *testing.T) {
	codes := []string{"a", "b", "c", "d", "e"}

	shards := shard(codes, 2)
	assert.Len(t, shards, 3)
	assert.Equal(t, []string{"a", "b"}, shards[0])
	assert.Equal(t, []string{"e"}, shards[2])

	shards = shard(codes, 0) // falls back to the default size
	assert.Len(t, shards, 1)

	assert.Empty(t, shard(nil, 10))
}
