package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "17:30", cfg.L1DailyTime)
	assert.Equal(t, 300, cfg.L2IntervalSeconds)
	assert.Equal(t, 120, cfg.L2TaskOffsetSeconds)
	assert.Equal(t, 4, cfg.JobRuntimeWorkers)
	assert.Equal(t, 5.0, cfg.UpstreamRateQPS)
	assert.Equal(t, 50, cfg.SyncBatchSize)
	assert.Equal(t, 90, cfg.NewsRetentionDays)
	assert.Equal(t, 0.95, cfg.DoctorCoverageTarget)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SYNC_L1_DAILY_TIME", "18:15")
	t.Setenv("SYNC_L2_INTERVAL_SECONDS", "60")
	t.Setenv("UPSTREAM_RATE_QPS", "2.5")
	t.Setenv("NEWS_CLEANUP_PROTECT_WATCHLIST", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "18:15", cfg.L1DailyTime)
	assert.Equal(t, 60, cfg.L2IntervalSeconds)
	assert.Equal(t, 2.5, cfg.UpstreamRateQPS)
	assert.False(t, cfg.NewsCleanupProtectWatchlist)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("SYNC_L1_DAILY_TIME", "25:99")
	_, err := Load()
	assert.Error(t, err)
}

func TestParseHHMM(t *testing.T) {
	tests := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{in: "17:30", hour: 17, minute: 30},
		{in: "0:00", hour: 0, minute: 0},
		{in: "23:59", hour: 23, minute: 59},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			h, m, err := ParseHHMM(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.hour, h)
			assert.Equal(t, tt.minute, m)
		})
	}
}
