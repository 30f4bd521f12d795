package schedule

import (
	"testing"
	"time"

	"github.com/minionszyw/leeksaver/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry([]Task{
		{Name: "symbol_list", Tier: domain.TierL1, OffsetMultiplier: 0},
		{Name: "daily_quotes", Tier: domain.TierL1, OffsetMultiplier: 1},
		{Name: "tech_indicators", Tier: domain.TierL1, OffsetMultiplier: 9},
		{Name: "minute_bars", Tier: domain.TierL2, OffsetMultiplier: 0},
		{Name: "news", Tier: domain.TierL2, OffsetMultiplier: 1},
		{Name: "financial_statements", Tier: domain.TierSpecial, ScheduleSpec: WeeklyCron(6, 20, 0)},
	})
	require.NoError(t, err)
	return reg
}

func defaultKnobs() Knobs {
	return Knobs{
		L1DailyTime:         "17:30",
		L2IntervalSeconds:   300,
		L2TaskOffsetSeconds: 120,
		RealtimeCacheTTL:    10 * time.Second,
	}
}

func TestGenerateDeterministic(t *testing.T) {
	reg := testRegistry(t)

	a, err := Generate(reg, defaultKnobs())
	require.NoError(t, err)
	b, err := Generate(reg, defaultKnobs())
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestGenerateL1Offsets(t *testing.T) {
	reg := testRegistry(t)
	triggers, err := Generate(reg, defaultKnobs())
	require.NoError(t, err)

	byName := map[string]Trigger{}
	for _, trig := range triggers {
		byName[trig.TaskName] = trig
	}

	// Offset 0 fires exactly at the L1 wall-clock time.
	assert.Equal(t, "0 30 17 * * *", byName["symbol_list"].CronSpec)
	// Offset 1 adds 30s.
	assert.Equal(t, "30 30 17 * * *", byName["daily_quotes"].CronSpec)
	// Offset 9 adds 270s, wrapping into the next minutes.
	assert.Equal(t, "30 34 17 * * *", byName["tech_indicators"].CronSpec)
}

func TestGenerateL2Stagger(t *testing.T) {
	reg := testRegistry(t)
	triggers, err := Generate(reg, defaultKnobs())
	require.NoError(t, err)

	byName := map[string]Trigger{}
	for _, trig := range triggers {
		byName[trig.TaskName] = trig
	}

	minute := byName["minute_bars"]
	assert.Equal(t, TriggerInterval, minute.Kind)
	assert.Equal(t, 300*time.Second, minute.Interval)
	assert.Equal(t, time.Duration(0), minute.InitialDelay)

	news := byName["news"]
	assert.Equal(t, 300*time.Second, news.Interval)
	assert.Equal(t, 120*time.Second, news.InitialDelay)
}

func TestGenerateSpecialUsesOwnSpec(t *testing.T) {
	reg := testRegistry(t)
	triggers, err := Generate(reg, defaultKnobs())
	require.NoError(t, err)

	var special Trigger
	for _, trig := range triggers {
		if trig.TaskName == "financial_statements" {
			special = trig
		}
	}
	assert.Equal(t, TriggerCron, special.Kind)
	assert.Equal(t, "0 0 20 * * 6", special.CronSpec)
}

func TestGenerateKnobChangesSchedule(t *testing.T) {
	reg := testRegistry(t)

	knobs := defaultKnobs()
	knobs.L1DailyTime = "18:00"
	knobs.L2IntervalSeconds = 60

	triggers, err := Generate(reg, knobs)
	require.NoError(t, err)

	byName := map[string]Trigger{}
	for _, trig := range triggers {
		byName[trig.TaskName] = trig
	}
	assert.Equal(t, "0 0 18 * * *", byName["symbol_list"].CronSpec)
	assert.Equal(t, 60*time.Second, byName["news"].Interval)
}

func TestGenerateRejectsBadKnobs(t *testing.T) {
	reg := testRegistry(t)

	knobs := defaultKnobs()
	knobs.L1DailyTime = "25:61"
	_, err := Generate(reg, knobs)
	assert.Error(t, err)

	knobs = defaultKnobs()
	knobs.L2IntervalSeconds = 0
	_, err = Generate(reg, knobs)
	assert.Error(t, err)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry([]Task{
		{Name: "a", Tier: domain.TierL1},
		{Name: "a", Tier: domain.TierL2},
	})
	assert.Error(t, err)

	_, err = NewRegistry([]Task{
		{Name: "s", Tier: domain.TierSpecial}, // no spec
	})
	assert.Error(t, err)
}
