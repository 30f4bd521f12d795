package schedule

import (
	"fmt"
	"time"

	"github.com/minionszyw/leeksaver/internal/domain"
	"github.com/minionszyw/leeksaver/internal/errs"
)

// TriggerKind distinguishes cron-expression triggers from interval triggers.
type TriggerKind string

const (
	TriggerCron     TriggerKind = "cron"
	TriggerInterval TriggerKind = "interval"
)

// Trigger is one concrete firing rule for one task. It is a plain value so
// trigger sets compare with == per element, which is what makes the
// generator's determinism testable.
type Trigger struct {
	TaskName     string
	Kind         TriggerKind
	CronSpec     string        // cron triggers, 6-field with seconds
	Interval     time.Duration // interval triggers
	InitialDelay time.Duration // interval triggers
}

// Knobs are the four policy inputs the generator consumes.
type Knobs struct {
	L1DailyTime         string // HH:MM
	L2IntervalSeconds   int
	L2TaskOffsetSeconds int
	RealtimeCacheTTL    time.Duration
}

// Generate maps the registry onto concrete triggers. It is pure: identical
// knobs and registry yield an identical trigger slice, in registry order.
//
//   - L1 tasks fire daily at L1DailyTime plus the task's positional offset
//     of OffsetMultiplier*30s, so the wave lands in sequence instead of
//     hammering the store at once.
//   - L2 tasks fire every L2IntervalSeconds with an initial delay of
//     OffsetMultiplier*L2TaskOffsetSeconds.
//   - SPECIAL tasks use their own cron spec verbatim.
func Generate(reg *Registry, knobs Knobs) ([]Trigger, error) {
	hour, minute, err := parseHHMM(knobs.L1DailyTime)
	if err != nil {
		return nil, errs.Wrap(errs.ConfigError, err, "L1 daily time")
	}
	if knobs.L2IntervalSeconds <= 0 {
		return nil, errs.New(errs.ConfigError, "L2 interval must be positive")
	}

	var out []Trigger
	for _, task := range reg.Tasks() {
		switch task.Tier {
		case domain.TierL1:
			sec := task.OffsetMultiplier * 30
			h, m, s := addOffset(hour, minute, sec)
			out = append(out, Trigger{
				TaskName: task.Name,
				Kind:     TriggerCron,
				CronSpec: fmt.Sprintf("%d %d %d * * *", s, m, h),
			})
		case domain.TierL2:
			out = append(out, Trigger{
				TaskName:     task.Name,
				Kind:         TriggerInterval,
				Interval:     time.Duration(knobs.L2IntervalSeconds) * time.Second,
				InitialDelay: time.Duration(task.OffsetMultiplier*knobs.L2TaskOffsetSeconds) * time.Second,
			})
		case domain.TierSpecial:
			out = append(out, Trigger{
				TaskName: task.Name,
				Kind:     TriggerCron,
				CronSpec: task.ScheduleSpec,
			})
		default:
			return nil, errs.New(errs.ConfigError, fmt.Sprintf("task %q has unknown tier %q", task.Name, task.Tier))
		}
	}
	return out, nil
}

// addOffset pushes (hour, minute) forward by sec seconds, wrapping within
// the day.
func addOffset(hour, minute, sec int) (h, m, s int) {
	total := (hour*3600 + minute*60 + sec) % 86400
	return total / 3600, (total % 3600) / 60, total % 60
}

func parseHHMM(v string) (int, int, error) {
	var h, m int
	if _, err := fmt.Sscanf(v, "%d:%d", &h, &m); err != nil {
		return 0, 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("out of range HH:MM %q", v)
	}
	return h, m, nil
}

// WeeklyCron renders a 6-field cron spec for a weekly SPECIAL task, with
// day-of-week 0-6 where 0 is Sunday.
func WeeklyCron(dayOfWeek, hour, minute int) string {
	return fmt.Sprintf("0 %d %d * * %d", minute, hour, dayOfWeek)
}

// DailyCron renders a 6-field cron spec for a daily SPECIAL task.
func DailyCron(hour, minute int) string {
	return fmt.Sprintf("0 %d %d * * *", minute, hour)
}
