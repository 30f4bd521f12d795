package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/minionszyw/leeksaver/internal/jobs"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Runner binds generated triggers to the job runtime: cron triggers go
// through robfig/cron, interval triggers get their own staggered ticker
// goroutine. The runner itself holds no schedule logic; it executes
// whatever Generate produced.
type Runner struct {
	cron    *cron.Cron
	runtime *jobs.Runtime
	reg     *Registry
	log     zerolog.Logger

	mu      sync.Mutex
	cancels []context.CancelFunc
	entries map[string]cron.EntryID
}

// NewRunner creates a runner over the registry and runtime.
func NewRunner(reg *Registry, runtime *jobs.Runtime, log zerolog.Logger) *Runner {
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		runtime: runtime,
		reg:     reg,
		log:     log.With().Str("component", "schedule_runner").Logger(),
		entries: make(map[string]cron.EntryID),
	}
}

// Bind registers every trigger. Unknown task names are a wiring bug and
// fail the whole bind rather than silently dropping a schedule entry.
func (r *Runner) Bind(triggers []Trigger) error {
	for _, trig := range triggers {
		task, ok := r.reg.Lookup(trig.TaskName)
		if !ok {
			return fmt.Errorf("trigger references unknown task %q", trig.TaskName)
		}
		switch trig.Kind {
		case TriggerCron:
			if err := r.bindCron(trig, task); err != nil {
				return err
			}
		case TriggerInterval:
			r.bindInterval(trig, task)
		default:
			return fmt.Errorf("trigger for %q has unknown kind %q", trig.TaskName, trig.Kind)
		}
	}
	return nil
}

// Start begins firing triggers.
func (r *Runner) Start() {
	r.cron.Start()
	r.publishNextRuns()
	r.log.Info().Msg("schedule runner started")
}

// Stop halts cron and every interval goroutine. Jobs already submitted keep
// running until the runtime stops them.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()

	r.mu.Lock()
	for _, cancel := range r.cancels {
		cancel()
	}
	r.cancels = nil
	r.mu.Unlock()
	r.log.Info().Msg("schedule runner stopped")
}

func (r *Runner) bindCron(trig Trigger, task Task) error {
	id, err := r.cron.AddFunc(trig.CronSpec, func() {
		r.submit(task)
		r.publishNextRuns()
	})
	if err != nil {
		return fmt.Errorf("bind cron %q for %q: %w", trig.CronSpec, trig.TaskName, err)
	}
	r.mu.Lock()
	r.entries[task.Name] = id
	r.mu.Unlock()

	r.log.Info().Str("task", task.Name).Str("cron", trig.CronSpec).Msg("cron trigger bound")
	return nil
}

func (r *Runner) bindInterval(trig Trigger, task Task) {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancels = append(r.cancels, cancel)
	r.mu.Unlock()

	go func() {
		if trig.InitialDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(trig.InitialDelay):
			}
		}
		ticker := time.NewTicker(trig.Interval)
		defer ticker.Stop()

		r.submit(task)
		r.runtime.SetNextRun(task.Name, time.Now().Add(trig.Interval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.submit(task)
				r.runtime.SetNextRun(task.Name, time.Now().Add(trig.Interval))
			}
		}
	}()

	r.log.Info().Str("task", task.Name).
		Dur("interval", trig.Interval).Dur("initial_delay", trig.InitialDelay).
		Msg("interval trigger bound")
}

func (r *Runner) submit(task Task) {
	r.runtime.Submit(jobs.Job{
		Name:     task.Name,
		DedupKey: "task:" + task.Name,
		Deadline: task.Deadline,
		Fn:       task.Callable,
	})
}

// publishNextRuns pushes every cron entry's next firing time into the
// runtime's status view for `sync status`.
func (r *Runner) publishNextRuns() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, id := range r.entries {
		entry := r.cron.Entry(id)
		if !entry.Next.IsZero() {
			r.runtime.SetNextRun(name, entry.Next)
		}
	}
}
