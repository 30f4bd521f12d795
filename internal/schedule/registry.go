// Package schedule holds the declarative task registry and the pure
// generator that turns it into concrete triggers. The registry is the
// single source of truth for what runs when; nothing registers tasks
// dynamically at runtime.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/minionszyw/leeksaver/internal/domain"
	"github.com/minionszyw/leeksaver/internal/jobs"
)

// Callable is what a task runs: it builds the job body the runtime executes.
type Callable func(ctx context.Context, progress *jobs.Progress) error

// Task is one immutable registry record.
type Task struct {
	// Name identifies the task in schedules, statuses and sync_errors.
	Name string
	// Callable is the work itself.
	Callable Callable
	// Tier picks the generation rule: L1 daily, L2 interval, SPECIAL cron.
	Tier domain.Tier
	// OffsetMultiplier staggers tasks inside their tier: k*30s after the
	// L1 wall-clock time for L1, k*L2_task_offset_seconds initial delay
	// for L2.
	OffsetMultiplier int
	// ScheduleSpec is a 6-field cron expression, SPECIAL tasks only.
	ScheduleSpec string
	// Deadline overrides the runtime's default per-job deadline when >0.
	Deadline time.Duration
}

// Registry is a flat, immutable task list.
type Registry struct {
	tasks []Task
	index map[string]int
}

// NewRegistry builds a registry, rejecting duplicate names and tasks whose
// tier/spec combination the generator could not schedule.
func NewRegistry(tasks []Task) (*Registry, error) {
	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if t.Name == "" {
			return nil, fmt.Errorf("task %d has no name", i)
		}
		if _, dup := index[t.Name]; dup {
			return nil, fmt.Errorf("duplicate task name %q", t.Name)
		}
		if t.Tier == domain.TierSpecial && t.ScheduleSpec == "" {
			return nil, fmt.Errorf("special task %q has no schedule spec", t.Name)
		}
		index[t.Name] = i
	}
	return &Registry{tasks: tasks, index: index}, nil
}

// Tasks returns the records in registration order.
func (r *Registry) Tasks() []Task {
	out := make([]Task, len(r.tasks))
	copy(out, r.tasks)
	return out
}

// Lookup returns the task with the given name.
func (r *Registry) Lookup(name string) (Task, bool) {
	i, ok := r.index[name]
	if !ok {
		return Task{}, false
	}
	return r.tasks[i], true
}

// Names returns every task name in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.tasks))
	for i, t := range r.tasks {
		out[i] = t.Name
	}
	return out
}
