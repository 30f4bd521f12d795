// Package jobs is the synchronizer runtime: a fixed worker pool consuming a
// job queue, with per-job deadlines, cooperative cancellation, dedup-key
// mutual exclusion and the SyncError bookkeeping that makes failures visible
// instead of lost.
package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/minionszyw/leeksaver/internal/errs"
	"github.com/rs/zerolog"
)

// State is a job's lifecycle position.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Progress is the per-shard counter block a syncer updates as it works.
// Fields are atomics so the status reader never blocks a running job.
type Progress struct {
	Fetched  atomic.Int64
	Accepted atomic.Int64
	Written  atomic.Int64
	Errors   atomic.Int64
	Total    atomic.Int64
}

// Percent returns completion as 0-100, or -1 when the job never declared a
// total.
func (p *Progress) Percent() int {
	total := p.Total.Load()
	if total <= 0 {
		return -1
	}
	pct := int(p.Written.Load() * 100 / total)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Job is one unit of work. Fn observes ctx between shards; when the deadline
// or a cancellation fires, returning ctx's error lands the job in the
// cancelled state with partial writes intact.
type Job struct {
	Name     string
	DedupKey string
	Deadline time.Duration
	Fn       func(ctx context.Context, progress *Progress) error
}

// Status is the operator-facing view of one task name, maintained across
// runs for the `sync status` surface.
type Status struct {
	Name      string
	State     State
	LastRun   time.Time
	NextRun   time.Time
	Progress  int
	LastError string
}

// Metrics counts runtime-wide outcomes.
type Metrics struct {
	Submitted    atomic.Int64
	Succeeded    atomic.Int64
	Failed       atomic.Int64
	Cancelled    atomic.Int64
	DedupSkipped atomic.Int64
}

// ErrorRecorder is the slice of the SyncError repository the runtime needs:
// task-level failure rows and their closure on the next success.
type ErrorRecorder interface {
	Record(ctx context.Context, taskName, targetCode, kind, message string, now time.Time) error
	Resolve(ctx context.Context, taskName, targetCode string, now time.Time) error
}

type execution struct {
	id       string
	job      Job
	progress *Progress
}

// Runtime owns the worker pool. Jobs enter through Submit and run on one of
// W workers; a panic or failure in a job never takes a worker down.
type Runtime struct {
	workers  int
	deadline time.Duration
	queue    chan *execution
	recorder ErrorRecorder
	log      zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]bool
	status   map[string]*Status

	metrics Metrics

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// Config tunes the runtime.
type Config struct {
	Workers         int
	DefaultDeadline time.Duration
	QueueDepth      int
}

// New creates a runtime; Start launches its workers.
func New(cfg Config, recorder ErrorRecorder, log zerolog.Logger) *Runtime {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.DefaultDeadline <= 0 {
		cfg.DefaultDeadline = 2 * time.Minute
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		workers:  cfg.Workers,
		deadline: cfg.DefaultDeadline,
		queue:    make(chan *execution, cfg.QueueDepth),
		recorder: recorder,
		log:      log.With().Str("component", "job_runtime").Logger(),
		now:      time.Now,
		inflight: make(map[string]bool),
		status:   make(map[string]*Status),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Start launches the worker pool.
func (r *Runtime) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.log.Info().Int("workers", r.workers).Msg("job runtime started")
}

// Stop cancels every running job and waits for the workers to drain.
func (r *Runtime) Stop() {
	r.cancel()
	close(r.queue)
	r.wg.Wait()
	r.log.Info().Msg("job runtime stopped")
}

// Submit enqueues a job. When the job carries a dedup key that is already
// in flight, submission is a no-op and the dedup-skip metric is bumped
// instead (at-most-one concurrent run per key).
func (r *Runtime) Submit(job Job) bool {
	r.mu.Lock()
	if job.DedupKey != "" && r.inflight[job.DedupKey] {
		r.mu.Unlock()
		r.metrics.DedupSkipped.Add(1)
		r.log.Debug().Str("job", job.Name).Str("dedup_key", job.DedupKey).Msg("dedup skip")
		return false
	}
	if job.DedupKey != "" {
		r.inflight[job.DedupKey] = true
	}
	st := r.statusLocked(job.Name)
	st.State = StatePending
	r.mu.Unlock()

	r.metrics.Submitted.Add(1)
	exec := &execution{id: uuid.NewString(), job: job, progress: &Progress{}}

	select {
	case r.queue <- exec:
		return true
	case <-r.baseCtx.Done():
		r.release(job.DedupKey)
		return false
	}
}

// Run executes a job synchronously on the caller, outside the pool but under
// the same dedup and bookkeeping rules. The CLI's ad-hoc triggers use this.
func (r *Runtime) Run(job Job) error {
	r.mu.Lock()
	if job.DedupKey != "" && r.inflight[job.DedupKey] {
		r.mu.Unlock()
		r.metrics.DedupSkipped.Add(1)
		return errs.New(errs.WriteConflict, "job already in flight: "+job.DedupKey)
	}
	if job.DedupKey != "" {
		r.inflight[job.DedupKey] = true
	}
	r.mu.Unlock()

	r.metrics.Submitted.Add(1)
	exec := &execution{id: uuid.NewString(), job: job, progress: &Progress{}}
	return r.execute(exec)
}

// Metrics exposes the runtime counters.
func (r *Runtime) Metrics() *Metrics { return &r.metrics }

// StatusOf returns a copy of one task's status.
func (r *Runtime) StatusOf(name string) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.status[name]
	if !ok {
		return Status{}, false
	}
	return *st, true
}

// Statuses returns a copy of every known task status.
func (r *Runtime) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.status))
	for _, st := range r.status {
		out = append(out, *st)
	}
	return out
}

// SetNextRun lets the scheduler publish a task's next trigger time into the
// status view.
func (r *Runtime) SetNextRun(name string, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusLocked(name).NextRun = t
}

func (r *Runtime) statusLocked(name string) *Status {
	st, ok := r.status[name]
	if !ok {
		st = &Status{Name: name}
		r.status[name] = st
	}
	return st
}

func (r *Runtime) worker(id int) {
	defer r.wg.Done()
	for exec := range r.queue {
		_ = r.execute(exec)
	}
}

func (r *Runtime) execute(exec *execution) (err error) {
	job := exec.job
	deadline := job.Deadline
	if deadline <= 0 {
		deadline = r.deadline
	}
	ctx, cancel := context.WithTimeout(r.baseCtx, deadline)

	started := r.now()
	r.mu.Lock()
	st := r.statusLocked(job.Name)
	st.State = StateRunning
	st.LastRun = started
	st.LastError = ""
	r.mu.Unlock()

	defer func() {
		cancel()
		r.release(job.DedupKey)
		if rec := recover(); rec != nil {
			r.log.Error().Str("job", job.Name).Interface("panic", rec).Msg("job panicked")
			err = errs.New(errs.Unknown, "job panicked")
			r.finish(exec, err)
		}
	}()

	r.log.Debug().Str("job", job.Name).Str("id", exec.id).Msg("job started")
	err = job.Fn(ctx, exec.progress)
	r.finish(exec, err)
	return err
}

func (r *Runtime) finish(exec *execution, err error) {
	job := exec.job
	now := r.now()

	var state State
	switch {
	case err == nil:
		state = StateSucceeded
		r.metrics.Succeeded.Add(1)
	case errs.KindOf(err) == errs.Cancelled || errs.KindOf(err) == errs.DeadlineExceeded ||
		err == context.Canceled || err == context.DeadlineExceeded:
		state = StateCancelled
		r.metrics.Cancelled.Add(1)
	default:
		state = StateFailed
		r.metrics.Failed.Add(1)
	}

	r.mu.Lock()
	st := r.statusLocked(job.Name)
	st.State = state
	st.Progress = exec.progress.Percent()
	if err != nil {
		st.LastError = err.Error()
	}
	r.mu.Unlock()

	// Bookkeeping runs on a fresh context: the job's own deadline may
	// already be spent, and the error row must land regardless.
	bctx, bcancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer bcancel()

	switch state {
	case StateSucceeded:
		if r.recorder != nil {
			if rerr := r.recorder.Resolve(bctx, job.Name, "", now); rerr != nil {
				r.log.Error().Err(rerr).Str("job", job.Name).Msg("resolve sync error")
			}
		}
		r.log.Info().Str("job", job.Name).
			Int64("written", exec.progress.Written.Load()).
			Int64("errors", exec.progress.Errors.Load()).
			Msg("job succeeded")
	case StateCancelled:
		r.log.Warn().Str("job", job.Name).Msg("job cancelled")
	case StateFailed:
		if r.recorder != nil {
			if rerr := r.recorder.Record(bctx, job.Name, "", errs.KindOf(err).String(), err.Error(), now); rerr != nil {
				r.log.Error().Err(rerr).Str("job", job.Name).Msg("record sync error")
			}
		}
		r.log.Error().Err(err).Str("job", job.Name).Msg("job failed")
	}
}

func (r *Runtime) release(dedupKey string) {
	if dedupKey == "" {
		return
	}
	r.mu.Lock()
	delete(r.inflight, dedupKey)
	r.mu.Unlock()
}
