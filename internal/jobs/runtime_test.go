package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minionszyw/leeksaver/internal/errs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecorder captures Record/Resolve calls in memory.
type fakeRecorder struct {
	mu       sync.Mutex
	recorded []string
	resolved []string
}

func (f *fakeRecorder) Record(ctx context.Context, task, code, kind, msg string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, task+"|"+code+"|"+kind)
	return nil
}

func (f *fakeRecorder) Resolve(ctx context.Context, task, code string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, task+"|"+code)
	return nil
}

func newTestRuntime(t *testing.T, rec ErrorRecorder) *Runtime {
	t.Helper()
	r := New(Config{Workers: 4, DefaultDeadline: 5 * time.Second}, rec, zerolog.Nop())
	r.Start()
	t.Cleanup(r.Stop)
	return r
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition never became true")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestDedupKeyMutex(t *testing.T) {
	r := newTestRuntime(t, nil)

	var runs atomic.Int64
	release := make(chan struct{})
	job := Job{
		Name:     "backfill",
		DedupKey: "backfill:daily_quotes:h1",
		Fn: func(ctx context.Context, p *Progress) error {
			runs.Add(1)
			<-release
			return nil
		},
	}

	assert.True(t, r.Submit(job))
	waitFor(t, func() bool { return runs.Load() == 1 })

	// Same key while in flight: dropped, metric bumped.
	assert.False(t, r.Submit(job))
	assert.Equal(t, int64(1), r.Metrics().DedupSkipped.Load())

	close(release)
	waitFor(t, func() bool { return r.Metrics().Succeeded.Load() == 1 })
	assert.Equal(t, int64(1), runs.Load())

	// Key released after completion: resubmission runs again.
	release = make(chan struct{})
	close(release)
	assert.True(t, r.Submit(Job{
		Name:     "backfill",
		DedupKey: "backfill:daily_quotes:h1",
		Fn:       func(ctx context.Context, p *Progress) error { runs.Add(1); return nil },
	}))
	waitFor(t, func() bool { return runs.Load() == 2 })
}

func TestJobStateMachine(t *testing.T) {
	rec := &fakeRecorder{}
	r := newTestRuntime(t, rec)

	require.True(t, r.Submit(Job{
		Name: "ok",
		Fn:   func(ctx context.Context, p *Progress) error { return nil },
	}))
	waitFor(t, func() bool {
		st, ok := r.StatusOf("ok")
		return ok && st.State == StateSucceeded
	})

	require.True(t, r.Submit(Job{
		Name: "bad",
		Fn: func(ctx context.Context, p *Progress) error {
			return errs.New(errs.UpstreamUnavailable, "feed down")
		},
	}))
	waitFor(t, func() bool {
		st, ok := r.StatusOf("bad")
		return ok && st.State == StateFailed
	})
	st, _ := r.StatusOf("bad")
	assert.Contains(t, st.LastError, "feed down")
}

func TestFailureRecordsAndSuccessResolves(t *testing.T) {
	rec := &fakeRecorder{}
	r := newTestRuntime(t, rec)

	require.True(t, r.Submit(Job{
		Name: "daily_quotes",
		Fn: func(ctx context.Context, p *Progress) error {
			return errs.New(errs.UpstreamUnavailable, "boom")
		},
	}))
	waitFor(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.recorded) == 1
	})
	assert.Equal(t, "daily_quotes||UpstreamUnavailable", rec.recorded[0])

	require.True(t, r.Submit(Job{
		Name: "daily_quotes",
		Fn:   func(ctx context.Context, p *Progress) error { return nil },
	}))
	waitFor(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.resolved) == 1
	})
	assert.Equal(t, "daily_quotes|", rec.resolved[0])
}

func TestDeadlineCancelsJob(t *testing.T) {
	r := newTestRuntime(t, nil)

	require.True(t, r.Submit(Job{
		Name:     "slow",
		Deadline: 50 * time.Millisecond,
		Fn: func(ctx context.Context, p *Progress) error {
			// Cooperative: observe ctx between shards.
			select {
			case <-ctx.Done():
				return errs.Wrap(errs.DeadlineExceeded, ctx.Err(), "deadline hit between shards")
			case <-time.After(2 * time.Second):
				return nil
			}
		},
	}))
	waitFor(t, func() bool {
		st, ok := r.StatusOf("slow")
		return ok && st.State == StateCancelled
	})
	assert.Equal(t, int64(1), r.Metrics().Cancelled.Load())
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	r := newTestRuntime(t, nil)

	require.True(t, r.Submit(Job{
		Name: "panicky",
		Fn:   func(ctx context.Context, p *Progress) error { panic("oops") },
	}))
	waitFor(t, func() bool {
		st, ok := r.StatusOf("panicky")
		return ok && st.State == StateFailed
	})

	// The pool still works afterwards.
	var ran atomic.Bool
	require.True(t, r.Submit(Job{
		Name: "after",
		Fn:   func(ctx context.Context, p *Progress) error { ran.Store(true); return nil },
	}))
	waitFor(t, func() bool { return ran.Load() })
}

func TestRunSynchronous(t *testing.T) {
	r := newTestRuntime(t, nil)

	err := r.Run(Job{
		Name: "adhoc",
		Fn:   func(ctx context.Context, p *Progress) error { return errors.New("nope") },
	})
	require.Error(t, err)

	st, ok := r.StatusOf("adhoc")
	require.True(t, ok)
	assert.Equal(t, StateFailed, st.State)
}

func TestProgressPercent(t *testing.T) {
	p := &Progress{}
	assert.Equal(t, -1, p.Percent())
	p.Total.Store(200)
	p.Written.Store(50)
	assert.Equal(t, 25, p.Percent())
	p.Written.Store(400)
	assert.Equal(t, 100, p.Percent())
}
