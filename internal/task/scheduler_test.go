package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockSentry/internal/model"
)

// memLog collects run logs in memory for scheduler tests.
type memLog struct {
	mu   sync.Mutex
	recs []model.RunLog
}

func (m *memLog) AppendRunLog(rec *model.RunLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, *rec)
	return nil
}

func (m *memLog) byOutcome(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.recs {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

func (m *memLog) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestScheduler(recs *memLog, tick time.Duration) *Scheduler {
	return NewScheduler(recs, quietLogger(), tick, 2*time.Second)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	s := newTestScheduler(&memLog{}, time.Second)

	tk := &Task{Name: "daily_sync", Trigger: DailyAt(15, 30), Timeout: time.Second,
		Run: func(context.Context) Result { return Success() }}
	require.NoError(t, s.Register(tk))

	err := s.Register(&Task{Name: "daily_sync", Trigger: DailyAt(16, 0), Timeout: time.Second,
		Run: func(context.Context) Result { return Success() }})
	assert.ErrorIs(t, err, ErrDuplicateTask)
}

func TestRunNowUnknownTask(t *testing.T) {
	s := newTestScheduler(&memLog{}, time.Second)
	assert.ErrorIs(t, s.RunNow("nope"), ErrUnknownTask)
}

func TestRunNowExecutesAndLogs(t *testing.T) {
	recs := &memLog{}
	s := newTestScheduler(recs, time.Second)

	ran := false
	require.NoError(t, s.Register(&Task{
		Name: "oneshot", Trigger: DailyAt(3, 0), Timeout: time.Second,
		Run: func(context.Context) Result {
			ran = true
			return Result{Outcome: model.OutcomePartialFailure, Attempted: 5, Succeeded: 3, Failed: 2}
		},
	}))

	require.NoError(t, s.RunNow("oneshot"))
	assert.True(t, ran)
	require.Equal(t, 1, recs.count())
	assert.Equal(t, model.OutcomePartialFailure, recs.recs[0].Outcome)
	assert.Equal(t, 3, recs.recs[0].Succeeded)
}

func TestNoOverlapCoalescesToSkip(t *testing.T) {
	recs := &memLog{}
	s := newTestScheduler(recs, time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Register(&Task{
		Name: "slow", Trigger: DailyAt(3, 0), Timeout: 5 * time.Second,
		Run: func(context.Context) Result {
			close(started)
			<-release
			return Success()
		},
	}))

	go func() { _ = s.RunNow("slow") }()
	<-started

	// Second invocation while the first is in flight: recorded skip, no
	// second concurrent execution.
	require.NoError(t, s.RunNow("slow"))
	assert.Equal(t, 1, recs.byOutcome(model.OutcomeSkipped))

	close(release)
	require.Eventually(t, func() bool {
		return recs.byOutcome(model.OutcomeSuccess) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestScheduledFiringAndGate(t *testing.T) {
	recs := &memLog{}
	s := newTestScheduler(recs, 10*time.Millisecond)

	var mu sync.Mutex
	runs := 0
	require.NoError(t, s.Register(&Task{
		Name: "tick_job", Trigger: Every(15 * time.Millisecond), Timeout: time.Second,
		Run: func(context.Context) Result {
			mu.Lock()
			runs++
			mu.Unlock()
			return Success()
		},
	}))
	require.NoError(t, s.Register(&Task{
		Name: "gated_job", Trigger: Every(15 * time.Millisecond), Timeout: time.Second,
		Gate: func(time.Time) bool { return false },
		Run: func(context.Context) Result {
			t.Error("gated task must not run")
			return Success()
		},
	}))

	before := s.NextFireTimes()["gated_job"]

	s.Start()
	s.Start() // idempotent

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 2
	}, 2*time.Second, 10*time.Millisecond)

	// A closed gate skips the firing but still advances the fire time.
	assert.True(t, s.NextFireTimes()["gated_job"].After(before))

	s.Stop()
}

// gatedSkipLog blocks appends of skipped run logs until released, to
// model a slow store write on the skip path.
type gatedSkipLog struct {
	mem  *memLog
	gate chan struct{}
}

func (g *gatedSkipLog) AppendRunLog(rec *model.RunLog) error {
	if rec.Outcome == model.OutcomeSkipped {
		<-g.gate
	}
	return g.mem.AppendRunLog(rec)
}

func TestSkipLoggingDoesNotStallLoop(t *testing.T) {
	recs := &memLog{}
	gate := make(chan struct{})
	s := NewScheduler(&gatedSkipLog{mem: recs, gate: gate}, quietLogger(), 10*time.Millisecond, 2*time.Second)

	release := make(chan struct{})
	require.NoError(t, s.Register(&Task{
		Name: "laggard", Trigger: Every(15 * time.Millisecond), Timeout: time.Second,
		Run: func(context.Context) Result {
			<-release
			return Success()
		},
	}))

	var mu sync.Mutex
	runs := 0
	require.NoError(t, s.Register(&Task{
		Name: "brisk", Trigger: Every(15 * time.Millisecond), Timeout: time.Second,
		Run: func(context.Context) Result {
			mu.Lock()
			runs++
			mu.Unlock()
			return Success()
		},
	}))

	s.Start()

	// The laggard's first firing never returns, so every later firing of
	// it coalesces to a skip whose log write is stuck on the gate. The
	// brisk task must keep firing regardless.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 3
	}, 2*time.Second, 10*time.Millisecond)

	close(gate)
	close(release)
	s.Stop()

	assert.GreaterOrEqual(t, recs.byOutcome(model.OutcomeSkipped), 1)
}

func TestStopDrainsInFlight(t *testing.T) {
	recs := &memLog{}
	s := newTestScheduler(recs, 10*time.Millisecond)

	started := make(chan struct{})
	var once sync.Once
	require.NoError(t, s.Register(&Task{
		Name: "draining", Trigger: Every(15 * time.Millisecond), Timeout: time.Second,
		Run: func(ctx context.Context) Result {
			once.Do(func() { close(started) })
			time.Sleep(50 * time.Millisecond)
			return Success()
		},
	}))

	s.Start()
	<-started
	s.Stop()

	// The in-flight execution completed within the grace period and its
	// run log is present.
	assert.GreaterOrEqual(t, recs.byOutcome(model.OutcomeSuccess), 1)

	// No further firings after Stop returned.
	n := recs.count()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, n, recs.count())
}

func TestExecutorContainsPanics(t *testing.T) {
	recs := &memLog{}
	s := newTestScheduler(recs, time.Second)

	require.NoError(t, s.Register(&Task{
		Name: "explosive", Trigger: DailyAt(3, 0), Timeout: time.Second,
		Run: func(context.Context) Result { panic("boom") },
	}))

	require.NoError(t, s.RunNow("explosive"))
	require.Equal(t, 1, recs.count())
	assert.Equal(t, model.OutcomeFailure, recs.recs[0].Outcome)
	assert.Contains(t, recs.recs[0].ErrorSummary, "panicked")
}

func TestExecutorTimeoutReachesBody(t *testing.T) {
	recs := &memLog{}
	s := newTestScheduler(recs, time.Second)

	require.NoError(t, s.Register(&Task{
		Name: "deadline", Trigger: DailyAt(3, 0), Timeout: 20 * time.Millisecond,
		Run: func(ctx context.Context) Result {
			<-ctx.Done()
			return Failure(ctx.Err())
		},
	}))

	require.NoError(t, s.RunNow("deadline"))
	require.Equal(t, 1, recs.count())
	assert.Equal(t, model.OutcomeFailure, recs.recs[0].Outcome)
	assert.Contains(t, recs.recs[0].ErrorSummary, "deadline exceeded")
}

func TestErrorSummaryTruncated(t *testing.T) {
	recs := &memLog{}
	s := newTestScheduler(recs, time.Second)

	long := make([]byte, 2*maxErrorSummary)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, s.Register(&Task{
		Name: "wordy", Trigger: DailyAt(3, 0), Timeout: time.Second,
		Run: func(context.Context) Result { return Failure(errors.New(string(long))) },
	}))

	require.NoError(t, s.RunNow("wordy"))
	assert.Len(t, recs.recs[0].ErrorSummary, maxErrorSummary)
}
