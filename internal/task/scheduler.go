package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type schedulerState int

const (
	stateStopped schedulerState = iota
	stateRunning
	stateDraining
)

type entry struct {
	task    *Task
	next    time.Time
	running bool
}

// Scheduler holds the task registry and runs the control loop that fires
// due tasks. Due-ness is decided single-threadedly on a short tick; each
// firing executes on its own goroutine so a slow task never delays the
// detection of other due tasks. One task name runs at most once at a time.
type Scheduler struct {
	exec  *executor
	log   *logrus.Logger
	tick  time.Duration
	grace time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	tasks    map[string]*entry
	state    schedulerState
	stopLoop chan struct{}
	loopDone chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a stopped scheduler writing run logs through store.
func NewScheduler(store RunLogAppender, log *logrus.Logger, tick, grace time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		exec:    &executor{store: store, log: log},
		log:     log,
		tick:    tick,
		grace:   grace,
		baseCtx: ctx,
		cancel:  cancel,
		tasks:   make(map[string]*entry),
	}
}

// Register adds a task to the registry and computes its first fire time.
func (s *Scheduler) Register(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.Name)
	}
	s.tasks[t.Name] = &entry{task: t, next: t.Trigger.Next(time.Now())}
	s.log.WithFields(logrus.Fields{
		"task": t.Name,
		"next": s.tasks[t.Name].next.Format(time.RFC3339),
	}).Info("task registered")
	return nil
}

// Start begins the control loop. Calling Start on a scheduler that is
// already running is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateStopped {
		s.log.Warn("scheduler already started")
		return
	}
	if s.baseCtx.Err() != nil {
		s.log.Warn("scheduler already shut down, not restarting")
		return
	}
	s.state = stateRunning
	s.stopLoop = make(chan struct{})
	s.loopDone = make(chan struct{})
	go s.loop()
	s.log.WithField("tick", s.tick.String()).Info("scheduler started")
}

func (s *Scheduler) loop() {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopLoop:
			return
		case now := <-ticker.C:
			s.fireDue(now)
		}
	}
}

// fireDue advances and launches every task whose fire time has arrived.
func (s *Scheduler) fireDue(now time.Time) {
	var skips, runs []*entry

	s.mu.Lock()
	for _, en := range s.tasks {
		if en.next.After(now) {
			continue
		}
		// Advance regardless of gate or overlap: a skipped eligible
		// window must not queue a backlog.
		en.next = en.task.Trigger.Next(now)

		if en.task.Gate != nil && !en.task.Gate(now) {
			s.log.WithField("task", en.task.Name).Info("gate closed, firing skipped")
			continue
		}
		if en.running {
			skips = append(skips, en)
			continue
		}
		en.running = true
		runs = append(runs, en)
	}
	s.mu.Unlock()

	// Skip logs are store writes; keep them off the control loop so a
	// slow append never delays due-ness detection.
	for _, en := range skips {
		s.wg.Add(1)
		go func(t *Task) {
			defer s.wg.Done()
			s.exec.recordSkip(t, "previous execution still running")
		}(en.task)
	}
	for _, en := range runs {
		s.launch(en)
	}
}

func (s *Scheduler) launch(en *entry) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			en.running = false
			s.mu.Unlock()
		}()
		s.exec.execute(s.baseCtx, en.task)
	}()
}

// RunNow executes one task immediately on the calling goroutine,
// bypassing its trigger and gate. The no-overlap rule still applies: an
// in-flight execution coalesces this invocation into a recorded skip.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	en, ok := s.tasks[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	if en.running {
		s.mu.Unlock()
		s.exec.recordSkip(en.task, "run-now coalesced: execution in flight")
		return nil
	}
	en.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		en.running = false
		s.mu.Unlock()
	}()
	s.exec.execute(s.baseCtx, en.task)
	return nil
}

// NextFireTimes returns the computed next fire time for every registered
// task. Never blocks on running tasks.
func (s *Scheduler) NextFireTimes() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Time, len(s.tasks))
	for name, en := range s.tasks {
		out[name] = en.next
	}
	return out
}

// Stop halts the control loop, asks in-flight executions to wind down,
// and waits for them up to the grace period. Executions still running
// past the grace are abandoned; their run logs land whenever they finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return
	}
	s.state = stateDraining
	s.mu.Unlock()

	close(s.stopLoop)
	<-s.loopDone
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped, all executions drained")
	case <-time.After(s.grace):
		s.log.Warn("scheduler stopped, grace elapsed with executions still running")
	}

	s.mu.Lock()
	s.state = stateStopped
	s.mu.Unlock()
}
