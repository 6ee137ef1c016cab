package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	stdsync "sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"StockSentry/internal/calendar"
	"StockSentry/internal/config"
	"StockSentry/internal/health"
	"StockSentry/internal/indicator"
	"StockSentry/internal/model"
	"StockSentry/internal/source"
	"StockSentry/internal/store"
	"StockSentry/internal/sync"
	"StockSentry/internal/task"
)

// Run logs older than this are pruned by the cleanup task.
const runLogRetention = 30 * 24 * time.Hour

// App owns the full component graph and its lifecycle. Construction is
// fatal on store failure; everything after that degrades through run
// logs instead of crashing the process.
type App struct {
	cfg       *config.Config
	log       *logrus.Logger
	store     *store.SQLiteStore
	fetcher   source.Fetcher
	pipeline  *sync.Pipeline
	engine    *indicator.Engine
	monitor   *health.Monitor
	scheduler *task.Scheduler

	shutdown stdsync.Once
}

// New builds the component graph and registers the task catalog.
func New(cfg *config.Config, log *logrus.Logger) (*App, error) {
	st, err := store.NewSQLiteStore(cfg.Database.SQLitePath, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var fetcher source.Fetcher
	if cfg.DataSource.BaseURL != "" {
		fetcher = source.NewRESTFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.DataSource.Timeout.Std())
	} else {
		fetcher = &source.MockFetcher{}
	}
	log.WithField("source", fetcher.Name()).Info("data source selected")

	a := &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		fetcher:   fetcher,
		pipeline:  sync.NewPipeline(fetcher, st, cfg, log),
		engine:    indicator.NewEngine(st, cfg, log),
		monitor:   health.NewMonitor(st, cfg, log),
		scheduler: task.NewScheduler(st, log, cfg.Scheduler.Tick.Std(), cfg.Scheduler.Grace.Std()),
	}

	if err := a.seedUniverse(); err != nil {
		st.Close()
		return nil, err
	}
	if err := a.registerTasks(); err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

// seedUniverse populates an empty symbol table from config so a fresh
// deployment has something to sync before the first weekly refresh.
func (a *App) seedUniverse() error {
	syms, err := a.store.Universe()
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}
	if len(syms) > 0 || len(a.cfg.Universe.Seed) == 0 {
		return nil
	}

	seed := make([]model.Symbol, len(a.cfg.Universe.Seed))
	for i, code := range a.cfg.Universe.Seed {
		seed[i] = model.Symbol{Code: code, Name: code, Status: model.StatusActive}
	}
	if err := a.store.UpsertSymbols(seed); err != nil {
		return fmt.Errorf("seed universe: %w", err)
	}
	a.log.WithField("symbols", len(seed)).Info("universe seeded from config")
	return nil
}

func (a *App) registerTasks() error {
	gate := calendar.NewGate(a.cfg.Calendar.Holidays)

	catalog := []*task.Task{
		{
			Name:    "daily_sync",
			Trigger: task.DailyAt(15, 30),
			Gate:    gate.IsTradingDay,
			Timeout: a.cfg.Timeouts.Sync.Std(),
			Run:     a.runDailySync,
		},
		{
			Name:    "indicator_refresh",
			Trigger: task.EveryBetween(time.Hour, 9, 0, 15, 0),
			Gate:    gate.IsTradingDay,
			Timeout: a.cfg.Timeouts.Indicators.Std(),
			Run:     a.runIndicatorRefresh,
		},
		{
			Name:    "universe_sync",
			Trigger: task.WeeklyAt(time.Sunday, 20, 0),
			Timeout: a.cfg.Timeouts.Sync.Std(),
			Run:     a.pipeline.SyncUniverse,
		},
		{
			Name:    "health_check",
			Trigger: task.Every(30 * time.Minute),
			Timeout: a.cfg.Timeouts.Health.Std(),
			Run:     a.runHealthCheck,
		},
		{
			Name:    "log_cleanup",
			Trigger: task.DailyAt(2, 0),
			Timeout: a.cfg.Timeouts.Default.Std(),
			Run:     a.runLogCleanup,
		},
	}

	for _, t := range catalog {
		if err := a.scheduler.Register(t); err != nil {
			return fmt.Errorf("register %s: %w", t.Name, err)
		}
	}
	return nil
}

// runDailySync pulls today's bars, then recomputes indicators for the
// symbols the run touched. A recompute problem downgrades an otherwise
// clean sync to partial failure rather than hiding it.
func (a *App) runDailySync(ctx context.Context) task.Result {
	today := model.DateOf(time.Now())
	res, changed := a.pipeline.RunDaily(ctx, today)
	if res.Outcome == model.OutcomeFailure || len(changed) == 0 {
		return res
	}

	ind := a.engine.Recompute(ctx, changed, today)
	if ind.Outcome != model.OutcomeSuccess {
		if res.Outcome == model.OutcomeSuccess {
			res.Outcome = model.OutcomePartialFailure
		}
		if res.Err == nil {
			res.Err = fmt.Errorf("indicator recompute: %w", ind.Err)
		}
	}
	return res
}

func (a *App) runIndicatorRefresh(ctx context.Context) task.Result {
	syms, err := a.store.Universe()
	if err != nil {
		return task.Failure(fmt.Errorf("load universe: %w", err))
	}
	codes := make([]string, len(syms))
	for i, s := range syms {
		codes[i] = s.Code
	}
	return a.engine.Recompute(ctx, codes, model.DateOf(time.Now()))
}

func (a *App) runHealthCheck(ctx context.Context) task.Result {
	return health.TaskResult(a.monitor.Check(ctx))
}

func (a *App) runLogCleanup(ctx context.Context) task.Result {
	pruned, err := a.store.PruneRunLogs(time.Now().Add(-runLogRetention))
	if err != nil {
		return task.Failure(fmt.Errorf("prune run logs: %w", err))
	}
	a.log.WithField("pruned", pruned).Info("run logs pruned")
	return task.Result{Outcome: model.OutcomeSuccess, Attempted: int(pruned), Succeeded: int(pruned)}
}

// Run starts the scheduler and blocks until the context is cancelled or
// a termination signal arrives, then shuts down exactly once.
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start()
	a.log.Info("supervisor running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.log.WithField("signal", sig.String()).Info("shutdown signal received")
	case <-ctx.Done():
		a.log.Info("context cancelled, shutting down")
	}

	a.Shutdown()
	return nil
}

// RunTask executes one registered task immediately through the normal
// executor so the run is logged like any scheduled firing.
func (a *App) RunTask(name string) error {
	return a.scheduler.RunNow(name)
}

// TaskStatus describes one registered task for the status command.
type TaskStatus struct {
	Name    string
	NextAt  time.Time
	LastRun *model.RunLog
}

// Status reports next fire times and the latest run log per task.
func (a *App) Status() ([]TaskStatus, error) {
	next := a.scheduler.NextFireTimes()
	out := make([]TaskStatus, 0, len(next))
	for name, at := range next {
		last, err := a.store.LastRunLog(name)
		if err != nil {
			return nil, fmt.Errorf("last run of %s: %w", name, err)
		}
		out = append(out, TaskStatus{Name: name, NextAt: at, LastRun: last})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Shutdown stops the scheduler with the configured grace period and
// closes the store. Safe to call more than once.
func (a *App) Shutdown() {
	a.shutdown.Do(func() {
		a.scheduler.Stop()
		if err := a.store.Close(); err != nil {
			a.log.WithError(err).Warn("store close")
		}
		a.log.Info("supervisor stopped")
	})
}
