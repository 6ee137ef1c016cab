package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockSentry/internal/config"
	"StockSentry/internal/model"
)

type fakePinger struct{ err error }

func (p *fakePinger) HealthPing(context.Context) error { return p.err }

func testMonitor(t *testing.T, pinger Pinger, mutate func(*config.Config)) *Monitor {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	cfg := &config.Config{}
	cfg.Health.MinFreeDiskMB = 1 // practically always satisfied
	cfg.Health.MaxLogDirMB = 100
	cfg.Health.LogDir = filepath.Join(t.TempDir(), "absent")
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "sentry.db")
	if mutate != nil {
		mutate(cfg)
	}
	return NewMonitor(pinger, cfg, log)
}

func findCheck(t *testing.T, rep Report, name string) Check {
	t.Helper()
	for _, c := range rep.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no %q check in report", name)
	return Check{}
}

func TestCheckHealthy(t *testing.T) {
	m := testMonitor(t, &fakePinger{}, nil)
	rep := m.Check(context.Background())

	assert.Equal(t, StatusHealthy, rep.Status)
	assert.True(t, findCheck(t, rep, "store").OK)
	assert.True(t, findCheck(t, rep, "logs").OK)
}

func TestCheckStoreDownIsUnhealthy(t *testing.T) {
	m := testMonitor(t, &fakePinger{err: errors.New("database is locked")}, nil)
	rep := m.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, rep.Status)
	store := findCheck(t, rep, "store")
	assert.False(t, store.OK)
	assert.Contains(t, store.Detail, "locked")
}

func TestCheckDiskProbesDataDirectory(t *testing.T) {
	m := testMonitor(t, &fakePinger{}, func(cfg *config.Config) {
		cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "no-such-dir", "sentry.db")
	})
	rep := m.Check(context.Background())

	assert.Equal(t, StatusDegraded, rep.Status)
	assert.Contains(t, findCheck(t, rep, "disk").Detail, "stat failed")
}

func TestCheckLogDirOverCapDegrades(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.log"), make([]byte, 2<<20), 0o644))

	m := testMonitor(t, &fakePinger{}, func(cfg *config.Config) {
		cfg.Health.LogDir = dir
		cfg.Health.MaxLogDirMB = 1
	})
	rep := m.Check(context.Background())

	assert.Equal(t, StatusDegraded, rep.Status)
	assert.False(t, findCheck(t, rep, "logs").OK)
}

func TestCheckStoreDownDominatesDegraded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.log"), make([]byte, 2<<20), 0o644))

	m := testMonitor(t, &fakePinger{err: errors.New("io error")}, func(cfg *config.Config) {
		cfg.Health.LogDir = dir
		cfg.Health.MaxLogDirMB = 1
	})
	rep := m.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, rep.Status)
}

func TestTaskResultMapping(t *testing.T) {
	healthy := Report{Status: StatusHealthy, Checks: []Check{{Name: "store", OK: true}}}
	res := TaskResult(healthy)
	assert.Equal(t, model.OutcomeSuccess, res.Outcome)
	assert.NoError(t, res.Err)

	degraded := Report{Status: StatusDegraded, Checks: []Check{
		{Name: "store", OK: true},
		{Name: "disk", Detail: "10 MB free, watermark 500 MB"},
	}}
	res = TaskResult(degraded)
	assert.Equal(t, model.OutcomePartialFailure, res.Outcome)
	assert.Equal(t, 1, res.Failed)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "disk")

	unhealthy := Report{Status: StatusUnhealthy, Checks: []Check{
		{Name: "store", Detail: "unreachable"},
	}}
	res = TaskResult(unhealthy)
	assert.Equal(t, model.OutcomeFailure, res.Outcome)
	assert.Error(t, res.Err)
}
