package health

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/sirupsen/logrus"

	"StockSentry/internal/config"
	"StockSentry/internal/model"
	"StockSentry/internal/task"
)

// Status summarizes a health report.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the outcome of a single probe.
type Check struct {
	Name   string
	OK     bool
	Detail string
}

// Report aggregates all probe outcomes. Status is unhealthy when the
// store is unreachable, degraded when a resource watermark is crossed,
// and healthy otherwise.
type Report struct {
	Status Status
	Checks []Check
}

// Pinger is the slice of the store the monitor depends on.
type Pinger interface {
	HealthPing(ctx context.Context) error
}

// Monitor probes the store and local resources. Check never panics and
// never returns an error; problems surface in the report.
type Monitor struct {
	store         Pinger
	log           *logrus.Logger
	minFreeDiskMB uint64
	maxLogDirMB   uint64
	logDir        string
	dataDir       string
}

func NewMonitor(store Pinger, cfg *config.Config, log *logrus.Logger) *Monitor {
	return &Monitor{
		store:         store,
		log:           log,
		minFreeDiskMB: cfg.Health.MinFreeDiskMB,
		maxLogDirMB:   cfg.Health.MaxLogDirMB,
		logDir:        cfg.Health.LogDir,
		dataDir:       filepath.Dir(cfg.Database.SQLitePath),
	}
}

// Check runs every probe and aggregates the report.
func (m *Monitor) Check(ctx context.Context) Report {
	var rep Report
	rep.Status = StatusHealthy

	if err := m.store.HealthPing(ctx); err != nil {
		rep.Status = StatusUnhealthy
		rep.Checks = append(rep.Checks, Check{Name: "store", Detail: err.Error()})
	} else {
		rep.Checks = append(rep.Checks, Check{Name: "store", OK: true})
	}

	rep.Checks = append(rep.Checks, m.checkDisk(&rep))
	rep.Checks = append(rep.Checks, m.checkLogDir(&rep))

	m.log.WithFields(logrus.Fields{"status": rep.Status}).Info("health check")
	return rep
}

// checkDisk probes the volume holding the database, the one that the
// pipeline's writes actually fill.
func (m *Monitor) checkDisk(rep *Report) Check {
	usage, err := disk.Usage(m.dataDir)
	if err != nil {
		rep.degrade()
		return Check{Name: "disk", Detail: fmt.Sprintf("stat failed: %v", err)}
	}
	freeMB := usage.Free / (1024 * 1024)
	if freeMB < m.minFreeDiskMB {
		rep.degrade()
		return Check{Name: "disk", Detail: fmt.Sprintf("%d MB free, watermark %d MB", freeMB, m.minFreeDiskMB)}
	}
	return Check{Name: "disk", OK: true, Detail: fmt.Sprintf("%d MB free", freeMB)}
}

func (m *Monitor) checkLogDir(rep *Report) Check {
	var total int64
	err := filepath.WalkDir(m.logDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	if os.IsNotExist(err) {
		// Nothing logged to disk yet.
		return Check{Name: "logs", OK: true, Detail: "log dir absent"}
	}
	if err != nil {
		rep.degrade()
		return Check{Name: "logs", Detail: fmt.Sprintf("walk failed: %v", err)}
	}
	sizeMB := uint64(total) / (1024 * 1024)
	if sizeMB > m.maxLogDirMB {
		rep.degrade()
		return Check{Name: "logs", Detail: fmt.Sprintf("%d MB used, cap %d MB", sizeMB, m.maxLogDirMB)}
	}
	return Check{Name: "logs", OK: true, Detail: fmt.Sprintf("%d MB used", sizeMB)}
}

// degrade lowers the status one notch without masking unhealthy.
func (r *Report) degrade() {
	if r.Status == StatusHealthy {
		r.Status = StatusDegraded
	}
}

// TaskResult maps a report onto a task outcome so scheduled health runs
// land in the run log with the right severity.
func TaskResult(rep Report) task.Result {
	res := task.Result{Attempted: len(rep.Checks)}
	var failing []string
	for _, c := range rep.Checks {
		if c.OK {
			res.Succeeded++
		} else {
			res.Failed++
			failing = append(failing, fmt.Sprintf("%s: %s", c.Name, c.Detail))
		}
	}
	switch rep.Status {
	case StatusUnhealthy:
		res.Outcome = model.OutcomeFailure
	case StatusDegraded:
		res.Outcome = model.OutcomePartialFailure
	default:
		res.Outcome = model.OutcomeSuccess
		return res
	}
	res.Err = fmt.Errorf("%s", strings.Join(failing, "; "))
	return res
}
