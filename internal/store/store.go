package store

import (
	"context"
	"time"

	"StockSentry/internal/model"
)

// Store is the durable keyed storage consumed by the pipeline, the
// indicator engine, and the health monitor. All upserts are keyed and
// idempotent; run logs are append-only.
type Store interface {
	UpsertSymbol(sym *model.Symbol) error
	UpsertSymbols(syms []model.Symbol) error
	Universe() ([]model.Symbol, error)

	UpsertDailyBar(bar *model.DailyBar) error
	GetBars(symbol, from, to string) ([]model.DailyBar, error)
	LatestBarDate(symbol string) (string, error)

	UpsertIndicator(row *model.IndicatorRow) error
	Indicators(symbol, from, to string) ([]model.IndicatorRow, error)
	UpsertIndexBar(idx *model.IndexBar) error

	AppendRunLog(rec *model.RunLog) error
	RunLogs(task string, limit int) ([]model.RunLog, error)
	LastRunLog(task string) (*model.RunLog, error)
	PruneRunLogs(olderThan time.Time) (int64, error)

	HealthPing(ctx context.Context) error
	Close() error
}
