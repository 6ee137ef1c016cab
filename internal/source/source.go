package source

import (
	"context"

	"StockSentry/internal/model"
)

// Fetcher defines the interface for fetching market data from the
// upstream provider. Implementations may fail per call; callers decide
// retry policy via IsRetryable.
type Fetcher interface {
	FetchDailyBar(ctx context.Context, symbol, date string) (*model.DailyBar, error)
	FetchIndex(ctx context.Context, code, date string) (*model.IndexBar, error)
	FetchUniverse(ctx context.Context) ([]model.Symbol, error)
	Name() string
}
