package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"StockSentry/internal/config"
	"StockSentry/internal/model"
	"StockSentry/internal/source"
	"StockSentry/internal/store"
	"StockSentry/internal/task"
)

// Pipeline fetches and persists the latest daily bar for every symbol in
// the active universe plus the configured market indices, isolating
// per-symbol failures and producing one aggregated result per run.
type Pipeline struct {
	fetcher source.Fetcher
	store   store.Store
	log     *logrus.Logger

	maxRetries   int
	retryDelay   time.Duration
	requestDelay time.Duration
	indices      []string
}

// NewPipeline wires a pipeline from configuration.
func NewPipeline(fetcher source.Fetcher, st store.Store, cfg *config.Config, log *logrus.Logger) *Pipeline {
	return &Pipeline{
		fetcher:      fetcher,
		store:        st,
		log:          log,
		maxRetries:   cfg.DataSource.MaxRetries,
		retryDelay:   cfg.DataSource.RetryDelay.Std(),
		requestDelay: cfg.DataSource.RequestDelay.Std(),
		indices:      cfg.Universe.Indices,
	}
}

// RunDaily syncs every active symbol and index for the given trade date.
// It returns the aggregated result and the codes whose bars were updated,
// so indicator recomputation can target exactly the changed symbols.
// Re-running the same date is idempotent: bars are upserted by key.
func (p *Pipeline) RunDaily(ctx context.Context, date string) (task.Result, []string) {
	universe, err := p.store.Universe()
	if err != nil {
		return task.Failure(fmt.Errorf("load universe: %w", err)), nil
	}
	if len(universe) == 0 {
		return task.Failure(errors.New("universe is empty, nothing to sync")), nil
	}

	var (
		changed []string
		errs    []string
		result  task.Result
	)

	for _, sym := range universe {
		if ctx.Err() != nil {
			errs = append(errs, "run cancelled")
			break
		}
		result.Attempted++

		bar, err := p.fetchBarWithRetry(ctx, sym.Code, date)
		if err != nil {
			result.Failed++
			errs = append(errs, fmt.Sprintf("%s: %v", sym.Code, err))
			p.log.WithError(err).WithField("symbol", sym.Code).Warn("symbol sync failed")
		} else {
			if err := p.store.UpsertDailyBar(bar); err != nil {
				// Store failures are fatal to the whole run, not
				// isolated like adapter failures.
				result.Failed++
				return fatal(result, append(errs, fmt.Sprintf("store write for %s: %v", sym.Code, err))), changed
			}
			result.Succeeded++
			changed = append(changed, sym.Code)
		}

		// Inter-request delay regardless of outcome, per upstream usage policy.
		if sleep(ctx, p.requestDelay) != nil {
			break
		}
	}

	for _, code := range p.indices {
		if ctx.Err() != nil {
			break
		}
		result.Attempted++

		idx, err := p.fetchIndexWithRetry(ctx, code, date)
		if err != nil {
			result.Failed++
			errs = append(errs, fmt.Sprintf("index %s: %v", code, err))
			p.log.WithError(err).WithField("index", code).Warn("index sync failed")
		} else {
			if err := p.store.UpsertIndexBar(idx); err != nil {
				result.Failed++
				return fatal(result, append(errs, fmt.Sprintf("store write for index %s: %v", code, err))), changed
			}
			result.Succeeded++
		}

		if sleep(ctx, p.requestDelay) != nil {
			break
		}
	}

	return p.finish(result, errs), changed
}

// SyncUniverse refreshes the symbol table from the upstream listing.
// Symbols are only inserted or updated, never deleted; a delisting shows
// up as a status change.
func (p *Pipeline) SyncUniverse(ctx context.Context) task.Result {
	var symbols []model.Symbol
	err := p.withRetry(ctx, "universe", func() error {
		var ferr error
		symbols, ferr = p.fetcher.FetchUniverse(ctx)
		return ferr
	})
	if err != nil {
		return task.Failure(fmt.Errorf("fetch universe: %w", err))
	}
	if len(symbols) == 0 {
		return task.Failure(errors.New("upstream returned an empty symbol list"))
	}

	if err := p.store.UpsertSymbols(symbols); err != nil {
		return task.Failure(fmt.Errorf("store universe: %w", err))
	}

	p.log.WithField("symbols", len(symbols)).Info("universe refreshed")
	return task.Result{
		Outcome:   model.OutcomeSuccess,
		Attempted: len(symbols),
		Succeeded: len(symbols),
	}
}

func (p *Pipeline) fetchBarWithRetry(ctx context.Context, symbol, date string) (*model.DailyBar, error) {
	var bar *model.DailyBar
	err := p.withRetry(ctx, symbol, func() error {
		var ferr error
		bar, ferr = p.fetcher.FetchDailyBar(ctx, symbol, date)
		return ferr
	})
	return bar, err
}

func (p *Pipeline) fetchIndexWithRetry(ctx context.Context, code, date string) (*model.IndexBar, error) {
	var idx *model.IndexBar
	err := p.withRetry(ctx, code, func() error {
		var ferr error
		idx, ferr = p.fetcher.FetchIndex(ctx, code, date)
		return ferr
	})
	return idx, err
}

// withRetry runs fn up to the attempt budget with a fixed delay between
// attempts. Only transient-external failures are retried; a malformed
// response fails immediately as a data error.
func (p *Pipeline) withRetry(ctx context.Context, key string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !source.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt < p.maxRetries {
			p.log.WithError(lastErr).WithFields(logrus.Fields{
				"key": key, "attempt": attempt,
			}).Debug("transient fetch failure, retrying")
			if err := sleep(ctx, p.retryDelay); err != nil {
				return lastErr
			}
		}
	}
	return fmt.Errorf("exhausted %d attempts: %w", p.maxRetries, lastErr)
}

// finish derives the run outcome deterministically from the counters.
// A run cut short by cancellation with partial progress never reports
// full success.
func (p *Pipeline) finish(result task.Result, errs []string) task.Result {
	switch {
	case result.Succeeded == 0:
		result.Outcome = model.OutcomeFailure
	case result.Failed > 0 || len(errs) > 0:
		result.Outcome = model.OutcomePartialFailure
	default:
		result.Outcome = model.OutcomeSuccess
	}
	if len(errs) > 0 {
		result.Err = errors.New(strings.Join(errs, "; "))
	}
	return result
}

// fatal stamps a run as failed regardless of counters, used for store
// errors that abort the batch.
func fatal(result task.Result, errs []string) task.Result {
	result.Outcome = model.OutcomeFailure
	result.Err = errors.New(strings.Join(errs, "; "))
	return result
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
