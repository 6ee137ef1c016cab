package indicator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/sirupsen/logrus"

	"StockSentry/internal/config"
	"StockSentry/internal/model"
	"StockSentry/internal/store"
	"StockSentry/internal/task"
)

// Configured indicator set. The longest lookback bounds how far back the
// engine reads bars when recomputing.
var (
	smaPeriods = []int{5, 10, 20, 60}
	emaPeriods = []int{12, 26}
)

const (
	rsiPeriod   = 14
	maxLookback = 60

	macdFast, macdSlow, macdSignal = 12, 26, 9
)

// Engine recomputes derived indicator values for symbols whose bar data
// changed. It reads DailyBar only and writes IndicatorRow only.
type Engine struct {
	store         store.Store
	log           *logrus.Logger
	recomputeDays int
}

// NewEngine wires an engine from configuration.
func NewEngine(st store.Store, cfg *config.Config, log *logrus.Logger) *Engine {
	return &Engine{store: st, log: log, recomputeDays: cfg.Indicators.RecomputeDays}
}

// Recompute refreshes indicator rows for the given symbols over the
// trailing recompute window ending at asOf. A symbol with less history
// than an indicator's lookback simply gets no row for that indicator;
// short history is not an error.
func (e *Engine) Recompute(ctx context.Context, symbols []string, asOf string) task.Result {
	asOfDay, err := time.Parse(model.DateLayout, asOf)
	if err != nil {
		return task.Failure(fmt.Errorf("invalid as-of date %q: %w", asOf, err))
	}

	// Read enough history to cover the longest lookback across weekends
	// and holiday gaps, plus the recompute window itself.
	readFrom := model.DateOf(asOfDay.AddDate(0, 0, -(2*maxLookback + e.recomputeDays)))
	emitFrom := model.DateOf(asOfDay.AddDate(0, 0, -(e.recomputeDays - 1)))

	var result task.Result
	var errs []string

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			errs = append(errs, "recompute cancelled")
			break
		}
		result.Attempted++

		bars, err := e.store.GetBars(symbol, readFrom, asOf)
		if err != nil {
			return fatal(result, fmt.Errorf("read bars for %s: %w", symbol, err))
		}

		rows := e.computeRows(symbol, bars, emitFrom)
		for _, row := range rows {
			if err := e.store.UpsertIndicator(&row); err != nil {
				return fatal(result, fmt.Errorf("write %s for %s: %w", row.Name, symbol, err))
			}
		}
		result.Succeeded++

		e.log.WithFields(logrus.Fields{
			"symbol": symbol, "bars": len(bars), "rows": len(rows),
		}).Debug("indicators recomputed")
	}

	switch {
	case result.Succeeded == 0 && (result.Attempted > 0 || len(errs) > 0):
		result.Outcome = model.OutcomeFailure
	case result.Succeeded < result.Attempted || len(errs) > 0:
		result.Outcome = model.OutcomePartialFailure
	default:
		result.Outcome = model.OutcomeSuccess
	}
	if len(errs) > 0 {
		result.Err = errors.New(strings.Join(errs, "; "))
	}
	return result
}

// computeRows evaluates every configured indicator over the bar series
// and keeps the values falling inside the emission window. Series are
// right-aligned: an indicator's warm-up prefix produces no output, so a
// value only exists where the full lookback of bars exists.
func (e *Engine) computeRows(symbol string, bars []model.DailyBar, emitFrom string) []model.IndicatorRow {
	if len(bars) == 0 {
		return nil
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	var rows []model.IndicatorRow
	emit := func(name string, values []float64) {
		offset := len(bars) - len(values)
		if offset < 0 {
			return
		}
		for i, v := range values {
			date := bars[i+offset].Date
			if date >= emitFrom {
				rows = append(rows, model.IndicatorRow{Symbol: symbol, Date: date, Name: name, Value: v})
			}
		}
	}

	for _, period := range smaPeriods {
		if len(closes) < period {
			continue
		}
		sma := trend.NewSmaWithPeriod[float64](period)
		emit(fmt.Sprintf("SMA_%d", period), helper.ChanToSlice(sma.Compute(helper.SliceToChan(closes))))
	}

	for _, period := range emaPeriods {
		if len(closes) < period {
			continue
		}
		ema := trend.NewEmaWithPeriod[float64](period)
		emit(fmt.Sprintf("EMA_%d", period), helper.ChanToSlice(ema.Compute(helper.SliceToChan(closes))))
	}

	if len(closes) >= rsiPeriod+1 {
		rsi := momentum.NewRsiWithPeriod[float64](rsiPeriod)
		emit(fmt.Sprintf("RSI_%d", rsiPeriod), helper.ChanToSlice(rsi.Compute(helper.SliceToChan(closes))))
	}

	if len(closes) >= macdSlow+macdSignal {
		macd := trend.NewMacdWithPeriod[float64](macdFast, macdSlow, macdSignal)
		lineCh, signalCh := macd.Compute(helper.SliceToChan(closes))
		// Both outputs feed from one duplicated unbuffered source, so
		// draining one to completion before touching the other stalls
		// the producer. Drain them concurrently.
		signalDone := make(chan []float64, 1)
		go func() { signalDone <- helper.ChanToSlice(signalCh) }()
		line := helper.ChanToSlice(lineCh)
		signal := <-signalDone
		emit("MACD", line)
		emit("MACD_SIGNAL", signal)
	}

	return rows
}

func fatal(result task.Result, err error) task.Result {
	result.Outcome = model.OutcomeFailure
	result.Err = err
	return result
}
