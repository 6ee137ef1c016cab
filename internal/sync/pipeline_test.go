package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockSentry/internal/config"
	"StockSentry/internal/model"
	"StockSentry/internal/source"
	"StockSentry/internal/store"
)

const testDate = "2025-03-05"

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.DataSource.MaxRetries = 3
	cfg.DataSource.RetryDelay = config.Duration(time.Millisecond)
	cfg.DataSource.RequestDelay = 0
	cfg.Universe.Indices = nil
	return cfg
}

func newTestStore(t *testing.T, codes ...string) store.Store {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sync.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	for _, code := range codes {
		require.NoError(t, st.UpsertSymbol(&model.Symbol{Code: code, Name: code, Status: model.StatusActive}))
	}
	return st
}

func newTestPipeline(t *testing.T, fetcher source.Fetcher, st store.Store, cfg *config.Config) *Pipeline {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewPipeline(fetcher, st, cfg, log)
}

func TestRunDailyIsIdempotent(t *testing.T) {
	st := newTestStore(t, "600000")
	fetcher := &source.MockFetcher{
		Bars: map[string]*model.DailyBar{
			"600000": {Symbol: "600000", Date: testDate, Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1e6},
		},
	}
	p := newTestPipeline(t, fetcher, st, testConfig())

	res, changed := p.RunDaily(context.Background(), testDate)
	require.Equal(t, model.OutcomeSuccess, res.Outcome)
	assert.Equal(t, []string{"600000"}, changed)

	// Second run with a corrected close overwrites, never duplicates.
	fetcher.Bars["600000"].Close = 10.7
	res, _ = p.RunDaily(context.Background(), testDate)
	require.Equal(t, model.OutcomeSuccess, res.Outcome)

	bars, err := st.GetBars("600000", testDate, testDate)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 10.7, bars[0].Close)
}

func TestRunDailyIsolatesPartialFailures(t *testing.T) {
	codes := []string{"600001", "600002", "600003", "600004", "600005"}
	st := newTestStore(t, codes...)
	fetcher := &source.MockFetcher{
		FailTimes: map[string]int{
			"600002": source.AlwaysFail,
			"600004": source.AlwaysFail,
		},
	}
	p := newTestPipeline(t, fetcher, st, testConfig())

	res, changed := p.RunDaily(context.Background(), testDate)

	assert.Equal(t, model.OutcomePartialFailure, res.Outcome)
	assert.Equal(t, 5, res.Attempted)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.ElementsMatch(t, []string{"600001", "600003", "600005"}, changed)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "600002")

	for _, code := range []string{"600001", "600003", "600005"} {
		bars, err := st.GetBars(code, testDate, testDate)
		require.NoError(t, err)
		assert.Len(t, bars, 1, "bar for %s", code)
	}
}

func TestRetryBudget(t *testing.T) {
	st := newTestStore(t, "600010", "600011")
	fetcher := &source.MockFetcher{
		FailTimes: map[string]int{
			"600010": 2,                 // fails twice, succeeds on the 3rd
			"600011": source.AlwaysFail, // never succeeds
		},
	}
	p := newTestPipeline(t, fetcher, st, testConfig())

	res, _ := p.RunDaily(context.Background(), testDate)

	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 3, fetcher.Calls("600010"), "succeeds on the final attempt")
	assert.Equal(t, 3, fetcher.Calls("600011"), "no 4th attempt after budget exhausted")
}

func TestMalformedResponseNotRetried(t *testing.T) {
	st := newTestStore(t, "600020", "600021")
	fetcher := &source.MockFetcher{
		Malformed: map[string]bool{"600020": true},
	}
	p := newTestPipeline(t, fetcher, st, testConfig())

	res, _ := p.RunDaily(context.Background(), testDate)

	assert.Equal(t, model.OutcomePartialFailure, res.Outcome)
	assert.Equal(t, 1, fetcher.Calls("600020"), "data errors are not retried")
	assert.Equal(t, 1, res.Succeeded)
}

func TestEmptyUniverseIsStructuralFailure(t *testing.T) {
	st := newTestStore(t)
	p := newTestPipeline(t, &source.MockFetcher{}, st, testConfig())

	res, changed := p.RunDaily(context.Background(), testDate)

	assert.Equal(t, model.OutcomeFailure, res.Outcome)
	assert.Empty(t, changed)
	assert.Zero(t, res.Attempted)
}

func TestIndicesSyncedAfterSymbols(t *testing.T) {
	st := newTestStore(t, "600000")
	cfg := testConfig()
	cfg.Universe.Indices = []string{"000001"}
	fetcher := &source.MockFetcher{
		Indices: map[string]*model.IndexBar{
			"000001": {Code: "000001", Date: testDate, Value: 3300, Change: 0.8},
		},
	}
	p := newTestPipeline(t, fetcher, st, cfg)

	res, _ := p.RunDaily(context.Background(), testDate)

	assert.Equal(t, model.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 2, res.Attempted, "symbol plus index")
	assert.Equal(t, 1, fetcher.Calls("000001"))
}

func TestSyncUniverseRefreshesSymbols(t *testing.T) {
	st := newTestStore(t)
	fetcher := &source.MockFetcher{
		Symbols: []model.Symbol{
			{Code: "600000", Name: "Alpha", Market: "SH", Status: model.StatusActive},
			{Code: "000002", Name: "Beta", Market: "SZ", Status: model.StatusActive},
		},
	}
	p := newTestPipeline(t, fetcher, st, testConfig())

	res := p.SyncUniverse(context.Background())
	require.Equal(t, model.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 2, res.Succeeded)

	syms, err := st.Universe()
	require.NoError(t, err)
	assert.Len(t, syms, 2)
}

func TestRunDailyStopsBetweenSymbolsOnCancel(t *testing.T) {
	st := newTestStore(t, "600001", "600002", "600003")
	fetcher := &source.MockFetcher{}
	p := newTestPipeline(t, fetcher, st, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, changed := p.RunDaily(ctx, testDate)

	assert.Equal(t, model.OutcomeFailure, res.Outcome)
	assert.Empty(t, changed)
	assert.Zero(t, fetcher.Calls("600001"), "no adapter calls after cancellation")
}
