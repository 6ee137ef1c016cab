package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"StockSentry/internal/model"
)

// AlwaysFail makes a scripted symbol fail every attempt.
const AlwaysFail = -1

// MockFetcher returns controllable fixed data for development and testing.
// Failures can be scripted per symbol: a positive count fails that many
// attempts with a transient error before succeeding, AlwaysFail never
// succeeds, and Malformed entries fail permanently with a data error.
type MockFetcher struct {
	mu sync.Mutex

	Bars      map[string]*model.DailyBar
	Indices   map[string]*model.IndexBar
	Symbols   []model.Symbol
	FailTimes map[string]int
	Malformed map[string]bool

	calls map[string]int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchDailyBar(_ context.Context, symbol, date string) (*model.DailyBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(symbol)

	if m.Malformed[symbol] {
		return nil, fmt.Errorf("%w: scripted for %s", ErrMalformed, symbol)
	}
	if n, ok := m.FailTimes[symbol]; ok {
		if n == AlwaysFail || m.calls[symbol] <= n {
			return nil, Transient("mock", errors.New("scripted network failure"))
		}
	}

	if bar, ok := m.Bars[symbol]; ok {
		b := *bar
		return &b, nil
	}
	return &model.DailyBar{
		Symbol: symbol,
		Date:   date,
		Open:   9.95, High: 10.1, Low: 9.9, Close: 10.0,
		Volume: 1_000_000, Turnover: 10_000_000,
	}, nil
}

func (m *MockFetcher) FetchIndex(_ context.Context, code, date string) (*model.IndexBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(code)

	if m.Malformed[code] {
		return nil, fmt.Errorf("%w: scripted for %s", ErrMalformed, code)
	}
	if n, ok := m.FailTimes[code]; ok {
		if n == AlwaysFail || m.calls[code] <= n {
			return nil, Transient("mock", errors.New("scripted network failure"))
		}
	}

	if idx, ok := m.Indices[code]; ok {
		i := *idx
		return &i, nil
	}
	return &model.IndexBar{Code: code, Date: date, Value: 3000, Change: 0.5}, nil
}

func (m *MockFetcher) FetchUniverse(_ context.Context) ([]model.Symbol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("_universe")
	return append([]model.Symbol(nil), m.Symbols...), nil
}

// Calls reports how many adapter calls were made for the given key.
func (m *MockFetcher) Calls(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}

func (m *MockFetcher) record(key string) {
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[key]++
}
