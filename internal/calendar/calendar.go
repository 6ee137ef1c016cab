package calendar

import (
	"time"

	"StockSentry/internal/model"
)

// Gate decides whether a calendar date is an eligible trading day.
// It is a pure predicate: weekends never trade, dates in the injected
// holiday set never trade, every other day does.
type Gate struct {
	holidays map[string]struct{}
}

// NewGate builds a gate from a static holiday list in YYYY-MM-DD form.
// Malformed entries are kept verbatim; they simply never match a real date.
func NewGate(holidays []string) *Gate {
	set := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		set[h] = struct{}{}
	}
	return &Gate{holidays: set}
}

// IsTradingDay reports whether t falls on a trading day.
// Total over any date, past or future.
func (g *Gate) IsTradingDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := g.holidays[model.DateOf(t)]
	return !holiday
}
