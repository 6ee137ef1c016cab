package model

import "time"

// DateLayout is the canonical trade-date format used as part of storage keys.
const DateLayout = "2006-01-02"

// DateOf formats a timestamp as a trade date in the local calendar.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}

// Symbol status values. Delisted symbols stay in the store with the flag set.
const (
	StatusActive   = "active"
	StatusDelisted = "delisted"
)

// Symbol identifies one tradable instrument in the universe.
type Symbol struct {
	Code     string
	Name     string
	Market   string
	Industry string
	Status   string
}

// DailyBar is one symbol's OHLCV row for one trading date.
// Unique by (Symbol, Date); written only by the sync pipeline.
type DailyBar struct {
	Symbol   string
	Date     string
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Turnover float64
}

// IndicatorRow is one computed indicator value, unique by (Symbol, Date, Name).
// Derived data: written only by the indicator engine, never hand-edited.
type IndicatorRow struct {
	Symbol string
	Date   string
	Name   string
	Value  float64
}

// IndexBar is one broad market index value for one trading date,
// unique by (Code, Date).
type IndexBar struct {
	Code   string
	Date   string
	Value  float64
	Change float64
}
