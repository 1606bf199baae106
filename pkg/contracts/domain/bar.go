package domain

import (
	"math"
	"time"
)

// RawBar is one vendor feed row after schema mapping. Missing numeric cells
// are NaN.
type RawBar struct {
	Date   time.Time `json:"date"`
	Ticker string    `json:"ticker"`
	Name   string    `json:"name,omitempty"`
	// Exchange of the feed the row came from
	Exchange string `json:"exchange,omitempty"`

	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`

	// Optional corporate-action columns
	SplitRatio      float64 `json:"split_ratio,omitempty"`
	DividendAmount  float64 `json:"dividend_amount,omitempty"`
	AdjustedClose   float64 `json:"adjusted_close,omitempty"`
	UnadjustedClose float64 `json:"unadjusted_close,omitempty"`
}

// NewRawBar returns a row with every numeric field marked missing.
func NewRawBar(date time.Time, ticker string) RawBar {
	nan := math.NaN()
	return RawBar{
		Date:            date,
		Ticker:          ticker,
		Open:            nan,
		High:            nan,
		Low:             nan,
		Close:           nan,
		Volume:          nan,
		SplitRatio:      nan,
		DividendAmount:  nan,
		AdjustedClose:   nan,
		UnadjustedClose: nan,
	}
}

// OHLCV returns the five price/volume fields in column order.
func (r RawBar) OHLCV() [5]float64 {
	return [5]float64{r.Open, r.High, r.Low, r.Close, r.Volume}
}

// Bar is one aligned session of a symbol. Filled is true when the session was
// carried from a neighbouring row rather than observed.
type Bar struct {
	Session time.Time `json:"session"`
	Open    float64   `json:"open"`
	High    float64   `json:"high"`
	Low     float64   `json:"low"`
	Close   float64   `json:"close"`
	Volume  float64   `json:"volume"`
	Filled  bool      `json:"filled"`
}

// AlignedSeries is a symbol's bars on a contiguous run of calendar sessions.
type AlignedSeries struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// Len returns the number of aligned sessions
func (s AlignedSeries) Len() int {
	return len(s.Bars)
}

// Sessions returns the session index of the series.
func (s AlignedSeries) Sessions() []time.Time {
	out := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Session
	}
	return out
}

// SymbolBars pairs an aligned series with its registry sid for the bar store.
type SymbolBars struct {
	SID    int64         `json:"sid"`
	Series AlignedSeries `json:"series"`
}
