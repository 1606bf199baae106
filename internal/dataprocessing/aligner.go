package dataprocessing

import (
	"math"
	"sort"
	"time"

	"mdbundle/internal/calendar"
	apperrors "mdbundle/internal/errors"
	"mdbundle/pkg/contracts/domain"
)

// Column indexes of the OHLCV frame
const (
	colOpen = iota
	colHigh
	colLow
	colClose
	colVolume
	numColumns
)

// AlignOptions configures gap filling
type AlignOptions struct {
	// ZeroFillVolume reports volume 0 on sessions with no observed row
	// instead of carrying the neighbouring row's volume.
	ZeroFillVolume bool
}

// Aligner reindexes raw per-symbol rows onto calendar sessions
type Aligner struct {
	opts AlignOptions
}

// NewAligner creates a new aligner
func NewAligner(opts AlignOptions) *Aligner {
	return &Aligner{opts: opts}
}

// AlignStats describes one Align call
type AlignStats struct {
	Observed     int // window sessions with a raw row
	ForwardFill  int
	BackwardFill int
	OutOfWindow  int // raw rows whose date is not a window session
}

// Filled returns the number of sessions carried from a neighbouring row
func (s AlignStats) Filled() int {
	return s.ForwardFill + s.BackwardFill
}

// Align builds the series of one symbol over window.
//
// Each column is forward-filled from the most recent valid value, then
// leading gaps are back-filled from the earliest valid value. Sessions that
// still lack any of the five fields are dropped; since a column is either
// fully recoverable or has no valid value at all, the result covers the
// whole window or is empty. An empty result returns an EmptySeries error.
func (a *Aligner) Align(symbol string, raw []domain.RawBar, window []time.Time) (domain.AlignedSeries, error) {
	series, _, err := a.AlignWithStats(symbol, raw, window)
	return series, err
}

// AlignWithStats is Align plus fill statistics
func (a *Aligner) AlignWithStats(symbol string, raw []domain.RawBar, window []time.Time) (domain.AlignedSeries, AlignStats, error) {
	var stats AlignStats
	series := domain.AlignedSeries{Symbol: symbol}

	if len(window) == 0 {
		return series, stats, apperrors.NewEmptySeriesError(symbol)
	}

	position := make(map[time.Time]int, len(window))
	for i, s := range window {
		position[calendar.Normalize(s)] = i
	}

	frame := make([][numColumns]float64, len(window))
	for i := range frame {
		for c := range frame[i] {
			frame[i][c] = math.NaN()
		}
	}
	observed := make([]bool, len(window))

	// later rows win, matching keep-last dedupe
	for _, row := range raw {
		i, ok := position[calendar.Normalize(row.Date)]
		if !ok {
			stats.OutOfWindow++
			continue
		}
		frame[i] = sanitize(row.OHLCV())
		observed[i] = true
	}

	forward := make([]bool, len(window))
	backward := make([]bool, len(window))
	for c := 0; c < numColumns; c++ {
		last := math.NaN()
		for i := range frame {
			if math.IsNaN(frame[i][c]) {
				if !math.IsNaN(last) {
					frame[i][c] = last
					forward[i] = true
				}
				continue
			}
			last = frame[i][c]
		}

		next := math.NaN()
		for i := len(frame) - 1; i >= 0; i-- {
			if math.IsNaN(frame[i][c]) {
				if !math.IsNaN(next) {
					frame[i][c] = next
					backward[i] = true
				}
				continue
			}
			next = frame[i][c]
		}
	}

	bars := make([]domain.Bar, 0, len(window))
	for i, values := range frame {
		if hasNaN(values) {
			continue
		}
		if observed[i] {
			stats.Observed++
		}
		if !observed[i] {
			if forward[i] {
				stats.ForwardFill++
			} else if backward[i] {
				stats.BackwardFill++
			}
		}

		bar := domain.Bar{
			Session: calendar.Normalize(window[i]),
			Open:    values[colOpen],
			High:    values[colHigh],
			Low:     values[colLow],
			Close:   values[colClose],
			Volume:  values[colVolume],
			Filled:  !observed[i],
		}
		if bar.Filled && a.opts.ZeroFillVolume {
			bar.Volume = 0
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return series, stats, apperrors.NewEmptySeriesError(symbol)
	}
	series.Bars = bars
	return series, stats, nil
}

// WindowFor returns the sessions of cal between the earliest and latest date
// of raw, inclusive.
func WindowFor(cal *calendar.Calendar, raw []domain.RawBar) []time.Time {
	if len(raw) == 0 {
		return nil
	}
	first, last := raw[0].Date, raw[0].Date
	for _, row := range raw[1:] {
		if row.Date.Before(first) {
			first = row.Date
		}
		if row.Date.After(last) {
			last = row.Date
		}
	}
	return cal.Window(first, last)
}

// sanitize maps values that can never be valid to NaN so the fill passes
// treat them as gaps.
func sanitize(values [numColumns]float64) [numColumns]float64 {
	for c, v := range values {
		if math.IsInf(v, 0) {
			values[c] = math.NaN()
		}
	}
	if values[colVolume] < 0 {
		values[colVolume] = math.NaN()
	}
	return values
}

func hasNaN(values [numColumns]float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// SortRawBars orders rows by date, keeping the input order of equal dates
func SortRawBars(rows []domain.RawBar) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Date.Before(rows[j].Date)
	})
}
