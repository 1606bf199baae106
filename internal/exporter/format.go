package exporter

import (
	"math"
	"strconv"
	"time"
)

// DateLayout is the date format of every bundle CSV
const DateLayout = "2006-01-02"

// FormatFloat formats a float64 value for CSV output using the shortest
// representation that round-trips, so rewriting a value never changes it.
// NaN is written as an empty cell.
func FormatFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	if f == 0 {
		// avoid "-0"
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FormatInt formats an int64 value for CSV output
func FormatInt(i int64) string {
	return strconv.FormatInt(i, 10)
}

// FormatDate formats a date for CSV output
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatOptionalDate formats a nullable date; nil is an empty cell.
func FormatOptionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatDate(*t)
}

// ParseFloat parses a CSV cell written by FormatFloat. An empty cell is NaN.
func ParseFloat(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// ParseOptionalDate parses a cell written by FormatOptionalDate.
func ParseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
