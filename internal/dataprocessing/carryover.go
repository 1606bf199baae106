package dataprocessing

import (
	"fmt"
	"time"

	"mdbundle/internal/calendar"
	apperrors "mdbundle/internal/errors"
	"mdbundle/pkg/contracts/domain"
)

// CarryOver produces the daily bar of symbol for a single target session,
// carrying the most recent row on or before target forward when target
// itself was not observed. A carried bar always has volume 0.
//
// Targets that fall on a calendar holiday or outside the calendar span are
// rejected.
func CarryOver(symbol string, raw []domain.RawBar, cal *calendar.Calendar, target time.Time) (domain.Bar, error) {
	target = calendar.Normalize(target)
	if cal.IsHoliday(target) {
		return domain.Bar{}, apperrors.NewAppValidationError(
			fmt.Sprintf("carry-over target %s is a holiday", target.Format("2006-01-02")))
	}
	if !cal.Contains(target) {
		return domain.Bar{}, apperrors.NewAppValidationError(
			fmt.Sprintf("carry-over target %s is outside the calendar", target.Format("2006-01-02")))
	}

	var latest time.Time
	history := make([]domain.RawBar, 0, len(raw))
	for _, row := range raw {
		if row.Date.After(target) {
			continue
		}
		history = append(history, row)
		if row.Date.After(latest) {
			latest = row.Date
		}
	}
	if len(history) == 0 {
		return domain.Bar{}, apperrors.NewEmptySeriesError(symbol)
	}

	window := cal.Window(latest, target)
	series, err := NewAligner(AlignOptions{ZeroFillVolume: true}).Align(symbol, history, window)
	if err != nil {
		return domain.Bar{}, err
	}
	return series.Bars[len(series.Bars)-1], nil
}
