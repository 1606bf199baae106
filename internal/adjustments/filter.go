package adjustments

import (
	"errors"
	"time"

	apperrors "mdbundle/internal/errors"
	"mdbundle/pkg/contracts/domain"
)

// SymbolWindows resolves a sid to its registry record
type SymbolWindows interface {
	LookupSID(sid int64) (domain.SymbolRecord, error)
}

// Tally counts events dropped by Filter, per reason
type Tally struct {
	UnknownSymbol int `json:"unknown_symbol"`
	StaleWindow   int `json:"stale_window"`
	Inactive      int `json:"inactive"`
}

// Total returns the number of dropped events
func (t Tally) Total() int {
	return t.UnknownSymbol + t.StaleWindow + t.Inactive
}

// Add accumulates another tally
func (t *Tally) Add(o Tally) {
	t.UnknownSymbol += o.UnknownSymbol
	t.StaleWindow += o.StaleWindow
	t.Inactive += o.Inactive
}

// errInactive marks events of symbols excluded from this run
var errInactive = errors.New("symbol inactive in this run")

// Filter keeps the events whose sid is registered, whose date lies inside the
// symbol's [first_seen, last_seen] window, and, when active is non-nil,
// whose sid is active in this run. Dropped events are counted, never
// returned as errors. The result is sorted by (sid, date).
func Filter(set domain.AdjustmentSet, windows SymbolWindows, active map[int64]bool) (domain.AdjustmentSet, Tally) {
	var (
		kept  domain.AdjustmentSet
		tally Tally
	)

	check := func(sid int64, date time.Time) bool {
		err := Check(sid, date, windows, active)
		switch {
		case err == nil:
			return true
		case errors.Is(err, apperrors.ErrUnknownSymbol):
			tally.UnknownSymbol++
		case errors.Is(err, apperrors.ErrStaleWindow):
			tally.StaleWindow++
		default:
			tally.Inactive++
		}
		return false
	}

	for _, s := range set.Splits {
		if check(s.SID, s.EffectiveDate) {
			kept.Splits = append(kept.Splits, s)
		}
	}
	for _, m := range set.Mergers {
		if check(m.SID, m.EffectiveDate) {
			kept.Mergers = append(kept.Mergers, m)
		}
	}
	for _, d := range set.Dividends {
		if check(d.SID, d.ExDate) {
			kept.Dividends = append(kept.Dividends, d)
		}
	}

	kept.Sort()
	return kept, tally
}

// Check returns nil when an event for sid on date may be written, an
// UNKNOWN_SYMBOL or STALE_WINDOW error otherwise, or an inactive error when
// active is non-nil and excludes sid.
func Check(sid int64, date time.Time, windows SymbolWindows, active map[int64]bool) error {
	if sid < 0 {
		return apperrors.NewUnknownSymbolError(sid)
	}
	rec, err := windows.LookupSID(sid)
	if err != nil {
		return apperrors.NewUnknownSymbolError(sid)
	}
	if !rec.Covers(date) {
		return apperrors.NewStaleWindowError(sid, date.Format("2006-01-02"))
	}
	if active != nil && !active[sid] {
		return errInactive
	}
	return nil
}
