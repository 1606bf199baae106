package domain

import (
	"time"
)

// SymbolRecord is one row of the symbol registry. SID is the row ordinal.
type SymbolRecord struct {
	SID         int64     `json:"sid" db:"sid" validate:"min=0"`
	Symbol      string    `json:"symbol" db:"symbol" validate:"required"`
	DisplayName string    `json:"asset_name" db:"asset_name"`
	FirstSeen   time.Time `json:"start_date" db:"start_date"`
	LastSeen    time.Time `json:"end_date" db:"end_date"`
	AutoClose   time.Time `json:"auto_close_date" db:"auto_close_date"`
	Exchange    string    `json:"exchange" db:"exchange"`
}

// Covers reports whether date lies within [FirstSeen, LastSeen].
func (r SymbolRecord) Covers(date time.Time) bool {
	return !date.Before(r.FirstSeen) && !date.After(r.LastSeen)
}

// AutoCloseFor returns the auto-close date for a given last-seen session.
func AutoCloseFor(lastSeen time.Time) time.Time {
	return lastSeen.AddDate(0, 0, 1)
}
