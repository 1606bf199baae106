package domain

import (
	"sort"
	"time"
)

// AdjustmentKind identifies the corporate-action table an event belongs to
type AdjustmentKind string

const (
	AdjustmentSplit    AdjustmentKind = "split"
	AdjustmentMerger   AdjustmentKind = "merger"
	AdjustmentDividend AdjustmentKind = "dividend"
)

// Split is a share split effective on EffectiveDate. Ratio multiplies prices
// before the effective date (0.5 for a 2-for-1 split).
type Split struct {
	SID           int64     `json:"sid" db:"sid"`
	EffectiveDate time.Time `json:"effective_date" db:"effective_date"`
	Ratio         float64   `json:"ratio" db:"ratio"`
}

// Merger has the same shape as Split but is written to its own table.
type Merger struct {
	SID           int64     `json:"sid" db:"sid"`
	EffectiveDate time.Time `json:"effective_date" db:"effective_date"`
	Ratio         float64   `json:"ratio" db:"ratio"`
}

// Dividend is a cash dividend. Only ExDate is known at ingest time.
type Dividend struct {
	SID          int64      `json:"sid" db:"sid"`
	ExDate       time.Time  `json:"ex_date" db:"ex_date"`
	DeclaredDate *time.Time `json:"declared_date,omitempty" db:"declared_date"`
	RecordDate   *time.Time `json:"record_date,omitempty" db:"record_date"`
	PayDate      *time.Time `json:"pay_date,omitempty" db:"pay_date"`
	Amount       float64    `json:"amount" db:"amount"`
}

// AdjustmentSet holds the three adjustment tables of a bundle.
type AdjustmentSet struct {
	Splits    []Split    `json:"splits"`
	Mergers   []Merger   `json:"mergers"`
	Dividends []Dividend `json:"dividends"`
}

// Append adds every event of other to s.
func (s *AdjustmentSet) Append(other AdjustmentSet) {
	s.Splits = append(s.Splits, other.Splits...)
	s.Mergers = append(s.Mergers, other.Mergers...)
	s.Dividends = append(s.Dividends, other.Dividends...)
}

// Len returns the total number of events
func (s AdjustmentSet) Len() int {
	return len(s.Splits) + len(s.Mergers) + len(s.Dividends)
}

// Sort orders every table by (sid, date) so writes are deterministic.
func (s *AdjustmentSet) Sort() {
	sort.SliceStable(s.Splits, func(i, j int) bool {
		return lessSIDDate(s.Splits[i].SID, s.Splits[i].EffectiveDate, s.Splits[j].SID, s.Splits[j].EffectiveDate)
	})
	sort.SliceStable(s.Mergers, func(i, j int) bool {
		return lessSIDDate(s.Mergers[i].SID, s.Mergers[i].EffectiveDate, s.Mergers[j].SID, s.Mergers[j].EffectiveDate)
	})
	sort.SliceStable(s.Dividends, func(i, j int) bool {
		return lessSIDDate(s.Dividends[i].SID, s.Dividends[i].ExDate, s.Dividends[j].SID, s.Dividends[j].ExDate)
	})
}

func lessSIDDate(sidA int64, a time.Time, sidB int64, b time.Time) bool {
	if sidA != sidB {
		return sidA < sidB
	}
	return a.Before(b)
}
