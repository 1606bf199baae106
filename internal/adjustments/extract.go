package adjustments

import (
	"math"
	"sort"

	"mdbundle/pkg/contracts/domain"
)

// Extractor derives corporate-action events from one symbol's raw rows
type Extractor struct {
	tolerance float64
}

// NewExtractor creates an extractor. A non-positive tolerance uses
// DefaultTolerance.
func NewExtractor(tolerance float64) *Extractor {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Extractor{tolerance: tolerance}
}

// ExtractExplicit reads split and dividend columns. A row whose split ratio
// differs from 1 emits a Split with that ratio; a row with a non-zero
// dividend emits a Dividend whose declared, record and pay dates are left
// empty. Missing cells emit nothing.
func (e *Extractor) ExtractExplicit(sid int64, rows []domain.RawBar) domain.AdjustmentSet {
	var set domain.AdjustmentSet
	for _, row := range sortedByDate(rows) {
		if r := row.SplitRatio; valid(r) && math.Abs(r-1) > e.tolerance {
			set.Splits = append(set.Splits, domain.Split{
				SID:           sid,
				EffectiveDate: row.Date,
				Ratio:         r,
			})
		}
		if a := row.DividendAmount; !math.IsNaN(a) && !math.IsInf(a, 0) && a != 0 {
			set.Dividends = append(set.Dividends, domain.Dividend{
				SID:    sid,
				ExDate: row.Date,
				Amount: a,
			})
		}
	}
	return set
}

// ExtractInferred classifies discontinuities of the adjustment factor
// unadjusted_close / adjusted_close. The event for a change between two
// consecutive rows is dated on the later row. Splits and mergers carry the
// factor ratio; a dividend's amount is (1 - ratio) times the previous
// unadjusted close.
func (e *Extractor) ExtractInferred(sid int64, rows []domain.RawBar) domain.AdjustmentSet {
	var set domain.AdjustmentSet
	sorted := sortedByDate(rows)

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		prevFactor, ok := factor(prev)
		if !ok {
			continue
		}
		curFactor, ok := factor(cur)
		if !ok {
			continue
		}

		r := curFactor / prevFactor
		switch Classify(r, e.tolerance) {
		case KindSplit:
			set.Splits = append(set.Splits, domain.Split{SID: sid, EffectiveDate: cur.Date, Ratio: r})
		case KindMerger:
			set.Mergers = append(set.Mergers, domain.Merger{SID: sid, EffectiveDate: cur.Date, Ratio: r})
		case KindDividend:
			set.Dividends = append(set.Dividends, domain.Dividend{
				SID:    sid,
				ExDate: cur.Date,
				Amount: (1 - r) * prev.UnadjustedClose,
			})
		}
	}
	return set
}

// factor returns unadjusted/adjusted close, or false when either is missing
// or non-positive.
func factor(row domain.RawBar) (float64, bool) {
	if !valid(row.UnadjustedClose) || !valid(row.AdjustedClose) {
		return 0, false
	}
	return row.UnadjustedClose / row.AdjustedClose, true
}

func valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func sortedByDate(rows []domain.RawBar) []domain.RawBar {
	out := make([]domain.RawBar, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
