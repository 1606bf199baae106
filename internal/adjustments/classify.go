package adjustments

import (
	"math"

	"mdbundle/pkg/contracts/domain"
)

// Bucket boundaries of ratio inference. A factor ratio r is classified by the
// first matching rule:
//
//	|r - 1| <= tolerance                                  no event
//	k = max(r, 1/r) >= SplitMinMagnitude and k is within
//	  SplitFractionTolerance (relative) of p/q, q <= 4    split
//	r < 1 and 1 - r <= DividendMaxDrop                    dividend
//	otherwise                                             merger
const (
	DefaultTolerance       = 1e-6
	SplitMinMagnitude      = 1.25
	SplitFractionTolerance = 0.005
	DividendMaxDrop        = 0.20
)

// splitDenominators are the q of the p/q split ratios recognised
var splitDenominators = []float64{1, 2, 3, 4}

// Kind is the outcome of classifying one factor ratio
type Kind int

const (
	KindNone Kind = iota
	KindSplit
	KindMerger
	KindDividend
)

// String returns the adjustment kind label, or "none"
func (k Kind) String() string {
	switch k {
	case KindSplit:
		return string(domain.AdjustmentSplit)
	case KindMerger:
		return string(domain.AdjustmentMerger)
	case KindDividend:
		return string(domain.AdjustmentDividend)
	default:
		return "none"
	}
}

// Classify maps the session-over-session ratio of adjustment factors to an
// event kind. Non-finite and non-positive ratios yield KindNone.
func Classify(r, tolerance float64) Kind {
	if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
		return KindNone
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if math.Abs(r-1) <= tolerance {
		return KindNone
	}

	k := math.Max(r, 1/r)
	if k >= SplitMinMagnitude && nearSimpleFraction(k) {
		return KindSplit
	}
	if r < 1 && 1-r <= DividendMaxDrop {
		return KindDividend
	}
	return KindMerger
}

// nearSimpleFraction reports whether k is close to p/q for a small q
func nearSimpleFraction(k float64) bool {
	for _, q := range splitDenominators {
		p := math.Round(k * q)
		if p < 1 {
			continue
		}
		target := p / q
		if math.Abs(k-target)/target <= SplitFractionTolerance {
			return true
		}
	}
	return false
}
