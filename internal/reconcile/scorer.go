package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Sal-Romano/Otter.Money3-sub000/internal/model"
)

var (
	// MatchThreshold is the minimum fuzzy score for a match.
	MatchThreshold = decimal.RequireFromString("0.70")

	amountWeightExact = decimal.RequireFromString("0.40")
	amountWeightNear  = decimal.RequireFromString("0.20")
	amountExactBelow  = decimal.RequireFromString("0.02")
	amountNearBelow   = decimal.RequireFromString("0.50")

	dateWeightSameDay = decimal.RequireFromString("0.25")
	dateWeightOneDay  = decimal.RequireFromString("0.15")
	dateWeightClose   = decimal.RequireFromString("0.05")

	textWeight = decimal.RequireFromString("0.35")

	// Amounts closer than this are considered equal when diffing.
	amountChangeAtLeast = decimal.RequireFromString("0.01")

	scoreOne = decimal.NewFromInt(1)
)

// scorePlaces is the precision scores are rounded to before comparison.
const scorePlaces = 8

// Scorer computes match confidence between an incoming row and a stored
// transaction.
type Scorer struct {
	canon *Canonicalizer
}

// NewScorer returns a Scorer. canon may be nil.
func NewScorer(canon *Canonicalizer) *Scorer {
	return &Scorer{canon: canon}
}

// Score returns the sum of the amount, date and text sub-scores, in [0,1].
func (s *Scorer) Score(in ParsedRecord, t model.Transaction) decimal.Decimal {
	total := AmountScore(in.Amount, t.Amount).
		Add(DateScore(in.Date, t.Date)).
		Add(s.TextScore(in.Description, in.Merchant, t.Description, t.MerchantName))
	total = total.Round(scorePlaces)
	if total.GreaterThan(scoreOne) {
		return scoreOne
	}
	return total
}

// MeetsThreshold reports whether a fuzzy score is high enough to match.
func MeetsThreshold(score decimal.Decimal) bool {
	return score.GreaterThanOrEqual(MatchThreshold)
}

// AmountScore is 0.40 for amounts within 0.02, 0.20 within 0.50, else 0.
func AmountScore(a, b decimal.Decimal) decimal.Decimal {
	delta := a.Sub(b).Abs()
	switch {
	case delta.LessThan(amountExactBelow):
		return amountWeightExact
	case delta.LessThan(amountNearBelow):
		return amountWeightNear
	default:
		return decimal.Zero
	}
}

// DateScore is 0.25 for the same calendar day, 0.15 within one day, 0.05
// within three days, else 0.
func DateScore(a, b time.Time) decimal.Decimal {
	switch d := DaysApart(a, b); {
	case d == 0:
		return dateWeightSameDay
	case d <= 1:
		return dateWeightOneDay
	case d <= 3:
		return dateWeightClose
	default:
		return decimal.Zero
	}
}

// DaysApart returns the absolute number of calendar days between a and b.
func DaysApart(a, b time.Time) int {
	d := int(CalendarDay(a).Sub(CalendarDay(b)).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

// TextScore takes the best similarity over the four description/merchant
// pairings and scales it to at most 0.35.
func (s *Scorer) TextScore(inDesc, inMerchant, storedDesc, storedMerchant string) decimal.Decimal {
	in := [2]string{Normalize(inDesc), Normalize(inMerchant)}
	stored := [2]string{Normalize(storedDesc), Normalize(storedMerchant)}

	best := decimal.Zero
	for _, a := range in {
		for _, b := range stored {
			sim := normalizedSimilarity(a, b)
			if s.canon != nil {
				if alt := normalizedSimilarity(s.canon.Canonical(a), s.canon.Canonical(b)); alt.GreaterThan(sim) {
					sim = alt
				}
			}
			if sim.GreaterThan(best) {
				best = sim
			}
		}
	}
	return best.Mul(textWeight)
}
