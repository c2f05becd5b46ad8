package letterage

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/robinvdvleuten/lettrage/ledger"
)

// Scoring constants.
const (
	// ExactThreshold is the confidence a 1:1 pair needs in the exact pass.
	ExactThreshold = 0.8
	// CombinationThreshold is the confidence a multi-line match needs.
	CombinationThreshold = 0.7
	// AutoThreshold is the confidence above which auto-validating rules
	// apply a match without review.
	AutoThreshold = 0.9

	toleranceScore   = 0.8
	exactBonus       = 0.1
	multiLinePenalty = 0.1
	dateDecay        = 0.5
)

var numericToken = regexp.MustCompile(`\d{3,}`)

// Score evaluates a candidate match under rule. ok is false when the
// amounts are too far apart to be considered at all, that is more than
// twice the rule tolerance.
func Score(rule Rule, debits, credits []*ledger.Line) (confidence float64, difference decimal.Decimal, ok bool) {
	if len(debits) == 0 || len(credits) == 0 {
		return 0, decimal.Zero, false
	}

	totalDebit, totalCredit := decimal.Zero, decimal.Zero
	for _, l := range debits {
		totalDebit = totalDebit.Add(l.Debit)
	}
	for _, l := range credits {
		totalCredit = totalCredit.Add(l.Credit)
	}
	difference = totalDebit.Sub(totalCredit).Abs()

	if difference.GreaterThan(rule.Tolerance.Mul(decimal.NewFromInt(2))) {
		return 0, difference, false
	}
	if len(rule.Criteria) == 0 {
		return 0, difference, false
	}

	points := 0.0
	for _, c := range rule.Criteria {
		switch c.Field {
		case FieldAmount:
			larger := decimal.Max(totalDebit, totalCredit)
			switch {
			case c.ExactMatch && difference.LessThanOrEqual(rule.Tolerance):
				points += 1
			case c.Tolerance.IsPositive() && difference.LessThanOrEqual(c.Tolerance.Mul(larger)):
				points += toleranceScore
			}
		case FieldDate:
			avg := averageDays(debits, credits)
			window := float64(c.DaysWindow)
			if window > 0 && avg <= window {
				points += 1 - (avg/window)*dateDecay
			}
		case FieldReference:
			if referencesMatch(debits, credits, c.ExactMatch) {
				points += 1
			}
		case FieldThirdParty:
			if thirdPartiesMatch(debits, credits) {
				points += 1
			}
		}
	}

	confidence = points / float64(len(rule.Criteria))
	if difference.IsZero() {
		confidence += exactBonus
	}
	if len(debits) > 1 || len(credits) > 1 {
		confidence -= multiLinePenalty
	}
	confidence = math.Max(0, math.Min(1, confidence))
	return math.Round(confidence*1e4) / 1e4, difference, true
}

// averageDays is the mean absolute distance in days over every
// debit/credit pair.
func averageDays(debits, credits []*ledger.Line) float64 {
	total, n := 0.0, 0
	for _, d := range debits {
		for _, c := range credits {
			total += math.Abs(d.Date.Sub(c.Date).Hours() / 24)
			n++
		}
	}
	if n == 0 {
		return math.Inf(1)
	}
	return total / float64(n)
}

func referencesMatch(debits, credits []*ledger.Line, exact bool) bool {
	for _, d := range debits {
		for _, c := range credits {
			if exact {
				if d.Reference != "" && d.Reference == c.Reference {
					return true
				}
				continue
			}
			if FuzzyReference(d.Reference, c.Reference) {
				return true
			}
		}
	}
	return false
}

// FuzzyReference reports whether two references plausibly designate the
// same document: one contains the other once punctuation is dropped, or
// both carry the same number of three digits or more.
func FuzzyReference(a, b string) bool {
	ca, cb := cleanReference(a), cleanReference(b)
	if ca == "" || cb == "" {
		return false
	}
	if strings.Contains(ca, cb) || strings.Contains(cb, ca) {
		return true
	}
	for _, na := range numericToken.FindAllString(ca, -1) {
		for _, nb := range numericToken.FindAllString(cb, -1) {
			if na == nb {
				return true
			}
		}
	}
	return false
}

func cleanReference(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func thirdPartiesMatch(debits, credits []*ledger.Line) bool {
	for _, d := range debits {
		for _, c := range credits {
			if d.ThirdParty() != "" && d.ThirdParty() == c.ThirdParty() {
				return true
			}
		}
	}
	return false
}
