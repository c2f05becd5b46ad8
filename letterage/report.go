package letterage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/robinvdvleuten/lettrage/ledger"
)

const (
	recentWindow = 30 * 24 * time.Hour
	recentLimit  = 10
)

// Summary holds totals over every reported line.
type Summary struct {
	Lines      int     `json:"lines"`
	Lettered   int     `json:"lettered"`
	Unlettered int     `json:"unlettered"`
	Rate       float64 `json:"rate"`
}

// AccountReport describes the letterage state of one account.
type AccountReport struct {
	Number           string          `json:"number"`
	Name             string          `json:"name"`
	Lines            int             `json:"lines"`
	Lettered         int             `json:"lettered"`
	Unlettered       int             `json:"unlettered"`
	Rate             float64         `json:"rate"`
	UnletteredDebit  decimal.Decimal `json:"unlettered_debit"`
	UnletteredCredit decimal.Decimal `json:"unlettered_credit"`
}

// OpenBalance is the unlettered debit minus unlettered credit.
func (a AccountReport) OpenBalance() decimal.Decimal {
	return a.UnletteredDebit.Sub(a.UnletteredCredit)
}

// Group is one letter code and the lines it ties together. Amount is the
// debit total.
type Group struct {
	Code   string          `json:"code"`
	Date   time.Time       `json:"date"`
	Lines  int             `json:"lines"`
	Amount decimal.Decimal `json:"amount"`
	// Balanced is false when the group's debits and credits differ, for
	// example after a match applied within tolerance.
	Balanced bool `json:"balanced"`
}

// Report is a letterage status report.
type Report struct {
	Prefix   string          `json:"prefix"`
	Summary  Summary         `json:"summary"`
	Accounts []AccountReport `json:"accounts"`
	Recent   []Group         `json:"recent"`
}

// BuildReport computes the letterage status of the lines under prefix.
// Recent groups are those lettered in the 30 days before now.
func BuildReport(ctx context.Context, s LineStore, prefix string, now time.Time) (*Report, error) {
	lines, err := s.Lines(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to load lines: %w", err)
	}
	return Summarize(prefix, lines, now), nil
}

// Summarize builds a report from lines already loaded.
func Summarize(prefix string, lines []*ledger.Line, now time.Time) *Report {
	r := &Report{Prefix: prefix}
	accounts := make(map[string]*AccountReport)
	groups := make(map[string]*Group)
	groupDebit := make(map[string]decimal.Decimal)
	groupCredit := make(map[string]decimal.Decimal)

	for _, l := range lines {
		a, ok := accounts[l.AccountNumber]
		if !ok {
			a = &AccountReport{Number: l.AccountNumber, Name: l.AccountName}
			accounts[l.AccountNumber] = a
		}
		if a.Name == "" {
			a.Name = l.AccountName
		}
		a.Lines++
		r.Summary.Lines++

		if !l.Lettered() {
			a.Unlettered++
			a.UnletteredDebit = a.UnletteredDebit.Add(l.Debit)
			a.UnletteredCredit = a.UnletteredCredit.Add(l.Credit)
			continue
		}
		a.Lettered++
		r.Summary.Lettered++

		g, ok := groups[l.LetterageCode]
		if !ok {
			g = &Group{Code: l.LetterageCode}
			groups[l.LetterageCode] = g
		}
		g.Lines++
		if l.LetterageDate.After(g.Date) {
			g.Date = l.LetterageDate
		}
		groupDebit[l.LetterageCode] = groupDebit[l.LetterageCode].Add(l.Debit)
		groupCredit[l.LetterageCode] = groupCredit[l.LetterageCode].Add(l.Credit)
	}

	r.Summary.Unlettered = r.Summary.Lines - r.Summary.Lettered
	r.Summary.Rate = rate(r.Summary.Lettered, r.Summary.Lines)

	for _, a := range accounts {
		a.Rate = rate(a.Lettered, a.Lines)
		r.Accounts = append(r.Accounts, *a)
	}
	sort.Slice(r.Accounts, func(i, j int) bool { return r.Accounts[i].Number < r.Accounts[j].Number })

	cutoff := now.Add(-recentWindow)
	for code, g := range groups {
		if g.Date.IsZero() || g.Date.Before(cutoff) {
			continue
		}
		g.Amount = groupDebit[code]
		g.Balanced = groupDebit[code].Equal(groupCredit[code])
		r.Recent = append(r.Recent, *g)
	}
	sort.Slice(r.Recent, func(i, j int) bool {
		if !r.Recent[i].Date.Equal(r.Recent[j].Date) {
			return r.Recent[i].Date.After(r.Recent[j].Date)
		}
		return ledger.LetterCodeLess(r.Recent[j].Code, r.Recent[i].Code)
	})
	if len(r.Recent) > recentLimit {
		r.Recent = r.Recent[:recentLimit]
	}
	return r
}

// rate is a percentage rounded to two decimals.
func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	pct := float64(part) * 100 / float64(total)
	return float64(int(pct*100+0.5)) / 100
}
