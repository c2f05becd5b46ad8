package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"
)

// Side identifies which column of a line carries its amount.
type Side int

const (
	SideNone Side = iota
	SideDebit
	SideCredit
)

func (s Side) String() string {
	switch s {
	case SideDebit:
		return "debit"
	case SideCredit:
		return "credit"
	default:
		return "none"
	}
}

// Line is a single debit-or-credit movement on one account. Lines are
// immutable once accepted; only the letterage fields change afterwards.
type Line struct {
	ID               string
	Row              int
	JournalCode      string `validate:"required,max=20"`
	JournalName      string
	EntryNumber      string `validate:"required"`
	Date             time.Time
	AccountNumber    string `validate:"required,min=3,max=20"`
	AccountName      string
	AuxiliaryAccount string
	AuxiliaryName    string
	Reference        string
	PieceDate        time.Time
	Label            string `validate:"required"`
	Debit            decimal.Decimal
	Credit           decimal.Decimal
	LetterageCode    string
	LetterageDate    time.Time
	ValidDate        time.Time
	ForeignAmount    decimal.Decimal
	Currency         string `validate:"omitempty,len=3,alpha,uppercase"`
}

// Side reports the populated amount column. Lines with both or neither
// populated report SideNone.
func (l *Line) Side() Side {
	d, c := !l.Debit.IsZero(), !l.Credit.IsZero()
	switch {
	case d && !c:
		return SideDebit
	case c && !d:
		return SideCredit
	default:
		return SideNone
	}
}

// IsDebit returns true when the line carries a debit amount.
func (l *Line) IsDebit() bool {
	return l.Side() == SideDebit
}

// Amount returns the absolute amount of the line regardless of side.
func (l *Line) Amount() decimal.Decimal {
	if l.Debit.IsZero() {
		return l.Credit
	}
	return l.Debit
}

// EntryKey identifies the entry a line belongs to.
func (l *Line) EntryKey() string {
	return EntryKey(l.JournalCode, l.EntryNumber)
}

// Class returns the account class derived from the leading digit.
func (l *Line) Class() AccountClass {
	return ParseAccountClass(l.AccountNumber)
}

// ThirdParty returns the third-party identifier of the line, if any.
func (l *Line) ThirdParty() string {
	return strings.TrimSpace(l.AuxiliaryAccount)
}

// Lettered returns true if the line carries a letter code.
func (l *Line) Lettered() bool {
	return l.LetterageCode != ""
}

// EntryKey builds the grouping key of an entry.
func EntryKey(journal, number string) string {
	return strings.ToUpper(strings.TrimSpace(journal)) + "|" + strings.TrimSpace(number)
}

// Entry groups the lines that share a journal code and entry number.
type Entry struct {
	Key         string
	JournalCode string
	EntryNumber string
	Date        time.Time
	Lines       []*Line
}

// TotalDebit returns the sum of all debit amounts.
func (e *Entry) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Debit)
	}
	return total
}

// TotalCredit returns the sum of all credit amounts.
func (e *Entry) TotalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Credit)
	}
	return total
}

// Imbalance returns the absolute difference between debits and credits.
func (e *Entry) Imbalance() decimal.Decimal {
	return e.TotalDebit().Sub(e.TotalCredit()).Abs()
}

// Balanced checks the double-entry invariant within tolerance.
func (e *Entry) Balanced(tolerance decimal.Decimal) bool {
	return AmountEqual(e.TotalDebit(), e.TotalCredit(), tolerance)
}

// Accounts returns the distinct account numbers touched by the entry.
func (e *Entry) Accounts() []string {
	seen := make(map[string]struct{}, len(e.Lines))
	accounts := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		if _, ok := seen[l.AccountNumber]; ok {
			continue
		}
		seen[l.AccountNumber] = struct{}{}
		accounts = append(accounts, l.AccountNumber)
	}
	slices.Sort(accounts)
	return accounts
}

// FirstRow returns the lowest source row of the entry.
func (e *Entry) FirstRow() int {
	row := 0
	for _, l := range e.Lines {
		if row == 0 || (l.Row > 0 && l.Row < row) {
			row = l.Row
		}
	}
	return row
}

// GroupEntries groups lines into entries, preserving the order in which
// each entry first appears.
func GroupEntries(lines []*Line) []*Entry {
	index := make(map[string]*Entry)
	entries := make([]*Entry, 0)
	for _, l := range lines {
		key := l.EntryKey()
		e, ok := index[key]
		if !ok {
			e = &Entry{
				Key:         key,
				JournalCode: l.JournalCode,
				EntryNumber: l.EntryNumber,
				Date:        l.Date,
			}
			index[key] = e
			entries = append(entries, e)
		}
		e.Lines = append(e.Lines, l)
	}
	return entries
}
