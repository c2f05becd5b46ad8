// Package formatter writes ledger lines in the strict legal layout: a
// fixed 18-column header, one row per line, pipe delimited, amounts with
// a decimal comma and dates as YYYYMMDD.
//
// Example usage:
//
//	f := formatter.New(formatter.WithDelimiter('\t'))
//	formatter.SortLines(lines)
//	if err := f.Format(w, lines); err != nil {
//	    return err
//	}
package formatter

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/robinvdvleuten/lettrage/ledger"
	"github.com/robinvdvleuten/lettrage/mapping"
)

const (
	// DefaultDelimiter separates columns.
	DefaultDelimiter = '|'

	// DefaultDecimalSeparator is the separator of formatted amounts.
	DefaultDecimalSeparator = ","

	// AmountPlaces is the number of decimals of formatted amounts.
	AmountPlaces = 2

	dateLayout = "20060102"
)

// Formatter renders lines in the strict layout.
type Formatter struct {
	// Delimiter separates columns. Pipe and tab are the legal choices.
	Delimiter rune

	// DecimalSeparator replaces the decimal point of amounts.
	DecimalSeparator string

	// OmitHeader skips the header row.
	OmitHeader bool

	// LineEnding terminates every row. Defaults to CRLF.
	LineEnding string
}

// Option is a functional option for configuring a Formatter.
type Option func(*Formatter)

// WithDelimiter sets the column delimiter.
func WithDelimiter(delim rune) Option {
	return func(f *Formatter) {
		f.Delimiter = delim
	}
}

// WithDecimalPoint writes amounts with a dot instead of a comma.
func WithDecimalPoint() Option {
	return func(f *Formatter) {
		f.DecimalSeparator = "."
	}
}

// WithoutHeader skips the header row, for appending to an existing file.
func WithoutHeader() Option {
	return func(f *Formatter) {
		f.OmitHeader = true
	}
}

// WithLineEnding sets the row terminator.
func WithLineEnding(eol string) Option {
	return func(f *Formatter) {
		f.LineEnding = eol
	}
}

// New creates a formatter with the given options.
func New(opts ...Option) *Formatter {
	f := &Formatter{
		Delimiter:        DefaultDelimiter,
		DecimalSeparator: DefaultDecimalSeparator,
		LineEnding:       "\r\n",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format writes the header and one row per line, in the given order.
// Amounts are written with two decimals; a line whose amounts would lose
// precision is refused rather than rounded. Line breaks inside text fields
// become spaces.
func (f *Formatter) Format(w io.Writer, lines []*ledger.Line) error {
	bw := bufio.NewWriter(w)
	var buf strings.Builder

	if !f.OmitHeader {
		buf.WriteString(strings.Join(mapping.StrictColumns, string(f.Delimiter)))
		buf.WriteString(f.LineEnding)
	}

	for _, l := range lines {
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return fmt.Errorf("line %s: negative amount", l.ID)
		}
		for _, d := range []decimal.Decimal{l.Debit, l.Credit, l.ForeignAmount} {
			if !d.Equal(d.Round(AmountPlaces)) {
				return fmt.Errorf("line %s: amount %s has more than %d decimals", l.ID, d, AmountPlaces)
			}
		}
		f.FormatLine(l, &buf)
		if buf.Len() > 64*1024 {
			if _, err := bw.WriteString(buf.String()); err != nil {
				return err
			}
			buf.Reset()
		}
	}

	if _, err := bw.WriteString(buf.String()); err != nil {
		return err
	}
	return bw.Flush()
}

// FormatLine appends one row to buf.
func (f *Formatter) FormatLine(l *ledger.Line, buf *strings.Builder) {
	fields := [...]string{
		l.JournalCode,
		l.JournalName,
		l.EntryNumber,
		formatDate(l.Date),
		l.AccountNumber,
		l.AccountName,
		l.AuxiliaryAccount,
		l.AuxiliaryName,
		l.Reference,
		formatDate(l.PieceDate),
		l.Label,
		f.formatAmount(l.Debit),
		f.formatAmount(l.Credit),
		l.LetterageCode,
		formatDate(l.LetterageDate),
		formatDate(l.ValidDate),
		f.formatForeignAmount(l),
		l.Currency,
	}
	for i, field := range fields {
		if i > 0 {
			buf.WriteRune(f.Delimiter)
		}
		buf.WriteString(escapeField(field, f.Delimiter))
	}
	buf.WriteString(f.LineEnding)
}

func (f *Formatter) formatAmount(d decimal.Decimal) string {
	s := d.StringFixed(AmountPlaces)
	if f.DecimalSeparator != "." {
		s = strings.Replace(s, ".", f.DecimalSeparator, 1)
	}
	return s
}

func (f *Formatter) formatForeignAmount(l *ledger.Line) string {
	if l.ForeignAmount.IsZero() && l.Currency == "" {
		return ""
	}
	return f.formatAmount(l.ForeignAmount)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// SortLines orders lines the way the legal layout expects: by date, then
// journal, entry number and source row.
func SortLines(lines []*ledger.Line) {
	slices.SortStableFunc(lines, func(a, b *ledger.Line) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := cmp.Compare(a.JournalCode, b.JournalCode); c != 0 {
			return c
		}
		if c := cmp.Compare(a.EntryNumber, b.EntryNumber); c != 0 {
			return c
		}
		return cmp.Compare(a.Row, b.Row)
	})
}

// FileName returns the legal file name of an export: the company
// registration number, "FEC" and the closing date of the period.
func FileName(siren string, closing time.Time) string {
	return fmt.Sprintf("%sFEC%s.txt", strings.TrimSpace(siren), closing.Format(dateLayout))
}
