// Package parser turns raw rows of a ledger export into ledger lines.
//
// Reading and parsing are separate steps: ReadRecords and ReadSpreadsheet
// produce rows of cells, and a RowParser applies a column mapping to each
// row. Problems with a cell are reported as format errors on that row;
// they never abort the file.
package parser

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/robinvdvleuten/lettrage/ledger"
	"github.com/robinvdvleuten/lettrage/mapping"
)

// DefaultJournal is assigned to free-form rows without a journal column.
const DefaultJournal = "OD"

// RowParser converts mapped rows into ledger lines.
type RowParser struct {
	mapping        *mapping.Mapping
	strict         bool
	defaultJournal string
	interner       *Interner
	newID          func() string
}

// Option configures a RowParser.
type Option func(*RowParser)

// WithStrictDates parses date cells as compact YYYYMMDD only.
func WithStrictDates() Option {
	return func(p *RowParser) {
		p.strict = true
	}
}

// WithDefaultJournal sets the journal code of rows with no journal cell.
// It has no effect in strict mode.
func WithDefaultJournal(code string) Option {
	return func(p *RowParser) {
		p.defaultJournal = code
	}
}

// WithIDGenerator replaces the line ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(p *RowParser) {
		p.newID = fn
	}
}

// NewRowParser creates a row parser for m.
func NewRowParser(m *mapping.Mapping, opts ...Option) *RowParser {
	p := &RowParser{
		mapping:        m,
		defaultJournal: DefaultJournal,
		interner:       NewInterner(256),
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Strict reports whether the parser expects the strict layout.
func (p *RowParser) Strict() bool {
	return p.strict
}

func (p *RowParser) cell(cells []string, f mapping.Field) string {
	idx := p.mapping.Column(f)
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

func (p *RowParser) parseDate(s string) (time.Time, error) {
	if p.strict {
		return ParseStrictDate(s)
	}
	return ParseDate(s)
}

// Parse converts one row. A nil line means the row was rejected; the
// returned errors say why. Warnings may accompany an accepted line.
func (p *RowParser) Parse(row int, cells []string) (*ledger.Line, []*ledger.ImportError) {
	var errs []*ledger.ImportError
	fail := func(field mapping.Field, format string, args ...any) {
		errs = append(errs, ledger.NewFormatError(row, field.String(), format, args...))
	}
	warn := func(field mapping.Field, format string, args ...any) {
		e := ledger.NewFormatError(row, field.String(), format, args...)
		e.Severity = ledger.SeverityWarning
		errs = append(errs, e)
	}

	line := &ledger.Line{
		ID:               p.newID(),
		Row:              row,
		JournalCode:      p.interner.Intern(strings.ToUpper(p.cell(cells, mapping.FieldJournalCode))),
		JournalName:      p.interner.Intern(p.cell(cells, mapping.FieldJournalName)),
		EntryNumber:      p.cell(cells, mapping.FieldEntryNumber),
		AccountNumber:    p.interner.Intern(p.cell(cells, mapping.FieldAccountNumber)),
		AccountName:      p.interner.Intern(p.cell(cells, mapping.FieldAccountName)),
		AuxiliaryAccount: p.interner.Intern(p.cell(cells, mapping.FieldThirdParty)),
		AuxiliaryName:    p.cell(cells, mapping.FieldThirdPartyName),
		Reference:        p.cell(cells, mapping.FieldReference),
		Label:            p.cell(cells, mapping.FieldLabel),
		LetterageCode:    p.cell(cells, mapping.FieldLetterage),
		Currency:         p.interner.Intern(strings.ToUpper(p.cell(cells, mapping.FieldCurrency))),
	}

	if !p.strict {
		if line.JournalCode == "" {
			line.JournalCode = p.defaultJournal
		}
		if line.EntryNumber == "" {
			line.EntryNumber = line.Reference
		}
		if line.EntryNumber == "" {
			line.EntryNumber = strconv.Itoa(row)
		}
	}

	if raw := p.cell(cells, mapping.FieldDate); raw != "" {
		d, err := p.parseDate(raw)
		if err != nil {
			fail(mapping.FieldDate, "%v", err)
		}
		line.Date = d
	}

	// Secondary dates never reject a row.
	for _, f := range []mapping.Field{mapping.FieldPieceDate, mapping.FieldLetterageDate, mapping.FieldValidDate} {
		raw := p.cell(cells, f)
		if raw == "" {
			continue
		}
		d, err := p.parseDate(raw)
		if err != nil {
			warn(f, "%v, ignored", err)
			continue
		}
		switch f {
		case mapping.FieldPieceDate:
			line.PieceDate = d
		case mapping.FieldLetterageDate:
			line.LetterageDate = d
		case mapping.FieldValidDate:
			line.ValidDate = d
		}
	}

	if p.mapping.Has(mapping.FieldDebit) || p.mapping.Has(mapping.FieldCredit) {
		line.Debit = p.amount(cells, mapping.FieldDebit, fail)
		line.Credit = p.amount(cells, mapping.FieldCredit, fail)
	} else {
		amount := p.amount(cells, mapping.FieldAmount, fail)
		if amount.IsNegative() {
			line.Credit = amount.Neg()
		} else {
			line.Debit = amount
		}
	}

	if raw := p.cell(cells, mapping.FieldForeignAmount); raw != "" {
		d, err := ParseAmount(raw)
		if err != nil {
			warn(mapping.FieldForeignAmount, "%v, ignored", err)
		} else {
			line.ForeignAmount = d
		}
	}

	for _, e := range errs {
		if !e.IsWarning() {
			return nil, errs
		}
	}
	return line, errs
}

// amount parses an amount cell. Blank cells are zero; debit and credit
// columns hold magnitudes, so the sign is dropped there.
func (p *RowParser) amount(cells []string, f mapping.Field, fail func(mapping.Field, string, ...any)) decimal.Decimal {
	raw := p.cell(cells, f)
	d, err := ParseAmount(raw)
	if errors.Is(err, ErrEmptyAmount) {
		return decimal.Zero
	}
	if err != nil {
		fail(f, "%v", err)
		return decimal.Zero
	}
	if f != mapping.FieldAmount {
		d = d.Abs()
	}
	return d
}

// IsHeaderLike reports whether a row repeats the header, which some
// exports do at every page break.
func IsHeaderLike(cells, headers []string) bool {
	if len(cells) != len(headers) || len(cells) == 0 {
		return false
	}
	for i := range cells {
		if !strings.EqualFold(strings.TrimSpace(cells[i]), strings.TrimSpace(headers[i])) {
			return false
		}
	}
	return true
}

// Describe renders a record for error context.
func Describe(r Record, delim rune) string {
	if delim == 0 {
		delim = ';'
	}
	return strings.Join(r.Cells, string(delim))
}
