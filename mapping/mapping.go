// Package mapping infers which columns of a free-form export hold which
// canonical ledger fields.
//
// Suggestions are advisory: callers may override any assignment before
// parsing rows.
package mapping

import (
	"fmt"
	"sort"
	"strings"
)

// Field is a canonical ledger field a column can be mapped to.
type Field int

const (
	FieldDate Field = iota
	FieldAccountNumber
	FieldAccountName
	FieldJournalCode
	FieldJournalName
	FieldEntryNumber
	FieldReference
	FieldPieceDate
	FieldLabel
	FieldDebit
	FieldCredit
	FieldAmount
	FieldThirdParty
	FieldThirdPartyName
	FieldLetterage
	FieldLetterageDate
	FieldValidDate
	FieldForeignAmount
	FieldCurrency
)

var fieldNames = map[Field]string{
	FieldDate:           "date",
	FieldAccountNumber:  "account_number",
	FieldAccountName:    "account_name",
	FieldJournalCode:    "journal_code",
	FieldJournalName:    "journal_name",
	FieldEntryNumber:    "entry_number",
	FieldReference:      "reference",
	FieldPieceDate:      "piece_date",
	FieldLabel:          "label",
	FieldDebit:          "debit",
	FieldCredit:         "credit",
	FieldAmount:         "amount",
	FieldThirdParty:     "third_party",
	FieldThirdPartyName: "third_party_name",
	FieldLetterage:      "letterage",
	FieldLetterageDate:  "letterage_date",
	FieldValidDate:      "valid_date",
	FieldForeignAmount:  "foreign_amount",
	FieldCurrency:       "currency",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// ParseField parses a field name as printed by String.
func ParseField(s string) (Field, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, name := range fieldNames {
		if name == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown field %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (f Field) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Field) UnmarshalText(text []byte) error {
	parsed, err := ParseField(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Column is one field assignment.
type Column struct {
	Field  Field
	Index  int
	Header string
	// Signed marks a generic amount column split by sign: positive
	// values are debits, negative values credits.
	Signed bool
}

// Mapping assigns fields to zero-based column indexes.
type Mapping struct {
	columns map[Field]Column
	headers []string
}

// New creates an empty mapping over headers.
func New(headers []string) *Mapping {
	return &Mapping{
		columns: make(map[Field]Column),
		headers: headers,
	}
}

// Set assigns field to the column at index.
func (m *Mapping) Set(field Field, index int) {
	header := ""
	if index >= 0 && index < len(m.headers) {
		header = m.headers[index]
	}
	m.columns[field] = Column{
		Field:  field,
		Index:  index,
		Header: header,
		Signed: field == FieldAmount,
	}
}

// Unset removes the assignment of field.
func (m *Mapping) Unset(field Field) {
	delete(m.columns, field)
}

// Column returns the column index of field, or -1.
func (m *Mapping) Column(field Field) int {
	if c, ok := m.columns[field]; ok {
		return c.Index
	}
	return -1
}

// Has reports whether field is mapped.
func (m *Mapping) Has(field Field) bool {
	_, ok := m.columns[field]
	return ok
}

// Headers returns the header row the mapping was built for.
func (m *Mapping) Headers() []string {
	return m.headers
}

// Columns returns the assignments ordered by field.
func (m *Mapping) Columns() []Column {
	cols := make([]Column, 0, len(m.columns))
	for _, c := range m.columns {
		cols = append(cols, c)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Field < cols[j].Field })
	return cols
}

// Override replaces assignments. A negative index removes the field.
func (m *Mapping) Override(assignments map[Field]int) {
	for f, idx := range assignments {
		if idx < 0 {
			m.Unset(f)
			continue
		}
		// A column holds a single field.
		for other, c := range m.columns {
			if c.Index == idx && other != f {
				delete(m.columns, other)
			}
		}
		m.Set(f, idx)
	}
}

// Validate checks that enough fields are mapped to build ledger lines.
func (m *Mapping) Validate() error {
	var missing []string
	for _, f := range []Field{FieldDate, FieldAccountNumber, FieldLabel} {
		if !m.Has(f) {
			missing = append(missing, f.String())
		}
	}
	if !m.Has(FieldDebit) && !m.Has(FieldCredit) && !m.Has(FieldAmount) {
		missing = append(missing, "debit/credit or amount")
	}
	for _, c := range m.columns {
		if c.Index < 0 || c.Index >= len(m.headers) {
			return fmt.Errorf("field %s is mapped to column %d but the file has %d columns", c.Field, c.Index, len(m.headers))
		}
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}

// MissingFieldsError lists required fields with no column.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("unrecognized header: no column for %s", strings.Join(e.Fields, ", "))
}
