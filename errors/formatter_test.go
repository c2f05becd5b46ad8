package errors

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/robinvdvleuten/lettrage/ledger"
	"github.com/robinvdvleuten/lettrage/mapping"
)

const source = "Date;Compte;Libellé;Débit;Crédit\n" +
	"01/03/2024;411000;Facture;abc;\n" +
	"02/03/2024;512000;Paiement;10;\n"

func sourceMapping() *mapping.Mapping {
	m := mapping.New(strings.Split("Date;Compte;Libellé;Débit;Crédit", ";"))
	m.Set(mapping.FieldDate, 0)
	m.Set(mapping.FieldAccountNumber, 1)
	m.Set(mapping.FieldLabel, 2)
	m.Set(mapping.FieldDebit, 3)
	m.Set(mapping.FieldCredit, 4)
	return m
}

func TestTextFormatter_Format(t *testing.T) {
	tf := NewTextFormatter()

	err := ledger.NewBusinessError(12, "account_number", "account %s does not exist", "999999")
	assert.Equal(t, "row 12, account_number: account 999999 does not exist", tf.Format(err))

	warning := ledger.NewBusinessWarning(3, "date", "date is in the future")
	assert.Equal(t, "warning: row 3, date: date is in the future", tf.Format(warning))

	assert.Equal(t, "boom", tf.Format(fmt.Errorf("boom")))
}

func TestTextFormatter_Format_WithName(t *testing.T) {
	tf := NewTextFormatter(WithName("ventes.csv"))

	err := ledger.NewFormatError(0, "", "no data rows")
	assert.Equal(t, "ventes.csv: file: no data rows", tf.Format(err))

	// File errors already carry their source.
	fileErr := ledger.NewFileError("ventes.csv", "file is empty", nil)
	assert.Equal(t, "ventes.csv: file is empty", tf.Format(fileErr))
}

func TestTextFormatter_Format_WithSourceContext(t *testing.T) {
	tf := NewTextFormatter(
		WithName("ventes.csv"),
		WithSource([]byte(source), ';'),
		WithMapping(sourceMapping()),
	)

	err := ledger.NewFormatError(2, "debit", "invalid amount %q", "abc")
	expected := "ventes.csv: row 2, debit: invalid amount \"abc\"\n\n" +
		"    2 | 01/03/2024;411000;Facture;abc;\n" +
		strings.Repeat(" ", 8+26) + "^\n" +
		"    3 | 02/03/2024;512000;Paiement;10;\n"

	assert.Equal(t, expected, tf.Format(err))
}

func TestTextFormatter_Format_CaretAfterWideCells(t *testing.T) {
	src := "Libellé;Débit\n\"Café; thé\";x\n"
	m := mapping.New([]string{"Libellé", "Débit"})
	m.Set(mapping.FieldLabel, 0)
	m.Set(mapping.FieldDebit, 1)
	tf := NewTextFormatter(WithSource([]byte(src), ';'), WithMapping(m))

	out := tf.Format(ledger.NewFormatError(2, "debit", "invalid amount"))
	lines := strings.Split(out, "\n")
	// The quoted delimiter is skipped and accents count as one column.
	assert.Equal(t, strings.Repeat(" ", 8+len([]rune(`"Café; thé";`)))+"^", lines[3])
}

func TestTextFormatter_Format_UnknownField(t *testing.T) {
	tf := NewTextFormatter(WithSource([]byte(source), ';'), WithMapping(sourceMapping()))

	out := tf.Format(ledger.NewBusinessError(3, "entry_number", "entry is unbalanced"))
	assert.False(t, strings.Contains(out, "^"))
	assert.True(t, strings.Contains(out, "    3 | 02/03/2024;512000;Paiement;10;"))
}

func TestTextFormatter_FormatAll(t *testing.T) {
	tf := NewTextFormatter()

	assert.Equal(t, "", tf.FormatAll(nil))

	out := tf.FormatAll([]error{
		ledger.NewFormatError(2, "date", "invalid date"),
		ledger.NewFormatError(3, "date", "invalid date"),
	})
	assert.Equal(t, "row 2, date: invalid date\n\nrow 3, date: invalid date", out)
}

func TestJSONFormatter_Format(t *testing.T) {
	jf := NewJSONFormatter()

	e := ledger.NewBusinessError(4, "debit", "entry is unbalanced")
	e.Entry = "VT|F1"

	var got ErrorJSON
	assert.NoError(t, json.Unmarshal([]byte(jf.Format(e)), &got))
	assert.Equal(t, ErrorJSON{
		Type:     "*ledger.ImportError",
		Message:  "entry is unbalanced",
		Position: &PositionJSON{Row: 4, Field: "debit"},
		Kind:     "business",
		Severity: "error",
		Details:  map[string]any{"entry": "VT|F1"},
	}, got)
}

func TestJSONFormatter_FormatAllToSlice(t *testing.T) {
	jf := NewJSONFormatter()

	out := jf.FormatAllToSlice([]error{
		ledger.NewFileError("bank.csv", "unrecognized header", fmt.Errorf("no column for date")),
		ledger.NewFormatError(0, "", "no data rows"),
		fmt.Errorf("plain"),
	})
	assert.Equal(t, 3, len(out))

	assert.Equal(t, &PositionJSON{Filename: "bank.csv"}, out[0].Position)
	assert.Equal(t, "unrecognized header", out[0].Message)
	assert.Equal(t, map[string]any{"cause": "no column for date"}, out[0].Details)

	assert.Zero(t, out[1].Position)
	assert.Equal(t, "format", out[1].Kind)

	assert.Equal(t, "*errors.errorString", out[2].Type)
	assert.Equal(t, "", out[2].Kind)
}

func TestImportErrors(t *testing.T) {
	errs := ImportErrors([]*ledger.ImportError{ledger.NewFormatError(2, "date", "invalid")})
	assert.Equal(t, 1, len(errs))
	assert.Equal(t, "row 2, date: invalid", errs[0].Error())
}
