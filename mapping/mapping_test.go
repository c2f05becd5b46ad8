package mapping

import (
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestSuggest(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		want    map[Field]int
		absent  []Field
	}{
		{
			name:    "french bank export",
			headers: []string{"Date opération", "Libellé", "Débit", "Crédit", "Compte"},
			want: map[Field]int{
				FieldDate:          0,
				FieldLabel:         1,
				FieldDebit:         2,
				FieldCredit:        3,
				FieldAccountNumber: 4,
			},
			absent: []Field{FieldAmount},
		},
		{
			name:    "account name is not an account number",
			headers: []string{"Libellé compte", "N° compte", "Date", "Libellé", "Montant"},
			want: map[Field]int{
				FieldAccountName:   0,
				FieldAccountNumber: 1,
				FieldDate:          2,
				FieldLabel:         3,
				FieldAmount:        4,
			},
		},
		{
			name:    "english export",
			headers: []string{"Transaction Date", "Account", "Description", "Reference", "Amount", "Customer"},
			want: map[Field]int{
				FieldDate:          0,
				FieldAccountNumber: 1,
				FieldLabel:         2,
				FieldReference:     3,
				FieldAmount:        4,
				FieldThirdParty:    5,
			},
		},
		{
			name:    "foreign amount ignored next to debit and credit",
			headers: []string{"Date", "Compte", "Libellé", "Débit", "Crédit", "Montant devise"},
			want: map[Field]int{
				FieldDebit:  3,
				FieldCredit: 4,
			},
			absent: []Field{FieldAmount},
		},
		{
			name:    "first unclaimed column wins",
			headers: []string{"Date", "Date valeur", "Compte", "Libellé", "Montant"},
			want: map[Field]int{
				FieldDate:   0,
				FieldAmount: 4,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Suggest(tt.headers)
			for f, idx := range tt.want {
				assert.Equal(t, idx, m.Column(f), "field %s", f)
			}
			for _, f := range tt.absent {
				assert.False(t, m.Has(f), "field %s should not be mapped", f)
			}
		})
	}
}

func TestSuggestSignedAmount(t *testing.T) {
	m := Suggest([]string{"Date", "Compte", "Libellé", "Montant"})
	var amount Column
	for _, c := range m.Columns() {
		if c.Field == FieldAmount {
			amount = c
		}
	}
	assert.True(t, amount.Signed)
	assert.Equal(t, "Montant", amount.Header)
	assert.NoError(t, m.Validate())
}

func TestOverride(t *testing.T) {
	m := Suggest([]string{"Date", "Compte", "Libellé", "Montant", "Notes"})
	m.Override(map[Field]int{
		FieldLabel:  4,
		FieldAmount: -1,
		FieldDebit:  3,
	})

	assert.Equal(t, 4, m.Column(FieldLabel))
	assert.Equal(t, 3, m.Column(FieldDebit))
	assert.False(t, m.Has(FieldAmount))
}

func TestOverrideReleasesColumn(t *testing.T) {
	m := Suggest([]string{"Date", "Compte", "Libellé"})
	m.Override(map[Field]int{FieldReference: 2})

	assert.Equal(t, 2, m.Column(FieldReference))
	assert.False(t, m.Has(FieldLabel))
}

func TestValidate(t *testing.T) {
	err := Suggest([]string{"Foo", "Bar"}).Validate()
	var missing *MissingFieldsError
	assert.True(t, asMissing(err, &missing))
	assert.Equal(t, []string{"date", "account_number", "label", "debit/credit or amount"}, missing.Fields)
	assert.Contains(t, err.Error(), "unrecognized header")

	m := New([]string{"Date"})
	m.Set(FieldDate, 0)
	m.Set(FieldAccountNumber, 5)
	assert.Error(t, m.Validate())
}

func asMissing(err error, target **MissingFieldsError) bool {
	e, ok := err.(*MissingFieldsError)
	if ok {
		*target = e
	}
	return ok
}

func TestStrict(t *testing.T) {
	m := Strict(StrictColumns)
	for i, name := range StrictColumns {
		assert.True(t, m.Column(fieldForStrict(name)) == i, "column %s", name)
	}
	assert.True(t, LooksStrict(StrictColumns))
}

func TestStrictAliases(t *testing.T) {
	m := Strict([]string{"CodeJournal", "NumEcriture", "DateEcriture", "NumCompte", "Libellé", "Débit", "Crédit", "Montantdevise"})
	assert.Equal(t, 0, m.Column(FieldJournalCode))
	assert.Equal(t, 1, m.Column(FieldEntryNumber))
	assert.Equal(t, 2, m.Column(FieldDate))
	assert.Equal(t, 3, m.Column(FieldAccountNumber))
	assert.Equal(t, 4, m.Column(FieldLabel))
	assert.Equal(t, 5, m.Column(FieldDebit))
	assert.Equal(t, 6, m.Column(FieldCredit))
	assert.Equal(t, 7, m.Column(FieldForeignAmount))
	assert.False(t, m.Has(FieldAmount))
}

func TestStrictPositionalFallback(t *testing.T) {
	m := Strict([]string{"VT", "Ventes", "1", "20240301", "411000"})
	assert.Equal(t, 0, m.Column(FieldJournalCode))
	assert.Equal(t, 4, m.Column(FieldAccountNumber))

	m = StrictByName([]string{"VT", "Ventes", "1", "20240301", "411000"})
	assert.Equal(t, 0, len(m.Columns()))
}

func TestLoadRules(t *testing.T) {
	src := `
rules:
  - field: account_number
    include: ["^gl$"]
`
	rules, err := LoadRules(strings.NewReader(src))
	assert.NoError(t, err)

	m := SuggestWith([]string{"Date", "GL", "Libellé", "Montant"}, rules)
	assert.Equal(t, 1, m.Column(FieldAccountNumber))

	_, err = LoadRules(strings.NewReader("rules:\n  - field: nope\n"))
	assert.Error(t, err)
}

func fieldForStrict(name string) Field {
	return strictAliases[canonicalHeader(name)]
}
