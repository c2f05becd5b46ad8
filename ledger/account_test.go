package ledger

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestParseAccountClass(t *testing.T) {
	tests := []struct {
		number string
		want   AccountClass
		side   Side
	}{
		{"101300", ClassCapital, SideDebit},
		{"411000", ClassThirdParty, SideCredit},
		{"512100", ClassFinancial, SideNone},
		{"607000", ClassExpenses, SideDebit},
		{"706000", ClassRevenues, SideCredit},
		{" 801", ClassSpecial, SideDebit},
		{"X12", ClassUnknown, SideNone},
		{"", ClassUnknown, SideNone},
	}
	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			class := ParseAccountClass(tt.number)
			assert.Equal(t, tt.want, class)
			assert.Equal(t, tt.side, class.NormalSide())
		})
	}
}

func TestInferJournalType(t *testing.T) {
	tests := []struct {
		code string
		want JournalType
	}{
		{"BQ1", JournalBank},
		{"BNQ", JournalBank},
		{"bk", JournalBank},
		{"CAIS", JournalCash},
		{"VT", JournalSale},
		{"VEN", JournalSale},
		{"ACH", JournalPurchase},
		{"HA", JournalPurchase},
		{"FOU", JournalPurchase},
		{"OD", JournalMiscellaneous},
		{"PAIE", JournalMiscellaneous},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, InferJournalType(tt.code))
		})
	}
}

func TestStandardJournalCodes(t *testing.T) {
	assert.True(t, IsStandardJournalCode("od"))
	assert.True(t, IsStandardJournalCode("CAIS"))
	assert.False(t, IsStandardJournalCode("XYZ"))
}

func TestParseJournalType(t *testing.T) {
	assert.Equal(t, JournalSale, ParseJournalType("Ventes"))
	assert.Equal(t, JournalBank, ParseJournalType("bank"))
	assert.Equal(t, JournalMiscellaneous, ParseJournalType("other"))
}
