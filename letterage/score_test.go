package letterage

import (
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"

	"github.com/robinvdvleuten/lettrage/ledger"
)

func single(rule Rule, d, c *ledger.Line) (float64, string, bool) {
	conf, diff, ok := Score(rule, []*ledger.Line{d}, []*ledger.Line{c})
	return conf, diff.String(), ok
}

func TestScore(t *testing.T) {
	relative := Rule{
		Criteria:  []Criterion{{Field: FieldAmount, Tolerance: decimal.RequireFromString("0.05")}},
		Tolerance: decimal.NewFromInt(10),
	}
	party := Rule{
		Criteria:  []Criterion{{Field: FieldThirdParty}},
		Tolerance: decimal.NewFromInt(1),
	}
	withParty := func(l *ledger.Line, aux string) *ledger.Line {
		l.AuxiliaryAccount = aux
		return l
	}

	tests := []struct {
		name     string
		rule     Rule
		debit    *ledger.Line
		credit   *ledger.Line
		wantConf float64
		wantDiff string
		wantOK   bool
	}{
		{
			name:     "ExactAmountNearDate",
			rule:     bankRule(),
			debit:    debit("d", "512", 1, "1000"),
			credit:   credit("c", "512", 3, "1000"),
			wantConf: 1,
			wantDiff: "0",
			wantOK:   true,
		},
		{
			name:     "OutsideDateWindow",
			rule:     bankRule(),
			debit:    debit("d", "512", 1, "1000"),
			credit:   credit("c", "512", 10, "1000"),
			wantConf: 0.6,
			wantDiff: "0",
			wantOK:   true,
		},
		{
			name:     "WithinRuleTolerance",
			rule:     bankRule(),
			debit:    debit("d", "512", 1, "10.00"),
			credit:   credit("c", "512", 1, "10.01"),
			wantConf: 1,
			wantDiff: "0.01",
			wantOK:   true,
		},
		{
			name:     "BeyondTwiceTolerance",
			rule:     bankRule(),
			debit:    debit("d", "512", 1, "10.00"),
			credit:   credit("c", "512", 1, "10.03"),
			wantConf: 0,
			wantDiff: "0.03",
			wantOK:   false,
		},
		{
			name:     "RelativeAmountTolerance",
			rule:     relative,
			debit:    debit("d", "411", 1, "100"),
			credit:   credit("c", "411", 1, "96"),
			wantConf: 0.8,
			wantDiff: "4",
			wantOK:   true,
		},
		{
			name:     "ThirdParty",
			rule:     party,
			debit:    withParty(debit("d", "411", 1, "100"), "C001"),
			credit:   withParty(credit("c", "411", 1, "99.50"), "C001"),
			wantConf: 1,
			wantDiff: "0.5",
			wantOK:   true,
		},
		{
			name:     "ThirdPartyMissing",
			rule:     party,
			debit:    debit("d", "411", 1, "100"),
			credit:   credit("c", "411", 1, "99.50"),
			wantConf: 0,
			wantDiff: "0.5",
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf, diff, ok := single(tt.rule, tt.debit, tt.credit)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantDiff, diff)
			assert.Equal(t, tt.wantConf, conf)
		})
	}
}

func TestScoreMultiLinePenalty(t *testing.T) {
	rule := Rule{
		Criteria:  []Criterion{{Field: FieldAmount, ExactMatch: true}},
		Tolerance: decimal.NewFromInt(1),
	}
	conf, diff, ok := Score(rule,
		[]*ledger.Line{debit("d1", "411", 1, "50"), debit("d2", "411", 1, "50")},
		[]*ledger.Line{credit("c", "411", 1, "99.50")},
	)
	assert.True(t, ok)
	assert.Equal(t, "0.5", diff.String())
	assert.Equal(t, 0.9, conf)
}

func TestScoreReference(t *testing.T) {
	exact := Rule{Criteria: []Criterion{{Field: FieldReference, ExactMatch: true}}}
	fuzzy := Rule{Criteria: []Criterion{{Field: FieldReference}}}

	d := debit("d", "411", 1, "10")
	d.Reference = "FA-001234"
	c := credit("c", "411", 1, "10")
	c.Reference = "Paiement facture 001234"

	conf, _, ok := single(exact, d, c)
	assert.True(t, ok)
	assert.Equal(t, 0.1, conf)

	conf, _, ok = single(fuzzy, d, c)
	assert.True(t, ok)
	assert.Equal(t, 1.0, conf)
}

func TestScoreEmptySides(t *testing.T) {
	_, _, ok := Score(bankRule(), nil, []*ledger.Line{credit("c", "512", 1, "1")})
	assert.False(t, ok)
}

func TestFuzzyReference(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"FA-2024-001", "fa2024001", true},
		{"VIR 4567 CLIENT", "Facture 4567", true},
		{"INV-12", "PAY-12", false},
		{"", "FA-1", false},
		{"Loyer mars", "Loyer", true},
		{"ABC", "XYZ", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FuzzyReference(tt.a, tt.b), "%q ~ %q", tt.a, tt.b)
	}
}
