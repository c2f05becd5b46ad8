package letterage

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Field names a matching criterion.
type Field string

const (
	FieldAmount     Field = "amount"
	FieldDate       Field = "date"
	FieldReference  Field = "reference"
	FieldThirdParty Field = "third_party"
)

func (f Field) valid() bool {
	switch f {
	case FieldAmount, FieldDate, FieldReference, FieldThirdParty:
		return true
	}
	return false
}

// Criterion is one scored condition of a rule.
type Criterion struct {
	Field      Field `yaml:"field"`
	ExactMatch bool  `yaml:"exact_match,omitempty"`
	// Tolerance is relative to the larger side total, for amounts only:
	// 0.05 accepts a 5% difference.
	Tolerance  decimal.Decimal `yaml:"tolerance,omitempty"`
	DaysWindow int             `yaml:"days_window,omitempty"`
}

// Rule selects the lines of an account pattern and says how to pair them.
type Rule struct {
	ID             string          `yaml:"id"`
	Name           string          `yaml:"name"`
	AccountPattern string          `yaml:"account_pattern"`
	Criteria       []Criterion     `yaml:"criteria"`
	Tolerance      decimal.Decimal `yaml:"tolerance"`
	AutoValidate   bool            `yaml:"auto_validate"`
	Priority       int             `yaml:"priority,omitempty"`
	Active         bool            `yaml:"active"`
}

// Prefix returns the account prefix of the pattern.
func (r Rule) Prefix() string {
	return strings.TrimSuffix(r.AccountPattern, "%")
}

// Matches reports whether account falls under the rule. A trailing %
// matches any suffix; otherwise the account must be equal.
func (r Rule) Matches(account string) bool {
	if strings.HasSuffix(r.AccountPattern, "%") {
		return strings.HasPrefix(account, r.Prefix())
	}
	return account == r.AccountPattern
}

// Combinatorial reports whether the rule tolerates non-exact criteria,
// which enables multi-line matches.
func (r Rule) Combinatorial() bool {
	for _, c := range r.Criteria {
		if !c.ExactMatch {
			return true
		}
	}
	return false
}

// Validate checks the rule is usable.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule has no id")
	}
	if r.AccountPattern == "" || strings.Count(r.AccountPattern, "%") > 1 ||
		(strings.Contains(r.AccountPattern, "%") && !strings.HasSuffix(r.AccountPattern, "%")) {
		return fmt.Errorf("rule %s: invalid account pattern %q", r.ID, r.AccountPattern)
	}
	if len(r.Criteria) == 0 {
		return fmt.Errorf("rule %s: no criteria", r.ID)
	}
	if r.Tolerance.IsNegative() {
		return fmt.Errorf("rule %s: negative tolerance", r.ID)
	}
	for _, c := range r.Criteria {
		if !c.Field.valid() {
			return fmt.Errorf("rule %s: unknown criterion field %q", r.ID, c.Field)
		}
		if c.Field == FieldDate && c.DaysWindow <= 0 {
			return fmt.Errorf("rule %s: date criterion needs a positive days_window", r.ID)
		}
	}
	return nil
}

// overlaps reports whether the rule can select lines under prefix.
func (r Rule) overlaps(prefix string) bool {
	p := r.Prefix()
	if !strings.HasSuffix(r.AccountPattern, "%") {
		return strings.HasPrefix(r.AccountPattern, prefix)
	}
	return strings.HasPrefix(p, prefix) || strings.HasPrefix(prefix, p)
}

// DefaultRules returns the built-in rule set.
func DefaultRules() []Rule {
	cent := decimal.New(1, -2)
	return []Rule{
		{
			ID:             "clients_exact_amount",
			Name:           "Clients - exact amount",
			AccountPattern: "411%",
			Criteria: []Criterion{
				{Field: FieldAmount, ExactMatch: true},
				{Field: FieldDate, DaysWindow: 60},
			},
			Tolerance:    cent,
			AutoValidate: true,
			Priority:     10,
			Active:       true,
		},
		{
			ID:             "suppliers_exact_amount",
			Name:           "Suppliers - exact amount",
			AccountPattern: "401%",
			Criteria: []Criterion{
				{Field: FieldAmount, ExactMatch: true},
				{Field: FieldDate, DaysWindow: 90},
			},
			Tolerance:    cent,
			AutoValidate: true,
			Priority:     10,
			Active:       true,
		},
		{
			ID:             "clients_reference",
			Name:           "Clients - invoice reference",
			AccountPattern: "411%",
			Criteria: []Criterion{
				{Field: FieldReference, ExactMatch: true},
				{Field: FieldAmount, Tolerance: decimal.New(5, -2)},
			},
			Tolerance:    cent,
			AutoValidate: false,
			Priority:     20,
			Active:       true,
		},
		{
			ID:             "bank_reconciliation",
			Name:           "Bank reconciliation",
			AccountPattern: "512%",
			Criteria: []Criterion{
				{Field: FieldAmount, ExactMatch: true},
				{Field: FieldDate, DaysWindow: 5},
			},
			Tolerance:    decimal.Zero,
			AutoValidate: true,
			Priority:     10,
			Active:       true,
		},
	}
}

// sortRules orders rules by priority, keeping declaration order for ties.
func sortRules(rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a YAML rule file:
//
//	rules:
//	  - id: bank
//	    account_pattern: "512%"
//	    criteria:
//	      - field: amount
//	        exact_match: true
//	    tolerance: "0.00"
//	    auto_validate: true
//	    active: true
func LoadRules(r io.Reader) ([]Rule, error) {
	var rf ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("rule file is empty")
		}
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}

	seen := make(map[string]bool, len(rf.Rules))
	for _, rule := range rf.Rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("duplicate rule id %q", rule.ID)
		}
		seen[rule.ID] = true
	}
	return rf.Rules, nil
}

// SaveRules writes rules in the format read by LoadRules.
func SaveRules(w io.Writer, rules []Rule) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(ruleFile{Rules: rules}); err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	return enc.Close()
}
