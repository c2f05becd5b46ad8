package mapping

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule matches header cells for one field. Exclude patterns veto a match
// so that, for example, "Libellé compte" is not taken for an account
// number column.
type Rule struct {
	Field   Field
	Include []*regexp.Regexp
	Exclude []*regexp.Regexp
}

// Matches reports whether header belongs to the rule's field.
func (r Rule) Matches(header string) bool {
	header = normalizeHeader(header)
	if header == "" {
		return false
	}
	for _, re := range r.Exclude {
		if re.MatchString(header) {
			return false
		}
	}
	for _, re := range r.Include {
		if re.MatchString(header) {
			return true
		}
	}
	return false
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile("(?i)" + e)
	}
	return out
}

// DefaultRules are evaluated top to bottom; each field claims the first
// unclaimed column it matches.
func DefaultRules() []Rule {
	return []Rule{
		{
			Field:   FieldDate,
			Include: patterns(`^ecrituredate$`, `date`, `jour`, `[ée]ch[ée]ance`, `datum`),
			Exclude: patterns(`let`, `valid`, `pi[eè]ce`),
		},
		{
			Field:   FieldAccountNumber,
			Include: patterns(`^comptenum$`, `n(um[ée]ro|°|o)?.?compte`, `compte`, `account`, `^acc(ou)?nt`, `nominal`, `gl.?code`, `^cpt`),
			Exclude: patterns(`lib`, `nom`, `name`, `aux`, `intitul`),
		},
		{
			Field:   FieldAccountName,
			Include: patterns(`^comptelib$`, `libell[ée].?compte`, `nom.?compte`, `intitul[ée].?compte`, `account.?name`),
		},
		{
			Field:   FieldJournalCode,
			Include: patterns(`^journalcode$`, `code.?journal`, `journal`, `^jrn`, `^jl$`),
			Exclude: patterns(`lib`, `nom`, `name`),
		},
		{
			Field:   FieldJournalName,
			Include: patterns(`^journallib$`, `libell[ée].?journal`, `journal.?name`, `nom.?journal`),
		},
		{
			Field:   FieldEntryNumber,
			Include: patterns(`^ecriturenum$`, `num.?[ée]criture`, `n°.?[ée]criture`, `entry.?(number|num|no)`, `transaction.?id`, `docnum`, `mouvement`),
		},
		{
			Field:   FieldReference,
			Include: patterns(`^pieceref$`, `r[ée]f[ée]rence`, `^ref`, `pi[eè]ce`, `invoice.?(number|no)`, `facture`, `num[ée]ro`, `n°`),
			Exclude: patterns(`date`, `compte`, `[ée]criture`),
		},
		{
			Field:   FieldLabel,
			Include: patterns(`^ecriturelib$`, `libell[ée]`, `description`, `label`, `intitul[ée]`, `memo`, `narration`),
			Exclude: patterns(`compte`, `journal`, `aux`),
		},
		{
			Field:   FieldDebit,
			Include: patterns(`d[ée]bit`, `^dr$`, `doit`),
		},
		{
			Field:   FieldCredit,
			Include: patterns(`cr[ée]dit`, `^cr$`, `avoir`),
		},
		{
			Field:   FieldAmount,
			Include: patterns(`montant`, `amount`, `somme`, `valeur`, `value`),
			Exclude: patterns(`devise`, `foreign`, `date`),
		},
		{
			Field:   FieldThirdParty,
			Include: patterns(`^compauxnum$`, `tiers`, `client`, `fournisseur`, `supplier`, `customer`, `third.?party`, `auxiliaire`, `sub.?account`),
			Exclude: patterns(`lib`, `nom`, `name`),
		},
		{
			Field:   FieldCurrency,
			Include: patterns(`^idevise$`, `^devise$`, `currency`),
		},
	}
}

// normalizeHeader trims, lowercases and collapses inner whitespace.
func normalizeHeader(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(h))), " ")
}

// Suggest builds an advisory mapping from a header row.
func Suggest(headers []string) *Mapping {
	return SuggestWith(headers, DefaultRules())
}

// SuggestWith builds a mapping using custom rules.
func SuggestWith(headers []string, rules []Rule) *Mapping {
	m := New(headers)
	used := make(map[int]bool, len(headers))

	for _, rule := range rules {
		if m.Has(rule.Field) {
			continue
		}
		for i, h := range headers {
			if used[i] || !rule.Matches(h) {
				continue
			}
			m.Set(rule.Field, i)
			used[i] = true
			break
		}
	}

	// A generic amount column is only meaningful without debit/credit
	// columns; otherwise it is usually a foreign currency amount.
	if m.Has(FieldDebit) || m.Has(FieldCredit) {
		m.Unset(FieldAmount)
	}

	return m
}

// patternFile is the YAML layout of extra mapping rules:
//
//	rules:
//	  - field: account_number
//	    include: ["^n° de compte$"]
//	    exclude: []
type patternFile struct {
	Rules []struct {
		Field   Field    `yaml:"field"`
		Include []string `yaml:"include"`
		Exclude []string `yaml:"exclude"`
	} `yaml:"rules"`
}

// LoadRules reads extra rules from YAML. They are evaluated before the
// default rules.
func LoadRules(r io.Reader) ([]Rule, error) {
	var pf patternFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		if err == io.EOF {
			return DefaultRules(), nil
		}
		return nil, fmt.Errorf("failed to decode mapping rules: %w", err)
	}

	rules := make([]Rule, 0, len(pf.Rules))
	for i, pr := range pf.Rules {
		rule := Rule{Field: pr.Field}
		for _, expr := range pr.Include {
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				return nil, fmt.Errorf("rule %d: invalid include pattern %q: %w", i+1, expr, err)
			}
			rule.Include = append(rule.Include, re)
		}
		for _, expr := range pr.Exclude {
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				return nil, fmt.Errorf("rule %d: invalid exclude pattern %q: %w", i+1, expr, err)
			}
			rule.Exclude = append(rule.Exclude, re)
		}
		rules = append(rules, rule)
	}
	return append(rules, DefaultRules()...), nil
}
