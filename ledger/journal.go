package ledger

import (
	"strings"
)

// JournalType classifies a journal by business process.
type JournalType int

const (
	JournalMiscellaneous JournalType = iota
	JournalSale
	JournalPurchase
	JournalBank
	JournalCash
)

func (t JournalType) String() string {
	switch t {
	case JournalSale:
		return "sale"
	case JournalPurchase:
		return "purchase"
	case JournalBank:
		return "bank"
	case JournalCash:
		return "cash"
	default:
		return "miscellaneous"
	}
}

// ParseJournalType parses a journal type name as written in configuration.
func ParseJournalType(s string) JournalType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sale", "sales", "vente", "ventes":
		return JournalSale
	case "purchase", "purchases", "achat", "achats":
		return JournalPurchase
	case "bank", "banque":
		return JournalBank
	case "cash", "caisse":
		return JournalCash
	default:
		return JournalMiscellaneous
	}
}

// Prefixes are checked longest first so that "BNQ" does not fall back to
// a shorter ambiguous match.
var journalPrefixes = []struct {
	prefix string
	typ    JournalType
}{
	{"BNQ", JournalBank},
	{"CAI", JournalCash},
	{"VEN", JournalSale},
	{"ACH", JournalPurchase},
	{"FOU", JournalPurchase},
	{"BQ", JournalBank},
	{"BA", JournalBank},
	{"BK", JournalBank},
	{"CA", JournalCash},
	{"CS", JournalCash},
	{"VT", JournalSale},
	{"VE", JournalSale},
	{"AC", JournalPurchase},
	{"HA", JournalPurchase},
	{"AH", JournalPurchase},
	{"PU", JournalPurchase},
}

// InferJournalType derives the journal type from a journal code prefix.
func InferJournalType(code string) JournalType {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, p := range journalPrefixes {
		if strings.HasPrefix(code, p.prefix) {
			return p.typ
		}
	}
	return JournalMiscellaneous
}

// StandardJournalCodes lists the journal codes commonly found in French
// ledger exports.
var StandardJournalCodes = []string{
	"AC", "ACH", "VE", "VT", "VEN", "BQ", "BA", "CA", "CAIS",
	"OD", "AN", "EXT", "PAIE", "TVA", "INV",
}

// IsStandardJournalCode reports whether code is one of StandardJournalCodes.
func IsStandardJournalCode(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, c := range StandardJournalCodes {
		if c == code {
			return true
		}
	}
	return false
}

// JournalInfo is what a journal directory knows about a journal.
type JournalInfo struct {
	ID   string
	Code string
	Name string
	Type JournalType
}

// journalRule lists the account classes a journal type is expected to touch.
type journalRule struct {
	allowed  []AccountClass
	required []AccountClass
}

var journalRules = map[JournalType]journalRule{
	JournalSale: {
		allowed:  []AccountClass{ClassThirdParty, ClassRevenues, ClassFinancial},
		required: []AccountClass{ClassRevenues},
	},
	JournalPurchase: {
		allowed:  []AccountClass{ClassThirdParty, ClassExpenses, ClassFinancial},
		required: []AccountClass{ClassExpenses},
	},
	JournalBank: {
		allowed:  []AccountClass{ClassFinancial, ClassThirdParty, ClassExpenses, ClassRevenues},
		required: []AccountClass{ClassFinancial},
	},
	JournalCash: {
		allowed:  []AccountClass{ClassFinancial, ClassThirdParty, ClassExpenses, ClassRevenues},
		required: []AccountClass{ClassFinancial},
	},
}

func containsClass(classes []AccountClass, c AccountClass) bool {
	for _, x := range classes {
		if x == c {
			return true
		}
	}
	return false
}
