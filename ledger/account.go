package ledger

import (
	"strings"
)

// AccountClass is the leading digit of a French chart of accounts number.
type AccountClass int

const (
	ClassUnknown     AccountClass = 0
	ClassCapital     AccountClass = 1
	ClassFixedAssets AccountClass = 2
	ClassStocks      AccountClass = 3
	ClassThirdParty  AccountClass = 4
	ClassFinancial   AccountClass = 5
	ClassExpenses    AccountClass = 6
	ClassRevenues    AccountClass = 7
	ClassSpecial     AccountClass = 8
	ClassAnalytic    AccountClass = 9
)

// String returns the string representation of the account class
func (c AccountClass) String() string {
	switch c {
	case ClassCapital:
		return "capital"
	case ClassFixedAssets:
		return "fixed assets"
	case ClassStocks:
		return "stocks"
	case ClassThirdParty:
		return "third parties"
	case ClassFinancial:
		return "financial"
	case ClassExpenses:
		return "expenses"
	case ClassRevenues:
		return "revenues"
	case ClassSpecial:
		return "special"
	case ClassAnalytic:
		return "analytic"
	default:
		return "unknown"
	}
}

// NormalSide returns the side an account of this class is usually
// posted on. Financial accounts move both ways and report SideNone.
func (c AccountClass) NormalSide() Side {
	switch c {
	case ClassCapital, ClassFixedAssets, ClassStocks, ClassExpenses, ClassSpecial:
		return SideDebit
	case ClassThirdParty, ClassRevenues, ClassAnalytic:
		return SideCredit
	default:
		return SideNone
	}
}

// ParseAccountClass parses the class from the account number
func ParseAccountClass(number string) AccountClass {
	number = strings.TrimSpace(number)
	if number == "" {
		return ClassUnknown
	}
	c := number[0]
	if c < '1' || c > '9' {
		return ClassUnknown
	}
	return AccountClass(c - '0')
}

// AccountInfo is what an account directory knows about an account.
type AccountInfo struct {
	ID     string
	Number string
	Name   string
	Active bool
}

// Class returns the class of the account.
func (a AccountInfo) Class() AccountClass {
	return ParseAccountClass(a.Number)
}
