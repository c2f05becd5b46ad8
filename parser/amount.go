package parser

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrEmptyAmount is returned by ParseAmount for a blank cell.
var ErrEmptyAmount = errors.New("empty amount")

var currencyTokens = []string{"EUR", "USD", "GBP", "CHF", "XOF", "XAF", "FCFA", "CFA"}

// ParseAmount parses a locale-formatted number into a signed decimal.
//
//	1 234,56   → 1234.56
//	1.234,56   → 1234.56
//	1,234.56   → 1234.56
//	1,234,567  → 1234567
//	(12,50)    → -12.50
//	-12.50 €   → -12.50
//
// When both separators appear the last one is the decimal separator. A
// lone comma followed by at most two digits is a decimal comma, any other
// comma groups thousands.
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrEmptyAmount
	}

	upper := strings.ToUpper(s)
	for _, tok := range currencyTokens {
		upper = strings.ReplaceAll(upper, tok, "")
	}

	var b strings.Builder
	for _, r := range upper {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.', r == '-', r == '+', r == '(', r == ')':
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '\'':
			// Thousands grouping.
		case unicode.Is(unicode.Sc, r):
			// Currency symbol.
		default:
			return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
		}
	}
	s = b.String()
	if s == "" {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	switch {
	case strings.HasPrefix(s, "-"):
		negative = !negative
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		negative = !negative
		s = s[:len(s)-1]
	}

	s = normalizeSeparators(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// normalizeSeparators rewrites s so that '.' is the only, decimal, separator.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			return strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}
