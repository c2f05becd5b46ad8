package ledger

// IsLetterCode reports whether s is a code the letterage engine could have
// generated: three or more uppercase ASCII letters.
func IsLetterCode(s string) bool {
	if len(s) < 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// LetterCodeLess orders letter codes by length, then alphabetically, so
// that ZZZ sorts before AAAA.
func LetterCodeLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// MaxLetterCode returns the highest generated code among lines.
func MaxLetterCode(lines []*Line) string {
	max := ""
	for _, l := range lines {
		if IsLetterCode(l.LetterageCode) && LetterCodeLess(max, l.LetterageCode) {
			max = l.LetterageCode
		}
	}
	return max
}
