package formatter

import (
	"strings"
)

// escapeField makes a value safe for a single delimited cell. Line breaks
// become spaces. Values holding the delimiter or a double quote are
// wrapped in quotes, with inner quotes doubled.
func escapeField(s string, delim rune) string {
	if strings.ContainsAny(s, "\r\n") {
		s = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(s)
	}
	if !strings.ContainsRune(s, delim) && !strings.ContainsRune(s, '"') {
		return s
	}

	var buf strings.Builder
	buf.Grow(len(s) + 4)
	buf.WriteByte('"')
	for _, c := range s {
		if c == '"' {
			buf.WriteString(`""`)
			continue
		}
		buf.WriteRune(c)
	}
	buf.WriteByte('"')
	return buf.String()
}
