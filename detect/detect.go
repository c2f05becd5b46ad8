// Package detect classifies accounting export files and infers how their
// text is encoded and delimited.
//
// Detection order is: explicit hint, file extension, binary signature,
// strict ledger heuristic, then plain delimited text.
package detect

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// Format is the family of an input file.
type Format int

const (
	FormatUnknown Format = iota
	// FormatStrict is the pipe or tab delimited legal ledger export (FEC).
	FormatStrict
	FormatSpreadsheet
	FormatDelimited
)

func (f Format) String() string {
	switch f {
	case FormatStrict:
		return "strict"
	case FormatSpreadsheet:
		return "spreadsheet"
	case FormatDelimited:
		return "delimited"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format hint. An empty string yields FormatUnknown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatUnknown, nil
	case "strict", "fec":
		return FormatStrict, nil
	case "spreadsheet", "xlsx", "excel":
		return FormatSpreadsheet, nil
	case "delimited", "csv", "text":
		return FormatDelimited, nil
	default:
		return FormatUnknown, fmt.Errorf("unknown format %q, expected strict, spreadsheet or delimited", s)
	}
}

// Detection is the outcome of inspecting a file.
type Detection struct {
	Format    Format
	Encoding  Encoding
	Delimiter rune
	// Reason is a short human readable explanation of the classification.
	Reason string
}

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// strictHeaders are the first columns of a strict ledger export. Matching
// any two of them on the first line is enough.
var strictHeaders = []string{"journalcode", "journallib", "ecriturenum", "ecrituredate", "comptenum", "comptelib"}

// Detect classifies a file from its name and first bytes. A hint other
// than FormatUnknown always wins.
func Detect(name string, head []byte, hint Format) Detection {
	d := Detection{Encoding: DetectEncoding(head)}

	text := head
	if len(text) > sniffSize {
		text = text[:sniffSize]
	}

	switch {
	case hint != FormatUnknown:
		d.Format = hint
		d.Reason = "explicit format"
	case isSpreadsheetExt(name):
		d.Format = FormatSpreadsheet
		d.Reason = fmt.Sprintf("extension %s", strings.ToLower(filepath.Ext(name)))
	case bytes.HasPrefix(head, zipMagic) || bytes.HasPrefix(head, oleMagic):
		d.Format = FormatSpreadsheet
		d.Reason = "spreadsheet signature"
	case isStrict(name, text):
		d.Format = FormatStrict
		d.Reason = "strict ledger layout"
	default:
		d.Format = FormatDelimited
		d.Reason = "delimited text"
	}

	if d.Format != FormatSpreadsheet {
		d.Delimiter = DetectDelimiter(text, d.Format)
	}
	return d
}

func isSpreadsheetExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xls":
		return true
	}
	return false
}

func isStrict(name string, text []byte) bool {
	base := strings.ToUpper(filepath.Base(name))
	if strings.Contains(base, "FEC") {
		return true
	}

	first := firstLine(text)
	hits := 0
	lower := strings.ToLower(first)
	for _, h := range strictHeaders {
		if strings.Contains(lower, h) {
			hits++
		}
	}
	if hits >= 2 {
		return true
	}

	counts := countDelimiters(text)
	best := mostFrequent(counts, FormatUnknown)
	return (best == '|' || best == '\t') && counts[best] > 0
}

func firstLine(text []byte) string {
	text = bytes.TrimPrefix(text, utf8BOM)
	if i := bytes.IndexAny(text, "\r\n"); i >= 0 {
		text = text[:i]
	}
	return string(text)
}
