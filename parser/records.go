package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyFile is returned when a source holds no header row.
var ErrEmptyFile = errors.New("file is empty")

// maxLineSize bounds a single physical line.
const maxLineSize = 1 << 20

// Record is one row of cells with its 1-based physical row number.
type Record struct {
	Row   int
	Cells []string
}

// Empty reports whether every cell of the record is blank.
func (r Record) Empty() bool {
	for _, c := range r.Cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// SplitRecord splits one line on delim. Fields may be wrapped in double
// quotes, in which case delim is literal and "" is an escaped quote.
func SplitRecord(line string, delim rune) []string {
	var (
		fields  []string
		field   strings.Builder
		quoted  bool
		started bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quoted && r == '"':
			if i+1 < len(runes) && runes[i+1] == '"' {
				field.WriteRune('"')
				i++
				continue
			}
			quoted = false
		case !quoted && r == '"' && !started:
			quoted = true
			started = true
		case !quoted && r == delim:
			fields = append(fields, field.String())
			field.Reset()
			started = false
		default:
			field.WriteRune(r)
			if !unicodeSpace(r) {
				started = true
			}
		}
	}
	return append(fields, field.String())
}

func unicodeSpace(r rune) bool {
	return r == ' ' || r == '\t'
}

// openQuotes reports whether line ends inside a quoted field.
func openQuotes(line string, delim rune) bool {
	quoted := false
	started := false
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quoted && r == '"':
			if i+1 < len(runes) && runes[i+1] == '"' {
				i++
				continue
			}
			quoted = false
		case !quoted && r == '"' && !started:
			quoted = true
			started = true
		case !quoted && r == delim:
			started = false
		case !unicodeSpace(r):
			started = true
		}
	}
	return quoted
}

// ReadRecords reads delimited text. A quoted field may span physical
// lines; the record keeps the row of its first line.
func ReadRecords(r io.Reader, delim rune) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	var (
		records []Record
		pending strings.Builder
		start   int
		row     int
	)
	for sc.Scan() {
		row++
		line := strings.TrimSuffix(sc.Text(), "\r")
		if pending.Len() > 0 {
			pending.WriteByte('\n')
		} else {
			start = row
		}
		pending.WriteString(line)
		if openQuotes(pending.String(), delim) {
			continue
		}
		records = append(records, Record{Row: start, Cells: SplitRecord(pending.String(), delim)})
		pending.Reset()
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read row %d: %w", row+1, err)
	}
	if pending.Len() > 0 {
		records = append(records, Record{Row: start, Cells: SplitRecord(pending.String(), delim)})
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}
	return records, nil
}
