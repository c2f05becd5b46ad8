package output

import (
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Align is the alignment of a table column.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// Column describes one table column.
type Column struct {
	Title string
	Align Align
}

// Table buffers rows and writes them with padded columns. Cells may carry
// ANSI styling; widths are measured on the visible text.
type Table struct {
	columns []Column
	rows    [][]string
}

// NewTable creates a table with the given columns.
func NewTable(columns ...Column) *Table {
	return &Table{columns: columns}
}

// Add appends a row. Missing cells are blank, extra cells are dropped.
func (t *Table) Add(cells ...string) {
	row := make([]string, len(t.columns))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

func visibleWidth(s string) int {
	return runewidth.StringWidth(stripANSI(s))
}

// stripANSI removes escape sequences so that styled cells measure the
// same as plain ones.
func stripANSI(s string) string {
	if !strings.Contains(s, "\x1b[") {
		return s
	}
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Render writes the header, a rule and every row to w.
func (t *Table) Render(w io.Writer, styles *Styles) error {
	widths := make([]int, len(t.columns))
	for i, c := range t.columns {
		widths[i] = runewidth.StringWidth(c.Title)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], visibleWidth(cell))
		}
	}

	var b strings.Builder
	header := make([]string, len(t.columns))
	rule := make([]string, len(t.columns))
	for i, c := range t.columns {
		header[i] = styles.Keyword(pad(c.Title, widths[i], c.Align))
		rule[i] = strings.Repeat("─", widths[i])
	}
	writeRow(&b, header)
	writeRow(&b, []string{styles.Dim(strings.Join(rule, "  "))})

	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = pad(cell, widths[i], t.columns[i].Align)
		}
		writeRow(&b, cells)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString(strings.TrimRight(strings.Join(cells, "  "), " "))
	b.WriteByte('\n')
}

func pad(s string, width int, align Align) string {
	fill := width - visibleWidth(s)
	if fill <= 0 {
		return s
	}
	if align == AlignRight {
		return strings.Repeat(" ", fill) + s
	}
	return s + strings.Repeat(" ", fill)
}
