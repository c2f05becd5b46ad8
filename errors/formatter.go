// Package errors renders import problems for the different consumers of
// the pipeline: the command line and the HTTP API.
//
// The package defines a Formatter interface and two implementations:
//   - TextFormatter: human readable, optionally with the offending source row
//   - JSONFormatter: structured objects for APIs and the web interface
//
// The error types themselves live in the ledger package; this package only
// handles presentation.
package errors

import (
	"bytes"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/robinvdvleuten/lettrage/ledger"
	"github.com/robinvdvleuten/lettrage/mapping"
)

// Formatter formats errors for output in different formats.
type Formatter interface {
	// Format formats a single error.
	Format(err error) string

	// FormatAll formats multiple errors.
	FormatAll(errs []error) string
}

// TextFormatter formats errors for command-line output.
type TextFormatter struct {
	name      string
	source    []string
	delimiter rune
	mapping   *mapping.Mapping
}

// TextFormatterOption is an option for configuring TextFormatter.
type TextFormatterOption func(*TextFormatter)

// WithName prefixes every message with the file name.
func WithName(name string) TextFormatterOption {
	return func(tf *TextFormatter) {
		tf.name = name
	}
}

// WithSource sets the decoded file content so that row errors show the
// offending row. delim is used to place the caret under the field.
func WithSource(source []byte, delim rune) TextFormatterOption {
	return func(tf *TextFormatter) {
		tf.source = strings.Split(strings.ReplaceAll(string(source), "\r\n", "\n"), "\n")
		tf.delimiter = delim
	}
}

// WithMapping tells the formatter which column holds which field.
func WithMapping(m *mapping.Mapping) TextFormatterOption {
	return func(tf *TextFormatter) {
		tf.mapping = m
	}
}

// NewTextFormatter creates a new text formatter.
func NewTextFormatter(opts ...TextFormatterOption) *TextFormatter {
	tf := &TextFormatter{}
	for _, opt := range opts {
		opt(tf)
	}
	return tf
}

// Format formats a single error.
func (tf *TextFormatter) Format(err error) string {
	message := err.Error()
	if tf.name != "" {
		var fileErr *ledger.FileError
		if !stdErrors.As(err, &fileErr) || fileErr.Source == "" {
			message = tf.name + ": " + message
		}
	}

	var importErr *ledger.ImportError
	if stdErrors.As(err, &importErr) {
		if importErr.IsWarning() {
			message = "warning: " + message
		}
		if importErr.Row > 0 && tf.source != nil {
			return tf.formatWithSourceContext(importErr, message)
		}
	}
	return message
}

// FormatAll formats multiple errors, separating them with blank lines.
func (tf *TextFormatter) FormatAll(errs []error) string {
	if len(errs) == 0 {
		return ""
	}

	var buf bytes.Buffer
	for i, err := range errs {
		buf.WriteString(tf.Format(err))

		if i < len(errs)-1 {
			buf.WriteString("\n\n")
		}
	}

	return buf.String()
}

// formatWithSourceContext shows the row before, the offending row and the
// row after. The caret points at the field when its column is known.
func (tf *TextFormatter) formatWithSourceContext(e *ledger.ImportError, message string) string {
	var buf bytes.Buffer
	buf.WriteString(message)
	buf.WriteString("\n\n")

	// Rows are 1-based. The header is not shown as context.
	start := min(max(e.Row-2, 1), e.Row-1)
	end := min(e.Row, len(tf.source)-1)
	for i := start; i <= end; i++ {
		if i != e.Row-1 && strings.TrimSpace(tf.source[i]) == "" {
			continue
		}
		fmt.Fprintf(&buf, "%5d | %s\n", i+1, tf.source[i])

		if i == e.Row-1 {
			if col, ok := tf.fieldOffset(tf.source[i], e.Field); ok {
				buf.WriteString(strings.Repeat(" ", 8+col))
				buf.WriteString("^\n")
			}
		}
	}
	return buf.String()
}

// fieldOffset returns the display column at which field starts in line.
func (tf *TextFormatter) fieldOffset(line, field string) (int, bool) {
	if tf.mapping == nil || tf.delimiter == 0 || field == "" {
		return 0, false
	}
	f, err := mapping.ParseField(field)
	if err != nil || !tf.mapping.Has(f) {
		return 0, false
	}
	target := tf.mapping.Column(f)

	column := 0
	quoted := false
	for i, r := range line {
		if column == target {
			return runewidth.StringWidth(line[:i]), true
		}
		switch {
		case r == '"':
			quoted = !quoted
		case r == tf.delimiter && !quoted:
			column++
		}
	}
	if column == target {
		return runewidth.StringWidth(line), true
	}
	return 0, false
}

// JSONFormatter formats errors as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// ErrorJSON represents an error in JSON format.
type ErrorJSON struct {
	Type     string         `json:"type"`
	Message  string         `json:"message"`
	Position *PositionJSON  `json:"position,omitempty"`
	Kind     string         `json:"kind,omitempty"`
	Severity string         `json:"severity,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// PositionJSON locates an error in its source file.
type PositionJSON struct {
	Filename string `json:"filename,omitempty"`
	Row      int    `json:"row"`
	Field    string `json:"field,omitempty"`
}

// Format formats a single error as JSON.
func (jf *JSONFormatter) Format(err error) string {
	data, _ := json.Marshal(jf.toJSON(err))
	return string(data)
}

// FormatAll formats multiple errors as a JSON array.
func (jf *JSONFormatter) FormatAll(errs []error) string {
	data, _ := json.MarshalIndent(jf.FormatAllToSlice(errs), "", "  ")
	return string(data)
}

// FormatAllToSlice returns errors as a slice of ErrorJSON structs.
func (jf *JSONFormatter) FormatAllToSlice(errs []error) []ErrorJSON {
	result := make([]ErrorJSON, 0, len(errs))
	for _, err := range errs {
		result = append(result, jf.toJSON(err))
	}
	return result
}

func (jf *JSONFormatter) toJSON(err error) ErrorJSON {
	errJSON := ErrorJSON{
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
	}

	if e, ok := err.(interface{ GetRow() int }); ok && e.GetRow() > 0 {
		errJSON.Position = &PositionJSON{Row: e.GetRow()}
	}
	if e, ok := err.(interface{ GetKind() ledger.Kind }); ok {
		errJSON.Kind = e.GetKind().String()
	}
	if e, ok := err.(interface{ GetSeverity() ledger.Severity }); ok {
		errJSON.Severity = e.GetSeverity().String()
	}

	switch e := err.(type) {
	case *ledger.ImportError:
		errJSON.Message = e.Message
		if errJSON.Position != nil {
			errJSON.Position.Field = e.Field
		}
		if e.Entry != "" {
			errJSON.Details = map[string]any{"entry": e.Entry}
		}
	case *ledger.FileError:
		errJSON.Position = &PositionJSON{Filename: e.Source}
		errJSON.Message = e.Message
		if e.Err != nil {
			errJSON.Details = map[string]any{"cause": e.Err.Error()}
		}
	}

	return errJSON
}

// ImportErrors converts import errors to plain errors for the formatters.
func ImportErrors(errs []*ledger.ImportError) []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}
