package cli

import (
	"context"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/robinvdvleuten/lettrage/detect"
	lerrors "github.com/robinvdvleuten/lettrage/errors"
	"github.com/robinvdvleuten/lettrage/importer"
	"github.com/robinvdvleuten/lettrage/ledger"
	"github.com/robinvdvleuten/lettrage/mapping"
)

var (
	errCaretStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#FF5F87", Dark: "#FF5F87"})
	errContextStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#808080", Dark: "#808080"})
)

// ErrorRenderer renders import problems with terminal styling and, for
// text files, the offending row.
type ErrorRenderer struct {
	formatter *lerrors.TextFormatter
}

// NewErrorRenderer creates a renderer. opts configure the underlying text
// formatter.
func NewErrorRenderer(opts ...lerrors.TextFormatterOption) *ErrorRenderer {
	return &ErrorRenderer{formatter: lerrors.NewTextFormatter(opts...)}
}

// newSourceRenderer builds a renderer that shows rows of data. The column
// mapping comes from analysis; without it the caret is omitted.
func newSourceRenderer(data []byte, hint detect.Format, analysis *importer.Analysis) *ErrorRenderer {
	name := ""
	if analysis != nil {
		name = analysis.Source
	}
	d := detect.Detect(name, data, hint)
	if d.Format == detect.FormatSpreadsheet {
		return NewErrorRenderer()
	}
	text, err := detect.Decode(data, d.Encoding)
	if err != nil {
		return NewErrorRenderer()
	}

	opts := []lerrors.TextFormatterOption{lerrors.WithSource(text, detect.DetectDelimiter(text, d.Format))}
	if analysis != nil {
		m := mapping.New(analysis.Headers)
		for _, c := range analysis.Columns {
			m.Set(c.Field, c.Index)
		}
		opts = append(opts, lerrors.WithMapping(m))
	}
	return NewErrorRenderer(opts...)
}

// analyze returns the analysis of data, or nil when it cannot be analyzed.
func analyze(ctx context.Context, imp *importer.Importer, name string, data []byte) *importer.Analysis {
	a, err := imp.Analyze(ctx, name, data)
	if err != nil {
		return nil
	}
	return a
}

// Render formats a single error with styling and context.
func (r *ErrorRenderer) Render(err error) string {
	formatted := strings.TrimRight(r.formatter.Format(err), "\n")
	lines := strings.Split(formatted, "\n")

	headline := errorStyle
	if ie, ok := err.(*ledger.ImportError); ok && ie.IsWarning() {
		headline = warningStyle
	}

	var buf strings.Builder
	for i, line := range lines {
		switch {
		case i == 0:
			buf.WriteString(headline.Render(line))
		case strings.TrimSpace(line) == "^":
			buf.WriteString("   ")
			buf.WriteString(errCaretStyle.Render(line))
		case line == "":
		default:
			buf.WriteString("   ")
			buf.WriteString(errContextStyle.Render(line))
		}
		if i < len(lines)-1 {
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// RenderAll formats multiple errors, separating them with blank lines.
func (r *ErrorRenderer) RenderAll(errs []error) string {
	if len(errs) == 0 {
		return ""
	}

	var buf strings.Builder
	for i, err := range errs {
		buf.WriteString(r.Render(err))

		if i < len(errs)-1 {
			buf.WriteString("\n\n")
		}
	}

	return buf.String()
}
