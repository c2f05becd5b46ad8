package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/robinvdvleuten/lettrage/importer"
	"github.com/robinvdvleuten/lettrage/output"
)

type AnalyzeCmd struct {
	File   FileOrStdin `help:"Accounting file (use '-' for stdin, or omit for stdin)." arg:"" optional:""`
	Format string      `help:"File format (auto, strict, delimited, spreadsheet)." default:"auto" enum:"auto,strict,delimited,spreadsheet"`
	Sheet  string      `help:"Spreadsheet sheet (default: first sheet)."`
	JSON   bool        `help:"Print the analysis as JSON."`
}

func (cmd *AnalyzeCmd) Run(kctx *kong.Context, globals *Globals) error {
	s, err := newSession(kctx, globals)
	if err != nil {
		return err
	}
	defer s.report()

	flags := ImportFlags{Format: cmd.Format, Sheet: cmd.Sheet}
	p, err := s.open(false, nil, flags.options()...)
	if err != nil {
		return err
	}
	defer p.Close()

	name, data, err := cmd.File.Read()
	if err != nil {
		return err
	}
	analysis, err := p.importer.Analyze(s.ctx, name, data)
	if err != nil {
		_, _ = fmt.Fprintln(kctx.Stderr, NewErrorRenderer().Render(err))
		return NewCommandError(ExitFailure)
	}

	if cmd.JSON {
		enc := json.NewEncoder(kctx.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(analysis)
	}
	return renderAnalysis(kctx, s.styles, analysis)
}

func renderAnalysis(kctx *kong.Context, styles *output.Styles, a *importer.Analysis) error {
	w := kctx.Stdout
	printInfof(w, "%s: %s (%s)", pathStyle.Render(a.Source), styles.Keyword(a.Format), a.Reason)
	if a.Encoding != "" {
		printInfof(w, "encoding %s", a.Encoding)
	}
	if a.Delimiter != "" {
		printInfof(w, "delimiter %s", a.Delimiter)
	}
	if len(a.Sheets) > 0 {
		printInfof(w, "sheets %s", strings.Join(a.Sheets, ", "))
	}
	printInfof(w, "%d data row(s)", a.Rows)
	_, _ = fmt.Fprintln(w)

	columns := output.NewTable(
		output.Column{Title: "#", Align: output.AlignRight},
		output.Column{Title: "Header"},
		output.Column{Title: "Field"},
	)
	fields := make(map[int]string, len(a.Columns))
	for _, c := range a.Columns {
		field := c.Field.String()
		if c.Signed {
			field += " (signed)"
		}
		fields[c.Index] = field
	}
	for i, h := range a.Headers {
		field, ok := fields[i]
		if !ok {
			field = styles.Dim("ignored")
		}
		columns.Add(fmt.Sprint(i), h, field)
	}
	if err := columns.Render(w, styles); err != nil {
		return err
	}

	if len(a.Preview) > 0 {
		_, _ = fmt.Fprintln(w)
		preview := output.NewTable(headerColumns(a.Headers)...)
		for _, row := range a.Preview {
			preview.Add(row...)
		}
		if err := preview.Render(w, styles); err != nil {
			return err
		}
	}

	_, _ = fmt.Fprintln(w)
	if a.Problem != "" {
		printError(w, a.Problem)
		return NewCommandError(ExitInvalid)
	}
	printSuccess(w, "mapping is complete")
	return nil
}

func headerColumns(headers []string) []output.Column {
	out := make([]output.Column, len(headers))
	for i, h := range headers {
		out[i] = output.Column{Title: h}
	}
	return out
}
