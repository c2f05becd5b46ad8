package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/alecthomas/kong"

	"github.com/robinvdvleuten/lettrage/detect"
	lerrors "github.com/robinvdvleuten/lettrage/errors"
	"github.com/robinvdvleuten/lettrage/importer"
	"github.com/robinvdvleuten/lettrage/ledger"
)

// ImportFlags are shared by validate and import.
type ImportFlags struct {
	File    FileOrStdin `help:"Accounting file (use '-' for stdin, or omit for stdin)." arg:"" optional:""`
	Format  string      `help:"File format (auto, strict, delimited, spreadsheet)." default:"auto" enum:"auto,strict,delimited,spreadsheet"`
	Sheet   string      `help:"Spreadsheet sheet (default: first sheet)."`
	Journal string      `help:"Journal code for rows without one."`
	JSON    bool        `help:"Print problems as JSON."`
}

func (f *ImportFlags) hint() detect.Format {
	if f.Format == "auto" {
		return detect.FormatUnknown
	}
	format, _ := detect.ParseFormat(f.Format)
	return format
}

func (f *ImportFlags) options() []importer.Option {
	var opts []importer.Option
	if hint := f.hint(); hint != detect.FormatUnknown {
		opts = append(opts, importer.WithFormat(hint))
	}
	if f.Sheet != "" {
		opts = append(opts, importer.WithSheet(f.Sheet))
	}
	if f.Journal != "" {
		opts = append(opts, importer.WithDefaultJournal(f.Journal))
	}
	return opts
}

// run imports the file and prints its problems and summary. A file that
// cannot be imported at all is reported and turned into a CommandError.
func (f *ImportFlags) run(kctx *kong.Context, s *session, imp *importer.Importer) (*ledger.ImportResult, error) {
	name, data, err := f.File.Read()
	if err != nil {
		return nil, err
	}

	result, err := imp.Import(s.ctx, name, data)
	if err != nil {
		var fileErr *ledger.FileError
		if !errors.As(err, &fileErr) {
			return nil, err
		}
		if f.JSON {
			_, _ = fmt.Fprintln(kctx.Stdout, lerrors.NewJSONFormatter().FormatAll([]error{err}))
		} else {
			_, _ = fmt.Fprintln(kctx.Stderr, NewErrorRenderer().Render(err))
			_, _ = fmt.Fprintln(kctx.Stderr)
			printError(kctx.Stderr, "import failed")
		}
		return nil, NewCommandError(ExitFailure)
	}

	problems := lerrors.ImportErrors(result.Errors)
	switch {
	case f.JSON:
		_, _ = fmt.Fprintln(kctx.Stdout, lerrors.NewJSONFormatter().FormatAll(problems))
	case len(problems) > 0:
		renderer := newSourceRenderer(data, f.hint(), analyze(s.ctx, imp, name, data))
		_, _ = fmt.Fprintln(kctx.Stderr, renderer.RenderAll(problems))
		_, _ = fmt.Fprintln(kctx.Stderr)
	}

	if !f.JSON {
		printSummary(kctx.Stderr, result)
	}
	return result, nil
}

func printSummary(w io.Writer, result *ledger.ImportResult) {
	printInfof(w, "%s: %s, %s", pathStyle.Render(result.Source), result.Format, result.Encoding)
	for _, d := range result.Duplicates {
		printWarning(w, fmt.Sprintf("entry %s may duplicate stored lines (%.0f%%): %s", d.Entry, d.Score*100, d.Description))
	}
	summary := fmt.Sprintf("%d rows, %d accepted, %d error(s), %d warning(s)",
		result.TotalRows, result.ValidRows, result.ErrorCount(), result.WarningCount())
	if result.Success() {
		printSuccess(w, summary)
	} else {
		printError(w, summary)
	}
}

type ValidateCmd struct {
	ImportFlags
}

func (cmd *ValidateCmd) Run(kctx *kong.Context, globals *Globals) error {
	s, err := newSession(kctx, globals)
	if err != nil {
		return err
	}
	defer s.report()

	p, err := s.open(false, nil, cmd.options()...)
	if err != nil {
		return err
	}
	defer p.Close()

	result, err := cmd.run(kctx, s, p.importer)
	if err != nil {
		return err
	}
	if !result.Success() {
		return NewCommandError(ExitInvalid)
	}
	return nil
}

type ImportCmd struct {
	ImportFlags

	Partial bool `help:"Store the accepted lines even when other rows were rejected." short:"p"`
	Letter  bool `help:"Run letterage on the imported accounts." short:"l"`
}

func (cmd *ImportCmd) Run(kctx *kong.Context, globals *Globals) error {
	s, err := newSession(kctx, globals)
	if err != nil {
		return err
	}
	defer s.report()

	p, err := s.open(cmd.Letter, nil, cmd.options()...)
	if err != nil {
		return err
	}
	defer p.Close()

	result, err := cmd.run(kctx, s, p.importer)
	if err != nil {
		return err
	}

	if !result.Success() && !cmd.Partial {
		confirmed, err := promptYesNo(fmt.Sprintf("%d row(s) were rejected. Store the %d accepted line(s) anyway?",
			result.ErrorCount(), len(result.Lines)))
		if err != nil {
			return err
		}
		if !confirmed {
			printError(kctx.Stderr, "nothing stored")
			return NewCommandError(ExitInvalid)
		}
	}

	committed, err := p.importer.Commit(s.ctx, result)
	if err != nil {
		return err
	}
	if !s.persistent() {
		printWarning(kctx.Stderr, "no database configured: lines are not kept after this command")
	}
	printSuccess(kctx.Stderr, fmt.Sprintf("stored %d line(s) in batch %s", committed.Inserted, committed.BatchID))
	for _, r := range committed.Letterage {
		printInfof(kctx.Stderr, "letterage %s: %d match(es), %d applied", r.Prefix, len(r.Matches), r.Applied)
	}

	if !result.Success() {
		return NewCommandError(ExitInvalid)
	}
	return nil
}
