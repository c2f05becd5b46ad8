package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/robinvdvleuten/lettrage/letterage"
	"github.com/robinvdvleuten/lettrage/output"
)

const dateLayout = "2006-01-02"

// LoadFlags import files into the store before a command runs. Without a
// database this is the only way to get lines to work on.
type LoadFlags struct {
	Load []string `help:"Import these files first, storing their accepted lines." type:"existingfile" placeholder:"FILE"`
}

func (f *LoadFlags) preload(kctx *kong.Context, s *session, p *pipeline) error {
	for _, path := range f.Load {
		file := FileOrStdin{Filename: path}
		name, data, err := file.Read()
		if err != nil {
			return err
		}
		result, err := p.importer.Import(s.ctx, name, data)
		if err != nil {
			return err
		}
		if _, err := p.importer.Commit(s.ctx, result); err != nil {
			return err
		}
		printSummary(kctx.Stderr, result)
	}
	if len(f.Load) == 0 && !s.persistent() {
		printWarning(kctx.Stderr, "no database configured and no file loaded: there are no lines to work on")
	}
	return nil
}

func parseDate(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be a date (YYYY-MM-DD): %q", flag, value)
	}
	return t, nil
}

type LetterCmd struct {
	LoadFlags

	Prefix string   `help:"Account number prefix, e.g. 411." arg:""`
	DryRun bool     `help:"Show the matches without writing anything." short:"n"`
	Rules  []string `help:"Only run these rule IDs." placeholder:"ID"`
	From   string   `help:"Ignore lines dated before this day (YYYY-MM-DD)."`
	To     string   `help:"Ignore lines dated after this day (YYYY-MM-DD)."`
	Review bool     `help:"Confirm matches that need review one by one."`
}

func (cmd *LetterCmd) options() (letterage.RunOptions, error) {
	opts := letterage.RunOptions{DryRun: cmd.DryRun, RuleIDs: cmd.Rules}
	var err error
	if opts.From, err = parseDate("from", cmd.From); err != nil {
		return opts, err
	}
	if opts.To, err = parseDate("to", cmd.To); err != nil {
		return opts, err
	}
	if !opts.From.IsZero() && !opts.To.IsZero() && opts.To.Before(opts.From) {
		return opts, fmt.Errorf("--to is before --from")
	}
	return opts, nil
}

func (cmd *LetterCmd) Run(kctx *kong.Context, globals *Globals) error {
	opts, err := cmd.options()
	if err != nil {
		return err
	}

	s, err := newSession(kctx, globals)
	if err != nil {
		return err
	}
	defer s.report()

	p, err := s.open(false, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := cmd.preload(kctx, s, p); err != nil {
		return err
	}

	result, err := p.engine.Run(s.ctx, cmd.Prefix, opts)
	if errors.Is(err, letterage.ErrNoRules) {
		printError(kctx.Stderr, fmt.Sprintf("no active rule covers accounts %s", cmd.Prefix))
		return NewCommandError(ExitFailure)
	}
	if err != nil {
		return err
	}

	if len(result.Matches) > 0 {
		if err := renderMatches(kctx.Stdout, s.styles, result.Matches); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(kctx.Stdout)
	}

	if cmd.Review && !cmd.DryRun {
		for _, m := range result.Pending() {
			question := fmt.Sprintf("Letter %s on %s: %d debit(s) against %d credit(s) for %s (%.0f%%)?",
				m.LetterCode, m.Account, len(m.DebitIDs), len(m.CreditIDs), m.Amount.StringFixed(2), m.Confidence*100)
			ok, err := promptYesNo(question)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if _, err := p.engine.Apply(s.ctx, m); err != nil {
				return err
			}
			result.Applied++
		}
	}

	summary := fmt.Sprintf("%d line(s) processed, %d match(es), %d applied", result.Processed, len(result.Matches), result.Applied)
	if cmd.DryRun {
		summary += " (dry run)"
	}
	printSuccess(kctx.Stderr, summary)
	return nil
}

func renderMatches(w io.Writer, styles *output.Styles, matches []letterage.Match) error {
	table := output.NewTable(
		output.Column{Title: "Code"},
		output.Column{Title: "Account"},
		output.Column{Title: "Lines", Align: output.AlignRight},
		output.Column{Title: "Amount", Align: output.AlignRight},
		output.Column{Title: "Diff", Align: output.AlignRight},
		output.Column{Title: "Score", Align: output.AlignRight},
		output.Column{Title: "Rule"},
		output.Column{Title: "Status"},
	)
	for _, m := range matches {
		status := styles.Warning("review")
		switch {
		case m.Applied:
			status = styles.Success("applied")
		case m.Auto:
			status = styles.Dim("auto")
		}
		table.Add(
			styles.LetterCode(m.LetterCode),
			styles.Account(m.Account),
			fmt.Sprintf("%d/%d", len(m.DebitIDs), len(m.CreditIDs)),
			styles.Amount(m.Amount.StringFixed(2)),
			m.Difference.StringFixed(2),
			styles.Confidence(m.Confidence),
			m.RuleID,
			status,
		)
	}
	return table.Render(w, styles)
}

type UnletterCmd struct {
	LoadFlags

	Code string `help:"Letter code to remove." arg:""`
	Yes  bool   `help:"Do not ask for confirmation." short:"y"`
}

func (cmd *UnletterCmd) Run(kctx *kong.Context, globals *Globals) error {
	code := strings.ToUpper(strings.TrimSpace(cmd.Code))

	if !cmd.Yes {
		if !isTerminal() {
			return fmt.Errorf("refusing to remove letter code %s without --yes", code)
		}
		ok, err := promptYesNo(fmt.Sprintf("Remove letter code %s from every line carrying it?", code))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	s, err := newSession(kctx, globals)
	if err != nil {
		return err
	}
	defer s.report()

	p, err := s.open(false, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := cmd.preload(kctx, s, p); err != nil {
		return err
	}

	n, err := p.engine.Unletter(s.ctx, code)
	if err != nil {
		return err
	}
	if n == 0 {
		printError(kctx.Stderr, fmt.Sprintf("letter code %s not found", code))
		return NewCommandError(ExitFailure)
	}
	printSuccess(kctx.Stderr, fmt.Sprintf("removed letter code %s from %d line(s)", code, n))
	return nil
}
