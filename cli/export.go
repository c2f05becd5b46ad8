package cli

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/alecthomas/kong"

	"github.com/robinvdvleuten/lettrage/formatter"
)

var sirenPattern = regexp.MustCompile(`^\d{9}$`)

type ExportCmd struct {
	LoadFlags

	Siren   string `help:"Nine digit company identifier." required:""`
	Closing string `help:"Closing date of the fiscal year (YYYY-MM-DD)." required:""`
	Prefix  string `help:"Only export accounts under this prefix."`
	Output  string `help:"Output file, '-' for stdout (default: the regulatory file name)." short:"o"`
}

func (cmd *ExportCmd) Run(kctx *kong.Context, globals *Globals) error {
	if !sirenPattern.MatchString(cmd.Siren) {
		return fmt.Errorf("--siren must be nine digits: %q", cmd.Siren)
	}
	closing, err := time.Parse(dateLayout, cmd.Closing)
	if err != nil {
		return fmt.Errorf("--closing must be a date (YYYY-MM-DD): %q", cmd.Closing)
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

	lines, err := p.store.Lines(s.ctx, cmd.Prefix)
	if err != nil {
		return err
	}
	formatter.SortLines(lines)

	path := cmd.Output
	if path == "" {
		path = formatter.FileName(cmd.Siren, closing)
	}

	var w io.Writer = kctx.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}

	if err := formatter.New().Format(w, lines); err != nil {
		return err
	}
	if path != "-" {
		printSuccess(kctx.Stderr, fmt.Sprintf("wrote %d line(s) to %s", len(lines), pathStyle.Render(path)))
	}
	return nil
}
