package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alecthomas/kong"

	"github.com/robinvdvleuten/lettrage/letterage"
	"github.com/robinvdvleuten/lettrage/output"
)

type ReportCmd struct {
	LoadFlags

	Prefix string `help:"Account number prefix (default: every account)." arg:"" optional:""`
	JSON   bool   `help:"Print the report as JSON."`
}

func (cmd *ReportCmd) Run(kctx *kong.Context, globals *Globals) error {
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

	report, err := letterage.BuildReport(s.ctx, p.store, cmd.Prefix, time.Now())
	if err != nil {
		return err
	}

	if cmd.JSON {
		enc := json.NewEncoder(kctx.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return renderReport(kctx, s.styles, report)
}

func renderReport(kctx *kong.Context, styles *output.Styles, report *letterage.Report) error {
	accounts := output.NewTable(
		output.Column{Title: "Account"},
		output.Column{Title: "Name"},
		output.Column{Title: "Lines", Align: output.AlignRight},
		output.Column{Title: "Lettered", Align: output.AlignRight},
		output.Column{Title: "Rate", Align: output.AlignRight},
		output.Column{Title: "Open balance", Align: output.AlignRight},
	)
	for _, a := range report.Accounts {
		accounts.Add(
			styles.Account(a.Number),
			a.Name,
			fmt.Sprint(a.Lines),
			fmt.Sprint(a.Lettered),
			fmt.Sprintf("%.2f%%", a.Rate),
			styles.Amount(a.OpenBalance().StringFixed(2)),
		)
	}
	if err := accounts.Render(kctx.Stdout, styles); err != nil {
		return err
	}

	if len(report.Recent) > 0 {
		_, _ = fmt.Fprintln(kctx.Stdout)
		recent := output.NewTable(
			output.Column{Title: "Code"},
			output.Column{Title: "Lettered on"},
			output.Column{Title: "Lines", Align: output.AlignRight},
			output.Column{Title: "Amount", Align: output.AlignRight},
			output.Column{Title: ""},
		)
		for _, g := range report.Recent {
			note := ""
			if !g.Balanced {
				note = styles.Warning("unbalanced")
			}
			recent.Add(
				styles.LetterCode(g.Code),
				g.Date.Format(dateLayout),
				fmt.Sprint(g.Lines),
				styles.Amount(g.Amount.StringFixed(2)),
				note,
			)
		}
		if err := recent.Render(kctx.Stdout, styles); err != nil {
			return err
		}
	}

	_, _ = fmt.Fprintln(kctx.Stdout)
	printInfof(kctx.Stdout, "%d line(s), %d lettered, %d unlettered (%.2f%%)",
		report.Summary.Lines, report.Summary.Lettered, report.Summary.Unlettered, report.Summary.Rate)
	return nil
}
