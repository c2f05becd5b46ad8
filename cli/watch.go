package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/robinvdvleuten/lettrage/inbox"
)

type WatchCmd struct {
	Dir     string `help:"Inbox directory (default: the configured inbox)." arg:"" optional:"" type:"path"`
	Partial bool   `help:"Store the accepted lines of files with rejected rows." short:"p"`
	Letter  bool   `help:"Run letterage on the imported accounts." short:"l"`
	Once    bool   `help:"Handle the files present and exit."`
}

// inboxHandler imports and commits one inbox file. Files with rejected rows
// fail, and so move to rejected/, unless partial is set.
func inboxHandler(p *pipeline, partial bool, w io.Writer) inbox.Handler {
	return func(ctx context.Context, path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		result, err := p.importer.Import(ctx, filepath.Base(path), data)
		if err != nil {
			printError(w, err.Error())
			return err
		}
		printSummary(w, result)
		if !result.Success() && !partial {
			return result.AsError()
		}

		committed, err := p.importer.Commit(ctx, result)
		if err != nil {
			return err
		}
		printSuccess(w, fmt.Sprintf("stored %d line(s) in batch %s", committed.Inserted, committed.BatchID))
		for _, r := range committed.Letterage {
			printInfof(w, "letterage %s: %d match(es), %d applied", r.Prefix, len(r.Matches), r.Applied)
		}
		return nil
	}
}

func (cmd *WatchCmd) Run(kctx *kong.Context, globals *Globals) error {
	s, err := newSession(kctx, globals)
	if err != nil {
		return err
	}
	defer s.report()

	p, err := s.open(cmd.Letter, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	dir := cmd.Dir
	if dir == "" {
		dir = s.config.Inbox
	}
	if !s.persistent() {
		printWarning(kctx.Stderr, "no database configured: imported lines are kept in memory only")
	}

	watcher := inbox.New(dir, inboxHandler(p, cmd.Partial, kctx.Stderr), inbox.WithLogger(s.logger))

	ctx, stop := signal.NotifyContext(s.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd.Once {
		return watcher.Scan(ctx)
	}
	printInfof(kctx.Stderr, "Watching %s", pathStyle.Render(dir))
	if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
