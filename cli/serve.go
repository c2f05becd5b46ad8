package cli

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/robinvdvleuten/lettrage/inbox"
	"github.com/robinvdvleuten/lettrage/metrics"
	"github.com/robinvdvleuten/lettrage/web"
)

type ServeCmd struct {
	LoadFlags

	Listen   string `help:"Address to listen on (default: the configured address)."`
	ReadOnly bool   `help:"Enable read-only mode (no write operations allowed)." short:"r"`
	Inbox    bool   `help:"Also import files dropped in the configured inbox."`
	Letter   bool   `help:"Run letterage on the accounts of committed imports." short:"l"`
}

func (cmd *ServeCmd) Run(kctx *kong.Context, globals *Globals) error {
	s, err := newSession(kctx, globals)
	if err != nil {
		return err
	}
	defer s.report()

	listen := cmd.Listen
	if listen == "" {
		listen = s.config.Listen
	}
	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", listen, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid listen port %q", portStr)
	}

	m := metrics.New("")
	p, err := s.open(cmd.Letter, m)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := cmd.preload(kctx, s, p); err != nil {
		return err
	}

	version := Version
	if version == "" {
		version = "dev"
	}
	commitSHA := CommitSHA
	if commitSHA == "" {
		commitSHA = "local"
	}

	opts := []web.Option{
		web.WithAddress(host, port),
		web.WithVersion(version, commitSHA),
		web.WithPublisher(p.publisher),
		web.WithMetrics(m),
		web.WithLogger(s.logger),
	}
	if cmd.ReadOnly {
		opts = append(opts, web.WithReadOnly())
	}
	if cmd.Inbox {
		if cmd.ReadOnly {
			return fmt.Errorf("--inbox cannot be used with --read-only")
		}
		watcher := inbox.New(s.config.Inbox, inboxHandler(p, false, kctx.Stderr), inbox.WithLogger(s.logger))
		opts = append(opts, web.WithInbox(watcher))
	}
	server := web.New(p.importer, p.engine, p.store, opts...)

	printInfof(kctx.Stdout, "Starting server on %s", server.Addr())
	if cmd.ReadOnly {
		printInfof(kctx.Stdout, "Server running in READ-ONLY mode")
	}
	if cmd.Inbox {
		printInfof(kctx.Stdout, "Watching inbox: %s", pathStyle.Render(s.config.Inbox))
	}

	ctx, stop := signal.NotifyContext(s.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Start(ctx)
}
