package cli

import (
	"fmt"

	"github.com/robinvdvleuten/lettrage/events"
	"github.com/robinvdvleuten/lettrage/importer"
	"github.com/robinvdvleuten/lettrage/letterage"
	"github.com/robinvdvleuten/lettrage/metrics"
	"github.com/robinvdvleuten/lettrage/store"
)

// pipeline is the store, engine and importer wired from the configuration.
type pipeline struct {
	store     store.Store
	engine    *letterage.Engine
	importer  *importer.Importer
	publisher events.Publisher
}

// Close closes the publisher and the store.
func (p *pipeline) Close() error {
	perr := p.publisher.Close()
	if err := p.store.Close(); err != nil {
		return err
	}
	return perr
}

// open wires the pipeline. autoLetter makes commits run letterage on the
// prefixes they touch.
func (s *session) open(autoLetter bool, m *metrics.Metrics, opts ...importer.Option) (*pipeline, error) {
	cfg := s.config

	rules, err := cfg.LetterageRules()
	if err != nil {
		return nil, err
	}
	patterns, err := cfg.Patterns()
	if err != nil {
		return nil, err
	}
	overrides, err := cfg.Overrides()
	if err != nil {
		return nil, err
	}

	st, err := cfg.OpenStore(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	publisher := cfg.Publisher(s.logger)
	locks := store.NewLockSet()

	engine := letterage.New(st,
		letterage.WithRules(rules),
		letterage.WithLocks(locks),
		letterage.WithLogger(s.logger),
	)

	base := []importer.Option{
		importer.WithConfig(cfg.Validation),
		importer.WithStore(st),
		importer.WithPatterns(patterns),
		importer.WithMapping(overrides),
		importer.WithDefaultJournal(cfg.DefaultJournal),
		importer.WithLocks(locks),
		importer.WithPublisher(publisher),
		importer.WithMetrics(m),
		importer.WithLogger(s.logger),
	}
	if len(cfg.Accounts) > 0 {
		base = append(base, importer.WithAccounts(st))
	}
	if len(cfg.Journals) > 0 {
		base = append(base, importer.WithJournals(st))
	}
	if autoLetter {
		base = append(base, importer.WithLetterage(engine))
	}

	return &pipeline{
		store:     st,
		engine:    engine,
		importer:  importer.New(append(base, opts...)...),
		publisher: publisher,
	}, nil
}

// persistent reports whether committed lines outlive the process.
func (s *session) persistent() bool {
	return s.config.DatabaseURL != ""
}
