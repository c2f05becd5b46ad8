package cli

import (
	"fmt"
	"net/url"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	"github.com/robinvdvleuten/lettrage/letterage"
)

// DoctorCmd provides utilities for debugging the configuration.
type DoctorCmd struct {
	Config DoctorConfigCmd `cmd:"" help:"Print the effective configuration."`
	Rules  DoctorRulesCmd  `cmd:"" help:"Print the effective letterage rules."`
}

// DoctorConfigCmd prints the configuration after files and environment
// are applied. Database passwords are masked.
type DoctorConfigCmd struct{}

// Run executes the config command.
func (cmd *DoctorConfigCmd) Run(kctx *kong.Context, globals *Globals) error {
	s, err := newSession(kctx, globals)
	if err != nil {
		return err
	}

	cfg := *s.config
	cfg.DatabaseURL = redact(cfg.DatabaseURL)

	enc := yaml.NewEncoder(kctx.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(&cfg); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}

func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// DoctorRulesCmd prints the rules letterage runs with, in rule file format.
type DoctorRulesCmd struct{}

// Run executes the rules command.
func (cmd *DoctorRulesCmd) Run(kctx *kong.Context, globals *Globals) error {
	s, err := newSession(kctx, globals)
	if err != nil {
		return err
	}
	rules, err := s.config.LetterageRules()
	if err != nil {
		return err
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			printWarning(kctx.Stderr, fmt.Sprintf("rule %s: %v", r.ID, err))
		}
	}
	return letterage.SaveRules(kctx.Stdout, rules)
}
