// Package config loads the settings shared by the CLI and the web server.
//
// Settings are read in order, later sources winning:
//
//	defaults ──> lettrage.yaml ──> .env ──> environment
//
// Command-line flags are applied on top by the caller.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/robinvdvleuten/lettrage/events"
	"github.com/robinvdvleuten/lettrage/ledger"
	"github.com/robinvdvleuten/lettrage/letterage"
	"github.com/robinvdvleuten/lettrage/mapping"
	"github.com/robinvdvleuten/lettrage/store"
)

// DefaultFile is the configuration file looked up when none is given.
const DefaultFile = "lettrage.yaml"

// Environment variables.
const (
	EnvDatabaseURL  = "LETTRAGE_DATABASE_URL"
	EnvKafkaBrokers = "LETTRAGE_KAFKA_BROKERS"
	EnvKafkaTopic   = "LETTRAGE_KAFKA_TOPIC"
	EnvListen       = "LETTRAGE_LISTEN"
	EnvInbox        = "LETTRAGE_INBOX"
)

// Kafka configures event publishing. No brokers means events are dropped.
type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Account is a chart-of-accounts entry as written in the file.
type Account struct {
	Number string `yaml:"number"`
	Name   string `yaml:"name"`
	// Active defaults to true.
	Active *bool `yaml:"active,omitempty"`
}

// Journal is a journal as written in the file.
type Journal struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Config is the loaded configuration.
type Config struct {
	Validation     *ledger.Config   `yaml:"validation"`
	DatabaseURL    string           `yaml:"database_url"`
	Kafka          Kafka            `yaml:"kafka"`
	Listen         string           `yaml:"listen"`
	Inbox          string           `yaml:"inbox"`
	DefaultJournal string           `yaml:"default_journal"`
	Rules          []letterage.Rule `yaml:"rules"`
	RulesFile      string           `yaml:"rules_file"`
	PatternsFile   string           `yaml:"patterns_file"`
	// Mapping forces columns by field name, e.g. {debit: 4}.
	Mapping  map[string]int `yaml:"mapping"`
	Accounts []Account      `yaml:"accounts"`
	Journals []Journal      `yaml:"journals"`

	// dir resolves relative file references.
	dir string
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Validation: ledger.NewConfig(),
		Kafka:      Kafka{Topic: events.DefaultTopic},
		Listen:     "127.0.0.1:8080",
		Inbox:      "inbox",
		dir:        ".",
	}
}

// Load reads the configuration file at path, then .env files and the
// environment. An empty path loads DefaultFile when it exists.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		cfg.dir = filepath.Dir(path)
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}
	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if c.Validation == nil {
		c.Validation = ledger.NewConfig()
	}
	return nil
}

// loadEnvFiles loads .env files into the environment. Missing files are
// skipped; variables already set are kept.
func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load %s: %w", strings.Join(existing, ", "), err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDatabaseURL); ok {
		c.DatabaseURL = v
	}
	if v, ok := lookup(EnvKafkaBrokers); ok {
		c.Kafka.Brokers = splitList(v)
	}
	if v, ok := lookup(EnvKafkaTopic); ok && v != "" {
		c.Kafka.Topic = v
	}
	if v, ok := lookup(EnvListen); ok && v != "" {
		c.Listen = v
	}
	if v, ok := lookup(EnvInbox); ok && v != "" {
		c.Inbox = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Validation.Validate(); err != nil {
		return fmt.Errorf("validation: %w", err)
	}
	for i, r := range c.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
	}
	if _, err := c.Overrides(); err != nil {
		return err
	}
	for i, a := range c.Accounts {
		if a.Number == "" {
			return fmt.Errorf("accounts[%d]: number is required", i)
		}
	}
	for i, j := range c.Journals {
		if j.Code == "" {
			return fmt.Errorf("journals[%d]: code is required", i)
		}
	}
	return nil
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.dir == "" {
		return path
	}
	return filepath.Join(c.dir, path)
}

// LetterageRules returns the inline rules, else the rules file, else the
// default rules.
func (c *Config) LetterageRules() ([]letterage.Rule, error) {
	if len(c.Rules) > 0 {
		return c.Rules, nil
	}
	if c.RulesFile == "" {
		return letterage.DefaultRules(), nil
	}
	f, err := os.Open(c.resolve(c.RulesFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()
	return letterage.LoadRules(f)
}

// Patterns returns the header patterns used to suggest mappings.
func (c *Config) Patterns() ([]mapping.Rule, error) {
	if c.PatternsFile == "" {
		return mapping.DefaultRules(), nil
	}
	f, err := os.Open(c.resolve(c.PatternsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open patterns file: %w", err)
	}
	defer f.Close()
	return mapping.LoadRules(f)
}

// Overrides parses the forced column assignments.
func (c *Config) Overrides() (map[mapping.Field]int, error) {
	if len(c.Mapping) == 0 {
		return nil, nil
	}
	out := make(map[mapping.Field]int, len(c.Mapping))
	for name, idx := range c.Mapping {
		f, err := mapping.ParseField(name)
		if err != nil {
			return nil, fmt.Errorf("mapping: %w", err)
		}
		out[f] = idx
	}
	return out, nil
}

// Chart returns the configured accounts and journals.
func (c *Config) Chart() ([]ledger.AccountInfo, []ledger.JournalInfo) {
	accounts := make([]ledger.AccountInfo, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		active := a.Active == nil || *a.Active
		accounts = append(accounts, ledger.AccountInfo{Number: a.Number, Name: a.Name, Active: active})
	}
	journals := make([]ledger.JournalInfo, 0, len(c.Journals))
	for _, j := range c.Journals {
		typ := ledger.InferJournalType(j.Code)
		if j.Type != "" {
			typ = ledger.ParseJournalType(j.Type)
		}
		journals = append(journals, ledger.JournalInfo{Code: strings.ToUpper(j.Code), Name: j.Name, Type: typ})
	}
	return accounts, journals
}

// HasChart reports whether accounts or journals are configured. Without
// them, account and journal existence is not checked.
func (c *Config) HasChart() bool {
	return len(c.Accounts) > 0 || len(c.Journals) > 0
}

// OpenStore connects to Postgres when a database URL is set and returns an
// in-memory store otherwise. The configured chart is loaded into it.
func (c *Config) OpenStore(ctx context.Context) (store.Store, error) {
	accounts, journals := c.Chart()

	if c.DatabaseURL == "" {
		m := store.NewMemory()
		m.AddAccounts(accounts...)
		m.AddJournals(journals...)
		return m, nil
	}

	p, err := store.OpenPostgres(ctx, c.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := p.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	if err := p.UpsertAccounts(ctx, accounts...); err != nil {
		p.Close()
		return nil, err
	}
	if err := p.UpsertJournals(ctx, journals...); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Publisher returns a Kafka publisher when brokers are configured.
func (c *Config) Publisher(logger *slog.Logger) events.Publisher {
	if len(c.Kafka.Brokers) == 0 {
		return events.Discard
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return events.NewKafka(c.Kafka.Brokers, c.Kafka.Topic, events.WithKafkaLogger(logger))
}
