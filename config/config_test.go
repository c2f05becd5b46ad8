package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"

	"github.com/robinvdvleuten/lettrage/events"
	"github.com/robinvdvleuten/lettrage/ledger"
	"github.com/robinvdvleuten/lettrage/letterage"
	"github.com/robinvdvleuten/lettrage/mapping"
	"github.com/robinvdvleuten/lettrage/store"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, events.DefaultTopic, cfg.Kafka.Topic)
	assert.True(t, ledger.DefaultTolerance.Equal(cfg.Validation.Tolerance))
	assert.True(t, cfg.Validation.SkipEmptyRows)
	assert.False(t, cfg.HasChart())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "lettrage.yaml", `
validation:
  tolerance: "0.05"
  stale_after: 720h
  check_chronology: true
listen: ":9090"
default_journal: OD
mapping:
  debit: 4
  label: 2
accounts:
  - number: "411000"
    name: Clients
  - number: "401000"
    name: Fournisseurs
    active: false
journals:
  - code: bq
    name: Banque
  - code: X1
    type: achats
`)

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	assert.NoError(t, err)

	assert.True(t, decimal.RequireFromString("0.05").Equal(cfg.Validation.Tolerance))
	assert.Equal(t, 720*time.Hour, cfg.Validation.StaleAfter)
	assert.True(t, cfg.Validation.CheckChronology)
	// Unset keys keep their defaults.
	assert.Equal(t, 7*24*time.Hour, cfg.Validation.DuplicateWindow)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "OD", cfg.DefaultJournal)

	overrides, err := cfg.Overrides()
	assert.NoError(t, err)
	assert.Equal(t, map[mapping.Field]int{mapping.FieldDebit: 4, mapping.FieldLabel: 2}, overrides)

	accounts, journals := cfg.Chart()
	assert.Equal(t, []ledger.AccountInfo{
		{Number: "411000", Name: "Clients", Active: true},
		{Number: "401000", Name: "Fournisseurs", Active: false},
	}, accounts)
	assert.Equal(t, []ledger.JournalInfo{
		{Code: "BQ", Name: "Banque", Type: ledger.JournalBank},
		{Code: "X1", Type: ledger.JournalPurchase},
	}, journals)
	assert.True(t, cfg.HasChart())
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"UnknownKey", "colour: blue\n"},
		{"BadThreshold", "validation:\n  duplicate_threshold: 2\n"},
		{"BadMappingField", "mapping:\n  colour: 1\n"},
		{"AccountWithoutNumber", "accounts:\n  - name: Clients\n"},
		{"InvalidRule", "rules:\n  - id: x\n    name: X\n    account_pattern: \"\"\n    active: true\n"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			path := write(t, dir, test.name+".yaml", test.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	write(t, dir, ".env", "LETTRAGE_KAFKA_BROKERS=k1:9092, k2:9092\nLETTRAGE_KAFKA_TOPIC=ledger\n")
	t.Setenv(EnvDatabaseURL, "postgres://localhost/lettrage")
	// The variable is set by the test, so .env must not replace it.
	t.Setenv(EnvKafkaTopic, "from-env")
	t.Setenv(EnvKafkaBrokers, "")
	os.Unsetenv(EnvKafkaBrokers)

	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, "postgres://localhost/lettrage", cfg.DatabaseURL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "from-env", cfg.Kafka.Topic)
}

func TestLetterageRules(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	rules, err := cfg.LetterageRules()
	assert.NoError(t, err)
	assert.Equal(t, len(letterage.DefaultRules()), len(rules))

	f, err := os.Create(filepath.Join(dir, "rules.yaml"))
	assert.NoError(t, err)
	assert.NoError(t, letterage.SaveRules(f, letterage.DefaultRules()[:1]))
	assert.NoError(t, f.Close())

	path := write(t, dir, "lettrage.yaml", "rules_file: rules.yaml\n")
	cfg, err = Load(path)
	assert.NoError(t, err)
	rules, err = cfg.LetterageRules()
	assert.NoError(t, err)
	assert.Equal(t, 1, len(rules))
	assert.Equal(t, letterage.DefaultRules()[0].ID, rules[0].ID)
}

func TestPatterns(t *testing.T) {
	cfg := Default()
	rules, err := cfg.Patterns()
	assert.NoError(t, err)
	assert.Equal(t, len(mapping.DefaultRules()), len(rules))

	cfg.PatternsFile = "does-not-exist.yaml"
	_, err = cfg.Patterns()
	assert.Error(t, err)
}

func TestOpenStoreMemory(t *testing.T) {
	ctx := context.Background()
	cfg := Default()
	cfg.Accounts = []Account{{Number: "512000", Name: "Banque"}}
	cfg.Journals = []Journal{{Code: "bq", Name: "Banque"}}

	s, err := cfg.OpenStore(ctx)
	assert.NoError(t, err)
	defer s.Close()

	_, ok := s.(*store.Memory)
	assert.True(t, ok)

	accounts, err := s.LookupAccounts(ctx, []string{"512000"})
	assert.NoError(t, err)
	assert.True(t, accounts["512000"].Active)

	journals, err := s.LookupJournals(ctx, []string{"BQ"})
	assert.NoError(t, err)
	assert.Equal(t, ledger.JournalBank, journals["BQ"].Type)
}

func TestPublisher(t *testing.T) {
	cfg := Default()
	assert.Equal(t, events.Discard, cfg.Publisher(nil))

	cfg.Kafka.Brokers = []string{"localhost:9092"}
	p := cfg.Publisher(nil)
	_, ok := p.(*events.Kafka)
	assert.True(t, ok)
	assert.NoError(t, p.Close())
}
