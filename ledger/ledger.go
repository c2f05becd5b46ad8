// Package ledger provides the data model and the validation engine for
// imported accounting lines.
//
// Validation runs in three ordered layers that all accumulate into one
// error list without short-circuiting:
//   - structural: required fields, amount signs, lengths, currency codes
//   - business: entry-number uniqueness, temporal sanity, journal and
//     account class compatibility, account existence, normal balance side
//   - balance: every entry must satisfy |Σdebit − Σcredit| ≤ tolerance
//
// A separate pass compares incoming entries against stored history to
// surface probable duplicates.
//
// Example usage:
//
//	v := ledger.New(ledger.WithAccounts(dir), ledger.WithHistory(store))
//	outcome, err := v.Validate(ctx, lines)
//	if err != nil {
//	    // collaborator failure or cancellation
//	}
//	for _, e := range outcome.Errors {
//	    fmt.Println(e)
//	}
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/robinvdvleuten/lettrage/telemetry"
)

// AccountDirectory resolves account numbers in one batched call. Unknown
// numbers are absent from the returned map.
type AccountDirectory interface {
	LookupAccounts(ctx context.Context, numbers []string) (map[string]AccountInfo, error)
}

// JournalDirectory resolves journal codes in one batched call.
type JournalDirectory interface {
	LookupJournals(ctx context.Context, codes []string) (map[string]JournalInfo, error)
}

// EntryIndex reports which entry keys already exist in the target ledger.
type EntryIndex interface {
	ExistingEntries(ctx context.Context, keys []string) (map[string]bool, error)
}

// LineWindow returns stored lines on the given accounts dated within
// [from, to].
type LineWindow interface {
	Window(ctx context.Context, accounts []string, from, to time.Time) ([]*Line, error)
}

// Validator runs the validation layers over parsed lines. It holds no
// per-run state and may be reused across imports.
type Validator struct {
	config   *Config
	accounts AccountDirectory
	journals JournalDirectory
	entries  EntryIndex
	history  LineWindow
	logger   *slog.Logger

	structural *validator.Validate
}

// Option configures a Validator.
type Option func(*Validator)

// WithConfig sets the thresholds used by the validator.
func WithConfig(cfg *Config) Option {
	return func(v *Validator) {
		v.config = cfg
	}
}

// WithAccounts enables account existence and activity checks.
func WithAccounts(dir AccountDirectory) Option {
	return func(v *Validator) {
		v.accounts = dir
	}
}

// WithJournals resolves journal types from a directory instead of
// inferring them from the code.
func WithJournals(dir JournalDirectory) Option {
	return func(v *Validator) {
		v.journals = dir
	}
}

// WithEntryIndex enables entry-number uniqueness against stored entries.
func WithEntryIndex(idx EntryIndex) Option {
	return func(v *Validator) {
		v.entries = idx
	}
}

// WithHistory enables duplicate detection against stored lines.
func WithHistory(w LineWindow) Option {
	return func(v *Validator) {
		v.history = w
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// New creates a validator with the given options.
func New(opts ...Option) *Validator {
	v := &Validator{
		config:     NewConfig(),
		logger:     slog.New(slog.DiscardHandler),
		structural: newStructValidator(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Config returns the configuration in use.
func (v *Validator) Config() *Config {
	return v.config
}

// Outcome is the result of validating a batch of lines.
type Outcome struct {
	Accepted   []*Line
	Entries    []*Entry
	Errors     []*ImportError
	Duplicates []Duplicate
}

// Validate runs every layer over lines. The returned error is reserved
// for cancellation and collaborator failures; row problems are reported
// in Outcome.Errors.
func (v *Validator) Validate(ctx context.Context, lines []*Line) (*Outcome, error) {
	timer := telemetry.StartTimer(ctx, fmt.Sprintf("ledger.validate (%d lines)", len(lines)))
	defer timer.End()

	state := newValidation()
	entries := GroupEntries(lines)

	structTimer := timer.Child("ledger.structural")
	err := v.validateStructure(ctx, lines, state)
	structTimer.End()
	if err != nil {
		return nil, err
	}

	businessTimer := timer.Child("ledger.business")
	err = v.validateBusiness(ctx, lines, entries, state)
	businessTimer.End()
	if err != nil {
		return nil, err
	}

	balanceTimer := timer.Child("ledger.balance")
	v.validateBalance(lines, entries, state)
	balanceTimer.End()

	var duplicates []Duplicate
	if v.history != nil {
		dupTimer := timer.Child("ledger.duplicates")
		duplicates, err = NewDuplicateDetector(v.history, v.config).Detect(ctx, entries)
		dupTimer.End()
		if err != nil {
			return nil, err
		}
		v.applyDuplicates(duplicates, entries, state)
	}

	outcome := state.outcome(entries)
	outcome.Duplicates = duplicates

	v.logger.Debug("validated lines",
		slog.Int("lines", len(lines)),
		slog.Int("accepted", len(outcome.Accepted)),
		slog.Int("problems", len(outcome.Errors)),
		slog.Int("duplicates", len(duplicates)),
	)

	return outcome, nil
}

func (v *Validator) applyDuplicates(duplicates []Duplicate, entries []*Entry, state *validation) {
	byKey := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		byKey[e.Key] = e
	}
	for _, d := range duplicates {
		e := byKey[d.Entry]
		if e == nil {
			continue
		}
		if d.Probable {
			w := NewBusinessWarning(e.FirstRow(), "entry", "probable duplicate of a stored entry (score %.2f): %s", d.Score, d.Description)
			w.Entry = e.Key
			state.add(w)
			if !v.config.IncludeDuplicates {
				state.excludeEntry(e.Key)
			}
			continue
		}
		w := NewBusinessWarning(e.FirstRow(), "entry", "resembles a stored entry (score %.2f): %s", d.Score, d.Description)
		w.Entry = e.Key
		state.add(w)
	}
}

// validation collects errors and exclusions of a single run.
type validation struct {
	errs            []*ImportError
	excludedLines   map[*Line]bool
	excludedEntries map[string]bool
	// entries whose exclusion has already been explained by an error
	explained map[string]bool
}

func newValidation() *validation {
	return &validation{
		excludedLines:   make(map[*Line]bool),
		excludedEntries: make(map[string]bool),
		explained:       make(map[string]bool),
	}
}

func (s *validation) add(errs ...*ImportError) {
	s.errs = append(s.errs, errs...)
}

// reject records a hard error on a single line and excludes it.
func (s *validation) reject(l *Line, e *ImportError) {
	e.Entry = l.EntryKey()
	s.errs = append(s.errs, e)
	s.excludedLines[l] = true
}

// rejectEntry records a hard error on a whole entry and excludes it.
func (s *validation) rejectEntry(entry *Entry, e *ImportError) {
	e.Entry = entry.Key
	s.errs = append(s.errs, e)
	s.excludedEntries[entry.Key] = true
	s.explained[entry.Key] = true
}

func (s *validation) excludeEntry(key string) {
	s.excludedEntries[key] = true
	s.explained[key] = true
}

// outcome builds the accepted set. An entry with a single invalid line is
// rejected as a whole so that every accepted entry stays balanced.
func (s *validation) outcome(entries []*Entry) *Outcome {
	out := &Outcome{}
	for _, e := range entries {
		var firstBad *Line
		for _, l := range e.Lines {
			if s.excludedLines[l] {
				firstBad = l
				break
			}
		}
		if firstBad != nil && !s.excludedEntries[e.Key] {
			s.excludedEntries[e.Key] = true
		}
		if s.excludedEntries[e.Key] {
			if !s.explained[e.Key] && firstBad != nil {
				err := NewBusinessError(e.FirstRow(), "entry", "entry %s rejected because row %d is invalid", displayEntry(e), firstBad.Row)
				err.Entry = e.Key
				s.errs = append(s.errs, err)
			}
			continue
		}
		out.Entries = append(out.Entries, e)
		out.Accepted = append(out.Accepted, e.Lines...)
	}
	SortErrors(s.errs)
	out.Errors = s.errs
	return out
}

func displayEntry(e *Entry) string {
	return fmt.Sprintf("%s/%s", e.JournalCode, e.EntryNumber)
}
