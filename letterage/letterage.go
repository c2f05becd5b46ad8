// Package letterage reconciles unlettered debit and credit lines of an
// account and tags matched lines with a shared letter code.
//
// A run works account by account in two passes:
//
//	unlettered lines ─┬─> exact pass (1:1, first fit)
//	                  └─> combinatorial pass (n:1 and 1:n, up to 5 lines)
//	                        │
//	                        v
//	                  scored matches ──> auto-applied or left for review
//
// Lines taken by one match are removed from the pool before the next
// attempt, so a line never belongs to two matches of the same run.
package letterage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"

	"github.com/robinvdvleuten/lettrage/ledger"
	"github.com/robinvdvleuten/lettrage/store"
	"github.com/robinvdvleuten/lettrage/telemetry"
)

const (
	// maxSubset caps the number of lines on the many side of a match.
	maxSubset = 5
	// maxCandidates caps the pool a combination is drawn from.
	maxCandidates = 20
)

// ErrNoRules is returned when no active rule covers the requested prefix.
var ErrNoRules = errors.New("no active letterage rule for this account prefix")

// LineStore is the storage the engine reads and letters.
type LineStore interface {
	Unlettered(ctx context.Context, prefix string) ([]*ledger.Line, error)
	Lines(ctx context.Context, prefix string) ([]*ledger.Line, error)
	SetLetterage(ctx context.Context, ids []string, code string, date time.Time) error
	ClearLetterage(ctx context.Context, code string) (int, error)
	MaxLetterCode(ctx context.Context) (string, error)
}

// Match pairs debit and credit lines of one account.
type Match struct {
	Account    string          `json:"account"`
	DebitIDs   []string        `json:"debit_ids"`
	CreditIDs  []string        `json:"credit_ids"`
	Amount     decimal.Decimal `json:"amount"`
	Difference decimal.Decimal `json:"difference"`
	Confidence float64         `json:"confidence"`
	LetterCode string          `json:"letter_code"`
	RuleID     string          `json:"rule_id"`
	// Auto marks matches an auto-validating rule is confident enough to
	// apply without review.
	Auto    bool `json:"auto"`
	Applied bool `json:"applied"`
}

// IDs returns every line of the match, debits first.
func (m Match) IDs() []string {
	ids := make([]string, 0, len(m.DebitIDs)+len(m.CreditIDs))
	ids = append(ids, m.DebitIDs...)
	return append(ids, m.CreditIDs...)
}

// Multi reports whether the match involves more than one line on a side.
func (m Match) Multi() bool {
	return len(m.DebitIDs) > 1 || len(m.CreditIDs) > 1
}

// RuleResult summarizes what one rule produced.
type RuleResult struct {
	RuleID  string `json:"rule_id"`
	Name    string `json:"name"`
	Matches int    `json:"matches"`
	Applied int    `json:"applied"`
}

// Result is the outcome of a run.
type Result struct {
	Prefix    string       `json:"prefix"`
	DryRun    bool         `json:"dry_run"`
	Processed int          `json:"processed"`
	Matches   []Match      `json:"matches"`
	Applied   int          `json:"applied"`
	Rules     []RuleResult `json:"rules"`
}

// Pending returns the matches left for review.
func (r *Result) Pending() []Match {
	var out []Match
	for _, m := range r.Matches {
		if !m.Applied {
			out = append(out, m)
		}
	}
	return out
}

// RunOptions narrows a run.
type RunOptions struct {
	// DryRun computes matches without writing anything.
	DryRun bool
	// RuleIDs restricts the run to these rules when not empty.
	RuleIDs []string
	// From and To bound line dates when not zero.
	From, To time.Time
}

// Engine runs letterage rules against a store.
type Engine struct {
	store  LineStore
	rules  []Rule
	locks  *store.LockSet
	logger *slog.Logger
	now    func() time.Time

	// codeMu serializes code allocation; highWater is the last code this
	// engine handed out.
	codeMu    sync.Mutex
	highWater string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules replaces the default rules.
func WithRules(rules []Rule) Option {
	return func(e *Engine) {
		e.rules = rules
	}
}

// WithLocks shares a lock set between engines, for example with the
// importer committing lines on the same store.
func WithLocks(locks *store.LockSet) Option {
	return func(e *Engine) {
		e.locks = locks
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock sets the clock used to date applied letterage.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an engine over s.
func New(s LineStore, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		rules:  DefaultRules(),
		locks:  store.NewLockSet(),
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []Rule {
	return sortRules(e.rules)
}

func (e *Engine) selectRules(prefix string, ids []string) []Rule {
	var out []Rule
	for _, r := range sortRules(e.rules) {
		if !r.Active || !r.overlaps(prefix) {
			continue
		}
		if len(ids) > 0 && !slices.Contains(ids, r.ID) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Run reconciles the unlettered lines under prefix. Matches are computed
// first and written afterwards; a run cancelled before the first write
// leaves the store untouched. Each applied match is written atomically.
func (e *Engine) Run(ctx context.Context, prefix string, opts RunOptions) (*Result, error) {
	timer := telemetry.StartTimer(ctx, fmt.Sprintf("letterage.run %q", prefix))
	defer timer.End()

	rules := e.selectRules(prefix, opts.RuleIDs)
	if len(rules) == 0 {
		return nil, ErrNoRules
	}

	release, err := e.locks.Acquire(ctx, prefix)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &Result{Prefix: prefix, DryRun: opts.DryRun}
	consumed := make(map[string]bool)
	seen := make(map[string]bool)

	for _, rule := range rules {
		ruleTimer := timer.Child("letterage.rule " + rule.ID)

		lines, err := e.store.Unlettered(ctx, scope(rule, prefix))
		if err != nil {
			ruleTimer.End()
			return nil, fmt.Errorf("failed to load unlettered lines for rule %s: %w", rule.ID, err)
		}

		pool := make([]*ledger.Line, 0, len(lines))
		for _, l := range lines {
			if consumed[l.ID] || !rule.Matches(l.AccountNumber) || !strings.HasPrefix(l.AccountNumber, prefix) {
				continue
			}
			if !opts.From.IsZero() && l.Date.Before(opts.From) {
				continue
			}
			if !opts.To.IsZero() && l.Date.After(opts.To) {
				continue
			}
			pool = append(pool, l)
			seen[l.ID] = true
		}

		matches, err := matchRule(ctx, rule, pool)
		ruleTimer.End()
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			for _, id := range m.IDs() {
				consumed[id] = true
			}
		}
		result.Matches = append(result.Matches, matches...)
		result.Rules = append(result.Rules, RuleResult{RuleID: rule.ID, Name: rule.Name, Matches: len(matches)})
	}
	result.Processed = len(seen)

	if err := e.assignCodes(ctx, result.Matches, opts.DryRun); err != nil {
		return nil, err
	}

	if opts.DryRun {
		e.logger.Info("letterage dry run", "prefix", prefix, "matches", len(result.Matches))
		return result, nil
	}

	// Nothing has been written yet: a cancelled run is discarded whole.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	applyTimer := timer.Child("letterage.apply")
	defer applyTimer.End()

	date := e.now()
	for i := range result.Matches {
		m := &result.Matches[i]
		if !m.Auto {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := e.store.SetLetterage(ctx, m.IDs(), m.LetterCode, date); err != nil {
			return result, fmt.Errorf("failed to apply letter code %s: %w", m.LetterCode, err)
		}
		m.Applied = true
		result.Applied++
		for j := range result.Rules {
			if result.Rules[j].RuleID == m.RuleID {
				result.Rules[j].Applied++
			}
		}
	}

	e.logger.Info("letterage run",
		"prefix", prefix,
		"processed", result.Processed,
		"matches", len(result.Matches),
		"applied", result.Applied,
	)
	return result, nil
}

// scope returns the narrower of the rule prefix and the run prefix.
func scope(rule Rule, prefix string) string {
	p := rule.Prefix()
	if len(prefix) > len(p) {
		return prefix
	}
	return p
}

// assignCodes gives every match a letter code following the highest code
// stored or handed out. A dry run does not advance the sequence, so
// repeated dry runs agree.
func (e *Engine) assignCodes(ctx context.Context, matches []Match, dryRun bool) error {
	e.codeMu.Lock()
	defer e.codeMu.Unlock()

	stored, err := e.store.MaxLetterCode(ctx)
	if err != nil {
		return fmt.Errorf("failed to read letter codes: %w", err)
	}
	gen := NewCodeGenerator(stored)
	gen.Observe(e.highWater)
	for i := range matches {
		matches[i].LetterCode = gen.Next()
	}
	if !dryRun {
		e.highWater = gen.Last()
	}
	return nil
}

// Apply letters a reviewed match. A match without a code gets a fresh one.
func (e *Engine) Apply(ctx context.Context, m Match) (Match, error) {
	if len(m.DebitIDs) == 0 || len(m.CreditIDs) == 0 {
		return m, fmt.Errorf("match needs at least one debit and one credit line")
	}

	release, err := e.locks.Acquire(ctx, m.Account)
	if err != nil {
		return m, err
	}
	defer release()

	if m.LetterCode == "" {
		codes := []Match{m}
		if err := e.assignCodes(ctx, codes, false); err != nil {
			return m, err
		}
		m.LetterCode = codes[0].LetterCode
	}
	if err := e.store.SetLetterage(ctx, m.IDs(), m.LetterCode, e.now()); err != nil {
		return m, fmt.Errorf("failed to apply letter code %s: %w", m.LetterCode, err)
	}
	m.Applied = true
	e.logger.Info("letterage applied", "code", m.LetterCode, "account", m.Account, "lines", len(m.IDs()))
	return m, nil
}

// Unletter clears code from every line carrying it and returns the number
// of lines released.
func (e *Engine) Unletter(ctx context.Context, code string) (int, error) {
	if strings.TrimSpace(code) == "" {
		return 0, fmt.Errorf("letter code is required")
	}
	release, err := e.locks.Acquire(ctx, "")
	if err != nil {
		return 0, err
	}
	defer release()

	n, err := e.store.ClearLetterage(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("failed to clear letter code %s: %w", code, err)
	}
	e.logger.Info("letterage cleared", "code", code, "lines", n)
	return n, nil
}

// matchRule runs both passes over pool, account by account.
func matchRule(ctx context.Context, rule Rule, pool []*ledger.Line) ([]Match, error) {
	byAccount := make(map[string][]*ledger.Line)
	for _, l := range pool {
		byAccount[l.AccountNumber] = append(byAccount[l.AccountNumber], l)
	}
	accounts := make([]string, 0, len(byAccount))
	for a := range byAccount {
		accounts = append(accounts, a)
	}
	slices.Sort(accounts)

	var matches []Match
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches = append(matches, matchAccount(rule, account, byAccount[account])...)
	}
	return matches, nil
}

func matchAccount(rule Rule, account string, lines []*ledger.Line) []Match {
	sorted := make([]*ledger.Line, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].ID < sorted[j].ID
	})

	var debits, credits []*ledger.Line
	for _, l := range sorted {
		switch l.Side() {
		case ledger.SideDebit:
			debits = append(debits, l)
		case ledger.SideCredit:
			credits = append(credits, l)
		}
	}

	used := make(map[string]bool)
	var matches []Match

	// Exact pass: greedy, first fit.
	for _, d := range debits {
		for _, c := range credits {
			if used[c.ID] {
				continue
			}
			conf, diff, ok := Score(rule, []*ledger.Line{d}, []*ledger.Line{c})
			if !ok || conf < ExactThreshold || diff.GreaterThan(rule.Tolerance) {
				continue
			}
			matches = append(matches, newMatch(rule, account, []*ledger.Line{d}, []*ledger.Line{c}, conf, diff))
			used[d.ID], used[c.ID] = true, true
			break
		}
	}

	if !rule.Combinatorial() {
		return matches
	}

	debitAmount := func(l *ledger.Line) decimal.Decimal { return l.Debit }
	creditAmount := func(l *ledger.Line) decimal.Decimal { return l.Credit }

	// Several debits settled by one credit.
	for _, c := range credits {
		if used[c.ID] {
			continue
		}
		if m, ok := combine(rule, account, c, c.Credit, unused(debits, used), debitAmount, func(picked []*ledger.Line) (float64, decimal.Decimal, bool) {
			return Score(rule, picked, []*ledger.Line{c})
		}); ok {
			matches = append(matches, m)
			for _, id := range m.IDs() {
				used[id] = true
			}
		}
	}

	// One debit settled by several credits.
	for _, d := range debits {
		if used[d.ID] {
			continue
		}
		if m, ok := combine(rule, account, d, d.Debit, unused(credits, used), creditAmount, func(picked []*ledger.Line) (float64, decimal.Decimal, bool) {
			return Score(rule, []*ledger.Line{d}, picked)
		}); ok {
			matches = append(matches, m)
			for _, id := range m.IDs() {
				used[id] = true
			}
		}
	}

	return matches
}

// combine looks for the first subset of candidates, smallest first, whose
// total is within tolerance of target and whose score clears the
// combination threshold.
func combine(
	rule Rule,
	account string,
	anchor *ledger.Line,
	target decimal.Decimal,
	candidates []*ledger.Line,
	amount func(*ledger.Line) decimal.Decimal,
	score func([]*ledger.Line) (float64, decimal.Decimal, bool),
) (Match, bool) {
	upper := target.Add(rule.Tolerance)

	pool := make([]*ledger.Line, 0, len(candidates))
	for _, l := range candidates {
		if amount(l).LessThanOrEqual(upper) {
			pool = append(pool, l)
		}
	}
	// Keep the nearest dates when the pool has to be cut, then restore
	// chronological order.
	if len(pool) > maxCandidates {
		sort.SliceStable(pool, func(i, j int) bool {
			return absDays(pool[i].Date, anchor.Date) < absDays(pool[j].Date, anchor.Date)
		})
		pool = pool[:maxCandidates]
		sort.SliceStable(pool, func(i, j int) bool {
			if !pool[i].Date.Equal(pool[j].Date) {
				return pool[i].Date.Before(pool[j].Date)
			}
			return pool[i].ID < pool[j].ID
		})
	}

	var (
		found Match
		ok    bool
	)
	for size := 2; size <= maxSubset && size <= len(pool); size++ {
		subsets(pool, size, amount, target, rule.Tolerance, func(picked []*ledger.Line) bool {
			conf, diff, viable := score(picked)
			if !viable || conf < CombinationThreshold {
				return false
			}
			if anchor.IsDebit() {
				found = newMatch(rule, account, []*ledger.Line{anchor}, picked, conf, diff)
			} else {
				found = newMatch(rule, account, picked, []*ledger.Line{anchor}, conf, diff)
			}
			ok = true
			return true
		})
		if ok {
			return found, true
		}
	}
	return Match{}, false
}

// subsets calls fn for each k-combination of pool, in index order, whose
// amounts sum to target within tol. Amounts are positive, so a partial
// sum above the upper bound prunes its branch. fn returns true to stop.
func subsets(pool []*ledger.Line, k int, amount func(*ledger.Line) decimal.Decimal, target, tol decimal.Decimal, fn func([]*ledger.Line) bool) {
	upper := target.Add(tol)
	picked := make([]*ledger.Line, 0, k)

	var walk func(start int, sum decimal.Decimal) bool
	walk = func(start int, sum decimal.Decimal) bool {
		if len(picked) == k {
			if sum.Sub(target).Abs().LessThanOrEqual(tol) {
				out := make([]*ledger.Line, k)
				copy(out, picked)
				return fn(out)
			}
			return false
		}
		for i := start; i <= len(pool)-(k-len(picked)); i++ {
			s := sum.Add(amount(pool[i]))
			if s.GreaterThan(upper) {
				continue
			}
			picked = append(picked, pool[i])
			stop := walk(i+1, s)
			picked = picked[:len(picked)-1]
			if stop {
				return true
			}
		}
		return false
	}
	walk(0, decimal.Zero)
}

func newMatch(rule Rule, account string, debits, credits []*ledger.Line, conf float64, diff decimal.Decimal) Match {
	m := Match{
		Account:    account,
		Difference: diff,
		Confidence: conf,
		RuleID:     rule.ID,
	}
	for _, d := range debits {
		m.DebitIDs = append(m.DebitIDs, d.ID)
		m.Amount = m.Amount.Add(d.Debit)
	}
	for _, c := range credits {
		m.CreditIDs = append(m.CreditIDs, c.ID)
	}
	m.Auto = rule.AutoValidate && conf >= AutoThreshold && diff.LessThanOrEqual(rule.Tolerance)
	return m
}

func unused(lines []*ledger.Line, used map[string]bool) []*ledger.Line {
	out := make([]*ledger.Line, 0, len(lines))
	for _, l := range lines {
		if !used[l.ID] {
			out = append(out, l)
		}
	}
	return out
}

func absDays(a, b time.Time) float64 {
	d := a.Sub(b).Hours() / 24
	if d < 0 {
		return -d
	}
	return d
}
