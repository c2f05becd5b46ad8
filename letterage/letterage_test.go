package letterage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"

	"github.com/robinvdvleuten/lettrage/ledger"
	"github.com/robinvdvleuten/lettrage/store"
)

var applied = time.Date(2024, time.April, 1, 12, 0, 0, 0, time.UTC)

func march(d int) time.Time {
	return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
}

func debit(id, account string, d int, amount string) *ledger.Line {
	return &ledger.Line{
		ID: id, Row: d, JournalCode: "BQ", EntryNumber: id, Date: march(d),
		AccountNumber: account, Label: "debit " + id,
		Debit: decimal.RequireFromString(amount),
	}
}

func credit(id, account string, d int, amount string) *ledger.Line {
	return &ledger.Line{
		ID: id, Row: d, JournalCode: "BQ", EntryNumber: id, Date: march(d),
		AccountNumber: account, Label: "credit " + id,
		Credit: decimal.RequireFromString(amount),
	}
}

func newStore(t *testing.T, lines ...*ledger.Line) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	assert.NoError(t, m.Insert(context.Background(), lines))
	return m
}

func newEngine(s LineStore, opts ...Option) *Engine {
	opts = append([]Option{WithClock(func() time.Time { return applied })}, opts...)
	return New(s, opts...)
}

func bankRule() Rule {
	return Rule{
		ID:             "bank",
		Name:           "Bank",
		AccountPattern: "512%",
		Criteria: []Criterion{
			{Field: FieldAmount, ExactMatch: true},
			{Field: FieldDate, DaysWindow: 5},
		},
		Tolerance:    decimal.RequireFromString("0.01"),
		AutoValidate: true,
		Active:       true,
	}
}

func TestRunExactBankMatch(t *testing.T) {
	ctx := context.Background()
	s := newStore(t,
		debit("d1", "512100", 1, "1000.00"),
		credit("c1", "512100", 3, "1000.00"),
	)
	e := newEngine(s, WithRules([]Rule{bankRule()}))

	result, err := e.Run(ctx, "512", RunOptions{})
	assert.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, len(result.Matches))

	m := result.Matches[0]
	assert.Equal(t, 1.0, m.Confidence)
	assert.True(t, m.Difference.IsZero())
	assert.Equal(t, []string{"d1"}, m.DebitIDs)
	assert.Equal(t, []string{"c1"}, m.CreditIDs)
	assert.Equal(t, "AAA", m.LetterCode)
	assert.True(t, m.Auto)
	assert.True(t, m.Applied)

	lines, err := s.Lines(ctx, "512")
	assert.NoError(t, err)
	for _, l := range lines {
		assert.Equal(t, "AAA", l.LetterageCode)
		assert.Equal(t, applied, l.LetterageDate)
	}

	// Nothing left to match.
	result, err = e.Run(ctx, "512", RunOptions{})
	assert.NoError(t, err)
	assert.Equal(t, 0, len(result.Matches))
}

func TestRunSubsetMatch(t *testing.T) {
	ctx := context.Background()
	s := newStore(t,
		debit("d1", "411000", 1, "700.00"),
		debit("d2", "411000", 2, "800.00"),
		credit("c1", "411000", 10, "1500.00"),
	)
	e := newEngine(s)

	result, err := e.Run(ctx, "411", RunOptions{})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(result.Matches))

	m := result.Matches[0]
	assert.Equal(t, "clients_exact_amount", m.RuleID)
	assert.Equal(t, []string{"d1", "d2"}, m.DebitIDs)
	assert.Equal(t, []string{"c1"}, m.CreditIDs)
	assert.True(t, m.Multi())
	assert.True(t, m.Confidence >= CombinationThreshold, "confidence %v", m.Confidence)
	assert.True(t, m.Difference.IsZero())
	assert.Equal(t, "1500", m.Amount.String())
}

func TestRunOneDebitSeveralCredits(t *testing.T) {
	s := newStore(t,
		debit("d1", "401000", 1, "300"),
		credit("c1", "401000", 5, "100"),
		credit("c2", "401000", 6, "200"),
		credit("c3", "401000", 7, "999"),
	)
	result, err := newEngine(s).Run(context.Background(), "401", RunOptions{DryRun: true})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(result.Matches))
	assert.Equal(t, []string{"d1"}, result.Matches[0].DebitIDs)
	assert.Equal(t, []string{"c1", "c2"}, result.Matches[0].CreditIDs)
}

func TestRunLineUsedOnce(t *testing.T) {
	s := newStore(t,
		debit("d1", "512000", 1, "50"),
		debit("d2", "512000", 1, "50"),
		credit("c1", "512000", 2, "50"),
	)
	result, err := newEngine(s, WithRules([]Rule{bankRule()})).Run(context.Background(), "512", RunOptions{DryRun: true})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(result.Matches))
	assert.Equal(t, []string{"d1"}, result.Matches[0].DebitIDs)
}

func TestRunKeepsAccountsApart(t *testing.T) {
	s := newStore(t,
		debit("d1", "411001", 1, "100"),
		credit("c1", "411002", 1, "100"),
	)
	result, err := newEngine(s).Run(context.Background(), "411", RunOptions{DryRun: true})
	assert.NoError(t, err)
	assert.Equal(t, 0, len(result.Matches))
}

func TestRunDryRunIsDeterministic(t *testing.T) {
	ctx := context.Background()
	s := newStore(t,
		debit("d1", "411000", 1, "120"),
		credit("c1", "411000", 4, "120"),
		debit("d2", "411000", 2, "75.50"),
		credit("c2", "411000", 9, "75.50"),
		debit("d3", "512000", 3, "10"),
		credit("c3", "512000", 3, "10"),
	)
	e := newEngine(s)

	first, err := e.Run(ctx, "", RunOptions{DryRun: true})
	assert.NoError(t, err)
	second, err := e.Run(ctx, "", RunOptions{DryRun: true})
	assert.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 3, len(first.Matches))
	assert.Equal(t, 0, first.Applied)

	lines, err := s.Unlettered(ctx, "")
	assert.NoError(t, err)
	assert.Equal(t, 6, len(lines))
}

func TestRunReviewMatchesNotApplied(t *testing.T) {
	ctx := context.Background()
	// Amounts 3 apart exceed twice the rule tolerance: nothing is scored.
	d := debit("d1", "411000", 1, "100")
	d.Reference = "FA-2024-001"
	c := credit("c1", "411000", 20, "97")
	c.Reference = "FA-2024-001"
	s := newStore(t, d, c)

	result, err := newEngine(s).Run(ctx, "411", RunOptions{})
	assert.NoError(t, err)
	assert.Equal(t, 0, len(result.Matches))

	// One cent apart, the reference rule proposes a match for review.
	c2 := credit("c2", "411000", 20, "99.99")
	c2.Reference = "FA-2024-002"
	d2 := debit("d2", "411000", 1, "100")
	d2.Reference = "FA-2024-002"
	s = newStore(t, d2, c2)

	result, err = newEngine(s, WithRules([]Rule{DefaultRules()[2]})).Run(ctx, "411", RunOptions{})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(result.Matches))
	assert.False(t, result.Matches[0].Auto)
	assert.Equal(t, 0, result.Applied)
	assert.Equal(t, 1, len(result.Pending()))
}

func TestRunDateFilter(t *testing.T) {
	s := newStore(t,
		debit("d1", "512000", 1, "10"),
		credit("c1", "512000", 2, "10"),
		debit("d2", "512000", 20, "10"),
		credit("c2", "512000", 21, "10"),
	)
	result, err := newEngine(s, WithRules([]Rule{bankRule()})).Run(context.Background(), "512", RunOptions{
		DryRun: true,
		From:   march(15),
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, len(result.Matches))
	assert.Equal(t, []string{"d2"}, result.Matches[0].DebitIDs)
}

func TestRunNoRules(t *testing.T) {
	_, err := newEngine(store.NewMemory()).Run(context.Background(), "606", RunOptions{})
	assert.IsError(t, err, ErrNoRules)

	_, err = newEngine(store.NewMemory()).Run(context.Background(), "411", RunOptions{RuleIDs: []string{"missing"}})
	assert.IsError(t, err, ErrNoRules)
}

func TestRunCancelledWritesNothing(t *testing.T) {
	s := newStore(t,
		debit("d1", "512000", 1, "10"),
		credit("c1", "512000", 1, "10"),
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine(s).Run(ctx, "512", RunOptions{})
	assert.Error(t, err)

	lines, err := s.Unlettered(context.Background(), "512")
	assert.NoError(t, err)
	assert.Equal(t, 2, len(lines))
}

func TestRunContinuesStoredSequence(t *testing.T) {
	ctx := context.Background()
	old := debit("old", "411000", 1, "5")
	old.LetterageCode = "ABZ"
	s := newStore(t,
		old,
		debit("d1", "512000", 1, "10"),
		credit("c1", "512000", 1, "10"),
	)
	result, err := newEngine(s).Run(ctx, "512", RunOptions{})
	assert.NoError(t, err)
	assert.Equal(t, "ACA", result.Matches[0].LetterCode)
}

func TestRunPrefixLockSerializes(t *testing.T) {
	locks := store.NewLockSet()
	release, err := locks.Acquire(context.Background(), "5")
	assert.NoError(t, err)

	s := newStore(t, debit("d1", "512000", 1, "10"), credit("c1", "512000", 1, "10"))
	e := newEngine(s, WithLocks(locks))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = e.Run(ctx, "512", RunOptions{})
	assert.IsError(t, err, context.DeadlineExceeded)

	release()
	result, err := e.Run(context.Background(), "512", RunOptions{})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
}

func TestApplyAndUnletter(t *testing.T) {
	ctx := context.Background()
	s := newStore(t,
		debit("d1", "411000", 1, "100"),
		credit("c1", "411000", 2, "99.99"),
	)
	e := newEngine(s)

	m, err := e.Apply(ctx, Match{Account: "411000", DebitIDs: []string{"d1"}, CreditIDs: []string{"c1"}})
	assert.NoError(t, err)
	assert.Equal(t, "AAA", m.LetterCode)
	assert.True(t, m.Applied)

	_, err = e.Apply(ctx, Match{Account: "411000", DebitIDs: []string{"d1"}, CreditIDs: []string{"c1"}})
	assert.IsError(t, err, store.ErrAlreadyLettered)

	_, err = e.Apply(ctx, Match{Account: "411000", DebitIDs: []string{"d1"}})
	assert.Error(t, err)

	n, err := e.Unletter(ctx, "AAA")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)

	lines, err := s.Unlettered(ctx, "411")
	assert.NoError(t, err)
	assert.Equal(t, 2, len(lines))

	_, err = e.Unletter(ctx, " ")
	assert.Error(t, err)
}

func TestCodesUniqueAcrossRuns(t *testing.T) {
	ctx := context.Background()
	s := newStore(t,
		debit("d1", "411000", 1, "10"),
		credit("c1", "411000", 1, "10"),
		debit("d2", "512000", 1, "20"),
		credit("c2", "512000", 1, "20"),
	)
	e := newEngine(s)

	a, err := e.Run(ctx, "411", RunOptions{})
	assert.NoError(t, err)
	b, err := e.Run(ctx, "512", RunOptions{})
	assert.NoError(t, err)
	assert.Equal(t, "AAA", a.Matches[0].LetterCode)
	assert.Equal(t, "AAB", b.Matches[0].LetterCode)
}

func TestSubsets(t *testing.T) {
	var pool []*ledger.Line
	for i, amount := range []string{"5", "10", "15", "20"} {
		pool = append(pool, debit(fmt.Sprint(i), "411", 1, amount))
	}
	var got [][]string
	subsets(pool, 2, func(l *ledger.Line) decimal.Decimal { return l.Debit }, decimal.NewFromInt(25), decimal.Zero, func(picked []*ledger.Line) bool {
		var ids []string
		for _, l := range picked {
			ids = append(ids, l.ID)
		}
		got = append(got, ids)
		return false
	})
	assert.Equal(t, [][]string{{"0", "3"}, {"1", "2"}}, got)
}

func BenchmarkRun(b *testing.B) {
	ctx := context.Background()
	var lines []*ledger.Line
	for i := 0; i < 500; i++ {
		amount := fmt.Sprintf("%d.%02d", 100+i, i%100)
		lines = append(lines,
			debit(fmt.Sprintf("d%d", i), "411000", 1+i%28, amount),
			credit(fmt.Sprintf("c%d", i), "411000", 1+(i+3)%28, amount),
		)
	}
	s := store.NewMemory()
	if err := s.Insert(ctx, lines); err != nil {
		b.Fatal(err)
	}
	e := New(s)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Run(ctx, "411", RunOptions{DryRun: true}); err != nil {
			b.Fatal(err)
		}
	}
}
