package ledger

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"
)

// skews are the offsets, in cents, applied to the closing credit line.
var skews = []int64{0, 0, 0, 1, -1, 2, -2, 3, 50, -99, 1000}

// randomEntries builds entries of two to four lines where the last credit
// closes the entry, shifted by a random skew.
func randomEntries(rng *rand.Rand, count int) []*Line {
	var lines []*Line
	row := 2
	for n := 1; n <= count; n++ {
		day := time.Date(2024, time.March, 1+n%10, 0, 0, 0, 0, time.UTC)
		debits := 1 + rng.Intn(3)
		var total int64
		for i := 0; i < debits; i++ {
			cents := 100 + rng.Int63n(1_000_000)
			total += cents
			lines = append(lines, &Line{
				ID: fmt.Sprintf("%d-%d", n, i), Row: row, JournalCode: "OD", EntryNumber: fmt.Sprint(n),
				Date: day, AccountNumber: "601000", Label: fmt.Sprintf("Achat %d", n),
				Debit: decimal.New(cents, -2),
			})
			row++
		}
		lines = append(lines, &Line{
			ID: fmt.Sprintf("%d-c", n), Row: row, JournalCode: "OD", EntryNumber: fmt.Sprint(n),
			Date: day, AccountNumber: "401000", Label: fmt.Sprintf("Achat %d", n),
			Credit: decimal.New(total+skews[rng.Intn(len(skews))], -2),
		})
		row++
	}
	return lines
}

func FuzzValidateBalance(f *testing.F) {
	for _, seed := range []int64{1, 2, 3, 42, 2024} {
		f.Add(seed, uint8(6))
	}
	f.Fuzz(func(t *testing.T, seed int64, count uint8) {
		rng := rand.New(rand.NewSource(seed))
		lines := randomEntries(rng, 1+int(count)%20)
		cfg := testConfig()

		outcome, err := New(WithConfig(cfg)).Validate(context.Background(), lines)
		assert.NoError(t, err)

		accepted := make(map[string]bool)
		for _, e := range outcome.Entries {
			assert.True(t, e.Imbalance().LessThanOrEqual(cfg.Tolerance),
				"entry %s accepted with imbalance %s", e.Key, e.Imbalance())
			accepted[e.Key] = true
		}

		for _, e := range GroupEntries(lines) {
			unbalanced := findError(outcome.Errors, fmt.Sprintf("entry OD/%s does not balance", e.EntryNumber))
			if e.Imbalance().GreaterThan(cfg.Tolerance) {
				assert.NotZero(t, unbalanced, "entry %s off by %s was not reported", e.Key, e.Imbalance())
				assert.Equal(t, SeverityError, unbalanced.Severity)
				assert.False(t, accepted[e.Key])
				continue
			}
			assert.Zero(t, unbalanced)
			assert.True(t, accepted[e.Key], "balanced entry %s was rejected", e.Key)
		}
	})
}
