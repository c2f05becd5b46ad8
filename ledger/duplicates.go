package ledger

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"golang.org/x/exp/slices"
)

// Weights of the duplicate similarity score. They sum to one.
const (
	WeightAmount      = 0.4
	WeightAccounts    = 0.3
	WeightDate        = 0.2
	WeightDescription = 0.1
)

// DuplicateDetector compares incoming entries with stored history.
type DuplicateDetector struct {
	history LineWindow
	config  *Config
}

// NewDuplicateDetector creates a detector reading history from w.
func NewDuplicateDetector(w LineWindow, cfg *Config) *DuplicateDetector {
	if cfg == nil {
		cfg = NewConfig()
	}
	return &DuplicateDetector{history: w, config: cfg}
}

// Detect returns, for each incoming entry, its best-scoring stored
// candidate when that score reaches the warning threshold. History is
// fetched with a single window query covering all entries.
func (d *DuplicateDetector) Detect(ctx context.Context, entries []*Entry) ([]Duplicate, error) {
	if len(entries) == 0 || d.history == nil {
		return nil, nil
	}

	window := d.config.DuplicateWindow
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}

	accountSet := make(map[string]struct{})
	var from, to time.Time
	for _, e := range entries {
		if e.Date.IsZero() {
			continue
		}
		for _, a := range e.Accounts() {
			accountSet[a] = struct{}{}
		}
		if from.IsZero() || e.Date.Before(from) {
			from = e.Date
		}
		if to.IsZero() || e.Date.After(to) {
			to = e.Date
		}
	}
	if len(accountSet) == 0 {
		return nil, nil
	}

	accounts := make([]string, 0, len(accountSet))
	for a := range accountSet {
		accounts = append(accounts, a)
	}
	slices.Sort(accounts)

	stored, err := d.history.Window(ctx, accounts, from.Add(-window), to.Add(window))
	if err != nil {
		return nil, fmt.Errorf("failed to load stored lines for duplicate detection: %w", err)
	}
	if len(stored) == 0 {
		return nil, nil
	}

	candidates := GroupEntries(stored)
	byAccount := make(map[string][]*Entry)
	for _, c := range candidates {
		for _, a := range c.Accounts() {
			byAccount[a] = append(byAccount[a], c)
		}
	}

	var duplicates []Duplicate
	for _, e := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if e.Date.IsZero() {
			continue
		}

		var best *Entry
		bestScore := -1.0
		seen := make(map[*Entry]bool)
		for _, a := range e.Accounts() {
			for _, c := range byAccount[a] {
				if seen[c] {
					continue
				}
				seen[c] = true
				if absDuration(c.Date.Sub(e.Date)) > window {
					continue
				}
				score := EntrySimilarity(e, c, window)
				if score > bestScore {
					best, bestScore = c, score
				}
			}
		}
		if best == nil || bestScore < d.config.DuplicateWarnThreshold {
			continue
		}

		rows := make([]int, 0, len(e.Lines))
		for _, l := range e.Lines {
			rows = append(rows, l.Row)
		}
		ids := make([]string, 0, len(best.Lines))
		for _, l := range best.Lines {
			ids = append(ids, l.ID)
		}
		duplicates = append(duplicates, Duplicate{
			Entry:       e.Key,
			Rows:        rows,
			MatchedIDs:  ids,
			Score:       bestScore,
			Probable:    bestScore > d.config.DuplicateThreshold,
			Description: fmt.Sprintf("%s dated %s", displayEntry(best), best.Date.Format("2006-01-02")),
		})
	}
	return duplicates, nil
}

// EntrySimilarity scores how likely b is a copy of a, in [0,1].
func EntrySimilarity(a, b *Entry, window time.Duration) float64 {
	score := WeightAmount*AmountSimilarity(a.TotalDebit().InexactFloat64(), b.TotalDebit().InexactFloat64()) +
		WeightAccounts*AccountOverlap(a.Accounts(), b.Accounts()) +
		WeightDate*DateProximity(a.Date, b.Date, window) +
		WeightDescription*DescriptionSimilarity(entryDescription(a), entryDescription(b))
	return math.Round(score*10000) / 10000
}

// AmountSimilarity is 1 for equal amounts and decreases with the
// relative difference.
func AmountSimilarity(a, b float64) float64 {
	a, b = math.Abs(a), math.Abs(b)
	if a == b {
		return 1
	}
	largest := math.Max(a, b)
	if largest == 0 {
		return 1
	}
	return clamp01(1 - math.Abs(a-b)/largest)
}

// AccountOverlap is the Jaccard index of two account sets.
func AccountOverlap(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	inter := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, x := range b {
		if seen[x] {
			continue
		}
		seen[x] = true
		if set[x] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

// DateProximity is 1 for the same day and 0 at the edge of the window.
func DateProximity(a, b time.Time, window time.Duration) float64 {
	if window <= 0 {
		if sameDay(a, b) {
			return 1
		}
		return 0
	}
	days := math.Abs(truncateDay(a).Sub(truncateDay(b)).Hours() / 24)
	windowDays := window.Hours() / 24
	return clamp01(1 - days/windowDays)
}

// DescriptionSimilarity compares two labels: identical is 1, containment
// is 0.8, otherwise the ratio of shared words longer than two characters.
func DescriptionSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}

	wa, wb := significantWords(a), significantWords(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(wa))
	for _, w := range wa {
		set[w] = true
	}
	common := 0
	for _, w := range wb {
		if set[w] {
			common++
			delete(set, w)
		}
	}
	return float64(common) / math.Max(float64(len(wa)), float64(len(wb)))
}

func significantWords(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 2 {
			words = append(words, f)
		}
	}
	return words
}

func entryDescription(e *Entry) string {
	labels := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		label := strings.TrimSpace(l.Label)
		if label == "" || slices.Contains(labels, label) {
			continue
		}
		labels = append(labels, label)
	}
	return strings.Join(labels, " ")
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return truncateDay(a).Equal(truncateDay(b))
}
