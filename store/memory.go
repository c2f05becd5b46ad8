package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robinvdvleuten/lettrage/ledger"
)

// Memory is an in-process store. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	lines    []*ledger.Line
	byID     map[string]*ledger.Line
	entries  map[string]bool
	accounts map[string]ledger.AccountInfo
	journals map[string]ledger.JournalInfo
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		byID:     make(map[string]*ledger.Line),
		entries:  make(map[string]bool),
		accounts: make(map[string]ledger.AccountInfo),
		journals: make(map[string]ledger.JournalInfo),
	}
}

// AddAccounts registers chart-of-accounts entries.
func (m *Memory) AddAccounts(accounts ...ledger.AccountInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range accounts {
		m.accounts[a.Number] = a
	}
}

// AddJournals registers journals.
func (m *Memory) AddJournals(journals ...ledger.JournalInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range journals {
		m.journals[strings.ToUpper(j.Code)] = j
	}
}

func (m *Memory) LookupAccounts(ctx context.Context, numbers []string) (map[string]ledger.AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]ledger.AccountInfo, len(numbers))
	for _, n := range numbers {
		if a, ok := m.accounts[n]; ok {
			out[n] = a
		}
	}
	return out, nil
}

func (m *Memory) LookupJournals(ctx context.Context, codes []string) (map[string]ledger.JournalInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]ledger.JournalInfo, len(codes))
	for _, c := range codes {
		if j, ok := m.journals[strings.ToUpper(c)]; ok {
			out[c] = j
		}
	}
	return out, nil
}

func (m *Memory) ExistingEntries(ctx context.Context, keys []string) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool)
	for _, k := range keys {
		if m.entries[k] {
			out[k] = true
		}
	}
	return out, nil
}

func (m *Memory) Window(ctx context.Context, accounts []string, from, to time.Time) ([]*ledger.Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		want[a] = true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ledger.Line
	for _, l := range m.lines {
		if want[l.AccountNumber] && !l.Date.Before(from) && !l.Date.After(to) {
			out = append(out, cloneLine(l))
		}
	}
	return out, nil
}

func (m *Memory) Insert(ctx context.Context, lines []*ledger.Line) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	batch := make(map[string]bool, len(lines))
	for _, l := range lines {
		if _, ok := m.byID[l.ID]; ok || batch[l.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateID, l.ID)
		}
		batch[l.ID] = true
	}
	for _, l := range lines {
		c := cloneLine(l)
		m.lines = append(m.lines, c)
		m.byID[c.ID] = c
		m.entries[c.EntryKey()] = true
	}
	return nil
}

func (m *Memory) selectLines(prefix string, keep func(*ledger.Line) bool) []*ledger.Line {
	var out []*ledger.Line
	for _, l := range m.lines {
		if strings.HasPrefix(l.AccountNumber, prefix) && keep(l) {
			out = append(out, cloneLine(l))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Row < out[j].Row
	})
	return out
}

func (m *Memory) Unlettered(ctx context.Context, prefix string) ([]*ledger.Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectLines(prefix, func(l *ledger.Line) bool { return !l.Lettered() }), nil
}

func (m *Memory) Lines(ctx context.Context, prefix string) ([]*ledger.Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectLines(prefix, func(*ledger.Line) bool { return true }), nil
}

func (m *Memory) SetLetterage(ctx context.Context, ids []string, code string, date time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check every line before touching any.
	for _, id := range ids {
		l, ok := m.byID[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if l.Lettered() {
			return fmt.Errorf("%w: %s has code %s", ErrAlreadyLettered, id, l.LetterageCode)
		}
	}
	for _, id := range ids {
		l := m.byID[id]
		l.LetterageCode = code
		l.LetterageDate = date
	}
	return nil
}

func (m *Memory) ClearLetterage(ctx context.Context, code string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.lines {
		if l.LetterageCode == code {
			l.LetterageCode = ""
			l.LetterageDate = time.Time{}
			n++
		}
	}
	return n, nil
}

func (m *Memory) MaxLetterCode(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ledger.MaxLetterCode(m.lines), nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
