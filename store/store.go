// Package store holds ledger lines, accounts and journals for the import
// and letterage pipelines.
//
// Two implementations share one contract: Memory keeps everything in
// process, Postgres persists to a database. Both satisfy the collaborator
// interfaces of the ledger and letterage packages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/robinvdvleuten/lettrage/ledger"
)

var (
	// ErrNotFound is returned when a referenced line does not exist.
	ErrNotFound = errors.New("line not found")
	// ErrAlreadyLettered is returned when lettering a line that already
	// carries a code.
	ErrAlreadyLettered = errors.New("line is already lettered")
	// ErrDuplicateID is returned when inserting a line ID twice.
	ErrDuplicateID = errors.New("duplicate line id")
)

// Store is the full storage contract.
type Store interface {
	ledger.AccountDirectory
	ledger.JournalDirectory
	ledger.EntryIndex
	ledger.LineWindow

	// Insert stores lines atomically: either every line is stored or none.
	Insert(ctx context.Context, lines []*ledger.Line) error
	// Unlettered returns lines under prefix with no letter code, ordered
	// by date then row.
	Unlettered(ctx context.Context, prefix string) ([]*ledger.Line, error)
	// Lines returns every line under prefix, ordered by date then row.
	Lines(ctx context.Context, prefix string) ([]*ledger.Line, error)
	// SetLetterage letters every line of ids with code, or none of them.
	SetLetterage(ctx context.Context, ids []string, code string, date time.Time) error
	// ClearLetterage removes code from every line carrying it.
	ClearLetterage(ctx context.Context, code string) (int, error)
	// MaxLetterCode returns the highest generated letter code stored.
	MaxLetterCode(ctx context.Context) (string, error)
	// Close releases resources.
	Close() error
}

func cloneLine(l *ledger.Line) *ledger.Line {
	c := *l
	return &c
}
