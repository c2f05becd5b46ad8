package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/robinvdvleuten/lettrage/ledger"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	number TEXT PRIMARY KEY,
	id     TEXT NOT NULL DEFAULT '',
	name   TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS journals (
	code TEXT PRIMARY KEY,
	id   TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS ledger_lines (
	id                TEXT PRIMARY KEY,
	row_number        INTEGER NOT NULL DEFAULT 0,
	journal_code      TEXT NOT NULL,
	journal_name      TEXT NOT NULL DEFAULT '',
	entry_number      TEXT NOT NULL,
	entry_date        DATE NOT NULL,
	account_number    TEXT NOT NULL,
	account_name      TEXT NOT NULL DEFAULT '',
	auxiliary_account TEXT NOT NULL DEFAULT '',
	auxiliary_name    TEXT NOT NULL DEFAULT '',
	reference         TEXT NOT NULL DEFAULT '',
	piece_date        DATE,
	label             TEXT NOT NULL DEFAULT '',
	debit             NUMERIC(18, 2) NOT NULL DEFAULT 0,
	credit            NUMERIC(18, 2) NOT NULL DEFAULT 0,
	letterage_code    TEXT,
	letterage_date    DATE,
	valid_date        DATE,
	foreign_amount    NUMERIC(18, 2),
	currency          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS ledger_lines_account_date_idx ON ledger_lines (account_number, entry_date);
CREATE INDEX IF NOT EXISTS ledger_lines_entry_idx ON ledger_lines (journal_code, entry_number);
CREATE INDEX IF NOT EXISTS ledger_lines_letterage_idx ON ledger_lines (letterage_code);
`

var lineColumns = []string{
	"id", "row_number", "journal_code", "journal_name", "entry_number", "entry_date",
	"account_number", "account_name", "auxiliary_account", "auxiliary_name", "reference",
	"piece_date", "label", "debit", "credit", "letterage_code", "letterage_date",
	"valid_date", "foreign_amount", "currency",
}

var selectLines = "SELECT " + strings.Join(lineColumns, ", ") + " FROM ledger_lines"

// uniqueViolation is the Postgres error code for a unique constraint.
const uniqueViolation = "23505"

// Postgres is a store backed by a PostgreSQL database.
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects to dsn and checks the connection.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewPostgres(db), nil
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the schema if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// UpsertAccounts writes chart-of-accounts entries.
func (p *Postgres) UpsertAccounts(ctx context.Context, accounts ...ledger.AccountInfo) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		for _, a := range accounts {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO accounts (number, id, name, active) VALUES ($1, $2, $3, $4)
				ON CONFLICT (number) DO UPDATE SET id = EXCLUDED.id, name = EXCLUDED.name, active = EXCLUDED.active`,
				a.Number, a.ID, a.Name, a.Active)
			if err != nil {
				return fmt.Errorf("failed to upsert account %s: %w", a.Number, err)
			}
		}
		return nil
	})
}

// UpsertJournals writes journals.
func (p *Postgres) UpsertJournals(ctx context.Context, journals ...ledger.JournalInfo) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		for _, j := range journals {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO journals (code, id, name, type) VALUES ($1, $2, $3, $4)
				ON CONFLICT (code) DO UPDATE SET id = EXCLUDED.id, name = EXCLUDED.name, type = EXCLUDED.type`,
				strings.ToUpper(j.Code), j.ID, j.Name, j.Type.String())
			if err != nil {
				return fmt.Errorf("failed to upsert journal %s: %w", j.Code, err)
			}
		}
		return nil
	})
}

func (p *Postgres) LookupAccounts(ctx context.Context, numbers []string) (map[string]ledger.AccountInfo, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT number, id, name, active FROM accounts WHERE number = ANY($1)`, pq.Array(numbers))
	if err != nil {
		return nil, fmt.Errorf("failed to look up accounts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ledger.AccountInfo, len(numbers))
	for rows.Next() {
		var a ledger.AccountInfo
		if err := rows.Scan(&a.Number, &a.ID, &a.Name, &a.Active); err != nil {
			return nil, err
		}
		out[a.Number] = a
	}
	return out, rows.Err()
}

func (p *Postgres) LookupJournals(ctx context.Context, codes []string) (map[string]ledger.JournalInfo, error) {
	upper := make([]string, len(codes))
	byUpper := make(map[string]string, len(codes))
	for i, c := range codes {
		upper[i] = strings.ToUpper(c)
		byUpper[upper[i]] = c
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT code, id, name, type FROM journals WHERE code = ANY($1)`, pq.Array(upper))
	if err != nil {
		return nil, fmt.Errorf("failed to look up journals: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ledger.JournalInfo, len(codes))
	for rows.Next() {
		var (
			j   ledger.JournalInfo
			typ string
		)
		if err := rows.Scan(&j.Code, &j.ID, &j.Name, &typ); err != nil {
			return nil, err
		}
		j.Type = ledger.ParseJournalType(typ)
		out[byUpper[j.Code]] = j
	}
	return out, rows.Err()
}

func (p *Postgres) ExistingEntries(ctx context.Context, keys []string) (map[string]bool, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT upper(journal_code) || '|' || entry_number AS key
		FROM ledger_lines
		WHERE upper(journal_code) || '|' || entry_number = ANY($1)`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("failed to look up entries: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out[key] = true
	}
	return out, rows.Err()
}

func (p *Postgres) Window(ctx context.Context, accounts []string, from, to time.Time) ([]*ledger.Line, error) {
	return p.query(ctx,
		selectLines+` WHERE account_number = ANY($1) AND entry_date BETWEEN $2 AND $3 ORDER BY entry_date, row_number`,
		pq.Array(accounts), from, to)
}

func (p *Postgres) Unlettered(ctx context.Context, prefix string) ([]*ledger.Line, error) {
	return p.query(ctx,
		selectLines+` WHERE account_number LIKE $1 AND letterage_code IS NULL ORDER BY entry_date, row_number`,
		likePrefix(prefix))
}

func (p *Postgres) Lines(ctx context.Context, prefix string) ([]*ledger.Line, error) {
	return p.query(ctx,
		selectLines+` WHERE account_number LIKE $1 ORDER BY entry_date, row_number`,
		likePrefix(prefix))
}

// Insert copies lines in a single transaction.
func (p *Postgres) Insert(ctx context.Context, lines []*ledger.Line) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("ledger_lines", lineColumns...))
		if err != nil {
			return fmt.Errorf("failed to prepare copy: %w", err)
		}
		for _, l := range lines {
			if _, err := stmt.ExecContext(ctx, lineValues(l)...); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to copy line %s: %w", l.ID, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return fmt.Errorf("%w: %s", ErrDuplicateID, pqErr.Detail)
			}
			return fmt.Errorf("failed to copy lines: %w", err)
		}
		return stmt.Close()
	})
}

// SetLetterage letters ids in one transaction, rolling back if any line
// is missing or already lettered.
func (p *Postgres) SetLetterage(ctx context.Context, ids []string, code string, date time.Time) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE ledger_lines SET letterage_code = $1, letterage_date = $2
			WHERE id = ANY($3) AND letterage_code IS NULL`,
			code, date, pq.Array(ids))
		if err != nil {
			return fmt.Errorf("failed to update letterage: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if int(n) == len(ids) {
			return nil
		}

		var existing int
		if err := tx.QueryRowContext(ctx,
			`SELECT count(*) FROM ledger_lines WHERE id = ANY($1)`, pq.Array(ids)).Scan(&existing); err != nil {
			return err
		}
		if existing < len(ids) {
			return fmt.Errorf("%w: %d of %d lines exist", ErrNotFound, existing, len(ids))
		}
		return ErrAlreadyLettered
	})
}

func (p *Postgres) ClearLetterage(ctx context.Context, code string) (int, error) {
	var n int64
	err := p.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE ledger_lines SET letterage_code = NULL, letterage_date = NULL WHERE letterage_code = $1`, code)
		if err != nil {
			return fmt.Errorf("failed to clear letterage: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

func (p *Postgres) MaxLetterCode(ctx context.Context) (string, error) {
	var code string
	err := p.db.QueryRowContext(ctx, `
		SELECT letterage_code FROM ledger_lines
		WHERE letterage_code ~ '^[A-Z]{3,}$'
		ORDER BY length(letterage_code) DESC, letterage_code DESC
		LIMIT 1`).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read letter codes: %w", err)
	}
	return code, nil
}

func (p *Postgres) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (p *Postgres) query(ctx context.Context, query string, args ...any) ([]*ledger.Line, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()

	var out []*ledger.Line
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLine(rows *sql.Rows) (*ledger.Line, error) {
	var (
		l                                   ledger.Line
		pieceDate, letterageDate, validDate sql.NullTime
		letterageCode                       sql.NullString
		foreignAmount                       decimal.NullDecimal
	)
	err := rows.Scan(
		&l.ID, &l.Row, &l.JournalCode, &l.JournalName, &l.EntryNumber, &l.Date,
		&l.AccountNumber, &l.AccountName, &l.AuxiliaryAccount, &l.AuxiliaryName, &l.Reference,
		&pieceDate, &l.Label, &l.Debit, &l.Credit, &letterageCode, &letterageDate,
		&validDate, &foreignAmount, &l.Currency,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan line: %w", err)
	}
	l.PieceDate = pieceDate.Time
	l.LetterageCode = letterageCode.String
	l.LetterageDate = letterageDate.Time
	l.ValidDate = validDate.Time
	if foreignAmount.Valid {
		l.ForeignAmount = foreignAmount.Decimal
	}
	return &l, nil
}

func lineValues(l *ledger.Line) []any {
	var foreign any
	if !l.ForeignAmount.IsZero() {
		foreign = l.ForeignAmount
	}
	var code any
	if l.LetterageCode != "" {
		code = l.LetterageCode
	}
	return []any{
		l.ID, l.Row, l.JournalCode, l.JournalName, l.EntryNumber, l.Date,
		l.AccountNumber, l.AccountName, l.AuxiliaryAccount, l.AuxiliaryName, l.Reference,
		nullTime(l.PieceDate), l.Label, l.Debit, l.Credit, code, nullTime(l.LetterageDate),
		nullTime(l.ValidDate), foreign, l.Currency,
	}
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// likePrefix escapes LIKE metacharacters in prefix.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
