package ledger

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

// Validation Flow
//
//	Validator.Validate(lines)
//	  ├─ validateStructure()   // per line, parallel, no shared state
//	  │    ├─ struct tags (required, lengths, currency)
//	  │    └─ amount sides (negative, both, neither)
//	  ├─ validateBusiness()    // batched collaborator lookups first
//	  │    ├─ entry numbers (stored and in-file)
//	  │    ├─ dates (stale, future, chronology)
//	  │    ├─ journal type vs account classes
//	  │    ├─ account existence and activity
//	  │    ├─ normal balance side
//	  │    └─ identical rows
//	  ├─ validateBalance()     // per entry, then whole file
//	  └─ DuplicateDetector.Detect()

var fieldLabels = map[string]string{
	"JournalCode":   "journal_code",
	"EntryNumber":   "entry_number",
	"AccountNumber": "account_number",
	"Label":         "label",
	"Currency":      "currency",
}

func newStructValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// ValidateLine runs the structural layer over a single line.
func (v *Validator) ValidateLine(l *Line) []*ImportError {
	var errs []*ImportError

	if err := v.structural.Struct(l); err != nil {
		var fieldErrs validator.ValidationErrors
		if !stdErrors.As(err, &fieldErrs) {
			return []*ImportError{NewValidationError(l.Row, "", "%v", err)}
		}
		for _, fe := range fieldErrs {
			errs = append(errs, describeFieldError(l.Row, fe))
		}
	}

	if l.Date.IsZero() {
		errs = append(errs, NewValidationError(l.Row, "date", "date is required"))
	}
	if l.Debit.IsNegative() {
		errs = append(errs, NewValidationError(l.Row, "debit", "debit amount must not be negative"))
	}
	if l.Credit.IsNegative() {
		errs = append(errs, NewValidationError(l.Row, "credit", "credit amount must not be negative"))
	}

	switch {
	case !l.Debit.IsZero() && !l.Credit.IsZero():
		errs = append(errs, NewBusinessError(l.Row, "debit", "both debit and credit present (debit %s, credit %s)",
			FormatAmount(l.Debit), FormatAmount(l.Credit)))
	case l.Debit.IsZero() && l.Credit.IsZero():
		errs = append(errs, NewValidationError(l.Row, "debit", "neither debit nor credit present"))
	}

	return errs
}

func describeFieldError(row int, fe validator.FieldError) *ImportError {
	field := fieldLabels[fe.StructField()]
	if field == "" {
		field = strings.ToLower(fe.StructField())
	}
	name := strings.ReplaceAll(field, "_", " ")

	switch fe.Tag() {
	case "required":
		return NewValidationError(row, field, "%s is required", name)
	case "max":
		return NewValidationError(row, field, "%s must be at most %s characters, got %q", name, fe.Param(), fe.Value())
	case "min":
		return NewValidationError(row, field, "%s must be at least %s characters, got %q", name, fe.Param(), fe.Value())
	case "len", "alpha", "uppercase":
		return NewValidationError(row, field, "%s must be a three-letter uppercase code, got %q", name, fe.Value())
	default:
		return NewValidationError(row, field, "%s is invalid (%s)", name, fe.Tag())
	}
}

func (v *Validator) validateStructure(ctx context.Context, lines []*Line, state *validation) error {
	results := make([][]*ImportError, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	if v.config.Workers > 0 {
		g.SetLimit(v.config.Workers)
	}

	const chunk = 256
	for start := 0; start < len(lines); start += chunk {
		start := start
		end := min(start+chunk, len(lines))
		g.Go(func() error {
			for i := start; i < end; i++ {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				results[i] = v.ValidateLine(lines[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, errs := range results {
		for _, e := range errs {
			state.reject(lines[i], e)
		}
	}
	return nil
}

// lookups holds the batched collaborator answers of one run.
type lookups struct {
	accounts map[string]AccountInfo
	journals map[string]JournalInfo
	existing map[string]bool
}

func (v *Validator) lookup(ctx context.Context, lines []*Line, entries []*Entry) (*lookups, error) {
	res := &lookups{}

	accountSet := make(map[string]struct{})
	journalSet := make(map[string]struct{})
	for _, l := range lines {
		if l.AccountNumber != "" {
			accountSet[l.AccountNumber] = struct{}{}
		}
		if l.JournalCode != "" {
			journalSet[l.JournalCode] = struct{}{}
		}
	}

	if v.accounts != nil {
		numbers := maps.Keys(accountSet)
		slices.Sort(numbers)
		accounts, err := v.accounts.LookupAccounts(ctx, numbers)
		if err != nil {
			return nil, fmt.Errorf("failed to look up %d accounts: %w", len(numbers), err)
		}
		res.accounts = accounts
	}

	if v.journals != nil {
		codes := maps.Keys(journalSet)
		slices.Sort(codes)
		journals, err := v.journals.LookupJournals(ctx, codes)
		if err != nil {
			return nil, fmt.Errorf("failed to look up %d journals: %w", len(codes), err)
		}
		res.journals = journals
	}

	if v.entries != nil {
		keys := make([]string, 0, len(entries))
		for _, e := range entries {
			keys = append(keys, e.Key)
		}
		existing, err := v.entries.ExistingEntries(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("failed to look up %d entry numbers: %w", len(keys), err)
		}
		res.existing = existing
	}

	return res, nil
}

func (v *Validator) validateBusiness(ctx context.Context, lines []*Line, entries []*Entry, state *validation) error {
	found, err := v.lookup(ctx, lines, entries)
	if err != nil {
		return err
	}

	for _, e := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		v.validateEntry(e, found, state)
	}

	for _, l := range lines {
		v.validateAccount(l, found, state)
	}

	if v.config.CheckChronology {
		v.validateChronology(lines, state)
	}
	v.validateIdenticalRows(lines, state)

	return nil
}

func (v *Validator) validateEntry(e *Entry, found *lookups, state *validation) {
	row := e.FirstRow()

	if found.existing[e.Key] {
		state.rejectEntry(e, NewBusinessError(row, "entry_number",
			"entry number %s already exists in journal %s", e.EntryNumber, e.JournalCode))
	}

	for _, l := range e.Lines[1:] {
		if !l.Date.IsZero() && !e.Date.IsZero() && !l.Date.Equal(e.Date) {
			state.rejectEntry(e, NewBusinessError(l.Row, "entry_number",
				"entry number %s is used with different dates (%s and %s)",
				e.EntryNumber, e.Date.Format("2006-01-02"), l.Date.Format("2006-01-02")))
			break
		}
	}

	v.validateDate(e, row, state)
	v.validateJournal(e, found, state)
}

func (v *Validator) validateDate(e *Entry, row int, state *validation) {
	if e.Date.IsZero() {
		return
	}
	now := v.config.now()
	if v.config.StaleAfter > 0 && e.Date.Before(now.Add(-v.config.StaleAfter)) {
		w := NewBusinessWarning(row, "date", "date %s is more than %d days in the past",
			e.Date.Format("2006-01-02"), int(v.config.StaleAfter.Hours()/24))
		w.Entry = e.Key
		state.add(w)
	}
	if e.Date.After(now.Add(v.config.FutureGrace)) {
		w := NewBusinessWarning(row, "date", "date %s is in the future", e.Date.Format("2006-01-02"))
		w.Entry = e.Key
		state.add(w)
	}
}

func (v *Validator) journalType(code string, found *lookups) (JournalType, bool) {
	if found.journals != nil {
		if info, ok := found.journals[code]; ok {
			return info.Type, true
		}
		return InferJournalType(code), false
	}
	return InferJournalType(code), IsStandardJournalCode(code)
}

func (v *Validator) validateJournal(e *Entry, found *lookups, state *validation) {
	if e.JournalCode == "" {
		return
	}
	row := e.FirstRow()

	typ, known := v.journalType(e.JournalCode, found)
	if !known {
		msg := "journal code %s is not a standard journal code"
		if found.journals != nil {
			msg = "journal code %s is not registered"
		}
		w := NewBusinessWarning(row, "journal_code", msg, e.JournalCode)
		w.Entry = e.Key
		state.add(w)
	}

	rule, ok := journalRules[typ]
	if !ok {
		return
	}

	present := make(map[AccountClass]bool)
	for _, l := range e.Lines {
		class := l.Class()
		present[class] = true
		if class != ClassUnknown && !containsClass(rule.allowed, class) {
			w := NewBusinessWarning(l.Row, "account_number", "account %s (class %d, %s) is unusual in a %s journal",
				l.AccountNumber, int(class), class, typ)
			w.Entry = e.Key
			state.add(w)
		}
	}
	for _, required := range rule.required {
		if !present[required] {
			w := NewBusinessWarning(row, "account_number", "%s entry %s has no class %d (%s) line",
				typ, displayEntry(e), int(required), required)
			w.Entry = e.Key
			state.add(w)
		}
	}
}

func (v *Validator) validateAccount(l *Line, found *lookups, state *validation) {
	if l.AccountNumber == "" {
		return
	}

	if found.accounts != nil {
		info, ok := found.accounts[l.AccountNumber]
		if !ok {
			state.reject(l, NewBusinessError(l.Row, "account_number", "account %s does not exist", l.AccountNumber))
			return
		}
		if !info.Active {
			state.reject(l, NewBusinessError(l.Row, "account_number", "account %s is inactive", l.AccountNumber))
			return
		}
	}

	normal := l.Class().NormalSide()
	side := l.Side()
	if normal == SideNone || side == SideNone || side == normal {
		return
	}
	w := NewBusinessWarning(l.Row, side.String(), "account %s is normally a %s account but is posted as a %s (unusual)",
		l.AccountNumber, normal, side)
	w.Entry = l.EntryKey()
	state.add(w)
}

func (v *Validator) validateChronology(lines []*Line, state *validation) {
	last := make(map[string]*Line)
	for _, l := range lines {
		if l.Date.IsZero() {
			continue
		}
		prev, ok := last[l.JournalCode]
		if ok && l.Date.Before(prev.Date) {
			w := NewBusinessWarning(l.Row, "date", "date %s goes back in journal %s (row %d is dated %s)",
				l.Date.Format("2006-01-02"), l.JournalCode, prev.Row, prev.Date.Format("2006-01-02"))
			w.Entry = l.EntryKey()
			state.add(w)
			continue
		}
		last[l.JournalCode] = l
	}
}

func identicalKey(l *Line) string {
	return strings.Join([]string{
		l.JournalCode,
		l.EntryNumber,
		l.Date.Format("20060102"),
		l.AccountNumber,
		l.Debit.StringFixed(2),
		l.Credit.StringFixed(2),
	}, "|")
}

func (v *Validator) validateIdenticalRows(lines []*Line, state *validation) {
	seen := make(map[string]int, len(lines))
	for _, l := range lines {
		key := identicalKey(l)
		if first, ok := seen[key]; ok {
			w := NewBusinessWarning(l.Row, "", "row is identical to row %d", first)
			w.Entry = l.EntryKey()
			state.add(w)
			continue
		}
		seen[key] = l.Row
	}
}

func (v *Validator) validateBalance(lines []*Line, entries []*Entry, state *validation) {
	tolerance := v.config.Tolerance

	for _, e := range entries {
		if e.Balanced(tolerance) {
			continue
		}
		state.rejectEntry(e, newUnbalancedError(e))
	}

	debit, credit := BalanceOf(lines)
	if !AmountEqual(debit, credit, tolerance) {
		state.add(NewBusinessError(0, "", "file does not balance: debit %s, credit %s (discrepancy %s)",
			FormatAmount(debit), FormatAmount(credit), FormatAmount(debit.Sub(credit).Abs())))
	}
}

func newUnbalancedError(e *Entry) *ImportError {
	debit, credit := e.TotalDebit(), e.TotalCredit()
	return NewBusinessError(e.FirstRow(), "entry",
		"entry %s does not balance: debit %s, credit %s (discrepancy %s)",
		displayEntry(e), FormatAmount(debit), FormatAmount(credit), FormatAmount(debit.Sub(credit).Abs()))
}

// CheckBalanced reports whether every entry balances within tolerance.
func CheckBalanced(entries []*Entry, tolerance decimal.Decimal) error {
	var errs []error
	for _, e := range entries {
		if !e.Balanced(tolerance) {
			errs = append(errs, newUnbalancedError(e))
		}
	}
	if len(errs) > 0 {
		return &ValidationErrors{Errors: errs}
	}
	return nil
}
