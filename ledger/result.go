package ledger

import (
	"sort"
)

// Duplicate links an incoming entry to a stored entry it resembles.
type Duplicate struct {
	Entry       string   `json:"entry"`
	Rows        []int    `json:"rows"`
	MatchedIDs  []string `json:"matched_ids"`
	Score       float64  `json:"score"`
	Probable    bool     `json:"probable"`
	Description string   `json:"description"`
}

// ImportResult is the outcome of importing one file.
type ImportResult struct {
	BatchID    string         `json:"batch_id"`
	Source     string         `json:"source"`
	Format     string         `json:"format"`
	Encoding   string         `json:"encoding"`
	TotalRows  int            `json:"total_rows"`
	ValidRows  int            `json:"valid_rows"`
	Errors     []*ImportError `json:"errors"`
	Lines      []*Line        `json:"-"`
	Entries    []*Entry       `json:"-"`
	Duplicates []Duplicate    `json:"duplicates"`
}

// ErrorCount returns the number of error-severity problems.
func (r *ImportResult) ErrorCount() int {
	n := 0
	for _, e := range r.Errors {
		if e.Severity == SeverityError {
			n++
		}
	}
	return n
}

// WarningCount returns the number of warnings.
func (r *ImportResult) WarningCount() int {
	return len(r.Errors) - r.ErrorCount()
}

// Success reports whether the import produced no error.
func (r *ImportResult) Success() bool {
	return r.ErrorCount() == 0
}

// AddErrors appends errors and keeps them in row order. Whole-file errors
// (row 0) sort last.
func (r *ImportResult) AddErrors(errs ...*ImportError) {
	r.Errors = append(r.Errors, errs...)
	SortErrors(r.Errors)
}

// AsError returns the errors as a ValidationErrors, or nil if there are none.
func (r *ImportResult) AsError() error {
	if r.ErrorCount() == 0 {
		return nil
	}
	errs := make([]error, 0, r.ErrorCount())
	for _, e := range r.Errors {
		if e.Severity == SeverityError {
			errs = append(errs, e)
		}
	}
	return &ValidationErrors{Errors: errs}
}

// SortErrors orders errors by row, stable for errors on the same row.
func SortErrors(errs []*ImportError) {
	sort.SliceStable(errs, func(i, j int) bool {
		ri, rj := errs[i].Row, errs[j].Row
		if ri == 0 {
			return false
		}
		if rj == 0 {
			return true
		}
		return ri < rj
	})
}
