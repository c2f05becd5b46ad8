package web

import (
	"bytes"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/robinvdvleuten/lettrage/formatter"
	"github.com/robinvdvleuten/lettrage/ledger"
)

const dateLayout = "2006-01-02"

var sirenPattern = regexp.MustCompile(`^\d{9}$`)

// LineJSON is a stored line as served by the API.
type LineJSON struct {
	ID            string `json:"id"`
	Journal       string `json:"journal"`
	EntryNumber   string `json:"entry_number"`
	Date          string `json:"date"`
	Account       string `json:"account"`
	AccountName   string `json:"account_name,omitempty"`
	ThirdParty    string `json:"third_party,omitempty"`
	Reference     string `json:"reference,omitempty"`
	Label         string `json:"label"`
	Debit         string `json:"debit"`
	Credit        string `json:"credit"`
	LetterCode    string `json:"letter_code,omitempty"`
	LetterageDate string `json:"letterage_date,omitempty"`
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func toLineJSON(l *ledger.Line) LineJSON {
	return LineJSON{
		ID:            l.ID,
		Journal:       l.JournalCode,
		EntryNumber:   l.EntryNumber,
		Date:          formatDate(l.Date),
		Account:       l.AccountNumber,
		AccountName:   l.AccountName,
		ThirdParty:    l.AuxiliaryAccount,
		Reference:     l.Reference,
		Label:         l.Label,
		Debit:         l.Debit.StringFixed(2),
		Credit:        l.Credit.StringFixed(2),
		LetterCode:    l.LetterageCode,
		LetterageDate: formatDate(l.LetterageDate),
	}
}

// LinesResponse is the JSON response of the lines endpoint.
type LinesResponse struct {
	Prefix string     `json:"prefix"`
	Lines  []LineJSON `json:"lines"`
}

// handleGetLines handles GET requests to /api/lines.
//
// Query parameters:
//   - prefix: account number prefix; every account when omitted.
//   - unlettered: only lines without a letter code.
func (s *Server) handleGetLines(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	var (
		lines []*ledger.Line
		err   error
	)
	if queryBool(r, "unlettered") {
		lines, err = s.store.Unlettered(r.Context(), prefix)
	} else {
		lines, err = s.store.Lines(r.Context(), prefix)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	response := LinesResponse{Prefix: prefix, Lines: make([]LineJSON, 0, len(lines))}
	for _, l := range lines {
		response.Lines = append(response.Lines, toLineJSON(l))
	}
	writeJSONResponse(w, http.StatusOK, response)
}

// handleExport handles GET requests to /api/export. It writes the stored
// lines as a strict ledger file.
//
// Query parameters:
//   - siren: nine digit company identifier, used in the file name.
//   - closing: closing date (YYYY-MM-DD), used in the file name.
//   - prefix: restrict to an account prefix.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	siren := q.Get("siren")
	if !sirenPattern.MatchString(siren) {
		http.Error(w, "siren must be nine digits", http.StatusBadRequest)
		return
	}
	closing, err := time.Parse(dateLayout, q.Get("closing"))
	if err != nil {
		http.Error(w, "closing must be a date (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	lines, err := s.store.Lines(r.Context(), q.Get("prefix"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	formatter.SortLines(lines)

	var buf bytes.Buffer
	if err := formatter.New().Format(&buf, lines); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", formatter.FileName(siren, closing)))
	_, _ = w.Write(buf.Bytes())
}
