package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/robinvdvleuten/lettrage/events"
	"github.com/robinvdvleuten/lettrage/letterage"
)

// RunRequest is the body of a letterage run.
type RunRequest struct {
	Prefix string   `json:"prefix"`
	DryRun bool     `json:"dry_run"`
	Rules  []string `json:"rules"`
	From   string   `json:"from"`
	To     string   `json:"to"`
}

func (req RunRequest) options() (letterage.RunOptions, error) {
	opts := letterage.RunOptions{DryRun: req.DryRun, RuleIDs: req.Rules}
	var err error
	if req.From != "" {
		if opts.From, err = time.Parse(dateLayout, req.From); err != nil {
			return opts, fmt.Errorf("invalid from date %q", req.From)
		}
	}
	if req.To != "" {
		if opts.To, err = time.Parse(dateLayout, req.To); err != nil {
			return opts, fmt.Errorf("invalid to date %q", req.To)
		}
	}
	if !opts.From.IsZero() && !opts.To.IsZero() && opts.To.Before(opts.From) {
		return opts, fmt.Errorf("to date is before from date")
	}
	return opts, nil
}

// handleRun handles POST requests to /api/letterage/run.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	opts, err := req.options()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !opts.DryRun && s.ReadOnly {
		http.Error(w, "Server is in read-only mode", http.StatusForbidden)
		return
	}

	start := time.Now()
	result, err := s.engine.Run(r.Context(), req.Prefix, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.ObserveLetterage(result, time.Since(start))
	if !result.DryRun {
		s.publish(r.Context(), events.New(events.TypeLetterageRun, result.Prefix, result))
	}
	writeJSONResponse(w, http.StatusOK, result)
}

// ApplyRequest is a reviewed match to letter.
type ApplyRequest struct {
	Account   string   `json:"account"`
	DebitIDs  []string `json:"debit_ids"`
	CreditIDs []string `json:"credit_ids"`
	RuleID    string   `json:"rule_id"`
}

// handleApply handles POST requests to /api/letterage/apply.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.DebitIDs) == 0 || len(req.CreditIDs) == 0 {
		http.Error(w, "at least one debit and one credit line are required", http.StatusBadRequest)
		return
	}

	m, err := s.engine.Apply(r.Context(), letterage.Match{
		Account:   req.Account,
		DebitIDs:  req.DebitIDs,
		CreditIDs: req.CreditIDs,
		RuleID:    req.RuleID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publish(r.Context(), events.New(events.TypeLetterageApplied, m.LetterCode, m))
	writeJSONResponse(w, http.StatusOK, m)
}

// UnletterResponse reports a cleared letter code.
type UnletterResponse struct {
	Code  string `json:"code"`
	Lines int    `json:"lines"`
}

// handleUnletter handles DELETE requests to /api/letterage/{code}.
func (s *Server) handleUnletter(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	n, err := s.engine.Unletter(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if n == 0 {
		http.Error(w, fmt.Sprintf("letter code %s not found", code), http.StatusNotFound)
		return
	}
	s.metrics.ObserveUnletter(n)
	response := UnletterResponse{Code: code, Lines: n}
	s.publish(r.Context(), events.New(events.TypeLetterageCleared, code, response))
	writeJSONResponse(w, http.StatusOK, response)
}

// handleReport handles GET requests to /api/report?prefix=.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := letterage.BuildReport(r.Context(), s.store, r.URL.Query().Get("prefix"), s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, report)
}
