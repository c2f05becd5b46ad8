package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/robinvdvleuten/lettrage/detect"
	lerrors "github.com/robinvdvleuten/lettrage/errors"
	"github.com/robinvdvleuten/lettrage/importer"
	"github.com/robinvdvleuten/lettrage/ledger"
)

// ImportResponse is the outcome of an upload.
type ImportResponse struct {
	BatchID    string                 `json:"batch_id"`
	Source     string                 `json:"source"`
	Format     string                 `json:"format"`
	Encoding   string                 `json:"encoding,omitempty"`
	Summary    importer.Summary       `json:"summary"`
	Errors     []lerrors.ErrorJSON    `json:"errors"`
	Duplicates []ledger.Duplicate     `json:"duplicates"`
	Commit     *importer.CommitResult `json:"commit,omitempty"`
}

// FileErrorResponse is returned when a file cannot be imported at all.
type FileErrorResponse struct {
	Error lerrors.ErrorJSON `json:"error"`
}

// readUpload returns the uploaded file name and content. Multipart
// requests carry the file in the "file" field; any other body is the file
// itself, named by the "name" query parameter.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, fmt.Errorf("missing file field: %w", err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return "", nil, fmt.Errorf("failed to read upload: %w", err)
		}
		return filepath.Base(header.Filename), data, nil
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		return "", nil, fmt.Errorf("name query parameter is required for raw uploads")
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return filepath.Base(name), data, nil
}

// importerFor applies the per-request format and sheet.
func (s *Server) importerFor(r *http.Request) (*importer.Importer, error) {
	q := r.URL.Query()
	var opts []importer.Option
	if f := q.Get("format"); f != "" {
		format, err := detect.ParseFormat(f)
		if err != nil {
			return nil, err
		}
		opts = append(opts, importer.WithFormat(format))
	}
	if sheet := q.Get("sheet"); sheet != "" {
		opts = append(opts, importer.WithSheet(sheet))
	}
	return s.importer.With(opts...), nil
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

func (s *Server) writeFileError(w http.ResponseWriter, err error) bool {
	var fileErr *ledger.FileError
	if !errors.As(err, &fileErr) {
		return false
	}
	jf := lerrors.NewJSONFormatter()
	writeJSONResponse(w, http.StatusUnprocessableEntity, FileErrorResponse{
		Error: jf.FormatAllToSlice([]error{fileErr})[0],
	})
	return true
}

// handleImport handles POST requests to /api/imports.
//
// Query parameters:
//   - format: strict, spreadsheet or delimited; detected when omitted.
//   - sheet: spreadsheet sheet name; the first sheet when omitted.
//   - commit: store the accepted lines.
//   - partial: with commit, store the accepted lines even when other rows
//     were rejected.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	commit := queryBool(r, "commit")
	if commit && s.ReadOnly {
		http.Error(w, "Server is in read-only mode", http.StatusForbidden)
		return
	}

	name, data, err := s.readUpload(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	imp, err := s.importerFor(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := imp.Import(r.Context(), name, data)
	if err != nil {
		if !s.writeFileError(w, err) {
			s.writeError(w, r, err)
		}
		return
	}

	response := ImportResponse{
		BatchID:    result.BatchID,
		Source:     result.Source,
		Format:     result.Format,
		Encoding:   result.Encoding,
		Summary:    importer.Summarize(result),
		Errors:     lerrors.NewJSONFormatter().FormatAllToSlice(lerrors.ImportErrors(result.Errors)),
		Duplicates: result.Duplicates,
	}
	if response.Duplicates == nil {
		response.Duplicates = []ledger.Duplicate{}
	}

	if commit && (result.Success() || queryBool(r, "partial")) {
		committed, err := imp.Commit(r.Context(), result)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		response.Commit = committed
	}

	writeJSONResponse(w, http.StatusOK, response)
}

// handleAnalyze handles POST requests to /api/analyze. It previews the
// detected layout and column mapping of an upload without importing it.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	name, data, err := s.readUpload(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	imp, err := s.importerFor(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	analysis, err := imp.Analyze(r.Context(), name, data)
	if err != nil {
		if !s.writeFileError(w, err) {
			s.writeError(w, r, err)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, analysis)
}
