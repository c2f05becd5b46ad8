// Package importer runs the import pipeline over one file:
//
//	detect ──> decode ──> read rows ──> map columns ──> parse rows ──> validate
//
// Row problems accumulate in the result; only whole-file failures (empty
// or unreadable file, unrecognized header) and cancellation are returned
// as errors. Commit then stores the accepted lines and can run letterage
// on the accounts they touch.
//
// Example usage:
//
//	imp := importer.New(importer.WithStore(s))
//	result, err := imp.Import(ctx, "bank.csv", data)
//	if err != nil {
//	    // whole-file failure
//	}
//	for _, e := range result.Errors {
//	    fmt.Println(e)
//	}
//	_, err = imp.Commit(ctx, result)
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/robinvdvleuten/lettrage/detect"
	"github.com/robinvdvleuten/lettrage/events"
	"github.com/robinvdvleuten/lettrage/ledger"
	"github.com/robinvdvleuten/lettrage/letterage"
	"github.com/robinvdvleuten/lettrage/mapping"
	"github.com/robinvdvleuten/lettrage/metrics"
	"github.com/robinvdvleuten/lettrage/parser"
	"github.com/robinvdvleuten/lettrage/store"
	"github.com/robinvdvleuten/lettrage/telemetry"
)

// ErrNoStore is returned by Commit when the importer has no store.
var ErrNoStore = errors.New("no store configured")

const (
	// previewRows is the number of data rows shown by Analyze.
	previewRows = 5
	// minStrictColumns is the shortest strict row: up to the credit column.
	minStrictColumns = 13
)

// Importer runs imports. It holds no per-file state and may be shared.
type Importer struct {
	config    *ledger.Config
	store     store.Store
	accounts  ledger.AccountDirectory
	journals  ledger.JournalDirectory
	overrides map[mapping.Field]int
	patterns  []mapping.Rule
	format    detect.Format
	sheet     string
	journal   string
	engine    *letterage.Engine
	locks     *store.LockSet
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithConfig sets the validation thresholds. Without it the config
// attached to the context is used.
func WithConfig(cfg *ledger.Config) Option {
	return func(i *Importer) {
		i.config = cfg
	}
}

// WithStore sets the store used for entry number and duplicate checks and
// for commits.
func WithStore(s store.Store) Option {
	return func(i *Importer) {
		i.store = s
	}
}

// WithAccounts sets the chart of accounts.
func WithAccounts(dir ledger.AccountDirectory) Option {
	return func(i *Importer) {
		i.accounts = dir
	}
}

// WithJournals sets the journal directory.
func WithJournals(dir ledger.JournalDirectory) Option {
	return func(i *Importer) {
		i.journals = dir
	}
}

// WithMapping forces column assignments on top of the detected mapping.
func WithMapping(overrides map[mapping.Field]int) Option {
	return func(i *Importer) {
		i.overrides = overrides
	}
}

// WithPatterns replaces the header patterns used to suggest a mapping.
func WithPatterns(rules []mapping.Rule) Option {
	return func(i *Importer) {
		i.patterns = rules
	}
}

// WithFormat skips format detection.
func WithFormat(f detect.Format) Option {
	return func(i *Importer) {
		i.format = f
	}
}

// WithSheet selects the spreadsheet sheet to read.
func WithSheet(name string) Option {
	return func(i *Importer) {
		i.sheet = name
	}
}

// WithDefaultJournal sets the journal of free-form rows without one.
func WithDefaultJournal(code string) Option {
	return func(i *Importer) {
		i.journal = code
	}
}

// WithLetterage runs letterage on the committed accounts after Commit.
func WithLetterage(e *letterage.Engine) Option {
	return func(i *Importer) {
		i.engine = e
	}
}

// WithLocks shares the prefix lock set with letterage engines.
func WithLocks(locks *store.LockSet) Option {
	return func(i *Importer) {
		i.locks = locks
	}
}

// WithPublisher sets where pipeline events go.
func WithPublisher(p events.Publisher) Option {
	return func(i *Importer) {
		i.publisher = p
	}
}

// WithMetrics records imports on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Importer) {
		i.metrics = m
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Importer) {
		i.logger = logger
	}
}

// New creates an importer with the given options.
func New(opts ...Option) *Importer {
	i := &Importer{
		patterns:  mapping.DefaultRules(),
		locks:     store.NewLockSet(),
		publisher: events.Discard,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Importer) configFor(ctx context.Context) *ledger.Config {
	if i.config != nil {
		return i.config
	}
	return ledger.ConfigFromContext(ctx)
}

// source is a file read into rows.
type source struct {
	detection detect.Detection
	encoding  string
	sheets    []string
	records   []parser.Record
}

func (s *source) header() []string {
	return s.records[0].Cells
}

// read detects, decodes and splits data into records.
func (i *Importer) read(ctx context.Context, name string, data []byte) (*source, error) {
	timer := telemetry.StartTimer(ctx, "importer.read")
	defer timer.End()

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ledger.NewFileError(name, "file is empty", nil)
	}

	src := &source{detection: detect.Detect(name, data, i.format)}

	if src.detection.Format == detect.FormatSpreadsheet {
		sheets, err := parser.SheetNames(bytes.NewReader(data))
		if err != nil {
			return nil, ledger.NewFileError(name, "unreadable spreadsheet", err)
		}
		src.sheets = sheets
		src.records, err = parser.ReadSpreadsheet(bytes.NewReader(data), i.sheet)
		if err != nil {
			return nil, ledger.NewFileError(name, "unreadable spreadsheet", err)
		}
	} else {
		decoded, err := detect.Decode(data, src.detection.Encoding)
		if err != nil {
			return nil, ledger.NewFileError(name, "unreadable text", err)
		}
		src.encoding = src.detection.Encoding.String()
		// Delimiters are counted again on text, which matters for UTF-16.
		src.detection.Delimiter = detect.DetectDelimiter(decoded, src.detection.Format)
		src.records, err = parser.ReadRecords(bytes.NewReader(decoded), src.detection.Delimiter)
		if err != nil {
			return nil, ledger.NewFileError(name, "unreadable text", err)
		}
	}

	// Leading blank rows are not headers.
	for len(src.records) > 0 && src.records[0].Empty() {
		src.records = src.records[1:]
	}
	if len(src.records) == 0 {
		return nil, ledger.NewFileError(name, "file is empty", parser.ErrEmptyFile)
	}
	return src, nil
}

// layout is how the records of a source are read.
type layout struct {
	format  detect.Format
	mapping *mapping.Mapping
	// strictDates restricts dates to the compact strict form.
	strictDates bool
	// headerless is set when the first record is already data.
	headerless bool
}

// rows returns the data records.
func (l *layout) rows(src *source) []parser.Record {
	if l.headerless {
		return src.records
	}
	return src.records[1:]
}

// header returns the header cells, nil for a headerless file.
func (l *layout) header(src *source) []string {
	if l.headerless {
		return nil
	}
	return src.header()
}

// strictRecord reports whether cells read as a strict data row in the
// fixed column order.
func strictRecord(cells []string) bool {
	if len(cells) < minStrictColumns {
		return false
	}
	_, err := parser.ParseStrictDate(cells[3])
	return err == nil
}

// mapColumns builds the column mapping for the header row. Strict dates are
// only enforced on files carrying the strict header or its fixed column
// order; other tab or pipe separated exports are read like any free-form
// file.
func (i *Importer) mapColumns(src *source) *layout {
	header := src.header()
	l := &layout{format: src.detection.Format}

	switch {
	case mapping.LooksStrict(header):
		l.mapping = mapping.Strict(header)
		// Spreadsheet cells carry dates in the sheet's display format.
		if l.format != detect.FormatSpreadsheet {
			l.format = detect.FormatStrict
			l.strictDates = true
		}
	case l.format == detect.FormatStrict && strictRecord(header):
		names := mapping.StrictColumns
		if len(header) < len(names) {
			names = names[:len(header)]
		}
		l.mapping = mapping.Positional(names)
		l.strictDates = true
		l.headerless = true
	default:
		l.mapping = mapping.SuggestWith(header, i.patterns)
		if l.mapping.Validate() != nil && l.format == detect.FormatStrict {
			if byName := mapping.StrictByName(header); byName.Validate() == nil {
				l.mapping = byName
			}
		}
		if l.format == detect.FormatStrict && i.format != detect.FormatStrict {
			l.format = detect.FormatDelimited
		}
	}
	if len(i.overrides) > 0 {
		l.mapping.Override(i.overrides)
	}
	return l
}

// Import reads, parses and validates one file. The result lists every row
// problem; accepted lines are in result.Lines. A cancelled import returns
// the context error and no result.
func (i *Importer) Import(ctx context.Context, name string, data []byte) (*ledger.ImportResult, error) {
	start := time.Now()
	timer := telemetry.StartTimer(ctx, fmt.Sprintf("import %s", filepath.Base(name)))
	defer timer.End()

	result, err := i.run(ctx, timer, name, data)
	if err != nil {
		format := ""
		if result != nil {
			format = result.Format
		}
		i.metrics.ObserveImportFailure(format)
		i.logger.Warn("import failed", "source", name, "error", err)
		return nil, err
	}

	i.metrics.ObserveImport(result, time.Since(start))
	i.publish(ctx, events.New(events.TypeImportValidated, result.BatchID, Summarize(result)))
	i.logger.Info("import validated",
		"source", name,
		"batch", result.BatchID,
		"format", result.Format,
		"rows", result.TotalRows,
		"accepted", result.ValidRows,
		"errors", result.ErrorCount(),
		"warnings", result.WarningCount(),
	)
	return result, nil
}

func (i *Importer) run(ctx context.Context, timer telemetry.Timer, name string, data []byte) (*ledger.ImportResult, error) {
	cfg := i.configFor(ctx)

	src, err := i.read(ctx, name, data)
	if err != nil {
		return nil, err
	}

	l := i.mapColumns(src)
	result := &ledger.ImportResult{
		BatchID:  uuid.NewString(),
		Source:   name,
		Format:   l.format.String(),
		Encoding: src.encoding,
	}
	if err := l.mapping.Validate(); err != nil {
		return result, ledger.NewFileError(name, "unrecognized header", err)
	}

	var opts []parser.Option
	if l.strictDates {
		opts = append(opts, parser.WithStrictDates())
	}
	if i.journal != "" {
		opts = append(opts, parser.WithDefaultJournal(i.journal))
	}
	rows := parser.NewRowParser(l.mapping, opts...)

	parseTimer := timer.Child("importer.parse")
	header := l.header(src)
	records := l.rows(src)
	lines := make([]*ledger.Line, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			parseTimer.End()
			return nil, err
		}
		if rec.Empty() {
			if !cfg.SkipEmptyRows {
				result.TotalRows++
				result.AddErrors(ledger.NewFormatError(rec.Row, "", "empty row"))
			}
			continue
		}
		if parser.IsHeaderLike(rec.Cells, header) {
			continue
		}
		result.TotalRows++

		line, errs := rows.Parse(rec.Row, rec.Cells)
		result.Errors = append(result.Errors, errs...)
		if line != nil {
			lines = append(lines, line)
		}
	}
	parseTimer.End()

	outcome, err := i.validator(cfg).Validate(ctx, lines)
	if err != nil {
		return nil, err
	}
	result.AddErrors(outcome.Errors...)
	result.Lines = outcome.Accepted
	result.Entries = outcome.Entries
	result.Duplicates = outcome.Duplicates
	result.ValidRows = len(outcome.Accepted)
	return result, nil
}

func (i *Importer) validator(cfg *ledger.Config) *ledger.Validator {
	opts := []ledger.Option{ledger.WithConfig(cfg), ledger.WithLogger(i.logger)}

	if i.store != nil {
		opts = append(opts, ledger.WithEntryIndex(i.store), ledger.WithHistory(i.store))
	}
	if i.accounts != nil {
		opts = append(opts, ledger.WithAccounts(i.accounts))
	}
	if i.journals != nil {
		opts = append(opts, ledger.WithJournals(i.journals))
	}
	return ledger.New(opts...)
}

// CommitResult is the outcome of storing an import.
type CommitResult struct {
	BatchID   string              `json:"batch_id"`
	Inserted  int                 `json:"inserted"`
	Letterage []*letterage.Result `json:"letterage,omitempty"`
}

// Commit stores the accepted lines of result. With a letterage engine
// configured, it then runs letterage on every account prefix the lines
// touch; prefixes no rule covers are skipped.
func (i *Importer) Commit(ctx context.Context, result *ledger.ImportResult) (*CommitResult, error) {
	if i.store == nil {
		return nil, ErrNoStore
	}
	timer := telemetry.StartTimer(ctx, "importer.commit")
	defer timer.End()

	out := &CommitResult{BatchID: result.BatchID}
	if len(result.Lines) == 0 {
		return out, nil
	}

	if err := i.insert(ctx, result.Lines); err != nil {
		return nil, fmt.Errorf("failed to commit batch %s: %w", result.BatchID, err)
	}
	out.Inserted = len(result.Lines)
	i.logger.Info("import committed", "batch", result.BatchID, "lines", out.Inserted)
	i.publish(ctx, events.New(events.TypeImportCommitted, result.BatchID, out))

	if i.engine == nil {
		return out, nil
	}
	for _, prefix := range Prefixes(result.Lines) {
		start := time.Now()
		run, err := i.engine.Run(ctx, prefix, letterage.RunOptions{})
		if errors.Is(err, letterage.ErrNoRules) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("letterage on %s after commit: %w", prefix, err)
		}
		i.metrics.ObserveLetterage(run, time.Since(start))
		i.publish(ctx, events.New(events.TypeLetterageRun, prefix, run))
		out.Letterage = append(out.Letterage, run)
	}
	return out, nil
}

// insert holds the lock on every account while writing, so that no
// letterage run reads a half-written batch.
func (i *Importer) insert(ctx context.Context, lines []*ledger.Line) error {
	release, err := i.locks.Acquire(ctx, "")
	if err != nil {
		return err
	}
	defer release()
	return i.store.Insert(ctx, lines)
}

// Prefixes returns the distinct three-digit account prefixes of lines,
// sorted.
func Prefixes(lines []*ledger.Line) []string {
	seen := make(map[string]struct{})
	for _, l := range lines {
		p := l.AccountNumber
		if len(p) > 3 {
			p = p[:3]
		}
		seen[p] = struct{}{}
	}
	out := maps.Keys(seen)
	slices.Sort(out)
	return out
}

func (i *Importer) publish(ctx context.Context, e events.Event) {
	if err := i.publisher.Publish(ctx, e); err != nil {
		i.logger.Warn("failed to publish event", "type", e.Type, "subject", e.Subject, "error", err)
	}
}

// Summary is the event payload of a validated import.
type Summary struct {
	Source     string `json:"source"`
	Format     string `json:"format"`
	TotalRows  int    `json:"total_rows"`
	ValidRows  int    `json:"valid_rows"`
	Errors     int    `json:"errors"`
	Warnings   int    `json:"warnings"`
	Duplicates int    `json:"duplicates"`
}

// Summarize condenses a result.
func Summarize(r *ledger.ImportResult) Summary {
	return Summary{
		Source:     r.Source,
		Format:     r.Format,
		TotalRows:  r.TotalRows,
		ValidRows:  r.ValidRows,
		Errors:     r.ErrorCount(),
		Warnings:   r.WarningCount(),
		Duplicates: len(r.Duplicates),
	}
}

// Analysis previews how a file would be imported.
type Analysis struct {
	Source    string           `json:"source"`
	Format    string           `json:"format"`
	Encoding  string           `json:"encoding,omitempty"`
	Delimiter string           `json:"delimiter,omitempty"`
	Reason    string           `json:"reason"`
	Sheets    []string         `json:"sheets,omitempty"`
	Headers   []string         `json:"headers"`
	Columns   []mapping.Column `json:"columns"`
	// Problem explains why the mapping is not usable, if it is not.
	Problem string     `json:"problem,omitempty"`
	Preview [][]string `json:"preview"`
	Rows    int        `json:"rows"`
}

// Analyze detects the layout of a file and suggests a column mapping
// without parsing any row.
func (i *Importer) Analyze(ctx context.Context, name string, data []byte) (*Analysis, error) {
	src, err := i.read(ctx, name, data)
	if err != nil {
		return nil, err
	}

	l := i.mapColumns(src)
	a := &Analysis{
		Source:   name,
		Format:   l.format.String(),
		Encoding: src.encoding,
		Reason:   src.detection.Reason,
		Sheets:   src.sheets,
		Headers:  l.mapping.Headers(),
		Columns:  l.mapping.Columns(),
	}
	if d := src.detection.Delimiter; d != 0 {
		a.Delimiter = delimiterName(d)
	}
	if err := l.mapping.Validate(); err != nil {
		a.Problem = err.Error()
	}
	for _, rec := range l.rows(src) {
		if rec.Empty() {
			continue
		}
		a.Rows++
		if len(a.Preview) < previewRows {
			a.Preview = append(a.Preview, rec.Cells)
		}
	}
	return a, nil
}

func delimiterName(d rune) string {
	switch d {
	case '\t':
		return "tab"
	case '|':
		return "pipe"
	case ';':
		return "semicolon"
	case ',':
		return "comma"
	default:
		return strings.TrimSpace(string(d))
	}
}

// With returns a copy of the importer with opts applied on top.
func (i *Importer) With(opts ...Option) *Importer {
	c := *i
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}
