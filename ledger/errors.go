package ledger

import (
	"fmt"
	"strings"
)

// Kind classifies where in the pipeline an import error was raised.
type Kind int

const (
	KindFormat Kind = iota + 1
	KindValidation
	KindBusiness
)

func (k Kind) String() string {
	switch k {
	case KindFormat:
		return "format"
	case KindValidation:
		return "validation"
	case KindBusiness:
		return "business"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "format":
		*k = KindFormat
	case "validation":
		*k = KindValidation
	case "business":
		*k = KindBusiness
	default:
		return fmt.Errorf("unknown error kind %q", text)
	}
	return nil
}

// Severity tells whether an error excludes the row or is informative only.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "error":
		*s = SeverityError
	case "warning":
		*s = SeverityWarning
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// ImportError is a single problem found while importing a file. Row is the
// 1-based physical row in the source file; zero means the whole file.
type ImportError struct {
	Row      int      `json:"row"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	Entry    string   `json:"entry,omitempty"`
}

// Error formats the error as "row N, field F: message".
func (e *ImportError) Error() string {
	var location string
	switch {
	case e.Row > 0 && e.Field != "":
		location = fmt.Sprintf("row %d, %s", e.Row, e.Field)
	case e.Row > 0:
		location = fmt.Sprintf("row %d", e.Row)
	case e.Field != "":
		location = e.Field
	default:
		location = "file"
	}
	return fmt.Sprintf("%s: %s", location, e.Message)
}

func (e *ImportError) GetRow() int {
	return e.Row
}

func (e *ImportError) GetKind() Kind {
	return e.Kind
}

func (e *ImportError) GetSeverity() Severity {
	return e.Severity
}

// IsWarning returns true for errors that do not exclude their row.
func (e *ImportError) IsWarning() bool {
	return e.Severity == SeverityWarning
}

// NewFormatError reports an unparseable row or cell.
func NewFormatError(row int, field, format string, args ...any) *ImportError {
	return &ImportError{
		Row:      row,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
		Kind:     KindFormat,
		Severity: SeverityError,
	}
}

// NewValidationError reports a structural schema violation.
func NewValidationError(row int, field, format string, args ...any) *ImportError {
	return &ImportError{
		Row:      row,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
		Kind:     KindValidation,
		Severity: SeverityError,
	}
}

// NewBusinessError reports a broken bookkeeping invariant.
func NewBusinessError(row int, field, format string, args ...any) *ImportError {
	return &ImportError{
		Row:      row,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
		Kind:     KindBusiness,
		Severity: SeverityError,
	}
}

// NewBusinessWarning reports an unusual but legal posting.
func NewBusinessWarning(row int, field, format string, args ...any) *ImportError {
	return &ImportError{
		Row:      row,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
		Kind:     KindBusiness,
		Severity: SeverityWarning,
	}
}

// FileError is returned when a whole file cannot be imported.
type FileError struct {
	Source  string
	Message string
	Err     error
}

func (e *FileError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Source == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Source, msg)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// NewFileError wraps err as a whole-file failure of source.
func NewFileError(source, message string, err error) *FileError {
	return &FileError{Source: source, Message: message, Err: err}
}

// ValidationErrors wraps multiple import errors
type ValidationErrors struct {
	Errors []error
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d validation errors occurred", len(e.Errors))
}

// Unwrap returns the underlying errors for error unwrapping
func (e *ValidationErrors) Unwrap() []error {
	return e.Errors
}
