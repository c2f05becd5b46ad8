// Package cli implements the lettrage command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/robinvdvleuten/lettrage/config"
	"github.com/robinvdvleuten/lettrage/output"
	"github.com/robinvdvleuten/lettrage/telemetry"
)

var (
	successSymbol = "✓"
	errorSymbol   = "✗"
	warningSymbol = "!"
	infoSymbol    = "→"

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00D787", Dark: "#00D787"})
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#FF5F87", Dark: "#FF5F87"})
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D7AF00", Dark: "#FFD75F"})
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#5FAFFF", Dark: "#5FAFFF"})
	pathStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00D7D7", Dark: "#00D7D7"})
)

func printSuccess(w io.Writer, message string) {
	_, _ = fmt.Fprintf(w, "%s %s\n",
		successStyle.Render(successSymbol),
		message,
	)
}

func printError(w io.Writer, message string) {
	_, _ = fmt.Fprintf(w, "%s %s\n",
		errorStyle.Render(errorSymbol),
		errorStyle.Render(message),
	)
}

func printWarning(w io.Writer, message string) {
	_, _ = fmt.Fprintf(w, "%s %s\n",
		warningStyle.Render(warningSymbol),
		message,
	)
}

func printInfof(w io.Writer, format string, args ...interface{}) {
	formatted := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintf(w, "%s %s\n",
		infoStyle.Render(infoSymbol),
		formatted,
	)
}

// promptYesNo prompts the user with a yes/no question.
// Returns false by default if stdin is not a terminal.
func promptYesNo(question string) (bool, error) {
	if !isTerminal() {
		return false, nil
	}

	var confirm bool

	form := huh.NewConfirm().
		Title(question).
		WithButtonAlignment(lipgloss.Left).
		Value(&confirm)

	err := form.Run()
	if err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}

	return confirm, nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

const stdinName = "<stdin>"

// FileOrStdin accepts either a file path or "-" for stdin.
type FileOrStdin struct {
	Filename string
	Contents []byte
}

// Decode implements kong.MapperValue.
func (f *FileOrStdin) Decode(ctx *kong.DecodeContext) error {
	var filename string
	if err := ctx.Scan.PopValueInto("filename", &filename); err != nil {
		return err
	}

	if filename == "-" || filename == "" {
		return f.readStdin()
	}

	if _, err := os.Stat(filename); err != nil {
		return err
	}
	f.Filename = filename
	f.Contents = nil

	return nil
}

func (f *FileOrStdin) readStdin() error {
	contents, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read from stdin: %w", err)
	}
	f.Filename = stdinName
	f.Contents = contents
	return nil
}

// Read returns the base name and the content of the file, reading stdin
// when no file was given.
func (f *FileOrStdin) Read() (string, []byte, error) {
	if f.Filename == "" {
		if err := f.readStdin(); err != nil {
			return "", nil, err
		}
	}
	if f.Filename == stdinName {
		return f.Filename, f.Contents, nil
	}
	if f.Contents == nil {
		contents, err := os.ReadFile(f.Filename)
		if err != nil {
			return "", nil, err
		}
		f.Contents = contents
	}
	return filepath.Base(f.Filename), f.Contents, nil
}

// newLogger returns a text logger on w at the named level.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

// session bundles what every command needs: the loaded configuration, a
// logger and a context carrying the telemetry collector.
type session struct {
	ctx    context.Context
	config *config.Config
	logger *slog.Logger
	styles *output.Styles
	report func()
}

func newSession(kctx *kong.Context, globals *Globals) (*session, error) {
	logger, err := newLogger(kctx.Stderr, globals.LogLevel)
	if err != nil {
		return nil, err
	}

	envFiles := globals.EnvFile
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	cfg, err := config.Load(globals.Config, envFiles...)
	if err != nil {
		return nil, err
	}

	s := &session{
		ctx:    context.Background(),
		config: cfg,
		logger: logger,
		styles: output.NewStyles(kctx.Stdout),
		report: func() {},
	}
	if globals.Telemetry {
		collector := telemetry.NewTimingCollector()
		s.ctx = telemetry.WithCollector(s.ctx, collector)
		styles := output.NewStyles(kctx.Stderr)
		s.report = func() {
			_, _ = fmt.Fprintln(kctx.Stderr)
			collector.Report(kctx.Stderr, styles)
		}
	}
	s.ctx = cfg.Validation.WithContext(s.ctx)
	return s, nil
}
