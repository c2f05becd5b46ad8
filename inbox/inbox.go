// Package inbox imports ledger files dropped into a directory.
//
// Files already present are handled when the watcher starts; new ones are
// handled once they stop changing. A handled file moves to processed/ or,
// when the handler fails, to rejected/ next to a .err file holding the
// error.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/robinvdvleuten/lettrage/telemetry"
)

const (
	ProcessedDir = "processed"
	RejectedDir  = "rejected"
)

// DefaultExtensions are the file types picked up.
var DefaultExtensions = []string{".csv", ".txt", ".tsv", ".xlsx", ".xlsm", ".xls"}

// Handler imports one file.
type Handler func(ctx context.Context, path string) error

// Watcher handles the files of one directory.
type Watcher struct {
	dir      string
	handle   Handler
	debounce time.Duration
	exts     []string
	logger   *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a file must stay unchanged before it is
// handled.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithExtensions replaces the accepted file extensions.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		w.exts = exts
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New creates a watcher over dir.
func New(dir string, handle Handler, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		handle:   handle,
		debounce: 500 * time.Millisecond,
		exts:     DefaultExtensions,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Watcher) prepare() error {
	for _, d := range []string{w.dir, filepath.Join(w.dir, ProcessedDir), filepath.Join(w.dir, RejectedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", d, err)
		}
	}
	return nil
}

func (w *Watcher) accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range w.exts {
		if ext == e {
			return true
		}
	}
	return false
}

// Scan handles every file currently in the directory, in name order.
func (w *Watcher) Scan(ctx context.Context) error {
	if err := w.prepare(); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", w.dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(w.dir, e.Name())
		if e.Type().IsRegular() && w.accepts(path) {
			w.process(ctx, path)
		}
	}
	return nil
}

// Run scans the directory, then handles new files until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.prepare(); err != nil {
		return err
	}
	// Watch first so that nothing dropped during the scan is missed.
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	if err := w.Scan(ctx); err != nil {
		return err
	}
	w.logger.Info("watching inbox", "dir", w.dir)

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
		ready  = make(chan string, 16)
	)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors and copies write in several steps.
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !w.accepts(event.Name) {
				continue
			}
			path := event.Name
			mu.Lock()
			if t, ok := timers[path]; ok {
				t.Stop()
			}
			timers[path] = time.AfterFunc(w.debounce, func() {
				mu.Lock()
				delete(timers, path)
				mu.Unlock()
				select {
				case ready <- path:
				case <-ctx.Done():
				}
			})
			mu.Unlock()

		case path := <-ready:
			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				w.process(ctx, path)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

// process handles one file and files it away.
func (w *Watcher) process(ctx context.Context, path string) {
	timer := telemetry.StartTimer(ctx, "inbox "+filepath.Base(path))
	defer timer.End()

	err := w.handle(ctx, path)
	if errors.Is(err, context.Canceled) {
		return
	}

	target := ProcessedDir
	if err != nil {
		target = RejectedDir
		w.logger.Warn("inbox file rejected", "file", path, "error", err)
	} else {
		w.logger.Info("inbox file imported", "file", path)
	}

	dest, moveErr := w.move(path, target)
	if moveErr != nil {
		w.logger.Error("failed to move inbox file", "file", path, "error", moveErr)
		return
	}
	if err != nil {
		if werr := os.WriteFile(dest+".err", []byte(err.Error()+"\n"), 0o644); werr != nil {
			w.logger.Error("failed to write error file", "file", dest, "error", werr)
		}
	}
}

// move renames path into the target directory, adding a timestamp when a
// file of the same name is already there.
func (w *Watcher) move(path, target string) (string, error) {
	dest := filepath.Join(w.dir, target, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(dest)
		dest = fmt.Sprintf("%s-%s%s", strings.TrimSuffix(dest, ext), time.Now().Format("20060102T150405.000"), ext)
	}
	return dest, os.Rename(path, dest)
}
