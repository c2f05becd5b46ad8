package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
	fail  map[string]bool
	seen  chan string
}

func newRecorder(fail ...string) *recorder {
	r := &recorder{fail: map[string]bool{}, seen: make(chan string, 10)}
	for _, f := range fail {
		r.fail[f] = true
	}
	return r
}

func (r *recorder) handle(ctx context.Context, path string) error {
	r.mu.Lock()
	r.paths = append(r.paths, filepath.Base(path))
	r.mu.Unlock()
	defer func() { r.seen <- filepath.Base(path) }()
	if r.fail[filepath.Base(path)] {
		return fmt.Errorf("unrecognized header")
	}
	return nil
}

func (r *recorder) handled() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.csv")
	touch(t, dir, "a.xlsx")
	touch(t, dir, "bad.txt")
	touch(t, dir, "notes.md")
	touch(t, dir, ".hidden.csv")

	rec := newRecorder("bad.txt")
	assert.NoError(t, New(dir, rec.handle).Scan(context.Background()))

	assert.Equal(t, []string{"a.xlsx", "b.csv", "bad.txt"}, rec.handled())
	assert.True(t, exists(filepath.Join(dir, ProcessedDir, "a.xlsx")))
	assert.True(t, exists(filepath.Join(dir, ProcessedDir, "b.csv")))
	assert.True(t, exists(filepath.Join(dir, RejectedDir, "bad.txt")))
	assert.True(t, exists(filepath.Join(dir, "notes.md")))

	msg, err := os.ReadFile(filepath.Join(dir, RejectedDir, "bad.txt.err"))
	assert.NoError(t, err)
	assert.Equal(t, "unrecognized header\n", string(msg))
}

func TestScanKeepsEarlierFiles(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	w := New(dir, rec.handle)

	touch(t, dir, "bank.csv")
	assert.NoError(t, w.Scan(context.Background()))
	touch(t, dir, "bank.csv")
	assert.NoError(t, w.Scan(context.Background()))

	entries, err := os.ReadDir(filepath.Join(dir, ProcessedDir))
	assert.NoError(t, err)
	assert.Equal(t, 2, len(entries))
}

func TestScanCancelled(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.csv")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := newRecorder()
	err := New(dir, rec.handle).Scan(ctx)
	assert.IsError(t, err, context.Canceled)
	assert.Equal(t, 0, len(rec.handled()))
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "existing.csv")

	rec := newRecorder()
	w := New(dir, rec.handle, WithDebounce(10*time.Millisecond), WithExtensions(".csv"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor := func(name string) {
		t.Helper()
		select {
		case got := <-rec.seen:
			assert.Equal(t, name, got)
		case <-time.After(5 * time.Second):
			t.Fatalf("%s was not handled", name)
		}
	}
	waitFor("existing.csv")

	touch(t, dir, "ignored.txt")
	touch(t, dir, "dropped.csv")
	waitFor("dropped.csv")
	assert.True(t, exists(filepath.Join(dir, ProcessedDir, "dropped.csv")))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.True(t, exists(filepath.Join(dir, "ignored.txt")))
}
