package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const waitTimeout = 2 * time.Second

func newWatcher(t *testing.T, path string, opts ...Option) *Watcher {
	t.Helper()
	w, err := New(path, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func nextEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func expectQuiet(t *testing.T, w *Watcher, d time.Duration) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(d):
	}
}

func TestWatcherWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	if err := os.WriteFile(path, []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := newWatcher(t, path, WithDebounce(20*time.Millisecond))
	if err := os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ev := nextEvent(t, w)
	if ev.Path != w.Path() {
		t.Errorf("Path = %q, want %q", ev.Path, w.Path())
	}
	if !ev.Op.Has(OpWrite) {
		t.Errorf("Op = %v, want write", ev.Op)
	}
}

func TestWatcherCreate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "later.go")

	w := newWatcher(t, path, WithDebounce(20*time.Millisecond))
	if err := os.WriteFile(path, []byte("package later\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ev := nextEvent(t, w)
	if !ev.Op.Has(OpCreate) {
		t.Errorf("Op = %v, want create", ev.Op)
	}
}

func TestWatcherIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	if err := os.WriteFile(path, []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := newWatcher(t, path, WithDebounce(0))
	if err := os.WriteFile(filepath.Join(dir, "other.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectQuiet(t, w, 200*time.Millisecond)
}

func TestWatcherDebounce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	if err := os.WriteFile(path, []byte("v0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := newWatcher(t, path, WithDebounce(200*time.Millisecond))
	for _, content := range []string{"v1\n", "v2\n", "v3\n"} {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	nextEvent(t, w)
	expectQuiet(t, w, 400*time.Millisecond)
}

func TestNewMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent", "main.go")
	if _, err := New(path); err == nil {
		t.Fatal("New() on missing directory should fail")
	}
}

func TestCloseIdempotent(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "main.go"))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, ok := <-w.Events(); ok {
		t.Error("Events() should be closed")
	}
}

func TestOpString(t *testing.T) {
	tests := []struct {
		op   Op
		want string
	}{
		{OpCreate, "create"},
		{OpWrite, "write"},
		{OpCreate | OpWrite, "create|write"},
		{0, "none"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Op(%d).String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}
