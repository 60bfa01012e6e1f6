package lsp

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/ksense/internal/lsp/lsptest"
)

// fakeLauncher hands out clients connected to in-memory servers.
type fakeLauncher struct {
	t       *testing.T
	err     error
	servers []*lsptest.Server
	specs   []ServerSpec
}

func (f *fakeLauncher) launch(root string, spec ServerSpec) (*Client, error) {
	if f.err != nil {
		return nil, &ServerError{Key: spec.Key, Err: f.err}
	}
	srv := lsptest.New()
	r, w := srv.ClientStreams()
	c := NewClient(spec, r, w)
	f.t.Cleanup(func() {
		c.Close()
		srv.Close()
	})
	f.servers = append(f.servers, srv)
	f.specs = append(f.specs, spec)
	return c, nil
}

func (f *fakeLauncher) last() *lsptest.Server {
	return f.servers[len(f.servers)-1]
}

func newTestManager(t *testing.T) (*Manager, *fakeLauncher, string) {
	t.Helper()
	root := t.TempDir()
	fl := &fakeLauncher{t: t}
	m := NewManager(root, WithLauncher(fl.launch))
	t.Cleanup(func() { m.Close() })
	return m, fl, root
}

func writeFile(t *testing.T, path, text string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// pollUntil drives m.Poll until cond holds.
func pollUntil(t *testing.T, m *Manager, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(lsptest.Timeout)
	for {
		m.Poll()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func pendingVersion(c *Client, id int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[id].version
}

func hasDiagnostics(m *Manager, path string) func() bool {
	return func() bool {
		_, ok := m.lookupDiagnostics(path)
		return ok
	}
}

func TestManager_OpenFileStartsClient(t *testing.T) {
	m, fl, root := newTestManager(t)
	var statuses []string
	m.sink = StatusFunc(func(msg string) { statuses = append(statuses, msg) })

	a := writeFile(t, filepath.Join(root, "a.go"), "package a\n")
	b := writeFile(t, filepath.Join(root, "b.go"), "package a\n")

	m.OpenFile(a, "package a\n")
	if got := m.Status(); got != "LSP connected: gopls" {
		t.Errorf("Status = %q", got)
	}
	spec, ok := m.Active()
	if !ok || spec.Key != "go" {
		t.Fatalf("Active = %+v, %v", spec, ok)
	}
	if got := fl.last().Expect(t, MethodDidOpen).Params.Get("textDocument.uri").String(); got != string(FilePathToURI(a)) {
		t.Errorf("didOpen uri = %q", got)
	}

	m.OpenFile(b, "package a\n")
	if len(fl.servers) != 1 {
		t.Errorf("same key started %d clients", len(fl.servers))
	}
	fl.last().Expect(t, MethodDidOpen)

	if m.versions[NormalizePath(a)] != 1 || m.versions[NormalizePath(b)] != 1 {
		t.Errorf("versions = %v", m.versions)
	}
	if len(statuses) != 1 {
		t.Errorf("status sink saw %v", statuses)
	}
}

func TestManager_SwitchingLanguageReplacesClient(t *testing.T) {
	m, fl, root := newTestManager(t)
	goFile := writeFile(t, filepath.Join(root, "a.go"), "")
	pyFile := writeFile(t, filepath.Join(root, "a.py"), "")

	m.OpenFile(goFile, "")
	m.DidChange(goFile, "x")
	first := fl.last()

	m.OpenFile(pyFile, "")
	if len(fl.servers) != 2 || fl.specs[1].Key != "python" {
		t.Fatalf("launches = %+v", fl.specs)
	}
	first.WaitClosed(t)

	if _, ok := m.versions[NormalizePath(goFile)]; ok {
		t.Error("version state survived a language switch")
	}
	if m.Status() != "LSP connected: pylsp" {
		t.Errorf("Status = %q", m.Status())
	}
}

func TestManager_UnsupportedFileClearsState(t *testing.T) {
	m, fl, root := newTestManager(t)
	goFile := writeFile(t, filepath.Join(root, "a.go"), "")
	m.OpenFile(goFile, "")

	m.OpenFile(filepath.Join(root, "notes.txt"), "hello")
	if _, ok := m.Active(); ok {
		t.Error("client survived opening an unsupported file")
	}
	if len(m.versions) != 0 {
		t.Errorf("versions = %v", m.versions)
	}
	fl.last().WaitClosed(t)

	// Editing without a server is always legal.
	m.DidChange(goFile, "x")
	m.DidSave(goFile)
	m.Poll()
}

func TestManager_LaunchFailure(t *testing.T) {
	m, fl, root := newTestManager(t)
	fl.err = errors.New(`exec: "gopls": executable file not found in $PATH`)
	goFile := writeFile(t, filepath.Join(root, "a.go"), "")

	m.OpenFile(goFile, "")
	want := `LSP unavailable (gopls): exec: "gopls": executable file not found in $PATH`
	if got := m.Status(); got != want {
		t.Errorf("Status = %q, want %q", got, want)
	}
	if _, ok := m.Active(); ok {
		t.Error("manager has a client after launch failure")
	}

	if m.RequestCompletion(goFile, 0, 0) {
		t.Error("RequestCompletion succeeded without a client")
	}
	if got := m.Status(); got != "LSP unavailable for this file." {
		t.Errorf("Status = %q", got)
	}

	fl.err = nil
	m.OpenFile(goFile, "")
	if _, ok := m.Active(); !ok {
		t.Error("reopening after a failed launch did not retry")
	}
}

func TestManager_VersionSequence(t *testing.T) {
	m, fl, root := newTestManager(t)
	path := writeFile(t, filepath.Join(root, "a.go"), "")

	m.OpenFile(path, "")
	const n = 4
	for i := range n {
		m.DidChange(path, string(rune('a'+i)))
		if got := m.versions[NormalizePath(path)]; got != i+2 {
			t.Errorf("after change %d version = %d, want %d", i+1, got, i+2)
		}
	}

	if !m.RequestCompletion(path, 0, 1) {
		t.Fatalf("RequestCompletion failed: %s", m.Status())
	}
	req := fl.last().Expect(t, MethodCompletion)
	if req.ID != 1 {
		t.Errorf("first request id = %d, want 1", req.ID)
	}
	if v := pendingVersion(m.client, req.ID); v != n+1 {
		t.Errorf("request tagged version %d, want %d", v, n+1)
	}
}

func TestManager_StaleCompletionDiscarded(t *testing.T) {
	m, fl, root := newTestManager(t)
	path := writeFile(t, filepath.Join(root, "a.go"), "")
	sentinel := filepath.Join(root, "sentinel.go")

	m.OpenFile(path, "")
	if !m.RequestCompletion(path, 0, 0) {
		t.Fatal(m.Status())
	}
	srv := fl.last()
	req := srv.Expect(t, MethodCompletion)

	m.DidChange(path, "x")
	srv.Respond(t, req.ID, `[{"label":"stale"}]`)
	srv.PublishDiagnostics(t, string(FilePathToURI(sentinel)), nil, `[]`)
	pollUntil(t, m, hasDiagnostics(m, sentinel))

	if update, ok := m.TakeCompletion(); ok {
		t.Errorf("stale completion accepted: %+v", update)
	}
}

func TestManager_LateOlderCompletionDiscarded(t *testing.T) {
	m, fl, root := newTestManager(t)
	path := writeFile(t, filepath.Join(root, "a.go"), "")
	sentinel := filepath.Join(root, "sentinel.go")

	m.OpenFile(path, "")
	if !m.RequestCompletion(path, 0, 0) {
		t.Fatal(m.Status())
	}
	srv := fl.last()
	older := srv.Expect(t, MethodCompletion)

	m.DidChange(path, "x")
	if !m.RequestCompletion(path, 0, 1) {
		t.Fatal(m.Status())
	}
	newer := srv.Expect(t, MethodCompletion)

	srv.Respond(t, newer.ID, `[{"label":"v2"}]`)
	srv.Respond(t, older.ID, `[{"label":"v1"}]`)
	srv.PublishDiagnostics(t, string(FilePathToURI(sentinel)), nil, `[]`)
	pollUntil(t, m, hasDiagnostics(m, sentinel))

	update, ok := m.TakeCompletion()
	if !ok {
		t.Fatal("current completion dropped")
	}
	if len(update.Items) != 1 || update.Items[0].Label != "v2" || update.Col != 1 {
		t.Errorf("update = %+v", update)
	}
	if extra, ok := m.TakeCompletion(); ok {
		t.Errorf("slot not emptied: %+v", extra)
	}
}

func TestManager_CurrentCompletionAccepted(t *testing.T) {
	m, fl, root := newTestManager(t)
	path := writeFile(t, filepath.Join(root, "a.go"), "")

	m.OpenFile(path, "")
	m.DidChange(path, "x")
	if !m.RequestCompletion(path, 0, 1) {
		t.Fatal(m.Status())
	}
	srv := fl.last()
	req := srv.Expect(t, MethodCompletion)
	srv.Respond(t, req.ID, `[{"label":"fresh"}]`)

	var update CompletionUpdate
	pollUntil(t, m, func() bool {
		var ok bool
		update, ok = m.TakeCompletion()
		return ok
	})
	if update.Path != NormalizePath(path) || update.Line != 0 || update.Col != 1 {
		t.Errorf("update = %+v", update)
	}
	if len(update.Items) != 1 || update.Items[0].Label != "fresh" {
		t.Errorf("items = %+v", update.Items)
	}

	if _, ok := m.TakeCompletion(); ok {
		t.Error("TakeCompletion returned the same update twice")
	}
}

func TestManager_UnseenPathDefaultsToVersionOne(t *testing.T) {
	m, fl, root := newTestManager(t)
	opened := writeFile(t, filepath.Join(root, "a.go"), "")
	m.OpenFile(opened, "")

	other := filepath.Join(root, "never_opened.go")
	if !m.RequestCompletion(other, 0, 0) {
		t.Fatal(m.Status())
	}
	req := fl.last().Expect(t, MethodCompletion)
	if v := pendingVersion(m.client, req.ID); v != 1 {
		t.Errorf("unseen path tagged version %d, want 1", v)
	}
}

func TestManager_DiagnosticsStaleness(t *testing.T) {
	m, fl, root := newTestManager(t)
	path := writeFile(t, filepath.Join(root, "a.go"), "")
	other := filepath.Join(root, "other.go")
	uri := string(FilePathToURI(path))

	m.OpenFile(path, "")
	m.DidChange(path, "x")
	m.DidChange(path, "xy")
	srv := fl.last()

	v3, v2 := 3, 2
	srv.PublishDiagnostics(t, uri, &v3, lsptest.Array(lsptest.Diagnostic(0, 1, "fresh")))
	pollUntil(t, m, hasDiagnostics(m, path))

	srv.PublishDiagnostics(t, uri, &v2, lsptest.Array(lsptest.Diagnostic(0, 1, "stale")))
	srv.PublishDiagnostics(t, string(FilePathToURI(other)), &v2, `[]`)
	pollUntil(t, m, hasDiagnostics(m, other))

	if got := m.Diagnostics(path); len(got) != 1 || got[0].Message != "fresh" {
		t.Errorf("older version replaced diagnostics: %+v", got)
	}

	srv.PublishDiagnostics(t, uri, nil, `[]`)
	pollUntil(t, m, func() bool { return len(m.Diagnostics(path)) == 0 })
}

func TestManager_DiagnosticHintForLine(t *testing.T) {
	m, fl, root := newTestManager(t)
	path := writeFile(t, filepath.Join(root, "a.go"), "")
	m.OpenFile(path, "")

	fl.last().PublishDiagnostics(t, string(FilePathToURI(path)), nil, lsptest.Array(
		lsptest.Diagnostic(1, 1, "first error"),
		lsptest.Diagnostic(1, 2, "second on same line"),
		lsptest.Diagnostic(3, 2, "a warning"),
		lsptest.Diagnostic(5, 3, "an info"),
	))
	pollUntil(t, m, hasDiagnostics(m, path))

	tests := []struct {
		line    int
		message string
		warning bool
		ok      bool
	}{
		{1, "first error", false, true},
		{3, "a warning", true, true},
		{5, "an info", false, true},
		{0, "", false, false},
		{2, "", false, false},
	}
	for _, tt := range tests {
		hint, ok := m.DiagnosticHintForLine(path, tt.line)
		if ok != tt.ok || hint.Message != tt.message || hint.IsWarning != tt.warning {
			t.Errorf("line %d: got %+v, %v", tt.line, hint, ok)
		}
	}

	if _, ok := m.DiagnosticHintForLine(filepath.Join(root, "b.go"), 1); ok {
		t.Error("hint for a path without diagnostics")
	}
	if _, ok := m.DiagnosticHintForLine("", 1); ok {
		t.Error("hint for an empty path")
	}
}

func TestManager_DiagnosticHintCanonicalFallback(t *testing.T) {
	m, fl, root := newTestManager(t)
	path := writeFile(t, filepath.Join(root, "a.go"), "")
	link := filepath.Join(root, "link.go")
	if err := os.Symlink(path, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	m.OpenFile(path, "")

	fl.last().PublishDiagnostics(t, string(FilePathToURI(path)), nil, lsptest.Array(lsptest.Diagnostic(2, 1, "boom")))
	pollUntil(t, m, hasDiagnostics(m, path))

	hint, ok := m.DiagnosticHintForLine(link, 2)
	if !ok || hint.Message != "boom" {
		t.Errorf("hint via symlink = %+v, %v", hint, ok)
	}
}

func TestManager_ServerExitAndRestart(t *testing.T) {
	m, fl, root := newTestManager(t)
	path := writeFile(t, filepath.Join(root, "a.go"), "")
	m.OpenFile(path, "")
	if !m.Connected() {
		t.Fatal("Connected() = false after open")
	}

	fl.last().Close()
	pollUntil(t, m, func() bool { return m.Status() == "LSP server exited: gopls" })
	if m.Connected() {
		t.Error("Connected() = true after server exit")
	}

	if m.RequestCompletion(path, 0, 0) {
		t.Error("RequestCompletion succeeded against an exited server")
	}
	if got := m.Status(); got != "Completion request failed: "+ErrServerExited.Error() {
		t.Errorf("Status = %q", got)
	}

	m.OpenFile(path, "")
	if len(fl.servers) != 2 {
		t.Fatalf("exited server was not restarted, launches = %d", len(fl.servers))
	}
	if m.Status() != "LSP connected: gopls" {
		t.Errorf("Status = %q", m.Status())
	}
	if !m.Connected() {
		t.Error("Connected() = false after restart")
	}
}

func TestManager_ReloadForFile(t *testing.T) {
	m, fl, root := newTestManager(t)
	path := writeFile(t, filepath.Join(root, "a.go"), "")
	m.OpenFile(path, "")
	m.DidChange(path, "x")

	fl.last().PublishDiagnostics(t, string(FilePathToURI(path)), nil, lsptest.Array(lsptest.Diagnostic(0, 1, "x")))
	pollUntil(t, m, hasDiagnostics(m, path))

	m.ReloadForFile(path, "x")
	if len(fl.servers) != 2 {
		t.Fatalf("launches = %d, want 2", len(fl.servers))
	}
	fl.servers[0].WaitClosed(t)

	if len(m.Diagnostics(path)) != 0 {
		t.Error("reload kept diagnostics")
	}
	if v := m.versions[NormalizePath(path)]; v != 1 {
		t.Errorf("version after reload = %d, want 1", v)
	}
}

func TestManager_Resolver(t *testing.T) {
	r := NewResolver()
	r.Disable("go")
	fl := &fakeLauncher{t: t}
	m := NewManager(t.TempDir(), WithLauncher(fl.launch), WithResolver(r))

	m.OpenFile(filepath.Join(m.Root(), "a.go"), "")
	if len(fl.servers) != 0 {
		t.Error("disabled server was launched")
	}
}
