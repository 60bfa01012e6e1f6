package lsp

import (
	"errors"
	"fmt"

	"github.com/dshills/ksense/internal/logging"
)

// StatusSink receives human-readable status messages for the status line.
type StatusSink interface {
	SetStatus(msg string)
}

// StatusFunc adapts a function to StatusSink.
type StatusFunc func(msg string)

// SetStatus calls f(msg).
func (f StatusFunc) SetStatus(msg string) {
	f(msg)
}

// Launcher starts a client for spec rooted at root.
type Launcher func(root string, spec ServerSpec) (*Client, error)

// CompletionUpdate is the most recent accepted completion result.
type CompletionUpdate struct {
	Path  string
	Line  int
	Col   int
	Items []CompletionItem
}

// DiagnosticHint is the diagnostic shown for a single line.
type DiagnosticHint struct {
	Message   string
	Severity  DiagnosticSeverity
	IsWarning bool
}

// Manager owns at most one active client, keyed by the server spec of the
// most recently opened file, and the per-document state derived from it:
// version counters, cached diagnostics and the completion update slot.
//
// Manager is not safe for concurrent use; it is driven from the editor's
// main loop, which never blocks on server I/O.
type Manager struct {
	root     string
	log      *logging.Logger
	resolver *Resolver
	launch   Launcher
	sink     StatusSink
	status   string

	client       *Client
	key          string
	spec         ServerSpec
	exitReported bool

	diagnostics map[string][]Diagnostic
	versions    map[string]int
	completion  *CompletionUpdate
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLauncher replaces the function used to start clients.
func WithLauncher(l Launcher) ManagerOption {
	return func(m *Manager) {
		m.launch = l
	}
}

// WithResolver replaces the built-in extension table.
func WithResolver(r *Resolver) ManagerOption {
	return func(m *Manager) {
		m.resolver = r
	}
}

// WithLogger sets the manager's logger. Clients started by the default
// launcher inherit it.
func WithLogger(l *logging.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = l
	}
}

// WithStatusSink forwards every status message to sink.
func WithStatusSink(sink StatusSink) ManagerOption {
	return func(m *Manager) {
		m.sink = sink
	}
}

// NewManager creates a manager for the workspace at root.
func NewManager(root string, opts ...ManagerOption) *Manager {
	m := &Manager{
		root:        root,
		diagnostics: make(map[string][]Diagnostic),
		versions:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logging.Nop()
	}
	m.log = m.log.WithComponent("lsp-manager")
	if m.resolver == nil {
		m.resolver = NewResolver()
	}
	if m.launch == nil {
		clientLog := m.log
		m.launch = func(root string, spec ServerSpec) (*Client, error) {
			return Start(root, spec, WithClientLogger(clientLog))
		}
	}
	return m
}

// Root returns the workspace root.
func (m *Manager) Root() string {
	return m.root
}

// Status returns the last status message.
func (m *Manager) Status() string {
	return m.status
}

// Active returns the spec of the running client, if any.
func (m *Manager) Active() (ServerSpec, bool) {
	if m.client == nil {
		return ServerSpec{}, false
	}
	return m.spec, true
}

// Connected reports whether the active client's server is still running.
func (m *Manager) Connected() bool {
	return m.client != nil && m.client.Alive()
}

// OpenFile makes path the active document. A file type with no server
// tears down the current client. A file whose server differs from the
// active one, or whose server has exited, starts a fresh client; a start
// failure is reported through the status line and leaves the manager
// without a client.
func (m *Manager) OpenFile(path, text string) {
	normalized := NormalizePath(path)

	spec, ok := m.resolver.Resolve(path)
	if !ok {
		m.teardown()
		return
	}

	if m.client != nil && m.key == spec.Key && !m.client.Alive() {
		m.log.Info("restarting exited server %s", spec.Name)
		m.teardown()
	}

	if m.key != spec.Key {
		m.teardown()
		m.startClient(spec)
	}

	if m.client == nil {
		return
	}
	if version, ok := m.client.OpenDocument(path, text); ok {
		m.versions[normalized] = version
	}
}

// DidChange forwards a whole-text change to the active client and records
// the new document version. It is a no-op without a client.
func (m *Manager) DidChange(path, text string) {
	if m.client == nil {
		return
	}
	m.versions[NormalizePath(path)] = m.client.DidChange(path, text)
}

// DidSave forwards a save notification. It is a no-op without a client.
func (m *Manager) DidSave(path string) {
	if m.client == nil {
		return
	}
	m.client.DidSave(path)
}

// ReloadForFile tears down the active client and reopens path, which
// restarts its server.
func (m *Manager) ReloadForFile(path, text string) {
	m.teardown()
	m.OpenFile(path, text)
}

// RequestCompletion issues a completion request tagged with the last known
// version of path, or 1 if the path has not been seen.
func (m *Manager) RequestCompletion(path string, line, col int) bool {
	version, ok := m.versions[NormalizePath(path)]
	if !ok {
		version = 1
	}

	if m.client == nil {
		m.setStatus("LSP unavailable for this file.")
		return false
	}

	if err := m.client.RequestCompletion(path, line, col, version); err != nil {
		m.setStatus(fmt.Sprintf("Completion request failed: %v", err))
		return false
	}
	return true
}

// Poll drains client events into the diagnostics cache and the completion
// slot, discarding results computed for an older document version.
func (m *Manager) Poll() {
	if m.client == nil {
		return
	}

	for _, ev := range m.client.Poll() {
		switch ev := ev.(type) {
		case DiagnosticsEvent:
			m.acceptDiagnostics(ev)
		case CompletionEvent:
			m.acceptCompletion(ev)
		}
	}

	if !m.client.Alive() && !m.exitReported {
		m.exitReported = true
		m.log.Warn("server %s exited", m.spec.Name)
		m.setStatus("LSP server exited: " + m.spec.Name)
	}
}

func (m *Manager) acceptDiagnostics(ev DiagnosticsEvent) {
	normalized := NormalizePath(ev.Path)
	if ev.Version != nil {
		if current, ok := m.versions[normalized]; ok && *ev.Version < current {
			m.log.Debug("dropping diagnostics for %s: version %d < %d", normalized, *ev.Version, current)
			return
		}
	}
	diags := ev.Diagnostics
	if diags == nil {
		diags = []Diagnostic{}
	}
	m.diagnostics[normalized] = diags
}

func (m *Manager) acceptCompletion(ev CompletionEvent) {
	normalized := NormalizePath(ev.Path)
	if current, ok := m.versions[normalized]; ok && ev.Version < current {
		m.log.Debug("dropping completion for %s: version %d < %d", normalized, ev.Version, current)
		return
	}
	m.completion = &CompletionUpdate{
		Path:  normalized,
		Line:  ev.Line,
		Col:   ev.Col,
		Items: ev.Items,
	}
}

// TakeCompletion removes and returns the pending completion update.
func (m *Manager) TakeCompletion() (CompletionUpdate, bool) {
	if m.completion == nil {
		return CompletionUpdate{}, false
	}
	update := *m.completion
	m.completion = nil
	return update, true
}

// Diagnostics returns the cached diagnostics for path.
func (m *Manager) Diagnostics(path string) []Diagnostic {
	diags, _ := m.lookupDiagnostics(path)
	return diags
}

// DiagnosticHintForLine returns the first cached diagnostic for path whose
// range starts on line.
func (m *Manager) DiagnosticHintForLine(path string, line int) (DiagnosticHint, bool) {
	diags, ok := m.lookupDiagnostics(path)
	if !ok {
		return DiagnosticHint{}, false
	}
	for _, d := range diags {
		if d.Range.Start.Line != line {
			continue
		}
		return DiagnosticHint{
			Message:   d.Message,
			Severity:  d.Severity,
			IsWarning: d.Severity == DiagnosticSeverityWarning,
		}, true
	}
	return DiagnosticHint{}, false
}

func (m *Manager) lookupDiagnostics(path string) ([]Diagnostic, bool) {
	if path == "" {
		return nil, false
	}
	if diags, ok := m.diagnostics[path]; ok {
		return diags, true
	}
	diags, ok := m.diagnostics[NormalizePath(path)]
	return diags, ok
}

// Close tears down the active client and clears all document state.
func (m *Manager) Close() error {
	var err error
	if m.client != nil {
		err = m.client.Close()
	}
	m.teardown()
	return err
}

func (m *Manager) startClient(spec ServerSpec) {
	client, err := m.launch(m.root, spec)
	if err != nil {
		var serr *ServerError
		if errors.As(err, &serr) {
			err = serr.Err
		}
		m.log.Warn("starting %s failed: %v", spec.Command, err)
		m.setStatus(fmt.Sprintf("LSP unavailable (%s): %v", spec.Command, err))
		return
	}

	m.client = client
	m.key = spec.Key
	m.spec = spec
	m.exitReported = false
	m.log.Info("connected to %s", spec.Name)
	m.setStatus("LSP connected: " + spec.Name)
}

// teardown drops the active client and every piece of per-document state.
func (m *Manager) teardown() {
	if m.client != nil {
		_ = m.client.Close()
	}
	m.client = nil
	m.key = ""
	m.spec = ServerSpec{}
	m.exitReported = false
	clear(m.diagnostics)
	clear(m.versions)
	m.completion = nil
}

func (m *Manager) setStatus(msg string) {
	m.status = msg
	if m.sink != nil {
		m.sink.SetStatus(msg)
	}
}
