// Package assist wires the LSP session manager and the completion engine
// into an editor: it owns the completion menu state machine, routes keys
// into it and applies accepted items to the buffer.
package assist

import (
	"strings"
	"unicode"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/ksense/internal/completion"
	"github.com/dshills/ksense/internal/logging"
	"github.com/dshills/ksense/internal/lsp"
)

// Buffer is the editor state the assistant reads and edits.
type Buffer interface {
	// Path returns the file backing the buffer, or "" for a scratch buffer.
	Path() string
	// Cursor returns the zero-based cursor line and column in code points.
	Cursor() (line, col int)
	Lines() []string
	// ReplaceLine sets the text of line and moves the cursor to col on it.
	ReplaceLine(line int, text string, col int)
}

// State is the completion menu state.
type State int

const (
	// StateClosed means no menu and no outstanding request.
	StateClosed State = iota
	// StateAwaiting means a request is outstanding and no menu is shown.
	StateAwaiting
	// StateOpen means the menu is visible.
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateAwaiting:
		return "awaiting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Options tune the completion menu.
type Options struct {
	MaxItems   int
	WindowRows int
	// RetriggerOnType requests fresh completions after an identifier
	// character closes the menu.
	RetriggerOnType bool
}

// DefaultOptions returns the stock menu settings.
func DefaultOptions() Options {
	return Options{
		MaxItems:   completion.DefaultLimit,
		WindowRows: completion.DefaultWindowRows,
	}
}

// Assistant drives completion for one editor. It is not safe for
// concurrent use; call it from the editor's main loop.
type Assistant struct {
	mgr  *lsp.Manager
	opts Options
	log  *logging.Logger
	sink lsp.StatusSink

	session   *completion.Session
	awaiting  bool
	awaitLine int
	retrigger bool
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithOptions sets the menu settings.
func WithOptions(o Options) Option {
	return func(a *Assistant) {
		a.opts = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Assistant) {
		a.log = l
	}
}

// WithStatusSink receives the assistant's own status messages.
func WithStatusSink(sink lsp.StatusSink) Option {
	return func(a *Assistant) {
		a.sink = sink
	}
}

// New returns an assistant backed by mgr.
func New(mgr *lsp.Manager, opts ...Option) *Assistant {
	a := &Assistant{
		mgr:  mgr,
		opts: DefaultOptions(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logging.Nop()
	}
	a.log = a.log.WithComponent("assist")
	return a
}

// State reports the menu state.
func (a *Assistant) State() State {
	switch {
	case a.session != nil:
		return StateOpen
	case a.awaiting:
		return StateAwaiting
	default:
		return StateClosed
	}
}

// Session returns the open menu, or nil.
func (a *Assistant) Session() *completion.Session {
	return a.session
}

// OpenFile makes buf the active document.
func (a *Assistant) OpenFile(buf Buffer) {
	a.reset()
	if buf.Path() == "" {
		return
	}
	a.mgr.OpenFile(buf.Path(), bufferText(buf))
}

// Trigger requests completions at the cursor. The menu opens on a later
// Tick once the response arrives.
func (a *Assistant) Trigger(buf Buffer) {
	path := buf.Path()
	if path == "" {
		a.setStatus("Open a file first to request completions.")
		return
	}

	line, col := buf.Cursor()
	if a.mgr.RequestCompletion(path, line, col) {
		a.session = nil
		a.awaiting = true
		a.awaitLine = line
	}
}

// Tick polls the server and opens the menu when a completion response
// for the cursor's file and line is available. Call once per UI tick.
func (a *Assistant) Tick(buf Buffer) {
	a.mgr.Poll()

	line, _ := buf.Cursor()
	if a.session != nil && a.session.Line != line {
		a.session = nil
	}
	if a.awaiting && a.awaitLine != line {
		a.awaiting = false
	}

	update, ok := a.mgr.TakeCompletion()
	if !ok {
		return
	}
	a.awaiting = false

	if !lsp.SamePath(buf.Path(), update.Path) || update.Line != line {
		a.log.Debug("discarding completion for %s:%d", update.Path, update.Line)
		return
	}

	lines := buf.Lines()
	if line < 0 || line >= len(lines) {
		return
	}
	items := completion.Prepare(update, lines[line], a.opts.MaxItems)
	if len(items) == 0 {
		a.session = nil
		return
	}
	a.session = completion.NewSession(update.Line, update.Col, items, a.opts.WindowRows)
}

// HandleKey routes ev into the open menu. It reports whether the key was
// consumed; keys that are not consumed close the menu and belong to the
// editor.
func (a *Assistant) HandleKey(buf Buffer, ev *tcell.EventKey) bool {
	if a.session == nil {
		if a.awaiting {
			a.noteTyped(ev)
		}
		return false
	}

	if line, _ := buf.Cursor(); line != a.session.Line {
		a.session = nil
		return false
	}

	switch ev.Key() {
	case tcell.KeyUp:
		a.session.MoveUp()
	case tcell.KeyDown:
		a.session.MoveDown()
	case tcell.KeyEnter, tcell.KeyTab:
		a.accept(buf)
	case tcell.KeyEscape:
		a.session = nil
	default:
		a.session = nil
		a.noteTyped(ev)
		return false
	}
	return true
}

func (a *Assistant) noteTyped(ev *tcell.EventKey) {
	if !a.opts.RetriggerOnType || ev.Key() != tcell.KeyRune {
		return
	}
	r := ev.Rune()
	if r == '_' || r == '.' || isWordRune(r) {
		a.retrigger = true
	}
}

// NotifyChange sends the buffer's text after an edit and, if the edit was
// a typed identifier character, requests fresh completions. The edit
// closes the menu and abandons any outstanding request.
func (a *Assistant) NotifyChange(buf Buffer) {
	a.session = nil
	a.awaiting = false

	path := buf.Path()
	if path == "" {
		return
	}
	a.mgr.DidChange(path, bufferText(buf))

	if a.retrigger {
		a.retrigger = false
		a.Trigger(buf)
	}
}

// NotifySave forwards a save.
func (a *Assistant) NotifySave(buf Buffer) {
	if path := buf.Path(); path != "" {
		a.mgr.DidSave(path)
	}
}

// DiagnosticHint returns the diagnostic to show for line of buf.
func (a *Assistant) DiagnosticHint(buf Buffer, line int) (lsp.DiagnosticHint, bool) {
	return a.mgr.DiagnosticHintForLine(buf.Path(), line)
}

// Close closes the menu and the manager.
func (a *Assistant) Close() error {
	a.reset()
	return a.mgr.Close()
}

func (a *Assistant) accept(buf Buffer) {
	item, ok := a.session.Current()
	a.session = nil
	if !ok {
		return
	}

	line, _ := buf.Cursor()
	lines := buf.Lines()
	if line < 0 || line >= len(lines) {
		return
	}
	text, col := completion.Apply(lines[line], item)
	buf.ReplaceLine(line, text, col)

	if path := buf.Path(); path != "" {
		a.mgr.DidChange(path, bufferText(buf))
	}
}

func (a *Assistant) reset() {
	a.session = nil
	a.awaiting = false
	a.retrigger = false
}

func (a *Assistant) setStatus(msg string) {
	if a.sink != nil {
		a.sink.SetStatus(msg)
	}
}

func bufferText(buf Buffer) string {
	return strings.Join(buf.Lines(), "\n")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
