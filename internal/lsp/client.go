package lsp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"

	"github.com/dshills/ksense/internal/logging"
)

// Event is a message forwarded from a client's reader goroutine.
// It is either a DiagnosticsEvent or a CompletionEvent.
type Event interface {
	event()
}

// DiagnosticsEvent carries a textDocument/publishDiagnostics notification.
type DiagnosticsEvent struct {
	Path        string
	Version     *int
	Diagnostics []Diagnostic
}

// CompletionEvent carries a completion result together with the document
// state recorded when the request was sent.
type CompletionEvent struct {
	Path    string
	Version int
	Line    int
	Col     int
	Items   []CompletionItem
}

func (DiagnosticsEvent) event() {}
func (CompletionEvent) event()  {}

type requestKind int

const (
	requestCompletion requestKind = iota + 1
)

// pendingRequest records an outstanding request until its response arrives.
type pendingRequest struct {
	kind    requestKind
	path    string
	version int
	line    int
	col     int
}

const (
	eventBufferSize  = 64
	readerBufferSize = 64 * 1024
)

// Client owns one analysis server connection: the child process (when
// spawned by Start), the write side of its stdin, and a single reader
// goroutine that frames, classifies and forwards inbound messages.
//
// Document methods, RequestCompletion and Poll are meant to be called
// from one goroutine. The correlation table is the only state shared
// with the reader.
type Client struct {
	spec ServerSpec
	log  *logging.Logger

	cmd    *exec.Cmd
	reader io.Closer

	writeMu sync.Mutex
	w       io.WriteCloser

	events    chan Event
	done      chan struct{}
	exited    chan struct{}
	alive     atomic.Bool
	closeOnce sync.Once
	reapOnce  sync.Once

	mu      sync.Mutex
	pending map[int64]pendingRequest

	nextID  int64
	openURI DocumentURI
	version int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client's logger.
func WithClientLogger(l *logging.Logger) ClientOption {
	return func(c *Client) {
		c.log = l
	}
}

// Start spawns the server described by spec, connects a client to its
// stdio and performs the initialize handshake for root.
func Start(root string, spec ServerSpec, opts ...ClientOption) (*Client, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = root

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &ServerError{Key: spec.Key, Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, &ServerError{Key: spec.Key, Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, &ServerError{Key: spec.Key, Err: err}
	}

	c := newClient(spec, stdin, opts...)
	c.cmd = cmd
	c.startReader(stdout)

	if err := c.Initialize(root); err != nil {
		c.Close()
		return nil, &ServerError{Key: spec.Key, Err: err}
	}

	c.log.Info("started %s (pid %d)", spec.Command, cmd.Process.Pid)
	return c, nil
}

// NewClient connects a client to an already running server reachable
// through r (server output) and w (server input). The reader goroutine
// starts immediately; call Initialize to perform the handshake.
func NewClient(spec ServerSpec, r io.Reader, w io.WriteCloser, opts ...ClientOption) *Client {
	c := newClient(spec, w, opts...)
	c.startReader(r)
	return c
}

func newClient(spec ServerSpec, w io.WriteCloser, opts ...ClientOption) *Client {
	c := &Client{
		spec:    spec,
		w:       w,
		events:  make(chan Event, eventBufferSize),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		pending: make(map[int64]pendingRequest),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logging.Nop()
	}
	c.log = c.log.WithComponent("lsp-client").WithField("server", spec.Key)
	return c
}

func (c *Client) startReader(r io.Reader) {
	if rc, ok := r.(io.Closer); ok {
		c.reader = rc
	}
	c.alive.Store(true)
	go c.readLoop(r)
}

// Spec returns the spec the client was started from.
func (c *Client) Spec() ServerSpec {
	return c.spec
}

// Alive reports whether the reader goroutine is still running. It turns
// false once the server's output stream ends.
func (c *Client) Alive() bool {
	return c.alive.Load()
}

// Done is closed when the reader goroutine exits.
func (c *Client) Done() <-chan struct{} {
	return c.exited
}

// Initialize sends the initialize request followed by the initialized
// notification. The initialize response is not awaited.
func (c *Client) Initialize(root string) error {
	rootURI := FilePathToURI(root)
	if rootURI == "" {
		return ErrNoWorkspace
	}

	params := InitializeParams{
		ProcessID:        os.Getpid(),
		RootURI:          rootURI,
		Capabilities:     DefaultClientCapabilities(),
		WorkspaceFolders: []WorkspaceFolder{{URI: rootURI, Name: "workspace"}},
	}
	if _, err := c.sendRequest(MethodInitialize, params); err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}
	if err := c.notify(MethodInitialized, InitializedParams{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}

// OpenDocument sends textDocument/didOpen for path and resets the
// document version to 1. It reports false when path has no URI form.
func (c *Client) OpenDocument(path, text string) (int, bool) {
	uri := FilePathToURI(path)
	if uri == "" {
		return 0, false
	}

	c.openURI = uri
	c.version = 1
	c.notifyBestEffort(MethodDidOpen, DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        uri,
			LanguageID: c.spec.LanguageID,
			Version:    c.version,
			Text:       text,
		},
	})
	return c.version, true
}

// DidChange replaces the whole document text, increments the version by
// one and returns the new version.
func (c *Client) DidChange(path, text string) int {
	uri := c.documentURI(path)
	if uri == "" {
		return c.version
	}

	c.version++
	c.notifyBestEffort(MethodDidChange, DidChangeTextDocumentParams{
		TextDocument: VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: TextDocumentIdentifier{URI: uri},
			Version:                c.version,
		},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: text}},
	})
	return c.version
}

// DidSave sends textDocument/didSave without content.
func (c *Client) DidSave(path string) {
	uri := c.documentURI(path)
	if uri == "" {
		return
	}
	c.notifyBestEffort(MethodDidSave, DidSaveTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
}

// RequestCompletion issues textDocument/completion at (line, col) and
// records version so the response can be judged for staleness. On a
// failed write the correlation entry is removed before returning.
func (c *Client) RequestCompletion(path string, line, col, version int) error {
	switch {
	case c.isClosed():
		return ErrClosed
	case !c.Alive():
		return ErrServerExited
	}

	uri := c.documentURI(path)
	if uri == "" {
		return fmt.Errorf("no document uri for %q", path)
	}

	id := c.allocID()
	frame, err := encodeMessage(request{
		JSONRPC: "2.0",
		ID:      &id,
		Method:  MethodCompletion,
		Params: CompletionParams{
			TextDocumentPositionParams: TextDocumentPositionParams{
				TextDocument: TextDocumentIdentifier{URI: uri},
				Position:     Position{Line: line, Character: col},
			},
			Context: &CompletionContext{TriggerKind: CompletionTriggerKindInvoked},
		},
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.pending[id] = pendingRequest{
		kind:    requestCompletion,
		path:    path,
		version: version,
		line:    line,
		col:     col,
	}
	c.mu.Unlock()

	if err := c.writeFrame(frame); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Poll returns every event buffered since the last call without blocking.
func (c *Client) Poll() []Event {
	var out []Event
	for {
		select {
		case ev := <-c.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// Close releases the server connection and the child process. The reader
// goroutine exits on its own once the output stream closes. Close is
// idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		err = c.w.Close()
		c.writeMu.Unlock()

		if c.cmd != nil && c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		if c.reader != nil {
			_ = c.reader.Close()
		}
		c.reap()
	})
	return err
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// reap collects the child process without blocking the caller.
func (c *Client) reap() {
	c.reapOnce.Do(func() {
		if c.cmd == nil {
			return
		}
		go func() {
			_ = c.cmd.Wait()
		}()
	})
}

func (c *Client) documentURI(path string) DocumentURI {
	if c.openURI != "" {
		return c.openURI
	}
	return FilePathToURI(path)
}

func (c *Client) allocID() int64 {
	c.nextID++
	return c.nextID
}

func (c *Client) sendRequest(method string, params any) (int64, error) {
	id := c.allocID()
	frame, err := encodeMessage(request{JSONRPC: "2.0", ID: &id, Method: method, Params: params})
	if err != nil {
		return 0, err
	}
	return id, c.writeFrame(frame)
}

func (c *Client) notify(method string, params any) error {
	frame, err := encodeMessage(request{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return err
	}
	return c.writeFrame(frame)
}

// notifyBestEffort sends a notification and swallows failures.
func (c *Client) notifyBestEffort(method string, params any) {
	if err := c.notify(method, params); err != nil {
		c.log.Debug("%s not delivered: %v", method, err)
	}
}

func (c *Client) writeFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return ErrClosed
	}
	if _, err := c.w.Write(frame); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// readLoop frames inbound messages until the stream ends. Malformed frames
// are skipped; any other read failure ends the loop quietly.
func (c *Client) readLoop(r io.Reader) {
	defer func() {
		c.alive.Store(false)
		close(c.exited)
		c.reap()
	}()

	br := bufio.NewReaderSize(r, readerBufferSize)
	for {
		msg, err := ReadMessage(br)
		if err != nil {
			if isRecoverable(err) {
				c.log.Warn("skipping inbound message: %v", err)
				continue
			}
			if !errors.Is(err, io.EOF) && !c.isClosed() {
				c.log.Debug("reader stopped: %v", err)
			}
			return
		}

		ev, ok := c.handleMessage(msg)
		if !ok {
			continue
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

// handleMessage classifies one inbound message and decodes it into an
// event when it is a diagnostics publish or a tracked response.
func (c *Client) handleMessage(msg []byte) (Event, bool) {
	res := gjson.ParseBytes(msg)
	method := res.Get("method")
	id := res.Get("id")

	if method.Exists() {
		if id.Exists() {
			c.replyNull(id.Raw, method.String())
			return nil, false
		}
		if method.String() == MethodPublishDiagnostics {
			return c.decodeDiagnostics(res.Get("params").Raw)
		}
		return nil, false
	}

	if id.Type != gjson.Number {
		return nil, false
	}
	pending, ok := c.takePending(id.Int())
	if !ok {
		return nil, false
	}

	if rpcErr := res.Get("error"); rpcErr.Exists() {
		var e RPCError
		if err := json.Unmarshal([]byte(rpcErr.Raw), &e); err == nil {
			c.log.Debug("request %d failed: %v", id.Int(), &e)
		}
		return nil, false
	}

	result := res.Get("result")
	if !result.Exists() {
		c.log.Warn("response %d has neither result nor error", id.Int())
		return nil, false
	}

	switch pending.kind {
	case requestCompletion:
		items, err := ParseCompletionResult([]byte(result.Raw))
		if err != nil {
			c.log.Warn("skipping completion response %d: %v", id.Int(), err)
			return nil, false
		}
		return CompletionEvent{
			Path:    pending.path,
			Version: pending.version,
			Line:    pending.line,
			Col:     pending.col,
			Items:   items,
		}, true
	}
	return nil, false
}

func (c *Client) decodeDiagnostics(raw string) (Event, bool) {
	if raw == "" {
		return nil, false
	}
	var params PublishDiagnosticsParams
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		c.log.Warn("skipping diagnostics: %v", err)
		return nil, false
	}
	path := URIToFilePath(params.URI)
	if path == "" {
		return nil, false
	}
	return DiagnosticsEvent{
		Path:        path,
		Version:     params.Version,
		Diagnostics: params.Diagnostics,
	}, true
}

// replyNull answers a server-initiated request with a null result.
func (c *Client) replyNull(rawID, method string) {
	frame, err := encodeMessage(reply{JSONRPC: "2.0", ID: json.RawMessage(rawID)})
	if err != nil {
		return
	}
	if err := c.writeFrame(frame); err != nil {
		c.log.Debug("reply to %s not delivered: %v", method, err)
	}
}

func (c *Client) takePending(id int64) (pendingRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return p, ok
}

func (c *Client) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
