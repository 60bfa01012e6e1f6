// Package lsptest provides an in-memory language server for exercising
// LSP clients over pipes.
package lsptest

import (
	"bufio"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Timeout bounds every wait performed by Server.
const Timeout = 2 * time.Second

// Message is one frame written by the client.
type Message struct {
	ID     int64
	HasID  bool
	Method string
	Params gjson.Result
	Raw    []byte
}

// Server plays the server side of a client connection. Frames the client
// writes are decoded on a background goroutine and handed out by Next.
type Server struct {
	clientIn  *io.PipeReader
	serverOut *io.PipeWriter
	serverIn  *io.PipeReader
	clientOut *io.PipeWriter

	writeMu  sync.Mutex
	messages chan Message
}

// New returns a running fake server.
func New() *Server {
	clientIn, serverOut := io.Pipe()
	serverIn, clientOut := io.Pipe()

	s := &Server{
		clientIn:  clientIn,
		serverOut: serverOut,
		serverIn:  serverIn,
		clientOut: clientOut,
		messages:  make(chan Message, 1024),
	}
	go s.readLoop()
	return s
}

// ClientStreams returns the streams a client reads from and writes to.
func (s *Server) ClientStreams() (io.ReadCloser, io.WriteCloser) {
	return s.clientIn, s.clientOut
}

func (s *Server) readLoop() {
	defer close(s.messages)

	tp := textproto.NewReader(bufio.NewReader(s.serverIn))
	for {
		header, err := tp.ReadMIMEHeader()
		if err != nil {
			return
		}
		n, err := strconv.Atoi(header.Get("Content-Length"))
		if err != nil || n < 0 {
			return
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(tp.R, body); err != nil {
			return
		}

		res := gjson.ParseBytes(body)
		id := res.Get("id")
		s.messages <- Message{
			ID:     id.Int(),
			HasID:  id.Exists(),
			Method: res.Get("method").String(),
			Params: res.Get("params"),
			Raw:    body,
		}
	}
}

// Next returns the next client frame, failing the test after Timeout.
func (s *Server) Next(t testing.TB) Message {
	t.Helper()
	select {
	case msg, ok := <-s.messages:
		if !ok {
			t.Fatal("lsptest: client stream closed")
		}
		return msg
	case <-time.After(Timeout):
		t.Fatal("lsptest: timed out waiting for a client message")
	}
	return Message{}
}

// Expect skips client frames until one with method arrives.
func (s *Server) Expect(t testing.TB, method string) Message {
	t.Helper()
	deadline := time.After(Timeout)
	for {
		select {
		case msg, ok := <-s.messages:
			if !ok {
				t.Fatalf("lsptest: client stream closed before %s", method)
			}
			if msg.Method == method {
				return msg
			}
		case <-deadline:
			t.Fatalf("lsptest: timed out waiting for %s", method)
		}
	}
}

// Handshake consumes the initialize request and initialized notification.
func (s *Server) Handshake(t testing.TB) Message {
	t.Helper()
	msg := s.Expect(t, "initialize")
	s.Expect(t, "initialized")
	return msg
}

// WaitClosed blocks until the client closes its output stream.
func (s *Server) WaitClosed(t testing.TB) {
	t.Helper()
	deadline := time.After(Timeout)
	for {
		select {
		case _, ok := <-s.messages:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("lsptest: client did not close its stream")
		}
	}
}

// SendRaw writes body framed with a Content-Length header.
func (s *Server) SendRaw(t testing.TB, body []byte) {
	t.Helper()
	s.SendFrame(t, []byte(fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)))
}

// SendFrame writes frame exactly as given.
func (s *Server) SendFrame(t testing.TB, frame []byte) {
	t.Helper()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.serverOut.Write(frame); err != nil {
		t.Fatalf("lsptest: write: %v", err)
	}
}

// Respond sends a result for request id. result is raw JSON.
func (s *Server) Respond(t testing.TB, id int64, result string) {
	t.Helper()
	body := build(t, `{"jsonrpc":"2.0"}`, "id", id)
	body = buildRaw(t, body, "result", result)
	s.SendRaw(t, []byte(body))
}

// RespondError sends a JSON-RPC error for request id.
func (s *Server) RespondError(t testing.TB, id int64, code int, message string) {
	t.Helper()
	body := build(t, `{"jsonrpc":"2.0"}`, "id", id)
	body = build(t, body, "error.code", code)
	body = build(t, body, "error.message", message)
	s.SendRaw(t, []byte(body))
}

// Request sends a server-initiated request.
func (s *Server) Request(t testing.TB, id int64, method string) {
	t.Helper()
	body := build(t, `{"jsonrpc":"2.0"}`, "id", id)
	body = build(t, body, "method", method)
	s.SendRaw(t, []byte(body))
}

// Notify sends a notification. params is raw JSON.
func (s *Server) Notify(t testing.TB, method, params string) {
	t.Helper()
	body := build(t, `{"jsonrpc":"2.0"}`, "method", method)
	body = buildRaw(t, body, "params", params)
	s.SendRaw(t, []byte(body))
}

// PublishDiagnostics sends textDocument/publishDiagnostics for uri. A nil
// version is omitted. diagnostics is a raw JSON array.
func (s *Server) PublishDiagnostics(t testing.TB, uri string, version *int, diagnostics string) {
	t.Helper()
	params := build(t, `{}`, "uri", uri)
	if version != nil {
		params = build(t, params, "version", *version)
	}
	params = buildRaw(t, params, "diagnostics", diagnostics)
	s.Notify(t, "textDocument/publishDiagnostics", params)
}

// Close ends the server's output stream, which the client reads as end
// of stream, and stops reading client frames.
func (s *Server) Close() error {
	s.serverOut.Close()
	s.serverIn.Close()
	return nil
}

// Diagnostic returns a raw diagnostic starting at line.
func Diagnostic(line, severity int, message string) string {
	d, _ := sjson.Set(`{}`, "range.start.line", line)
	d, _ = sjson.Set(d, "range.start.character", 0)
	d, _ = sjson.Set(d, "range.end.line", line)
	d, _ = sjson.Set(d, "range.end.character", 1)
	d, _ = sjson.Set(d, "severity", severity)
	d, _ = sjson.Set(d, "message", message)
	return d
}

// Array joins raw JSON values into an array.
func Array(values ...string) string {
	out := `[]`
	for _, v := range values {
		out, _ = sjson.SetRaw(out, "-1", v)
	}
	return out
}

func build(t testing.TB, doc, path string, value any) string {
	t.Helper()
	out, err := sjson.Set(doc, path, value)
	if err != nil {
		t.Fatalf("lsptest: set %s: %v", path, err)
	}
	return out
}

func buildRaw(t testing.TB, doc, path, raw string) string {
	t.Helper()
	out, err := sjson.SetRaw(doc, path, raw)
	if err != nil {
		t.Fatalf("lsptest: set %s: %v", path, err)
	}
	return out
}
