// Package lsp connects the editor to external language servers
// (gopls, rust-analyzer, typescript-language-server, pylsp) over stdio.
//
// # Architecture
//
//   - ServerSpec / Resolver: static extension table deciding which server a
//     file uses
//   - ReadMessage / WriteMessage: Content-Length framing of JSON-RPC 2.0
//   - Client: one server process, one background reader goroutine, and a
//     correlation table of outstanding requests
//   - Manager: owns the active client and the per-document state derived
//     from it (versions, diagnostics, the latest completion result)
//
// # Quick Start
//
//	m := lsp.NewManager(root, lsp.WithStatusSink(lsp.StatusFunc(setStatus)))
//	defer m.Close()
//
//	m.OpenFile(path, text)
//	m.RequestCompletion(path, line, col)
//
//	// once per editor tick
//	m.Poll()
//	if update, ok := m.TakeCompletion(); ok {
//	    // rank update.Items
//	}
//
// # Threading
//
// A Client's reader goroutine is the only goroutine that blocks on server
// output. It forwards events through a buffered channel that Poll drains
// without blocking. Manager and the document methods of Client are driven
// from a single goroutine; only the correlation table and the write side
// of the pipe are shared with the reader, each behind its own mutex.
//
// # Staleness
//
// Every document carries a version that starts at 1 on open and grows by
// one per change. Diagnostics tagged with a version older than the known
// one are dropped, as are completion results requested against an older
// version than the current one.
package lsp
