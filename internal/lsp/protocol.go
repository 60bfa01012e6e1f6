package lsp

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Method names used on the wire.
const (
	MethodInitialize         = "initialize"
	MethodInitialized        = "initialized"
	MethodDidOpen            = "textDocument/didOpen"
	MethodDidChange          = "textDocument/didChange"
	MethodDidSave            = "textDocument/didSave"
	MethodCompletion         = "textDocument/completion"
	MethodPublishDiagnostics = "textDocument/publishDiagnostics"
)

// DocumentURI represents a URI as used in LSP.
// It is typically a file:// URI.
type DocumentURI string

// Position in a text document expressed as zero-based line and character offset.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range in a text document expressed as start and end positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// TextDocumentIdentifier identifies a text document.
type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

// VersionedTextDocumentIdentifier identifies a specific version of a text document.
type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int `json:"version"`
}

// TextDocumentItem is an item to transfer a text document from the client to the server.
type TextDocumentItem struct {
	URI        DocumentURI `json:"uri"`
	LanguageID string      `json:"languageId"`
	Version    int         `json:"version"`
	Text       string      `json:"text"`
}

// TextDocumentPositionParams pass a text document and a position inside it.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// TextDocumentContentChangeEvent describes a content change. Only whole
// document replacement is sent, so Range is never set.
type TextDocumentContentChangeEvent struct {
	Text string `json:"text"`
}

// WorkspaceFolder represents a workspace folder.
type WorkspaceFolder struct {
	URI  DocumentURI `json:"uri"`
	Name string      `json:"name"`
}

// --- Initialize ---

// InitializeParams are the parameters sent in an initialize request.
type InitializeParams struct {
	ProcessID        int                `json:"processId"`
	RootURI          DocumentURI        `json:"rootUri,omitempty"`
	Capabilities     ClientCapabilities `json:"capabilities"`
	WorkspaceFolders []WorkspaceFolder  `json:"workspaceFolders,omitempty"`
}

// InitializedParams are the parameters sent in an initialized notification.
type InitializedParams struct{}

// ClientCapabilities define capabilities the editor provides.
type ClientCapabilities struct {
	TextDocument *TextDocumentClientCapabilities `json:"textDocument,omitempty"`
}

// TextDocumentClientCapabilities define text document capabilities.
type TextDocumentClientCapabilities struct {
	Synchronization    *TextDocumentSyncClientCapabilities   `json:"synchronization,omitempty"`
	Completion         *CompletionClientCapabilities         `json:"completion,omitempty"`
	PublishDiagnostics *PublishDiagnosticsClientCapabilities `json:"publishDiagnostics,omitempty"`
}

// TextDocumentSyncClientCapabilities define sync capabilities.
type TextDocumentSyncClientCapabilities struct {
	DidSave bool `json:"didSave,omitempty"`
}

// CompletionClientCapabilities define completion capabilities.
type CompletionClientCapabilities struct {
	CompletionItem *CompletionItemCapabilities `json:"completionItem,omitempty"`
	ContextSupport bool                        `json:"contextSupport,omitempty"`
}

// CompletionItemCapabilities define completion item capabilities.
type CompletionItemCapabilities struct {
	SnippetSupport       bool `json:"snippetSupport,omitempty"`
	InsertReplaceSupport bool `json:"insertReplaceSupport,omitempty"`
}

// PublishDiagnosticsClientCapabilities define diagnostics capabilities.
type PublishDiagnosticsClientCapabilities struct {
	VersionSupport bool `json:"versionSupport,omitempty"`
}

// DefaultClientCapabilities returns the capabilities announced in initialize.
func DefaultClientCapabilities() ClientCapabilities {
	return ClientCapabilities{
		TextDocument: &TextDocumentClientCapabilities{
			Synchronization: &TextDocumentSyncClientCapabilities{DidSave: true},
			Completion: &CompletionClientCapabilities{
				CompletionItem: &CompletionItemCapabilities{
					SnippetSupport:       true,
					InsertReplaceSupport: true,
				},
				ContextSupport: true,
			},
			PublishDiagnostics: &PublishDiagnosticsClientCapabilities{VersionSupport: true},
		},
	}
}

// --- Document Sync ---

// DidOpenTextDocumentParams are parameters for textDocument/didOpen.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidChangeTextDocumentParams are parameters for textDocument/didChange.
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// DidSaveTextDocumentParams are parameters for textDocument/didSave.
type DidSaveTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// --- Completion ---

// CompletionParams are parameters for textDocument/completion.
type CompletionParams struct {
	TextDocumentPositionParams
	Context *CompletionContext `json:"context,omitempty"`
}

// CompletionContext contains additional information about the context.
type CompletionContext struct {
	TriggerKind      CompletionTriggerKind `json:"triggerKind"`
	TriggerCharacter string                `json:"triggerCharacter,omitempty"`
}

// CompletionTriggerKind defines how a completion was triggered.
type CompletionTriggerKind int

const (
	CompletionTriggerKindInvoked          CompletionTriggerKind = 1
	CompletionTriggerKindTriggerCharacter CompletionTriggerKind = 2
)

// CompletionList represents a collection of completion items.
type CompletionList struct {
	IsIncomplete bool             `json:"isIncomplete"`
	Items        []CompletionItem `json:"items"`
}

// CompletionItem represents a completion suggestion.
type CompletionItem struct {
	Label            string              `json:"label"`
	Kind             CompletionItemKind  `json:"kind,omitempty"`
	Detail           string              `json:"detail,omitempty"`
	SortText         string              `json:"sortText,omitempty"`
	FilterText       string              `json:"filterText,omitempty"`
	InsertText       string              `json:"insertText,omitempty"`
	InsertTextFormat InsertTextFormat    `json:"insertTextFormat,omitempty"`
	TextEdit         *CompletionTextEdit `json:"textEdit,omitempty"`
}

// CompletionTextEdit is either a plain TextEdit (Range set) or an
// InsertReplaceEdit (Insert and Replace set).
type CompletionTextEdit struct {
	NewText string
	Range   *Range
	Insert  *Range
	Replace *Range
}

type completionTextEditWire struct {
	NewText string `json:"newText"`
	Range   *Range `json:"range,omitempty"`
	Insert  *Range `json:"insert,omitempty"`
	Replace *Range `json:"replace,omitempty"`
}

// UnmarshalJSON decodes either edit shape.
func (e *CompletionTextEdit) UnmarshalJSON(data []byte) error {
	var w completionTextEditWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Range == nil && w.Insert == nil {
		return fmt.Errorf("textEdit has neither range nor insert")
	}
	e.NewText = w.NewText
	e.Range = w.Range
	e.Insert = w.Insert
	e.Replace = w.Replace
	return nil
}

// MarshalJSON encodes the edit in the shape it was decoded from.
func (e CompletionTextEdit) MarshalJSON() ([]byte, error) {
	w := completionTextEditWire{NewText: e.NewText}
	if e.Insert != nil {
		w.Insert = e.Insert
		w.Replace = e.Replace
	} else {
		w.Range = e.Range
	}
	return json.Marshal(w)
}

// EditRange returns the range the edit replaces when accepted. For
// insert/replace edits this is the insert range.
func (e *CompletionTextEdit) EditRange() Range {
	if e.Insert != nil {
		return *e.Insert
	}
	if e.Range != nil {
		return *e.Range
	}
	return Range{}
}

// CompletionItemKind represents the type of completion item.
type CompletionItemKind int

const (
	CompletionItemKindText          CompletionItemKind = 1
	CompletionItemKindMethod        CompletionItemKind = 2
	CompletionItemKindFunction      CompletionItemKind = 3
	CompletionItemKindConstructor   CompletionItemKind = 4
	CompletionItemKindField         CompletionItemKind = 5
	CompletionItemKindVariable      CompletionItemKind = 6
	CompletionItemKindClass         CompletionItemKind = 7
	CompletionItemKindInterface     CompletionItemKind = 8
	CompletionItemKindModule        CompletionItemKind = 9
	CompletionItemKindProperty      CompletionItemKind = 10
	CompletionItemKindKeyword       CompletionItemKind = 14
	CompletionItemKindSnippet       CompletionItemKind = 15
	CompletionItemKindConstant      CompletionItemKind = 21
	CompletionItemKindStruct        CompletionItemKind = 22
	CompletionItemKindTypeParameter CompletionItemKind = 25
)

var kindNames = map[CompletionItemKind]string{
	CompletionItemKindText:          "text",
	CompletionItemKindMethod:        "method",
	CompletionItemKindFunction:      "func",
	CompletionItemKindConstructor:   "ctor",
	CompletionItemKindField:         "field",
	CompletionItemKindVariable:      "var",
	CompletionItemKindClass:         "class",
	CompletionItemKindInterface:     "iface",
	CompletionItemKindModule:        "module",
	CompletionItemKindProperty:      "prop",
	CompletionItemKindKeyword:       "keyword",
	CompletionItemKindSnippet:       "snippet",
	CompletionItemKindConstant:      "const",
	CompletionItemKindStruct:        "struct",
	CompletionItemKindTypeParameter: "tparam",
}

// String returns a short name for the kind, or "" when unknown.
func (k CompletionItemKind) String() string {
	return kindNames[k]
}

// InsertTextFormat defines the format of insert text.
type InsertTextFormat int

const (
	InsertTextFormatPlainText InsertTextFormat = 1
	InsertTextFormatSnippet   InsertTextFormat = 2
)

// ParseCompletionResult decodes a completion result, which servers send
// as null, a bare item array, or a CompletionList.
func ParseCompletionResult(data []byte) ([]CompletionItem, error) {
	res := gjson.ParseBytes(data)
	switch {
	case len(data) == 0, res.Type == gjson.Null:
		return nil, nil
	case res.IsArray():
		var items []CompletionItem
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("%w: completion items: %v", ErrInvalidResponse, err)
		}
		return items, nil
	case res.IsObject():
		var list CompletionList
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("%w: completion list: %v", ErrInvalidResponse, err)
		}
		return list.Items, nil
	default:
		return nil, fmt.Errorf("%w: unexpected completion result %s", ErrInvalidResponse, res.Type)
	}
}

// --- Diagnostics ---

// PublishDiagnosticsParams are parameters for textDocument/publishDiagnostics.
// Version is nil when the server did not attach one.
type PublishDiagnosticsParams struct {
	URI         DocumentURI  `json:"uri"`
	Version     *int         `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Diagnostic represents a diagnostic (error, warning, info, hint).
type Diagnostic struct {
	Range    Range              `json:"range"`
	Severity DiagnosticSeverity `json:"severity,omitempty"`
	Code     any                `json:"code,omitempty"`
	Source   string             `json:"source,omitempty"`
	Message  string             `json:"message"`
}

// DiagnosticSeverity represents the severity of a diagnostic.
type DiagnosticSeverity int

const (
	DiagnosticSeverityError       DiagnosticSeverity = 1
	DiagnosticSeverityWarning     DiagnosticSeverity = 2
	DiagnosticSeverityInformation DiagnosticSeverity = 3
	DiagnosticSeverityHint        DiagnosticSeverity = 4
)

// String returns a human-readable severity name.
func (s DiagnosticSeverity) String() string {
	switch s {
	case DiagnosticSeverityError:
		return "error"
	case DiagnosticSeverityWarning:
		return "warning"
	case DiagnosticSeverityInformation:
		return "info"
	case DiagnosticSeverityHint:
		return "hint"
	default:
		return "unknown"
	}
}

// --- JSON-RPC envelopes ---

// request is an outbound request or notification. ID is omitted for notifications.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// reply answers a server-initiated request.
type reply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}
