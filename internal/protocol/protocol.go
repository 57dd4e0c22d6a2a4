// Package protocol defines the LSP types exchanged with the language
// server by the session layer. Only the structures lspwire actually
// sends or interprets are modeled; everything else stays raw JSON.
package protocol

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
)

// DocumentURI identifies a document, typically a file:// URI.
type DocumentURI string

// Position is a zero-based line/character location in a document.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location is a range inside a document.
type Location struct {
	URI   DocumentURI `json:"uri"`
	Range Range       `json:"range"`
}

// TextDocumentIdentifier refers to a document by URI.
type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

// VersionedTextDocumentIdentifier adds a version number.
type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int `json:"version"`
}

// TextDocumentItem is a document transferred to the server.
type TextDocumentItem struct {
	URI        DocumentURI `json:"uri"`
	LanguageID string      `json:"languageId"`
	Version    int         `json:"version"`
	Text       string      `json:"text"`
}

// TextDocumentPositionParams is the common document+position parameter
// shape shared by hover, completion, definition and friends.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// TextEdit replaces a range with new text.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// TextDocumentContentChangeEvent describes one incremental change.
// A nil Range means the full document was replaced.
type TextDocumentContentChangeEvent struct {
	Range *Range `json:"range,omitempty"`
	Text  string `json:"text"`
}

// WorkspaceEdit maps document URIs to the edits applied to them.
type WorkspaceEdit struct {
	Changes map[DocumentURI][]TextEdit `json:"changes,omitempty"`
}

// --- Lifecycle ---

// InitializeParams starts the LSP handshake.
type InitializeParams struct {
	ProcessID             int                `json:"processId"`
	RootURI               DocumentURI        `json:"rootUri,omitempty"`
	Capabilities          ClientCapabilities `json:"capabilities"`
	InitializationOptions any                `json:"initializationOptions,omitempty"`
}

// InitializedParams is the empty params of the initialized notification.
type InitializedParams struct{}

// ClientCapabilities advertises what this client understands. Kept to
// the subset one stdio server needs; no broader negotiation happens.
type ClientCapabilities struct {
	TextDocument TextDocumentClientCapabilities `json:"textDocument"`
	Window       map[string]any                 `json:"window,omitempty"`
}

// TextDocumentClientCapabilities covers the document features in use.
type TextDocumentClientCapabilities struct {
	Hover           *HoverClientCapabilities      `json:"hover,omitempty"`
	Completion      *CompletionClientCapabilities `json:"completion,omitempty"`
	Synchronization map[string]any                `json:"synchronization,omitempty"`
}

// HoverClientCapabilities selects hover content formats.
type HoverClientCapabilities struct {
	ContentFormat []string `json:"contentFormat,omitempty"`
}

// CompletionClientCapabilities selects completion item features.
type CompletionClientCapabilities struct {
	CompletionItem map[string]any `json:"completionItem,omitempty"`
}

// --- Document synchronization ---

// DidOpenTextDocumentParams announces an opened document.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidChangeTextDocumentParams carries incremental document changes.
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// DidSaveTextDocumentParams announces a saved document.
type DidSaveTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Text         string                 `json:"text,omitempty"`
}

// DidCloseTextDocumentParams announces a closed document.
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// --- Features ---

// CompletionParams requests completions at a position.
type CompletionParams struct {
	TextDocumentPositionParams
	Context *CompletionContext `json:"context,omitempty"`
}

// CompletionContext describes how completion was triggered.
type CompletionContext struct {
	TriggerKind CompletionTriggerKind `json:"triggerKind"`
}

// CompletionTriggerKind enumerates completion triggers.
type CompletionTriggerKind int

// Completion trigger kinds.
const (
	CompletionTriggerInvoked          CompletionTriggerKind = 1
	CompletionTriggerCharacter        CompletionTriggerKind = 2
	CompletionTriggerIncompleteResult CompletionTriggerKind = 3
)

// HoverParams requests hover information at a position.
type HoverParams struct {
	TextDocumentPositionParams
}

// SignatureHelpParams requests signature help at a position.
type SignatureHelpParams struct {
	TextDocumentPositionParams
}

// FormattingOptions control document formatting.
type FormattingOptions struct {
	TabSize      int  `json:"tabSize"`
	InsertSpaces bool `json:"insertSpaces"`
}

// DocumentFormattingParams requests a whole-document format.
type DocumentFormattingParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Options      FormattingOptions      `json:"options"`
}

// RenameParams requests a symbol rename.
type RenameParams struct {
	TextDocumentPositionParams
	NewName string `json:"newName"`
}

// CodeActionParams requests code actions for a range.
type CodeActionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
	Context      CodeActionContext      `json:"context"`
}

// CodeActionContext carries the diagnostics overlapping the range.
type CodeActionContext struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// ExecuteCommandParams asks the server to run a command it advertised.
type ExecuteCommandParams struct {
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}

// --- Diagnostics ---

// PublishDiagnosticsParams is the payload of
// textDocument/publishDiagnostics.
type PublishDiagnosticsParams struct {
	URI         DocumentURI  `json:"uri"`
	Version     *int         `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Diagnostic is one reported problem in a document.
type Diagnostic struct {
	Range    Range              `json:"range"`
	Severity DiagnosticSeverity `json:"severity,omitempty"`
	Code     any                `json:"code,omitempty"`
	Source   string             `json:"source,omitempty"`
	Message  string             `json:"message"`
}

// DiagnosticSeverity grades a diagnostic.
type DiagnosticSeverity int

// Diagnostic severities.
const (
	SeverityError       DiagnosticSeverity = 1
	SeverityWarning     DiagnosticSeverity = 2
	SeverityInformation DiagnosticSeverity = 3
	SeverityHint        DiagnosticSeverity = 4
)

// --- Server-to-client payloads ---

// ApplyWorkspaceEditParams is the payload of workspace/applyEdit.
type ApplyWorkspaceEditParams struct {
	Label string        `json:"label,omitempty"`
	Edit  WorkspaceEdit `json:"edit"`
}

// ApplyWorkspaceEditResult answers workspace/applyEdit.
type ApplyWorkspaceEditResult struct {
	Applied       bool   `json:"applied"`
	FailureReason string `json:"failureReason,omitempty"`
}

// LogMessageParams is the payload of window/logMessage and
// window/showMessage.
type LogMessageParams struct {
	Type    int    `json:"type"`
	Message string `json:"message"`
}

// --- Utility ---

// FilePathToURI converts a file path to a file:// DocumentURI.
func FilePathToURI(path string) DocumentURI {
	if path == "" {
		return ""
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	path = filepath.ToSlash(path)

	// Windows drive letters need a leading slash.
	if runtime.GOOS == "windows" && len(path) >= 2 && path[1] == ':' {
		path = "/" + path
	}

	u := &url.URL{Scheme: "file", Path: path}
	return DocumentURI(u.String())
}

// URIToFilePath converts a file:// DocumentURI back to a file path.
// Non-file URIs are returned unchanged.
func URIToFilePath(uri DocumentURI) string {
	if uri == "" {
		return ""
	}

	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return string(uri)
	}

	path := u.Path
	if runtime.GOOS == "windows" && len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path)
}

// DecodeParams unmarshals raw notification or request params into a
// typed structure.
func DecodeParams(raw any, v any) error {
	data, ok := raw.(json.RawMessage)
	if !ok {
		return fmt.Errorf("params are not raw JSON (got %T)", raw)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}
