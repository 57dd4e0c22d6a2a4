package session

import (
	"os"

	"lspwire/internal/protocol"
)

// Feature wrappers send the LSP traffic the embedding application asks
// for. Requests are continuation style: the response arrives later
// through the handler registered for the same method.

func (s *Session) request(method string, params any) error {
	c, err := s.currentClient()
	if err != nil {
		return err
	}
	_, err = c.SendRequest(method, params)
	return err
}

func (s *Session) notify(method string, params any) error {
	c, err := s.currentClient()
	if err != nil {
		return err
	}
	return c.SendNotification(method, params)
}

func positionParams(path string, line, character int) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.FilePathToURI(path)},
		Position:     protocol.Position{Line: line, Character: character},
	}
}

// Initialize starts the LSP handshake for a workspace root.
func (s *Session) Initialize(rootPath string, initOptions any) error {
	return s.request("initialize", protocol.InitializeParams{
		ProcessID: os.Getpid(),
		RootURI:   protocol.FilePathToURI(rootPath),
		Capabilities: protocol.ClientCapabilities{
			TextDocument: protocol.TextDocumentClientCapabilities{
				Hover: &protocol.HoverClientCapabilities{
					ContentFormat: []string{"markdown", "plaintext"},
				},
				Completion: &protocol.CompletionClientCapabilities{
					CompletionItem: map[string]any{"snippetSupport": true},
				},
			},
		},
		InitializationOptions: initOptions,
	})
}

// NotifyInitialized completes the handshake after the initialize
// response was processed.
func (s *Session) NotifyInitialized() error {
	return s.notify("initialized", protocol.InitializedParams{})
}

// Hover requests hover information at a position.
func (s *Session) Hover(path string, line, character int) error {
	return s.request("textDocument/hover", protocol.HoverParams{
		TextDocumentPositionParams: positionParams(path, line, character),
	})
}

// Completion requests completions at a position.
func (s *Session) Completion(path string, line, character int) error {
	return s.request("textDocument/completion", protocol.CompletionParams{
		TextDocumentPositionParams: positionParams(path, line, character),
		Context: &protocol.CompletionContext{
			TriggerKind: protocol.CompletionTriggerInvoked,
		},
	})
}

// SignatureHelp requests signature help at a position.
func (s *Session) SignatureHelp(path string, line, character int) error {
	return s.request("textDocument/signatureHelp", protocol.SignatureHelpParams{
		TextDocumentPositionParams: positionParams(path, line, character),
	})
}

// Formatting requests a whole-document format.
func (s *Session) Formatting(path string, opts protocol.FormattingOptions) error {
	return s.request("textDocument/formatting", protocol.DocumentFormattingParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.FilePathToURI(path)},
		Options:      opts,
	})
}

// Declaration requests the declaration locations of the symbol at a
// position.
func (s *Session) Declaration(path string, line, character int) error {
	return s.request("textDocument/declaration", positionParams(path, line, character))
}

// Definition requests the definition locations of the symbol at a
// position.
func (s *Session) Definition(path string, line, character int) error {
	return s.request("textDocument/definition", positionParams(path, line, character))
}

// PrepareRename asks whether the symbol at a position can be renamed.
func (s *Session) PrepareRename(path string, line, character int) error {
	return s.request("textDocument/prepareRename", positionParams(path, line, character))
}

// Rename requests a workspace-wide symbol rename.
func (s *Session) Rename(path string, line, character int, newName string) error {
	return s.request("textDocument/rename", protocol.RenameParams{
		TextDocumentPositionParams: positionParams(path, line, character),
		NewName:                    newName,
	})
}

// CodeAction requests code actions for a range, attaching the cached
// diagnostics that overlap the document.
func (s *Session) CodeAction(path string, start, end protocol.Position) error {
	diags := s.Diagnostics(path)
	if diags == nil {
		diags = []protocol.Diagnostic{}
	}
	return s.request("textDocument/codeAction", protocol.CodeActionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.FilePathToURI(path)},
		Range:        protocol.Range{Start: start, End: end},
		Context:      protocol.CodeActionContext{Diagnostics: diags},
	})
}

// ExecuteCommand asks the server to run a command it advertised.
func (s *Session) ExecuteCommand(command string, arguments []any) error {
	return s.request("workspace/executeCommand", protocol.ExecuteCommandParams{
		Command:   command,
		Arguments: arguments,
	})
}

// Shutdown requests an orderly server shutdown.
func (s *Session) Shutdown() error {
	return s.request("shutdown", nil)
}

// Exit tells the server to exit after shutdown.
func (s *Session) Exit() error {
	return s.notify("exit", nil)
}
