package session

import "lspwire/internal/protocol"

// Document is an open document tracked by the session.
type Document struct {
	URI        protocol.DocumentURI
	Path       string
	LanguageID string
	Version    int
	Text       string
}

// DidOpen announces an opened document to the server and starts
// tracking it.
func (s *Session) DidOpen(path, languageID, text string) error {
	c, err := s.currentClient()
	if err != nil {
		return err
	}

	uri := protocol.FilePathToURI(path)

	s.docMu.Lock()
	if _, exists := s.docs[uri]; exists {
		s.docMu.Unlock()
		return ErrDocumentAlreadyOpen
	}
	s.docs[uri] = &Document{
		URI:        uri,
		Path:       path,
		LanguageID: languageID,
		Version:    1,
		Text:       text,
	}
	s.docMu.Unlock()

	return c.SendNotification("textDocument/didOpen", protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        uri,
			LanguageID: languageID,
			Version:    1,
			Text:       text,
		},
	})
}

// DidChange sends document changes, bumping the tracked version.
func (s *Session) DidChange(path string, changes []protocol.TextDocumentContentChangeEvent) error {
	c, err := s.currentClient()
	if err != nil {
		return err
	}

	uri := protocol.FilePathToURI(path)

	s.docMu.Lock()
	doc, exists := s.docs[uri]
	if !exists {
		s.docMu.Unlock()
		return ErrDocumentNotOpen
	}
	doc.Version++
	version := doc.Version
	for _, change := range changes {
		// Full-sync changes replace the cached text.
		if change.Range == nil {
			doc.Text = change.Text
		}
	}
	s.docMu.Unlock()

	return c.SendNotification("textDocument/didChange", protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
			Version:                version,
		},
		ContentChanges: changes,
	})
}

// DidSave announces a saved document.
func (s *Session) DidSave(path string) error {
	c, err := s.currentClient()
	if err != nil {
		return err
	}

	uri := protocol.FilePathToURI(path)

	s.docMu.RLock()
	_, exists := s.docs[uri]
	s.docMu.RUnlock()
	if !exists {
		return ErrDocumentNotOpen
	}

	return c.SendNotification("textDocument/didSave", protocol.DidSaveTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	})
}

// DidClose announces a closed document and stops tracking it.
func (s *Session) DidClose(path string) error {
	c, err := s.currentClient()
	if err != nil {
		return err
	}

	uri := protocol.FilePathToURI(path)

	s.docMu.Lock()
	if _, exists := s.docs[uri]; !exists {
		s.docMu.Unlock()
		return ErrDocumentNotOpen
	}
	delete(s.docs, uri)
	s.docMu.Unlock()

	return c.SendNotification("textDocument/didClose", protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	})
}

// Document returns a copy of a tracked document.
func (s *Session) Document(path string) (Document, bool) {
	uri := protocol.FilePathToURI(path)
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	doc, ok := s.docs[uri]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// OpenDocuments returns copies of all tracked documents.
func (s *Session) OpenDocuments() []Document {
	s.docMu.RLock()
	defer s.docMu.RUnlock()
	out := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, *doc)
	}
	return out
}
