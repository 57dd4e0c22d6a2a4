package session

import "errors"

// Standard errors returned by the session.
var (
	// ErrNotStarted indicates the server has not been started yet.
	ErrNotStarted = errors.New("language server not started")

	// ErrHandlerExists indicates a duplicate handler registration.
	ErrHandlerExists = errors.New("handler already registered")

	// ErrDocumentAlreadyOpen indicates the document is already open.
	ErrDocumentAlreadyOpen = errors.New("document already open")

	// ErrDocumentNotOpen indicates the document is not open.
	ErrDocumentNotOpen = errors.New("document not open")
)
