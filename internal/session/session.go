// Package session ties the RPC client, transport, and application
// handlers into one language-server session.
//
// A Session owns the server lifecycle: it spawns a fresh transport on
// every RunServer, resets request state before reuse, and routes inbound
// traffic through a method-to-handler table built at startup. Handlers
// for our own requests are continuations: the session sends the request
// and the registered handler later receives the response.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lspwire/internal/client"
	"lspwire/internal/logging"
	"lspwire/internal/protocol"
	"lspwire/internal/transport"
)

// HandlerFunc handles one method. For server-initiated traffic params
// is json.RawMessage; for responses to our own requests it is a
// *jsonrpc.Response.
type HandlerFunc func(params any) (any, error)

// TransportFactory builds the transport for a server command line.
type TransportFactory func(command []string) transport.Transport

// Option configures a Session.
type Option func(*Session)

// WithTransportFactory overrides how transports are built. Used by
// tests; the default spawns the real process over stdio.
func WithTransportFactory(fn TransportFactory) Option {
	return func(s *Session) {
		s.newTransport = fn
	}
}

// Session is the owning context for one language-server connection.
type Session struct {
	command      []string
	newTransport TransportFactory
	log          zerolog.Logger

	regMu    sync.Mutex
	handlers map[string]HandlerFunc

	// runMu ensures only one goroutine can (re)start the server.
	runMu sync.Mutex

	clientMu sync.RWMutex
	client   *client.Client
	sid      string

	docMu sync.RWMutex
	docs  map[protocol.DocumentURI]*Document

	diagMu sync.RWMutex
	diags  map[protocol.DocumentURI][]protocol.Diagnostic
}

// New creates a session for the given server command line. The server
// is not spawned until RunServer.
func New(command []string, opts ...Option) *Session {
	s := &Session{
		command:  command,
		handlers: make(map[string]HandlerFunc),
		docs:     make(map[protocol.DocumentURI]*Document),
		diags:    make(map[protocol.DocumentURI][]protocol.Diagnostic),
		log:      logging.Component("session"),
		newTransport: func(command []string) transport.Transport {
			return transport.NewStdIO(command)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a handler for a method. Registering the same method
// twice is a programming error and fails immediately rather than being
// discovered at dispatch time.
func (s *Session) Register(method string, fn HandlerFunc) error {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	if _, ok := s.handlers[method]; ok {
		return fmt.Errorf("%w: %q", ErrHandlerExists, method)
	}
	s.handlers[method] = fn
	return nil
}

// Handle implements client.Handler. Diagnostics are cached before any
// user handler runs; unregistered methods fail with ErrMethodNotFound.
func (s *Session) Handle(method string, params any) (any, error) {
	if method == "textDocument/publishDiagnostics" {
		s.cacheDiagnostics(params)
	}

	s.regMu.Lock()
	fn, ok := s.handlers[method]
	s.regMu.Unlock()

	if !ok {
		// Diagnostics are fully handled by the cache above.
		if method == "textDocument/publishDiagnostics" {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %q", client.ErrMethodNotFound, method)
	}
	return fn(params)
}

func (s *Session) cacheDiagnostics(params any) {
	var p protocol.PublishDiagnosticsParams
	if err := protocol.DecodeParams(params, &p); err != nil {
		s.log.Warn().Err(err).Msg("undecodable diagnostics")
		return
	}

	s.diagMu.Lock()
	defer s.diagMu.Unlock()
	if len(p.Diagnostics) == 0 {
		delete(s.diags, p.URI)
	} else {
		s.diags[p.URI] = p.Diagnostics
	}
}

// Diagnostics returns the latest diagnostics published for a file.
func (s *Session) Diagnostics(path string) []protocol.Diagnostic {
	uri := protocol.FilePathToURI(path)
	s.diagMu.RLock()
	defer s.diagMu.RUnlock()
	return s.diags[uri]
}

// Running reports whether the server process is live.
func (s *Session) Running() bool {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return s.client != nil && s.client.ServerRunning()
}

// RunServer spawns the language server if it is not already running.
// Concurrent callers coalesce: whoever holds the run lock starts the
// server, everyone else returns immediately.
func (s *Session) RunServer(opts transport.Options) error {
	if !s.runMu.TryLock() {
		return nil
	}
	defer s.runMu.Unlock()

	if s.Running() {
		return nil
	}

	// A crashed server can leave stale state behind; always reset
	// before running.
	s.reset()

	tr := s.newTransport(s.command)
	c := client.New(tr, s)
	if err := c.RunServer(opts); err != nil {
		return err
	}
	c.Listen()

	sid := uuid.NewString()
	s.clientMu.Lock()
	s.client = c
	s.sid = sid
	s.clientMu.Unlock()

	s.log.Info().Str("session", sid).Strs("command", s.command).Msg("session started")
	return nil
}

// Terminate kills the server process and discards session state.
func (s *Session) Terminate() {
	s.reset()
}

// reset tears down the current client, if any, and clears document and
// diagnostic bookkeeping. The client's own teardown resets the request
// tracker, so stale ids never survive into the next run.
func (s *Session) reset() {
	s.clientMu.Lock()
	c := s.client
	s.client = nil
	s.clientMu.Unlock()

	if c != nil {
		c.TerminateServer()
	}

	s.docMu.Lock()
	s.docs = make(map[protocol.DocumentURI]*Document)
	s.docMu.Unlock()

	s.diagMu.Lock()
	s.diags = make(map[protocol.DocumentURI][]protocol.Diagnostic)
	s.diagMu.Unlock()
}

// currentClient returns the live client or ErrNotStarted.
func (s *Session) currentClient() (*client.Client, error) {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	if s.client == nil {
		return nil, ErrNotStarted
	}
	return s.client, nil
}
