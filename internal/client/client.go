package client

import (
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"lspwire/internal/jsonrpc"
	"lspwire/internal/logging"
	"lspwire/internal/transport"
)

// MethodCancelRequest asks the server to abandon an in-flight request.
const MethodCancelRequest = "$/cancelRequest"

// Handler maps a method name to application logic.
//
// For server-initiated requests and notifications, params is the raw
// json.RawMessage params of the envelope. For replies to our own
// requests, params is the *jsonrpc.Response so the continuation can
// inspect result or error. The returned value is only used when
// answering a server-initiated request.
type Handler interface {
	Handle(method string, params any) (any, error)
}

type cancelParams struct {
	ID int64 `json:"id"`
}

// Client brokers JSON-RPC traffic between a Handler and a Transport.
// It does not own either; the surrounding session decides when the
// transport is replaced or torn down.
type Client struct {
	transport transport.Transport
	handler   Handler
	log       zerolog.Logger

	trackerMu sync.Mutex
	tracker   *Tracker

	// sendMu makes supersede-check plus id allocation atomic when
	// several goroutines race to send the same method.
	sendMu sync.Mutex
}

// New creates a client over the given transport and handler.
func New(tr transport.Transport, h Handler) *Client {
	return &Client{
		transport: tr,
		handler:   h,
		tracker:   NewTracker(),
		log:       logging.Component("client"),
	}
}

func (c *Client) currentTracker() *Tracker {
	c.trackerMu.Lock()
	defer c.trackerMu.Unlock()
	return c.tracker
}

// resetState discards all pending and cancelled request bookkeeping.
// Must happen whenever the transport is terminated so stale ids never
// match a new process's responses.
func (c *Client) resetState() {
	c.trackerMu.Lock()
	defer c.trackerMu.Unlock()
	c.tracker = NewTracker()
}

// ServerRunning reports whether the server process is live.
func (c *Client) ServerRunning() bool {
	return c.transport.IsRunning()
}

// RunServer spawns the server process.
func (c *Client) RunServer(opts transport.Options) error {
	return c.transport.Run(opts)
}

// TerminateServer kills the server process and resets request state.
func (c *Client) TerminateServer() {
	c.transport.Terminate()
	c.resetState()
}

func (c *Client) sendMessage(msg any) error {
	content, err := jsonrpc.Encode(msg)
	if err != nil {
		return err
	}
	return c.transport.Write(content)
}

// SendRequest sends a request, superseding any in-flight request of the
// same method: the older request is marked cancelled and the server is
// asked to abandon it. Returns the allocated request id.
func (c *Client) SendRequest(method string, params any) (int64, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	tracker := c.currentTracker()
	if prev, ok := tracker.FindID(method); ok {
		tracker.Cancel(prev)
		if err := c.SendNotification(MethodCancelRequest, cancelParams{ID: prev}); err != nil {
			c.log.Warn().Err(err).Int64("id", prev).Msg("cancel notification failed")
		}
	}

	id := tracker.Add(method)
	if err := c.sendMessage(jsonrpc.NewRequest(id, method, params)); err != nil {
		return 0, err
	}
	return id, nil
}

// SendNotification sends a fire-and-forget notification.
func (c *Client) SendNotification(method string, params any) error {
	return c.sendMessage(jsonrpc.NewNotification(method, params))
}

// SendResponse answers a request the server sent to us. When rpcErr is
// non-nil the result is dropped.
func (c *Client) SendResponse(id int64, result any, rpcErr *jsonrpc.RPCError) error {
	return c.sendMessage(jsonrpc.NewResponse(id, result, rpcErr))
}

// Listen launches the background read loop. The loop exits when the
// stream ends or a fatal framing error occurs, terminating the session
// either way.
func (c *Client) Listen() {
	go c.listen()
}

func (c *Client) listen() {
	for {
		content, err := c.transport.Read()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				// Orderly or crash exit of the server process.
				c.log.Debug().Msg("server stream closed")
			case errors.Is(err, transport.ErrNotRunning):
				// The session was torn down under us.
				return
			default:
				c.log.Error().Err(err).Msg("transport read failed")
			}
			c.TerminateServer()
			return
		}

		msg, err := jsonrpc.Decode(content)
		if err != nil {
			// Framing corruption is not recoverable mid-stream.
			c.log.Error().Err(err).Bytes("content", content).Msg("undecodable message")
			c.TerminateServer()
			return
		}

		c.Dispatch(msg)
	}
}

// Dispatch routes one inbound message. Handler failures never crash the
// read loop: they become error responses for requests and log lines for
// notifications and responses.
func (c *Client) Dispatch(msg *jsonrpc.Message) {
	switch {
	case msg.IsNotification():
		c.handleNotification(msg)
	case msg.IsRequest():
		c.handleRequest(msg)
	case msg.IsResponse():
		c.handleResponse(msg)
	default:
		c.log.Error().Str("method", msg.Method).Msg("invalid message: no method and no id")
	}
}

func (c *Client) handleNotification(msg *jsonrpc.Message) {
	if _, err := c.handler.Handle(msg.Method, msg.Params); err != nil {
		c.log.Warn().Err(err).Str("method", msg.Method).Msg("notification handler failed")
	}
}

func (c *Client) handleRequest(msg *jsonrpc.Message) {
	result, err := c.handler.Handle(msg.Method, msg.Params)
	var rpcErr *jsonrpc.RPCError
	if err != nil {
		c.log.Error().Err(err).Str("method", msg.Method).Msg("request handler failed")
		rpcErr = toRPCError(err)
		result = nil
	}
	if err := c.SendResponse(*msg.ID, result, rpcErr); err != nil {
		c.log.Warn().Err(err).Int64("id", *msg.ID).Msg("send response failed")
	}
}

func (c *Client) handleResponse(msg *jsonrpc.Message) {
	method, err := c.currentTracker().Take(*msg.ID)
	if err != nil {
		// Answers a request we no longer care about.
		c.log.Debug().Err(err).Int64("id", *msg.ID).Msg("dropping response")
		return
	}

	if _, err := c.handler.Handle(method, msg.Response()); err != nil {
		c.log.Warn().Err(err).Str("method", method).Msg("response handler failed")
	}
}

// toRPCError maps a handler error onto a JSON-RPC error object.
func toRPCError(err error) *jsonrpc.RPCError {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if errors.Is(err, ErrMethodNotFound) {
		return jsonrpc.NewError(jsonrpc.CodeMethodNotFound, err.Error())
	}
	return jsonrpc.NewError(jsonrpc.CodeInternalError, err.Error())
}
