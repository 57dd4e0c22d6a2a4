package jsonrpc

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Version is the protocol version tag every envelope must carry.
const Version = "2.0"

// Request is an outbound JSON-RPC request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Notification is an outbound JSON-RPC notification (no id, no reply).
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is a JSON-RPC response, either outbound (answering a server
// request) or inbound (extracted from a Message with Message.Response).
// Exactly one of Result/Error appears on the wire; a nil Result with a
// nil Error serializes as "result": null.
type Response struct {
	ID     int64
	Result any
	Error  *RPCError
}

// MarshalJSON writes either the result shape or the error shape,
// never both.
func (r *Response) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(struct {
			JSONRPC string    `json:"jsonrpc"`
			ID      int64     `json:"id"`
			Error   *RPCError `json:"error"`
		}{Version, r.ID, r.Error})
	}
	return json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		ID      int64  `json:"id"`
		Result  any    `json:"result"`
	}{Version, r.ID, r.Result})
}

// NewRequest builds a request envelope.
func NewRequest(id int64, method string, params any) *Request {
	return &Request{JSONRPC: Version, ID: id, Method: method, Params: params}
}

// NewNotification builds a notification envelope.
func NewNotification(method string, params any) *Notification {
	return &Notification{JSONRPC: Version, Method: method, Params: params}
}

// NewResponse builds a response envelope. When err is non-nil the result
// is dropped, matching the exactly-one-of-result/error invariant.
func NewResponse(id int64, result any, err *RPCError) *Response {
	if err != nil {
		return &Response{ID: id, Error: err}
	}
	return &Response{ID: id, Result: result}
}

// Message is an inbound envelope of unknown kind. Params and Result are
// left raw for the dispatcher to interpret.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsNotification reports whether the message is a notification
// (method, no id).
func (m *Message) IsNotification() bool {
	return m.Method != "" && m.ID == nil
}

// IsRequest reports whether the message is a server-initiated request
// (method and id).
func (m *Message) IsRequest() bool {
	return m.Method != "" && m.ID != nil
}

// IsResponse reports whether the message answers one of our requests
// (id, no method).
func (m *Message) IsResponse() bool {
	return m.Method == "" && m.ID != nil
}

// Response converts a response-shaped message into a Response value.
func (m *Message) Response() *Response {
	var id int64
	if m.ID != nil {
		id = *m.ID
	}
	return &Response{ID: id, Result: m.Result, Error: m.Error}
}

// Encode serializes an envelope to UTF-8 JSON.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// Decode parses an inbound payload. It fails with ErrMalformedMessage if
// the payload is not valid JSON or the version tag is absent or wrong.
func Decode(data []byte) (*Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedMessage)
	}
	if v := gjson.GetBytes(data, "jsonrpc"); v.String() != Version {
		return nil, fmt.Errorf("%w: jsonrpc version %q", ErrMalformedMessage, v.String())
	}

	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &m, nil
}
