package client

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"lspwire/internal/jsonrpc"
	"lspwire/internal/transport"
)

// fakeTransport is a scriptable in-memory transport. Writes are
// recorded as raw content; reads deliver queued frames until the queue
// is closed, then report end of stream.
type fakeTransport struct {
	mu         sync.Mutex
	running    bool
	terminated bool
	writes     [][]byte

	inbound chan []byte
	closed  bool
	done    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		running: true,
		inbound: make(chan []byte, 16),
		done:    make(chan struct{}),
	}
}

func (f *fakeTransport) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeTransport) Run(transport.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	return nil
}

func (f *fakeTransport) Terminate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.terminated {
		return
	}
	f.running = false
	f.terminated = true
	close(f.done)
	if !f.closed {
		f.closed = true
		close(f.inbound)
	}
}

func (f *fakeTransport) Write(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return transport.ErrNotRunning
	}
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeTransport) Read() ([]byte, error) {
	data, ok := <-f.inbound
	if !ok {
		return nil, io.EOF
	}
	return data, nil
}

// deliver queues one frame for the read loop.
func (f *fakeTransport) deliver(content string) {
	f.inbound <- []byte(content)
}

// closeStream simulates the server process exiting.
func (f *fakeTransport) closeStream() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inbound)
	}
}

func (f *fakeTransport) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.writes))
	for i, w := range f.writes {
		out[i] = string(w)
	}
	return out
}

func (f *fakeTransport) waitTerminated(t *testing.T) {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("transport was not terminated")
	}
}

// funcHandler adapts a function to the Handler interface.
type funcHandler func(method string, params any) (any, error)

func (h funcHandler) Handle(method string, params any) (any, error) {
	return h(method, params)
}

func discardHandler() Handler {
	return funcHandler(func(string, any) (any, error) { return nil, nil })
}

func TestSendRequestSupersedesDuplicateMethod(t *testing.T) {
	tr := newFakeTransport()
	c := New(tr, discardHandler())

	id1, err := c.SendRequest("textDocument/completion", map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}
	id2, err := c.SendRequest("textDocument/completion", map[string]int{"n": 2})
	if err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}
	if id2 != id1+1 {
		t.Errorf("ids = %d, %d, want consecutive", id1, id2)
	}

	writes := tr.written()
	if len(writes) != 3 {
		t.Fatalf("wrote %d messages, want 3 (request, cancel, request)", len(writes))
	}

	// Exactly one cancellation, for the first id.
	var cancels int
	for _, w := range writes {
		if gjson.Get(w, "method").String() == MethodCancelRequest {
			cancels++
			if got := gjson.Get(w, "params.id").Int(); got != id1 {
				t.Errorf("cancel id = %d, want %d", got, id1)
			}
		}
	}
	if cancels != 1 {
		t.Errorf("cancellation notifications = %d, want 1", cancels)
	}

	// The superseded id now resolves as cancelled, the live one as pending.
	if _, err := c.currentTracker().Take(id1); err != ErrRequestCancelled {
		t.Errorf("Take(id1) error = %v, want ErrRequestCancelled", err)
	}
	method, err := c.currentTracker().Take(id2)
	if err != nil || method != "textDocument/completion" {
		t.Errorf("Take(id2) = %q, %v", method, err)
	}
}

func TestSendRequestDistinctMethodsIndependent(t *testing.T) {
	tr := newFakeTransport()
	c := New(tr, discardHandler())

	if _, err := c.SendRequest("textDocument/hover", nil); err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}
	if _, err := c.SendRequest("textDocument/completion", nil); err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}

	for _, w := range tr.written() {
		if gjson.Get(w, "method").String() == MethodCancelRequest {
			t.Errorf("unexpected cancellation: %s", w)
		}
	}
	if n := c.currentTracker().PendingCount(); n != 2 {
		t.Errorf("PendingCount() = %d, want 2", n)
	}
}

func TestSendNotificationNoTracking(t *testing.T) {
	tr := newFakeTransport()
	c := New(tr, discardHandler())

	if err := c.SendNotification("initialized", struct{}{}); err != nil {
		t.Fatalf("SendNotification() error = %v", err)
	}
	if n := c.currentTracker().PendingCount(); n != 0 {
		t.Errorf("PendingCount() = %d, want 0", n)
	}

	w := tr.written()[0]
	if gjson.Get(w, "id").Exists() {
		t.Errorf("notification carries an id: %s", w)
	}
}

func TestDispatchServerRequest(t *testing.T) {
	tr := newFakeTransport()
	c := New(tr, funcHandler(func(method string, params any) (any, error) {
		if method != "workspace/applyEdit" {
			t.Errorf("method = %q", method)
		}
		if _, ok := params.(json.RawMessage); !ok {
			t.Errorf("params type = %T, want json.RawMessage", params)
		}
		return map[string]bool{"applied": true}, nil
	}))

	msg, err := jsonrpc.Decode([]byte(`{"jsonrpc":"2.0","id":3,"method":"workspace/applyEdit","params":{"edit":{}}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	c.Dispatch(msg)

	writes := tr.written()
	if len(writes) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(writes))
	}
	w := writes[0]
	if gjson.Get(w, "id").Int() != 3 {
		t.Errorf("response id not echoed: %s", w)
	}
	if !gjson.Get(w, "result.applied").Bool() {
		t.Errorf("missing result: %s", w)
	}
}

func TestDispatchServerRequestHandlerFailure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int64
	}{
		{"unregistered method", fmt.Errorf("%w: %q", ErrMethodNotFound, "x/y"), jsonrpc.CodeMethodNotFound},
		{"handler panic value", fmt.Errorf("boom"), jsonrpc.CodeInternalError},
		{"typed rpc error", jsonrpc.NewError(-32000, "busy"), -32000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newFakeTransport()
			c := New(tr, funcHandler(func(string, any) (any, error) {
				return nil, tt.err
			}))

			msg, _ := jsonrpc.Decode([]byte(`{"jsonrpc":"2.0","id":8,"method":"x/y","params":{}}`))
			c.Dispatch(msg)

			writes := tr.written()
			if len(writes) != 1 {
				t.Fatalf("wrote %d messages, want 1", len(writes))
			}
			w := writes[0]
			if got := gjson.Get(w, "error.code").Int(); got != tt.wantCode {
				t.Errorf("error code = %d, want %d in %s", got, tt.wantCode, w)
			}
			if gjson.Get(w, "result").Exists() {
				t.Errorf("error response carries result: %s", w)
			}
		})
	}
}

func TestDispatchNotificationFailureSwallowed(t *testing.T) {
	tr := newFakeTransport()
	c := New(tr, funcHandler(func(string, any) (any, error) {
		return nil, fmt.Errorf("handler exploded")
	}))

	msg, _ := jsonrpc.Decode([]byte(`{"jsonrpc":"2.0","method":"window/logMessage","params":{}}`))
	c.Dispatch(msg)

	// Notifications never produce a reply, even on failure.
	if n := len(tr.written()); n != 0 {
		t.Errorf("wrote %d messages, want 0", n)
	}
}

func TestDispatchResponseRoutesToOriginMethod(t *testing.T) {
	tr := newFakeTransport()

	var gotMethod string
	var gotResp *jsonrpc.Response
	c := New(tr, funcHandler(func(method string, params any) (any, error) {
		gotMethod = method
		gotResp, _ = params.(*jsonrpc.Response)
		return nil, nil
	}))

	id, err := c.SendRequest("textDocument/hover", nil)
	if err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}

	msg, _ := jsonrpc.Decode([]byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"contents":"doc"}}`, id)))
	c.Dispatch(msg)

	if gotMethod != "textDocument/hover" {
		t.Errorf("handler method = %q", gotMethod)
	}
	if gotResp == nil || !strings.Contains(string(gotResp.Result.(json.RawMessage)), "doc") {
		t.Errorf("handler response = %+v", gotResp)
	}
	if n := c.currentTracker().PendingCount(); n != 0 {
		t.Errorf("PendingCount() = %d, want 0", n)
	}
}

func TestDispatchResponseUnknownIDDropped(t *testing.T) {
	tr := newFakeTransport()
	called := false
	c := New(tr, funcHandler(func(string, any) (any, error) {
		called = true
		return nil, nil
	}))

	msg, _ := jsonrpc.Decode([]byte(`{"jsonrpc":"2.0","id":42,"result":null}`))
	c.Dispatch(msg)

	if called {
		t.Error("handler invoked for unknown response id")
	}
}

func TestDispatchCancelledResponseDropped(t *testing.T) {
	tr := newFakeTransport()
	var delivered []string
	c := New(tr, funcHandler(func(method string, _ any) (any, error) {
		delivered = append(delivered, method)
		return nil, nil
	}))

	id1, _ := c.SendRequest("textDocument/completion", nil)
	id2, _ := c.SendRequest("textDocument/completion", nil)

	// The superseded request's late response is suppressed; the live one
	// is delivered.
	msg, _ := jsonrpc.Decode([]byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":[]}`, id1)))
	c.Dispatch(msg)
	msg, _ = jsonrpc.Decode([]byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":[]}`, id2)))
	c.Dispatch(msg)

	if len(delivered) != 1 || delivered[0] != "textDocument/completion" {
		t.Errorf("delivered = %v, want exactly one completion response", delivered)
	}
}

func TestListenEndOfStreamTerminatesSession(t *testing.T) {
	tr := newFakeTransport()
	c := New(tr, discardHandler())

	if _, err := c.SendRequest("shutdown", nil); err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}

	c.Listen()
	tr.closeStream()
	tr.waitTerminated(t)

	// The tracker was reset so stale ids cannot alias a new process.
	if n := c.currentTracker().PendingCount(); n != 0 {
		t.Errorf("PendingCount() after terminate = %d, want 0", n)
	}
}

func TestListenMalformedFrameTerminatesSession(t *testing.T) {
	tr := newFakeTransport()
	c := New(tr, discardHandler())

	c.Listen()
	tr.deliver(`{"jsonrpc":"1.0","method":"m"}`)
	tr.waitTerminated(t)
}

func TestListenInvalidEnvelopeKeepsConnection(t *testing.T) {
	tr := newFakeTransport()
	var delivered []string
	c := New(tr, funcHandler(func(method string, _ any) (any, error) {
		delivered = append(delivered, method)
		return nil, nil
	}))

	c.Listen()
	// Valid JSON-RPC version but neither method nor id: logged, dropped,
	// and the loop keeps reading.
	tr.deliver(`{"jsonrpc":"2.0","params":{}}`)
	tr.deliver(`{"jsonrpc":"2.0","method":"window/showMessage","params":{}}`)

	deadline := time.Now().Add(2 * time.Second)
	for len(delivered) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(delivered) != 1 || delivered[0] != "window/showMessage" {
		t.Errorf("delivered = %v", delivered)
	}

	tr.closeStream()
	tr.waitTerminated(t)
}

func TestInitializeScenario(t *testing.T) {
	tr := newFakeTransport()

	done := make(chan *jsonrpc.Response, 1)
	c := New(tr, funcHandler(func(method string, params any) (any, error) {
		if method == "initialize" {
			if resp, ok := params.(*jsonrpc.Response); ok {
				done <- resp
			}
		}
		return nil, nil
	}))

	id, err := c.SendRequest("initialize", map[string]any{})
	if err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}

	// A 40-byte body, framed upstream by the transport.
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"v":1}}`, id)
	c.Listen()
	tr.deliver(body)

	select {
	case resp := <-done:
		if resp.Error != nil {
			t.Errorf("unexpected error: %v", resp.Error)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("initialize response never dispatched")
	}

	if n := c.currentTracker().PendingCount(); n != 0 {
		t.Errorf("PendingCount() = %d, want 0", n)
	}

	tr.closeStream()
	tr.waitTerminated(t)
}

func TestConcurrentSendSameMethodOneLivePending(t *testing.T) {
	tr := newFakeTransport()
	c := New(tr, discardHandler())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.SendRequest("textDocument/hover", nil); err != nil {
				t.Errorf("SendRequest() error = %v", err)
			}
		}()
	}
	wg.Wait()

	// Every send except the last superseded its predecessor: exactly one
	// request remains deliverable.
	trk := c.currentTracker()
	var live int
	for id := int64(1); id <= 8; id++ {
		if _, err := trk.Take(id); err == nil {
			live++
		}
	}
	if live != 1 {
		t.Errorf("live pending requests = %d, want 1", live)
	}
}
