package transport

import (
	"errors"
	"io"
	"runtime"
	"testing"
	"time"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test relies on POSIX shell tools")
	}
}

// runCat starts a transport over cat, which echoes frames back verbatim.
func runCat(t *testing.T) *StdIO {
	t.Helper()
	tr := NewStdIO([]string{"cat"})
	if err := tr.Run(Options{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	t.Cleanup(tr.Terminate)
	return tr
}

func TestStdIOStateMachine(t *testing.T) {
	skipOnWindows(t)

	tr := NewStdIO([]string{"cat"})
	if tr.IsRunning() {
		t.Error("new transport should not be running")
	}
	if got := tr.State(); got != StateIdle {
		t.Errorf("State() = %v, want idle", got)
	}

	if err := tr.Run(Options{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !tr.IsRunning() {
		t.Error("transport should be running after Run")
	}
	if err := tr.Run(Options{}); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}

	tr.Terminate()
	if tr.IsRunning() {
		t.Error("transport should not be running after Terminate")
	}
	if got := tr.State(); got != StateTerminated {
		t.Errorf("State() = %v, want terminated", got)
	}

	// Terminated is terminal and Terminate is idempotent.
	tr.Terminate()
	if err := tr.Run(Options{}); !errors.Is(err, ErrTerminated) {
		t.Errorf("Run() after Terminate error = %v, want ErrTerminated", err)
	}
}

func TestStdIOWriteReadLoopback(t *testing.T) {
	skipOnWindows(t)

	tr := runCat(t)

	payload := []byte(`{"jsonrpc":"2.0","method":"initialized","params":{}}`)
	if err := tr.Write(payload); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := tr.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Read() = %q, want %q", got, payload)
	}
}

func TestStdIOReadinessGate(t *testing.T) {
	skipOnWindows(t)

	tr := NewStdIO([]string{"cat"})
	defer tr.Terminate()

	wrote := make(chan error, 1)
	go func() {
		wrote <- tr.Write([]byte(`{"jsonrpc":"2.0","method":"m"}`))
	}()

	// The write must block while the transport is idle.
	select {
	case err := <-wrote:
		t.Fatalf("Write() returned %v before Run", err)
	case <-time.After(50 * time.Millisecond):
	}

	if err := tr.Run(Options{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	select {
	case err := <-wrote:
		if err != nil {
			t.Fatalf("Write() after Run error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Write() still blocked after Run")
	}

	if _, err := tr.Read(); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
}

func TestStdIOGateReleasedOnTerminate(t *testing.T) {
	skipOnWindows(t)

	tr := NewStdIO([]string{"cat"})

	result := make(chan error, 1)
	go func() {
		_, err := tr.Read()
		result <- err
	}()

	time.Sleep(50 * time.Millisecond)
	tr.Terminate()

	select {
	case err := <-result:
		if !errors.Is(err, ErrNotRunning) {
			t.Errorf("Read() error = %v, want ErrNotRunning", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Read() still blocked after Terminate")
	}
}

func TestStdIOReadEndOfStream(t *testing.T) {
	skipOnWindows(t)

	// true exits without writing anything: zero header bytes, then EOF.
	tr := NewStdIO([]string{"true"})
	if err := tr.Run(Options{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	defer tr.Terminate()

	if _, err := tr.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("Read() error = %v, want io.EOF", err)
	}
}

func TestStdIOTruncatedBodyIsEndOfStream(t *testing.T) {
	skipOnWindows(t)

	// The server promises 100 bytes but exits after 5.
	tr := NewStdIO([]string{"sh", "-c", `printf 'Content-Length: 100\r\n\r\nshort'`})
	if err := tr.Run(Options{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	defer tr.Terminate()

	if _, err := tr.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("Read() error = %v, want io.EOF", err)
	}
}

func TestStdIOReadWriteAfterTerminate(t *testing.T) {
	skipOnWindows(t)

	tr := runCat(t)
	tr.Terminate()

	if err := tr.Write([]byte("x")); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Write() error = %v, want ErrNotRunning", err)
	}
	if _, err := tr.Read(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Read() error = %v, want ErrNotRunning", err)
	}
}

func TestStdIORunOptions(t *testing.T) {
	skipOnWindows(t)

	script := `printf "Content-Length: ${#LSPWIRE_TEST}\r\n\r\n$LSPWIRE_TEST"`
	tr := NewStdIO([]string{"sh", "-c", script})
	if err := tr.Run(Options{Env: map[string]string{"LSPWIRE_TEST": "hello"}}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	defer tr.Terminate()

	got, err := tr.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Read() = %q, want hello", got)
	}
}

func TestStdIORunMissingExecutable(t *testing.T) {
	skipOnWindows(t)

	tr := NewStdIO([]string{"lspwire-no-such-binary"})
	if err := tr.Run(Options{}); err == nil {
		t.Fatal("expected spawn error")
	}
	if got := tr.State(); got != StateIdle {
		t.Errorf("State() after failed Run = %v, want idle", got)
	}
}

func TestStdIOStderrDrained(t *testing.T) {
	skipOnWindows(t)

	// Noise on stderr must not interfere with the stdout frame stream.
	tr := NewStdIO([]string{"sh", "-c", `echo "warning: noise" >&2; cat`})
	if err := tr.Run(Options{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	defer tr.Terminate()

	if err := tr.Write([]byte("{}")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err := tr.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != "{}" {
		t.Errorf("Read() = %q, want {}", got)
	}
}
