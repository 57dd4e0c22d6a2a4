package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"lspwire/internal/jsonrpc"
	"lspwire/internal/logging"
)

var headerSeparator = []byte("\r\n")

// StdIO is a Transport over a child process's standard streams.
type StdIO struct {
	command []string
	log     zerolog.Logger

	mu    sync.Mutex
	cond  *sync.Cond
	state State

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader

	exited   atomic.Bool
	waitDone chan struct{}

	// writeMu enforces the single-writer discipline at the stream
	// boundary; one frame is written atomically.
	writeMu sync.Mutex
}

// NewStdIO creates a transport for the given server command line.
// The process is not spawned until Run.
func NewStdIO(command []string) *StdIO {
	t := &StdIO{
		command:  command,
		log:      logging.Component("transport"),
		waitDone: make(chan struct{}),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// IsRunning reports whether the process handle exists and has not exited.
func (t *StdIO) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateRunning && !t.exited.Load()
}

// State returns the current lifecycle state.
func (t *StdIO) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Run spawns the server process with the configured command line and
// releases the readiness gate. A background goroutine drains the
// process's stderr line-by-line into the log.
func (t *StdIO) Run(opts Options) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateRunning:
		return ErrAlreadyRunning
	case StateTerminated:
		return ErrTerminated
	}

	if len(t.command) == 0 {
		return fmt.Errorf("empty server command")
	}

	cmd := exec.Command(t.command[0], t.command[1:]...)
	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Dir = opts.Dir
	hideWindow(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("start %q: %w", t.command[0], err)
	}

	t.log.Info().Str("command", strings.Join(t.command, " ")).Int("pid", cmd.Process.Pid).Msg("server started")

	t.cmd = cmd
	t.stdin = stdin
	t.reader = bufio.NewReaderSize(stdout, 64*1024)
	t.state = StateRunning
	t.cond.Broadcast()

	go t.drainStderr(stderr)
	go t.monitor(cmd)

	return nil
}

// monitor reaps the process when it exits.
func (t *StdIO) monitor(cmd *exec.Cmd) {
	err := cmd.Wait()
	t.exited.Store(true)
	close(t.waitDone)
	if err != nil {
		t.log.Debug().Err(err).Msg("server process exited")
	}
}

// drainStderr logs the server's diagnostic output until the stream closes.
func (t *StdIO) drainStderr(r io.Reader) {
	name := filepath.Base(t.command[0])
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		t.log.Debug().Str("server", name).Msg(sc.Text())
	}
}

// Terminate kills the process, waits for it to exit, and releases the
// handle. Idempotent. Blocked and subsequent reads and writes fail with
// ErrNotRunning.
func (t *StdIO) Terminate() {
	t.mu.Lock()
	if t.state == StateTerminated {
		t.mu.Unlock()
		return
	}
	wasRunning := t.state == StateRunning
	cmd := t.cmd
	stdin := t.stdin
	t.cmd = nil
	t.stdin = nil
	t.reader = nil
	t.state = StateTerminated
	t.cond.Broadcast()
	t.mu.Unlock()

	if !wasRunning || cmd == nil {
		return
	}

	if stdin != nil {
		stdin.Close()
	}
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	<-t.waitDone

	t.log.Info().Str("command", t.command[0]).Msg("server terminated")
}

// awaitRunning blocks until the transport leaves Idle, then reports
// whether it is usable.
func (t *StdIO) awaitRunning() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.state == StateIdle {
		t.cond.Wait()
	}
	if t.state != StateRunning {
		return ErrNotRunning
	}
	return nil
}

// Write waits until the process is running, frames the payload, and
// writes the whole frame in one call.
func (t *StdIO) Write(data []byte) error {
	if err := t.awaitRunning(); err != nil {
		return err
	}

	t.mu.Lock()
	stdin := t.stdin
	t.mu.Unlock()
	if stdin == nil {
		return ErrNotRunning
	}

	frame := jsonrpc.WrapFrame(data)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := stdin.Write(frame); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}

// Read waits until the process is running, then reads one frame: header
// lines up to the blank separator, then exactly Content-Length bytes of
// body. It returns io.EOF if the stream closes before any header byte
// or before the full body arrives.
func (t *StdIO) Read() ([]byte, error) {
	if err := t.awaitRunning(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	reader := t.reader
	t.mu.Unlock()
	if reader == nil {
		return nil, ErrNotRunning
	}

	header, err := t.readHeader(reader)
	if err != nil {
		return nil, err
	}

	length, err := jsonrpc.ParseHeader(header)
	if err != nil {
		t.log.Error().Bytes("header", header).Msg("unparseable frame header")
		return nil, err
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(reader, body); err != nil {
		return nil, asEndOfStream(err)
	}
	return body, nil
}

// readHeader accumulates raw header bytes until the blank \r\n line.
// Zero header bytes before stream end means the process exited.
func (t *StdIO) readHeader(reader *bufio.Reader) ([]byte, error) {
	var header []byte
	for {
		line, err := reader.ReadBytes('\n')
		if bytes.Equal(line, headerSeparator) {
			return header, nil
		}
		header = append(header, line...)
		if err != nil {
			if len(header) == 0 {
				return nil, io.EOF
			}
			// Stream ended mid-header; let the parser decide whether
			// what we have is usable.
			return header, nil
		}
	}
}

// asEndOfStream normalizes the assorted closed-stream errors into io.EOF
// so callers have a single end-of-stream signal.
func asEndOfStream(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, fs.ErrClosed) {
		return io.EOF
	}
	return fmt.Errorf("read stdout: %w", err)
}
