// Package transport owns the language-server child process and its
// standard streams.
//
// The concrete implementation, StdIO, spawns the server executable with
// stdin/stdout/stderr redirected to pipes and exposes frame-oriented
// Read/Write on top of them. Reads and writes issued before the process
// has been spawned block on a readiness gate until Run completes, so
// callers may enqueue work while the server is still starting.
//
// Lifecycle is an explicit state machine: Idle -> Running -> Terminated.
// Terminated is terminal for an instance; running the same server again
// means building a fresh StdIO.
package transport

import "errors"

// Standard errors returned by transports.
var (
	// ErrNotRunning indicates a read or write against a transport whose
	// process has been terminated.
	ErrNotRunning = errors.New("server process not running")

	// ErrAlreadyRunning indicates Run was called twice.
	ErrAlreadyRunning = errors.New("server process already running")

	// ErrTerminated indicates Run was called on a terminated transport.
	ErrTerminated = errors.New("transport terminated; create a new instance")
)

// State is the lifecycle state of a transport.
type State int

const (
	// StateIdle means the process has not been spawned yet.
	StateIdle State = iota
	// StateRunning means the process is live and streams are open.
	StateRunning
	// StateTerminated means the process was killed and resources released.
	StateTerminated
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Options configure how the server process is spawned.
type Options struct {
	// Env are environment variables added on top of the parent
	// environment, as a name to value mapping.
	Env map[string]string

	// Dir is the working directory for the process. Empty means inherit.
	Dir string
}

// Transport abstracts the connection to an external language server.
// Implementations must serialize concurrent writes internally; callers
// are free to issue Write from any goroutine.
type Transport interface {
	// IsRunning reports whether the server process is live.
	IsRunning() bool

	// Run spawns the server process and opens its streams. Reads and
	// writes issued before Run block until it completes.
	Run(opts Options) error

	// Terminate kills the server process and releases resources.
	// Idempotent.
	Terminate()

	// Write frames the payload and writes it to the server's stdin.
	Write(data []byte) error

	// Read reads one frame from the server's stdout and returns the raw
	// content bytes, undecoded. It returns io.EOF when the stream ends,
	// which signals process exit.
	Read() ([]byte, error)
}
