package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lspwire/internal/jsonrpc"
	"lspwire/internal/logging"
	"lspwire/internal/protocol"
	"lspwire/internal/session"
	"lspwire/internal/transport"
)

func newRunCmd() *cobra.Command {
	var rootPath string

	cmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Spawn the language server and stream diagnostics",
		Long: `Run spawns the configured language server, performs the initialize
handshake, opens the given files, and prints diagnostics and responses
as JSON lines until interrupted or the server exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(rootPath, args)
		},
	}

	cmd.Flags().StringVar(&rootPath, "root", "", "workspace root (default: current directory)")
	return cmd
}

func runServer(rootPath string, files []string) error {
	log := logging.Component("run")

	if rootPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		rootPath = wd
	}

	s := session.New(cfg.Server.CommandLine())
	defer s.Terminate()

	out := json.NewEncoder(os.Stdout)
	initialized := make(chan error, 1)

	register := func(method string, fn session.HandlerFunc) {
		if err := s.Register(method, fn); err != nil {
			log.Fatal().Err(err).Msg("handler registration")
		}
	}

	register("initialize", func(params any) (any, error) {
		resp, ok := params.(*jsonrpc.Response)
		if !ok {
			initialized <- fmt.Errorf("unexpected initialize payload %T", params)
			return nil, nil
		}
		if resp.Error != nil {
			initialized <- resp.Error
			return nil, nil
		}
		initialized <- nil
		return nil, nil
	})

	forward := func(kind string) session.HandlerFunc {
		return func(params any) (any, error) {
			out.Encode(map[string]any{"event": kind, "payload": rawPayload(params)})
			return nil, nil
		}
	}
	register("textDocument/publishDiagnostics", forward("diagnostics"))
	register("window/logMessage", forward("serverLog"))
	register("window/showMessage", forward("serverMessage"))
	for _, method := range []string{
		"textDocument/hover",
		"textDocument/completion",
		"textDocument/definition",
	} {
		register(method, forward(method))
	}

	// Server-initiated edits are not applied by this driver.
	register("workspace/applyEdit", func(params any) (any, error) {
		return protocol.ApplyWorkspaceEditResult{
			Applied:       false,
			FailureReason: "lspwire run does not edit files",
		}, nil
	})

	if err := s.RunServer(transport.Options{Env: cfg.Server.Env, Dir: cfg.Server.WorkDir}); err != nil {
		return err
	}
	if err := s.Initialize(rootPath, nil); err != nil {
		return err
	}

	select {
	case err := <-initialized:
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
	case <-time.After(30 * time.Second):
		return fmt.Errorf("initialize: no response from server")
	}
	if err := s.NotifyInitialized(); err != nil {
		return err
	}
	log.Info().Str("root", rootPath).Msg("server initialized")

	for _, file := range files {
		text, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		abs, err := filepath.Abs(file)
		if err != nil {
			return err
		}
		if err := s.DidOpen(abs, languageID(abs), string(text)); err != nil {
			return err
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-sig:
			log.Info().Msg("interrupted; shutting down")
			_ = s.Shutdown()
			_ = s.Exit()
			return nil
		case <-ticker.C:
			if !s.Running() {
				return fmt.Errorf("language server exited")
			}
		}
	}
}

// rawPayload makes handler params printable regardless of shape.
func rawPayload(params any) any {
	switch p := params.(type) {
	case json.RawMessage:
		return p
	case *jsonrpc.Response:
		if p.Error != nil {
			return map[string]any{"error": p.Error}
		}
		return map[string]any{"result": p.Result}
	default:
		return p
	}
}

// languageID guesses the LSP language identifier from a file extension.
func languageID(path string) string {
	switch filepath.Ext(path) {
	case ".c":
		return "c"
	case ".h", ".hh", ".hpp", ".hxx":
		return "cpp"
	case ".cc", ".cpp", ".cxx":
		return "cpp"
	case ".m":
		return "objective-c"
	case ".mm":
		return "objective-cpp"
	default:
		return "cpp"
	}
}
