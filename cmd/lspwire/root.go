package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lspwire/internal/config"
	"lspwire/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

var (
	flagConfig  string
	flagVerbose bool

	cfg *config.Config
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lspwire",
		Short: "lspwire talks LSP to a language server over stdio",
		Long: `lspwire embeds a Language Server Protocol client. It spawns an
external language server (clangd by default), brokers JSON-RPC frames
over the server's standard streams, and streams diagnostics and
responses to stdout.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}

			path := flagConfig
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}

			var err error
			if cfg, err = config.Load(path); err != nil {
				return err
			}

			if flagVerbose {
				cfg.Log.Level = "debug"
			}
			return logging.Init(cfg.Log)
		},
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file path")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lspwire %s (%s)\n", version, commit)
		},
	}
}
