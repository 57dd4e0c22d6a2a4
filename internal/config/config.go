// Package config loads lspwire configuration from file, environment,
// and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"lspwire/internal/logging"
)

// Config is the root configuration.
type Config struct {
	Server ServerConfig   `mapstructure:"server"`
	Log    logging.Config `mapstructure:"log"`
}

// ServerConfig describes how to spawn the language server.
type ServerConfig struct {
	// Command is the server executable.
	Command string `mapstructure:"command"`

	// Args are command-line arguments.
	Args []string `mapstructure:"args"`

	// Env are extra environment variables.
	Env map[string]string `mapstructure:"env"`

	// WorkDir is the server working directory. Empty means inherit.
	WorkDir string `mapstructure:"workdir"`
}

// CommandLine returns the full command slice for the transport.
func (c ServerConfig) CommandLine() []string {
	return append([]string{c.Command}, c.Args...)
}

// Default returns the built-in configuration: clangd with background
// indexing, info logging to stderr.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Command: "clangd",
			Args:    []string{"--background-index"},
		},
		Log: logging.Config{Level: "info", Format: "console"},
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", "lspwire", "lspwire.yaml"), nil
}

// Load reads configuration from the given file path, layered over the
// defaults, with LSPWIRE_* environment variables taking precedence.
// A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LSPWIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("server.command", def.Server.Command)
	v.SetDefault("server.args", def.Server.Args)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks for unusable settings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Command) == "" {
		return fmt.Errorf("server.command must not be empty")
	}
	return nil
}
