// Package root holds the deskpilot command line.
package root

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/docker/deskpilot/pkg/config"
	"github.com/docker/deskpilot/pkg/environment"
)

type rootFlags struct {
	debug      bool
	logFile    string
	configPath string

	logCloser io.Closer
}

func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "deskpilot",
		Short: "Drive a remote desktop with model-proposed actions",
		Long: `deskpilot turns a textual instruction into a bounded sequence of clicks,
keystrokes, scrolls and screenshots on a shared virtual machine, and streams
the progress to the caller.`,
		SilenceUsage:      true,
		PersistentPreRunE: flags.setupLogging,
		PersistentPostRun: func(*cobra.Command, []string) {
			if flags.logCloser != nil {
				_ = flags.logCloser.Close()
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "Write logs to this file instead of stderr")
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to the YAML configuration file")

	cmd.AddGroup(
		&cobra.Group{ID: "core", Title: "Core Commands:"},
		&cobra.Group{ID: "server", Title: "Server Commands:"},
	)

	cmd.AddCommand(newServeCmd(&flags))
	cmd.AddCommand(newRunCmd(&flags))
	cmd.AddCommand(newMCPCmd(&flags))
	cmd.AddCommand(newTokenCmd(&flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the command line with args and returns the process exit code.
func Execute(ctx context.Context, stdout, stderr io.Writer, args ...string) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func (f *rootFlags) setupLogging(cmd *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if f.debug {
		level = slog.LevelDebug
	}

	w := cmd.ErrOrStderr()
	if f.logFile != "" {
		file, err := os.OpenFile(f.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		f.logCloser = file
		w = file
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig reads --config with the process environment applied.
func (f *rootFlags) loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx, f.configPath, environment.NewOSProvider())
	if err != nil {
		return nil, err
	}
	slog.Debug("Configuration loaded", "path", f.configPath, "driver", cfg.Desktop.Driver, "default_backend", cfg.Backends.Default)
	return cfg, nil
}
