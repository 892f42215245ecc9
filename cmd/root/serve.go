package root

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/docker/deskpilot/pkg/auth"
	"github.com/docker/deskpilot/pkg/config"
	"github.com/docker/deskpilot/pkg/environment"
	"github.com/docker/deskpilot/pkg/runtime"
	"github.com/docker/deskpilot/pkg/server"
	"github.com/docker/deskpilot/pkg/session"
	"github.com/docker/deskpilot/pkg/telemetry"
	"github.com/docker/deskpilot/pkg/version"
)

type serveFlags struct {
	root       *rootFlags
	listenAddr string
	watch      bool
}

func newServeCmd(root *rootFlags) *cobra.Command {
	flags := serveFlags{root: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  `Start the HTTP API that runs sessions against the shared desktop and streams their events over SSE or WebSocket.`,
		Example: `  # Listen on the configured address
  deskpilot serve --config deskpilot.yaml

  # Listen on a Unix socket
  deskpilot serve --listen unix:///var/run/deskpilot.sock`,
		GroupID: "server",
		Args:    cobra.NoArgs,
		RunE:    flags.runServeCommand,
	}

	cmd.Flags().StringVarP(&flags.listenAddr, "listen", "l", "", "Address to listen on (host:port or unix:///path/to/socket), overrides the configuration")
	cmd.Flags().BoolVar(&flags.watch, "watch", true, "Reload loop settings when the configuration file changes")

	return cmd
}

func (f *serveFlags) runServeCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := f.root.loadConfig(ctx)
	if err != nil {
		return err
	}
	if f.listenAddr != "" {
		cfg.Server.Listen = f.listenAddr
	}

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version.Version,
	})
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}()

	backends, err := newBackends(ctx, cfg.Backends)
	if err != nil {
		return err
	}
	def, err := defaultBackend(cfg, backends)
	if err != nil {
		return err
	}

	var authManager *auth.Manager
	if cfg.Server.Auth.Enabled {
		if authManager, err = auth.NewManager(cfg.Server.Auth.Secret); err != nil {
			return err
		}
	}

	shared := newDesktop(cfg.Desktop)
	defer func() {
		if err := shared.Close(); err != nil {
			slog.Warn("Failed to close desktop", "error", err)
		}
	}()

	registry := session.NewRegistry(
		session.WithTTL(cfg.Sessions.TTL),
		session.WithMaxSessions(cfg.Sessions.MaxSessions),
	)

	srv, err := server.New(server.Config{
		Registry:       registry,
		Loop:           runtime.NewLoop(backends, shared),
		Backends:       backends,
		Desktop:        shared,
		DefaultBackend: def,
		Auth:           authManager,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TranscriptDir:  cfg.Transcripts.Dir,
		Settings:       serverSettings(cfg),
	})
	if err != nil {
		return err
	}

	ln, err := server.Listen(ctx, cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Listen, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "deskpilot %s listening on %s (default backend: %s)\n", version.String(), ln.Addr(), def)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ctx, ln)
	})
	g.Go(func() error {
		registry.Run(ctx, cfg.Sessions.SweepInterval)
		return nil
	})

	if f.watch && f.root.configPath != "" {
		watcher, err := config.NewWatcher(f.root.configPath, environment.NewOSProvider())
		if err != nil {
			return err
		}
		defer watcher.Close()

		g.Go(func() error {
			return watcher.Run(ctx, func(next *config.Config) {
				srv.SetSettings(serverSettings(next))
				slog.Info("Loop settings updated", "settle_delay", next.Loop.SettleDelay, "decision_timeout", next.Loop.DecisionTimeout, "verbose", next.Loop.Verbose)
			})
		})
	}

	return g.Wait()
}

// serverSettings extracts the settings that may change without a restart.
func serverSettings(cfg *config.Config) server.Settings {
	return server.Settings{
		SettleDelay:      cfg.Loop.SettleDelay,
		DecisionTimeout:  cfg.Loop.DecisionTimeout,
		CompleteMaxTurns: cfg.Loop.CompleteMaxTurns,
		ShareDesktop:     cfg.Loop.ShareDesktop,
		Verbose:          cfg.Loop.Verbose,
	}
}
