package root

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/docker/deskpilot/pkg/mcpserver"
)

func newMCPCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose the desktop as an MCP tool over stdio",
		Long: `Start an MCP server on stdin and stdout offering the computer_action tool,
so any MCP client can drive the configured desktop one action at a time.`,
		GroupID: "server",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := root.loadConfig(ctx)
			if err != nil {
				return err
			}

			shared := newDesktop(cfg.Desktop)
			defer func() {
				if err := shared.Close(); err != nil {
					slog.Warn("Failed to close desktop", "error", err)
				}
			}()

			srv, err := mcpserver.New(shared)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
}
