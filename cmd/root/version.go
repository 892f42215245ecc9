package root

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docker/deskpilot/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "deskpilot "+version.String())
			return err
		},
	}
}
