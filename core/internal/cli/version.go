package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"harvest-agent/core/internal/version"
)

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s (%s/%s)\n", version.Version, runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}
