package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"harvest-agent/modules/registry"
)

func NewModulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List the modules this agent can build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, n := range registry.Names() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), n); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
