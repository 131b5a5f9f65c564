package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"harvest-agent/core/internal/version"
)

type globalOptions struct {
	configPath string
	logLevel   string
}

func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "harvest-agent",
		Short:         "Task-driven collection agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Agent config file (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug|info|warn|error), overrides config")

	cmd.AddCommand(NewHarvestCmd(g))
	cmd.AddCommand(NewRunCmd(g))
	cmd.AddCommand(NewModulesCmd())
	cmd.AddCommand(NewVersionCmd())

	cmd.SetVersionTemplate(fmt.Sprintf("%s (%s/%s)\n", version.Version, runtime.GOOS, runtime.GOARCH))
	cmd.Version = version.Version

	return cmd
}

// Execute runs the root command and returns the process exit status.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		return exitCode(err)
	}
	return 0
}
