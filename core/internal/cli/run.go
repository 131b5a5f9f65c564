package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"harvest-agent/core/internal/config"
	"harvest-agent/evidence"
	"harvest-agent/modules"
	"harvest-agent/modules/harvest"
	"harvest-agent/modules/registry"
)

func NewRunCmd(g *globalOptions) *cobra.Command {
	var moduleName string
	var argsFile string
	var output string
	var seed uint64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build a module by name and run it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("output") {
				cfg.Output = output
			}

			var raw json.RawMessage
			if argsFile != "" {
				b, err := os.ReadFile(argsFile)
				if err != nil {
					return fmt.Errorf("read module args: %w", err)
				}
				raw = b
			}

			task, err := registry.BuildTask(moduleName, raw, registry.Deps{Rand: harvest.NewRand(seed)})
			if err != nil {
				return err
			}
			return runTask(cmd, cfg, task)
		},
	}

	cmd.Flags().StringVar(&moduleName, "module", "", "Module name (see `modules`)")
	cmd.Flags().StringVar(&argsFile, "args", "", "Module arguments (JSON file)")
	cmd.Flags().StringVar(&output, "output", "grabbed.json", "Payload output path")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed for workspace names (0 = random)")
	_ = cmd.MarkFlagRequired("module")
	return cmd
}

func loadConfig(g *globalOptions) (config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, err
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	return cfg, cfg.Validate()
}

// runTask runs task under a signal-aware context and writes its output, if
// any, to cfg.Output.
func runTask(cmd *cobra.Command, cfg config.Config, task *modules.Task) error {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := newLogger(cmd.ErrOrStderr(), level)

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc := modules.RunContext{RunID: uuid.NewString(), Logger: log}
	res, err := task.Run(ctx, rc)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res.Output == nil {
		color.New(color.FgYellow).Fprintf(out, "run=%s module=%s: nothing collected, no payload written\n", res.RunID, res.Module)
		return nil
	}

	b, err := json.MarshalIndent(res.Output, "", "    ")
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := evidence.WriteFileLocked(ctx, cfg.Output, b, 0o600); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	printSummary(out, res, cfg.Output)
	return nil
}

func printSummary(w io.Writer, res modules.Result, output string) {
	label := color.New(color.FgCyan)
	ok := color.New(color.FgGreen)
	fmt.Fprintf(w, "%s %s  %s %s  %s %s  %s %s\n",
		label.Sprint("run:"), res.RunID,
		label.Sprint("module:"), res.Module,
		label.Sprint("items:"), ok.Sprint(res.Items),
		label.Sprint("payload:"), output,
	)
	if res.Location != "" {
		fmt.Fprintf(w, "%s %s\n", label.Sprint("kept:"), res.Location)
	}
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// exitCode maps a command error to a process status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, modules.ErrUnsupportedModule):
		return 2
	default:
		return 1
	}
}
