package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"harvest-agent/modules"
	"harvest-agent/modules/harvest"
	"harvest-agent/modules/registry"
)

func NewHarvestCmd(g *globalOptions) *cobra.Command {
	var tasksFile string
	var baseDir string
	var output string
	var workers int
	var keep bool
	var archiveName string
	var seed uint64

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Collect files matching the task descriptors into an encoded archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("base-dir") {
				cfg.BaseDir = baseDir
			}
			if flags.Changed("output") {
				cfg.Output = output
			}
			if flags.Changed("workers") {
				cfg.Workers = workers
			}
			if flags.Changed("keep-workspace") {
				cfg.KeepWorkspace = keep
			}
			if flags.Changed("archive-name") {
				cfg.ArchiveName = archiveName
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			b, err := os.ReadFile(tasksFile)
			if err != nil {
				return fmt.Errorf("read tasks: %w", err)
			}
			tasks, err := harvest.ParseDescriptors(b)
			if err != nil {
				return err
			}

			raw, err := json.Marshal(harvest.Config{
				BaseDir:       cfg.BaseDir,
				Tasks:         tasks,
				Workers:       cfg.Workers,
				KeepWorkspace: cfg.KeepWorkspace,
				ArchiveName:   cfg.ArchiveName,
			})
			if err != nil {
				return err
			}

			task, err := registry.BuildTask(modules.KindFileHarvest.String(), raw, registry.Deps{Rand: harvest.NewRand(seed)})
			if err != nil {
				return err
			}
			return runTask(cmd, cfg, task)
		},
	}

	cmd.Flags().StringVar(&tasksFile, "tasks", "", "Task descriptor file (JSON or YAML mapping of id -> {start_path, files})")
	cmd.Flags().StringVar(&baseDir, "base-dir", "", "Directory for per-run workspaces (default: system temp dir)")
	cmd.Flags().StringVar(&output, "output", "grabbed.json", "Payload output path")
	cmd.Flags().IntVar(&workers, "workers", 1, "Descriptors harvested in parallel")
	cmd.Flags().BoolVar(&keep, "keep-workspace", false, "Keep the workspace and archive after encoding")
	cmd.Flags().StringVar(&archiveName, "archive-name", "", "Archive file name under base dir (default: <workspace>.zip)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed for workspace names (0 = random)")
	_ = cmd.MarkFlagRequired("tasks")
	return cmd
}
