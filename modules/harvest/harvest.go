// Package harvest implements the file harvest capability: find files by
// pattern, stage copies in a private workspace, zip the workspace and encode
// the archive for transport.
package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"harvest-agent/evidence"
	"harvest-agent/modules"
)

type Config struct {
	BaseDir       string      `json:"base_dir" validate:"required"`
	Tasks         Descriptors `json:"tasks" validate:"min=1,dive"`
	Workers       int         `json:"workers,omitempty" validate:"gte=0,lte=64"`
	KeepWorkspace bool        `json:"keep_workspace,omitempty"`
	// ArchiveName places the archive under BaseDir; empty means
	// "<workspace>.zip".
	ArchiveName string `json:"archive_name,omitempty" validate:"omitempty,excludesall=/\\"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("regexp", func(fl validator.FieldLevel) bool {
		_, err := compileFilter(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("taskid", func(fl validator.FieldLevel) bool {
		return validTaskID(fl.Field().String())
	})
	return v
}

// validTaskID reports whether id can name a staging directory at the top of
// a workspace without escaping it or clashing with the manifest.
func validTaskID(id string) bool {
	switch id {
	case "", ".", "..", evidence.ManifestName:
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid file harvest config: %w", err)
	}
	return nil
}

type Module struct {
	cfg Config
	rnd *rand.Rand
	now func() time.Time
}

type Option func(*Module)

// WithRand sets the generator used for workspace names.
func WithRand(r *rand.Rand) Option {
	return func(m *Module) { m.rnd = r }
}

func New(cfg Config, opts ...Option) (*Module, error) {
	if cfg.BaseDir == "" {
		cfg.BaseDir = os.TempDir()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Module{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	if m.rnd == nil {
		m.rnd = NewRand(0)
	}
	return m, nil
}

func (m *Module) Kind() modules.Kind { return modules.KindFileHarvest }

func (m *Module) Name() string { return m.Kind().String() }

func (m *Module) Config() Config { return m.cfg }

func (m *Module) Run(ctx context.Context, rc modules.RunContext) (modules.Result, error) {
	log := rc.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	res := modules.Result{Module: m.Name(), RunID: rc.RunID}

	ws, err := CreateWorkspace(m.cfg.BaseDir, m.rnd)
	if err != nil {
		return res, err
	}
	log.Info("workspace created", "path", ws)

	var archive string
	if m.cfg.KeepWorkspace {
		res.Location = ws
	} else {
		defer func() {
			if err := os.RemoveAll(ws); err != nil {
				log.Warn("workspace cleanup failed", "path", ws, "error", err)
			}
			if archive != "" {
				_ = os.Remove(archive)
			}
		}()
	}

	runner := Runner{Logger: log, Workers: m.cfg.Workers}
	sum := runner.Run(ctx, ws, m.cfg.Tasks)
	res.Items = sum.Total
	if sum.Err != nil {
		return res, sum.Err
	}
	for _, rep := range sum.Failed() {
		log.Warn("descriptor finished with errors", "task", rep.ID, "errors", len(rep.Errors))
	}
	if sum.Total == 0 {
		log.Info("no files matched")
		return res, nil
	}

	if err := m.writeManifest(ws, rc.RunID, sum); err != nil {
		return res, err
	}

	dst := ""
	if m.cfg.ArchiveName != "" {
		dst = filepath.Join(m.cfg.BaseDir, m.cfg.ArchiveName)
	}
	archive, err = evidence.ArchiveDir(ws, dst)
	if err != nil {
		return res, err
	}
	log.Info("workspace archived", "archive", archive, "files", sum.Total)

	payload, err := evidence.EncodeFile(archive)
	if err != nil {
		return res, fmt.Errorf("%w: read archive %s: %v", ErrIO, archive, err)
	}
	if m.cfg.KeepWorkspace {
		res.Location = archive
	}
	res.Output = payload
	return res, nil
}

func (m *Module) writeManifest(ws, runID string, sum Summary) error {
	manifest := evidence.Manifest{
		RunID:     runID,
		CreatedAt: m.now().UTC().Format(time.RFC3339Nano),
		Metadata: map[string]string{
			"tasks":        fmt.Sprintf("%d", len(sum.Reports)),
			"files_copied": fmt.Sprintf("%d", sum.Total),
			"goos":         runtime.GOOS,
			"goarch":       runtime.GOARCH,
		},
	}
	if host, err := os.Hostname(); err == nil {
		manifest.Metadata["hostname"] = host
	}
	for _, rep := range sum.Reports {
		for _, s := range rep.Staged {
			rel, _ := filepath.Rel(ws, s.Path)
			manifest.Artifacts = append(manifest.Artifacts, evidence.Artifact{
				RelativePath: filepath.ToSlash(rel),
				Task:         rep.ID,
				Source:       s.Source,
				CollectedAt:  m.now().UTC().Format(time.RFC3339Nano),
				SizeBytes:    s.Size,
				SHA256:       s.SHA256,
			})
		}
	}
	if err := evidence.WriteManifest(ws, manifest); err != nil {
		return fmt.Errorf("%w: write manifest: %v", ErrIO, err)
	}
	return nil
}
