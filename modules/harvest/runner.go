package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"harvest-agent/evidence"
)

// StagedFile records where a harvested file came from and where it landed.
type StagedFile struct {
	Source string
	Path   string
	SHA256 string
	Size   int64
}

type TaskReport struct {
	ID      string
	Copied  int
	Skipped int
	Staged  []StagedFile
	Errors  []error
}

type Summary struct {
	// Total is the number of files copied across every descriptor.
	Total   int
	Reports []TaskReport
	// Err is set when the context ended before every descriptor ran.
	Err error
}

// Failed returns the reports that recorded at least one error.
func (s Summary) Failed() []TaskReport {
	var out []TaskReport
	for _, r := range s.Reports {
		if len(r.Errors) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// Runner drives the enumerate-then-stage loop for a set of descriptors.
// A failing descriptor is logged and recorded; the others still run.
type Runner struct {
	Logger *slog.Logger
	// Workers > 1 harvests that many descriptors at once. Each descriptor
	// owns its staging directory, so writers never share one.
	Workers int
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

func (r *Runner) Run(ctx context.Context, workspace string, ds []Descriptor) Summary {
	reports := make([]TaskReport, len(ds))
	var ctxErr error

	if r.Workers > 1 {
		var g errgroup.Group
		g.SetLimit(r.Workers)
		for i, d := range ds {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					reports[i] = TaskReport{ID: d.ID, Errors: []error{err}}
					return err
				}
				reports[i] = r.runDescriptor(workspace, d)
				return nil
			})
		}
		ctxErr = g.Wait()
	} else {
		for i, d := range ds {
			if err := ctx.Err(); err != nil {
				reports[i] = TaskReport{ID: d.ID, Errors: []error{err}}
				ctxErr = err
				continue
			}
			reports[i] = r.runDescriptor(workspace, d)
		}
	}

	sum := Summary{Reports: reports, Err: ctxErr}
	for _, rep := range reports {
		sum.Total += rep.Copied
	}
	return sum
}

func (r *Runner) runDescriptor(workspace string, d Descriptor) TaskReport {
	log := r.logger().With("task", d.ID, "start_path", d.StartPath)
	rep := TaskReport{ID: d.ID}

	taskDir := filepath.Join(workspace, d.ID)
	dirReady := false

	for _, filter := range d.Files {
		files, err := ListFiles(workspace, d.StartPath, d.Recursive, filter, d.RegularFilesOnly)
		if err != nil {
			log.Warn("enumeration failed", "filter", filter, "error", err)
			rep.Errors = append(rep.Errors, err)
			continue
		}
		log.Debug("enumerated", "filter", filter, "matches", len(files))

		for _, f := range files {
			// Only regular files are staged, whatever the enumerator yields.
			if st, err := os.Stat(f); err == nil && !st.Mode().IsRegular() {
				log.Debug("not a regular file, not staged", "file", f)
				continue
			}
			if !dirReady {
				if err := os.MkdirAll(taskDir, 0o700); err != nil {
					err = fmt.Errorf("%w: create staging dir %s: %v", ErrIO, taskDir, err)
					log.Error("descriptor aborted", "error", err)
					rep.Errors = append(rep.Errors, err)
					return rep
				}
				dirReady = true
			}

			sum := evidence.NewDigest()
			staged, copied, err := copyInto(f, taskDir, sum)
			switch {
			case err != nil:
				log.Warn("copy failed", "file", f, "error", err)
				rep.Errors = append(rep.Errors, err)
			case !copied:
				log.Debug("already staged", "file", f, "staged", staged)
				rep.Skipped++
			default:
				rep.Copied++
				rep.Staged = append(rep.Staged, StagedFile{Source: f, Path: staged, SHA256: sum.Hex(), Size: sum.Size()})
			}
		}
	}

	log.Info("descriptor done", "copied", rep.Copied, "skipped", rep.Skipped, "errors", len(rep.Errors))
	return rep
}
