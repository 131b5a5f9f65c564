package harvest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

// ListFiles walks root depth-first and returns the paths it keeps.
//
// Directories are descended into when recursive is set and are never
// filtered. Regular files must fully match filter (a regular expression
// tested against the absolute path) unless filter is empty. With regularOnly,
// anything that is not a regular file is left out of the result, including
// directories that were recursed into.
//
// Scanning the workspace itself yields nothing, so a run never re-harvests
// its own staging area. Symlinked directories are not followed; symlinks to
// regular files count as regular files. Subdirectories that cannot be read
// are skipped.
func ListFiles(workspace, root string, recursive bool, filter string, regularOnly bool) ([]string, error) {
	var re *regexp.Regexp
	if filter != "" {
		var err error
		re, err = compileFilter(filter)
		if err != nil {
			return nil, err
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", ErrIO, root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, root)
		}
		return nil, fmt.Errorf("%w: stat %s: %v", ErrIO, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, root)
	}

	ws := ""
	if workspace != "" {
		if ws, err = filepath.Abs(workspace); err != nil {
			return nil, fmt.Errorf("%w: resolve %s: %v", ErrIO, workspace, err)
		}
	}

	l := lister{workspace: ws, recursive: recursive, filter: re, regularOnly: regularOnly}
	return l.list(absRoot)
}

// compileFilter anchors the pattern so it must match the whole path.
func compileFilter(filter string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`^(?:` + filter + `)$`)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFilter, filter, err)
	}
	return re, nil
}

type lister struct {
	workspace   string
	recursive   bool
	filter      *regexp.Regexp
	regularOnly bool
}

func (l lister) list(dir string) ([]string, error) {
	if dir == l.workspace {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrIO, dir, err)
	}

	var out []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		isDir := e.IsDir()
		isRegular := e.Type().IsRegular()
		if e.Type()&fs.ModeSymlink != 0 {
			if st, err := os.Stat(path); err == nil && st.Mode().IsRegular() {
				isRegular = true
			}
		}

		if isDir {
			if l.recursive {
				sub, err := l.list(path)
				if err == nil {
					out = append(out, sub...)
				}
			}
		} else if isRegular {
			if l.filter != nil && !l.filter.MatchString(path) {
				continue
			}
		}

		if l.regularOnly && !isRegular {
			continue
		}
		out = append(out, path)
	}
	return out, nil
}
