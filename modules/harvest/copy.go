package harvest

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Flatten turns a path into a single file name by replacing every separator
// with an underscore. The mapping is not injective: "a/b_c" and "a_b/c"
// flatten to the same name, and the second one is then skipped as already
// staged.
func Flatten(path string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, path)
}

// CopyInto stages src under destDir using its flattened name. It returns the
// staged path and whether a copy happened; an existing name is left alone
// and reported as copied=false with no error.
func CopyInto(src, destDir string) (string, bool, error) {
	return copyInto(src, destDir, nil)
}

// copyInto is CopyInto that also tees the copied bytes into sum, if set.
func copyInto(src, destDir string, sum io.Writer) (string, bool, error) {
	st, err := os.Stat(destDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, fmt.Errorf("%w: %s", ErrNotFound, destDir)
		}
		return "", false, fmt.Errorf("%w: stat %s: %v", ErrIO, destDir, err)
	}
	if !st.IsDir() {
		return "", false, fmt.Errorf("%w: %s", ErrNotADirectory, destDir)
	}

	dst := filepath.Join(destDir, Flatten(src))

	// O_EXCL makes the existence check and the create one step.
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return dst, false, nil
		}
		return "", false, fmt.Errorf("%w: create %s: %v", ErrIO, dst, err)
	}

	var w io.Writer = out
	if sum != nil {
		w = io.MultiWriter(out, sum)
	}
	if err := copyFrom(w, src); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return "", false, err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return "", false, fmt.Errorf("%w: close %s: %v", ErrIO, dst, err)
	}
	return dst, true, nil
}

func copyFrom(out io.Writer, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrIO, src, err)
	}
	defer in.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("%w: copy %s: %v", ErrIO, src, err)
	}
	return nil
}
