package evidence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 50 * time.Millisecond

func EnsureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place, so readers never observe a partial payload.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := EnsureParent(path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	ok = true
	return nil
}

// WriteFileLocked writes path atomically while holding an exclusive lock on
// path+".lock", so agent runs sharing an output path take turns. It waits
// for the lock until ctx ends. The lock file is left in place.
func WriteFileLocked(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	if err := EnsureParent(path); err != nil {
		return err
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("lock %s: not acquired", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	return WriteFileAtomic(path, data, perm)
}
