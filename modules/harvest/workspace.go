package harvest

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
)

const (
	workspaceNameLen = 10

	// MaxWorkspaceAttempts bounds how many random names are tried before
	// CreateWorkspace gives up.
	MaxWorkspaceAttempts = 64
)

const nameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomName(r *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = nameAlphabet[r.IntN(len(nameAlphabet))]
	}
	return string(b)
}

// NewRand returns a generator for workspace names. A zero seed picks a
// random one.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// CreateWorkspace makes a fresh, randomly named directory under baseDir.
// Names that already exist are redrawn, at most MaxWorkspaceAttempts times.
func CreateWorkspace(baseDir string, r *rand.Rand) (string, error) {
	if r == nil {
		r = NewRand(0)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create base dir %s: %v", ErrIO, baseDir, err)
	}

	for i := 0; i < MaxWorkspaceAttempts; i++ {
		path := filepath.Join(baseDir, randomName(r, workspaceNameLen))
		err := os.Mkdir(path, 0o700)
		if err == nil {
			return path, nil
		}
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		return "", fmt.Errorf("%w: create workspace %s: %v", ErrIO, path, err)
	}
	return "", fmt.Errorf("%w: no free workspace name under %s after %d attempts", ErrIO, baseDir, MaxWorkspaceAttempts)
}
