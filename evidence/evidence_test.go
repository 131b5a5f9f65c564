package evidence

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0xff, 0x10},
		[]byte("abc"),
		[]byte("abcd"),
		bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 1025),
	}
	for _, b := range cases {
		out, err := Decode(Encode(b))
		require.NoError(t, err)
		assert.Equal(t, len(b), len(out))
		assert.True(t, bytes.Equal(b, out))
	}
}

func TestEncodePadding(t *testing.T) {
	assert.Equal(t, "", Encode(nil))
	assert.Equal(t, "YWJj", Encode([]byte("abc")))
	assert.Equal(t, "YWI=", Encode([]byte("ab")))
	assert.Equal(t, "YQ==", Encode([]byte("a")))
}

func TestPayloadJSON(t *testing.T) {
	b, err := json.Marshal(Payload{Grabbed: Encode([]byte("zip"))})
	require.NoError(t, err)
	assert.JSONEq(t, `{"grabbed":"emlw"}`, string(b))
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = string(b)
	}
	return out
}

func TestArchiveDirRoundTrip(t *testing.T) {
	src := filepath.Join(t.TempDir(), "ws")
	files := map[string]string{
		"T1/_src_a.txt":     "alpha",
		"T1/_src_sub_c.txt": "charlie",
		"T2/big.bin":        string(bytes.Repeat([]byte("x"), 3*copyBufferSize+17)),
	}
	writeTree(t, src, files)
	require.NoError(t, os.MkdirAll(filepath.Join(src, "empty"), 0o755))

	dst, err := ArchiveDir(src, "")
	require.NoError(t, err)
	assert.Equal(t, src+".zip", dst)

	got := readZip(t, dst)
	for rel, content := range files {
		assert.Equal(t, content, got[rel], rel)
	}

	var dirs []string
	for name := range got {
		if name[len(name)-1] == '/' {
			dirs = append(dirs, name)
		}
	}
	sort.Strings(dirs)
	assert.Equal(t, []string{"T1/", "T2/", "empty/"}, dirs)
}

func TestArchiveDirSkipsSelf(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"a.txt":           "a",
		".hidden.lock":    "",
		"T1/_etc_db.lock": "staged",
	})

	dst, err := ArchiveDir(src, filepath.Join(src, "out.zip"))
	require.NoError(t, err)

	got := readZip(t, dst)
	assert.Equal(t, map[string]string{
		"a.txt":           "a",
		".hidden.lock":    "",
		"T1/":             "",
		"T1/_etc_db.lock": "staged",
	}, got)
}

func TestArchiveDirMissingSource(t *testing.T) {
	base := t.TempDir()
	_, err := ArchiveDir(filepath.Join(base, "missing"), filepath.Join(base, "out.zip"))
	require.ErrorIs(t, err, ErrPackaging)
	_, statErr := os.Stat(filepath.Join(base, "out.zip"))
	assert.True(t, os.IsNotExist(statErr), "partial archive should be removed")
}

func TestArchiveDirAbortsOnUnreadableEntry(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read mode 0 files")
	}
	base := t.TempDir()
	src := filepath.Join(base, "ws")
	writeTree(t, src, map[string]string{
		"T1/a.txt": "a",
		"T1/b.txt": "b",
		"T2/c.txt": "c",
	})
	locked := filepath.Join(src, "T1", "b.txt")
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o600) })

	dst := filepath.Join(base, "out.zip")
	_, err := ArchiveDir(src, dst)
	require.ErrorIs(t, err, ErrPackaging)
	assert.Contains(t, err.Error(), "b.txt")
	assert.NoFileExists(t, dst, "partial archive should be removed")
}

func TestDigest(t *testing.T) {
	d := NewDigest()
	_, err := io.Copy(d, bytes.NewReader([]byte("hello")))
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("hello"))
	assert.Equal(t, hex.EncodeToString(sum[:]), d.Hex())
	assert.EqualValues(t, 5, d.Size())

	empty := sha256.Sum256(nil)
	assert.Equal(t, hex.EncodeToString(empty[:]), NewDigest().Hex())
}

func TestWriteManifest(t *testing.T) {
	dir := t.TempDir()
	m := Manifest{RunID: "r1", CreatedAt: "now", Artifacts: []Artifact{{RelativePath: "T1/x", Task: "T1"}}}
	require.NoError(t, WriteManifest(dir, m))

	b, err := os.ReadFile(filepath.Join(dir, ManifestName))
	require.NoError(t, err)
	var got Manifest
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, m, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should not linger")
}

func TestWriteFileLockedWaitsForHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grabbed.json")
	holder := flock.New(path + ".lock")
	require.NoError(t, holder.Lock())

	done := make(chan error, 1)
	go func() {
		done <- WriteFileLocked(context.Background(), path, []byte(`{"grabbed":"x"}`), 0o600)
	}()

	select {
	case err := <-done:
		t.Fatalf("write finished while the lock was held: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
	assert.NoFileExists(t, path)

	require.NoError(t, holder.Unlock())
	require.NoError(t, <-done)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"grabbed":"x"}`, string(b))
}

func TestWriteFileLockedGivesUpWithContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grabbed.json")
	holder := flock.New(path + ".lock")
	require.NoError(t, holder.Lock())
	defer func() { _ = holder.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := WriteFileLocked(ctx, path, []byte("x"), 0o600)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoFileExists(t, path)
}

func TestWriteFileLockedConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grabbed.json")
	want := map[string]bool{}
	var wg sync.WaitGroup
	for i := range 8 {
		body := fmt.Sprintf(`{"grabbed":"%d"}`, i)
		want[body] = true
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, WriteFileLocked(context.Background(), path, []byte(body), 0o600))
		}()
	}
	wg.Wait()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, want[string(b)], "payload is one complete write: %q", b)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"grabbed.json", "grabbed.json.lock"}, names, "no temp files linger")
}
