package evidence

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
)

var ErrPackaging = errors.New("packaging failed")

const copyBufferSize = 4096

// ArchiveDir zips every regular file and directory below srcDir into dst.
// Entry names are slash-separated paths relative to srcDir; directories get a
// trailing "/". The archive itself is never added, so dst may live inside
// srcDir. An empty dst means "<srcDir>.zip".
func ArchiveDir(srcDir, dst string) (string, error) {
	root, err := filepath.Abs(filepath.Clean(srcDir))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPackaging, err)
	}
	if dst == "" {
		dst = root + ".zip"
	}
	dstAbs, err := filepath.Abs(dst)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPackaging, err)
	}

	f, err := os.Create(dstAbs)
	if err != nil {
		return "", fmt.Errorf("%w: create %s: %v", ErrPackaging, dstAbs, err)
	}

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})

	buf := make([]byte, copyBufferSize)
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root || path == dstAbs {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		switch {
		case d.IsDir():
			_, err := zw.Create(name + "/")
			return err
		case d.Type().IsRegular():
			return addFile(zw, path, name, buf)
		default:
			return nil
		}
	})
	if walkErr != nil {
		_ = zw.Close()
		_ = f.Close()
		_ = os.Remove(dstAbs)
		return "", fmt.Errorf("%w: %v", ErrPackaging, walkErr)
	}

	if err := zw.Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(dstAbs)
		return "", fmt.Errorf("%w: finalize: %v", ErrPackaging, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dstAbs)
		return "", fmt.Errorf("%w: close: %v", ErrPackaging, err)
	}
	return dstAbs, nil
}

func addFile(zw *zip.Writer, path, name string, buf []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("open entry %s: %w", name, err)
	}

	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open source %s: %w", path, err)
	}
	defer in.Close()

	// Hide WriterTo so the fixed buffer is actually used.
	if _, err := io.CopyBuffer(w, struct{ io.Reader }{in}, buf); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	return nil
}
