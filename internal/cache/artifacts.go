package cache

import (
	"io"
	"os"
	"path/filepath"

	"go.trai.ch/zerr"
)

// copyFile copies src to dst, preserving the file mode. The copy is written
// to a temporary file in dst's directory and renamed into place, so readers
// never observe a partially written dst.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to open source file"), "path", src)
	}

	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to stat source file"), "path", src)
	}

	// Create parent directory if needed
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create destination directory"), "path", filepath.Dir(dst))
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create temporary file"), "path", dst)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := io.Copy(tmp, srcFile); err != nil {
		tmp.Close()
		return zerr.With(zerr.Wrap(err, "failed to copy file"), "path", src)
	}

	if err := tmp.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write file"), "path", tmpName)
	}

	// Preserve file permissions
	if err := os.Chmod(tmpName, srcInfo.Mode().Perm()); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to set file mode"), "path", tmpName)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to move file into place"), "path", dst)
	}

	return nil
}
