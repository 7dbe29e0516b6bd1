package nativebuild

import (
	"io"
	"os"

	"go.trai.ch/zerr"
)

// moveFile moves src to dst, copying across file systems
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to open native image"), "path", src)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to stat native image"), "path", src)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create output file"), "path", dst)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return zerr.With(zerr.Wrap(err, "failed to copy native image"), "path", dst)
	}

	if err := out.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write output file"), "path", dst)
	}

	in.Close()

	if err := os.Remove(src); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to remove generated image"), "path", src)
	}

	return nil
}
