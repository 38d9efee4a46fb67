package bundlesync

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bitswalk/releng/internal/errs"
	"github.com/ulikunitz/xz"
)

func wrapArchiveErr(err error, format string, args ...interface{}) error {
	return errs.ErrChildProcessFailed.WithCause(err).WithMessage(fmt.Sprintf(format, args...))
}

// WriteTarXz walks srcDir and writes a tar+xz archive to destPath, with
// paths relative to srcDir (no wrapping directory). Compression level
// is left at the library default (xz.WriterConfig{} zero value). Used by
// the Builder's final packaging step; it lives here beside the
// Synchronizer's extraction code (extractTarXz/untar) since both depend
// on the same ulikunitz/xz + archive/tar layering.
func WriteTarXz(srcDir, destPath string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return wrapArchiveErr(err, "creating archive %s", destPath)
	}
	defer out.Close()

	xw, err := xz.NewWriter(out)
	if err != nil {
		return wrapArchiveErr(err, "initializing xz writer for %s", destPath)
	}
	defer xw.Close()

	tw := tar.NewWriter(xw)
	defer tw.Close()

	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == srcDir {
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			// Symlinks are skipped, not followed, not recreated.
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = name
		if info.IsDir() {
			hdr.Name = name + "/"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tw, f)
		return err
	})
}
