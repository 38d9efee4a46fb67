package bundlesync

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitswalk/releng/internal/errs"
)

// untar extracts a tar stream (already xz-decompressed) into destDir.
// The archive root is the bundle root with no wrapping directory.
func untar(r io.Reader, destDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errs.ErrNetwork.WithCause(err).WithMessage("reading tar stream")
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)|0o700); err != nil {
				return errs.ErrNetwork.WithCause(err).WithMessagef("creating dir %s", target)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return errs.ErrNetwork.WithCause(err).WithMessagef("creating parent dir for %s", target)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)|0o600)
			if err != nil {
				return errs.ErrNetwork.WithCause(err).WithMessagef("creating file %s", target)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return errs.ErrNetwork.WithCause(err).WithMessagef("writing file %s", target)
			}
			if err := out.Close(); err != nil {
				return errs.ErrNetwork.WithCause(err).WithMessagef("closing file %s", target)
			}
		case tar.TypeSymlink:
			// Symlinks in staged bundles are not followed by the Builder's
			// staging pass ; skip creating them here
			// too rather than reproducing an archive-relative symlink that
			// downstream tooling would not expect.
			continue
		default:
			continue
		}
	}
}

// safeJoin joins base and name, rejecting any path that would escape
// base via ".." traversal in the archive entry name.
func safeJoin(base, name string) (string, error) {
	cleaned := filepath.Clean("/" + name)
	joined := filepath.Join(base, cleaned)
	if !strings.HasPrefix(joined, filepath.Clean(base)+string(os.PathSeparator)) && joined != filepath.Clean(base) {
		return "", errs.ErrNetwork.WithMessagef("archive entry %q escapes destination", name)
	}
	return joined, nil
}
