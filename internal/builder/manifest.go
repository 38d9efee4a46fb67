package builder

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bitswalk/releng/internal/errs"
)

// writeManifest writes the sorted, prefix-relative POSIX paths from
// installed (logical name -> filesystem path) to manifestPath.
func writeManifest(manifestPath, prefix string, installed map[string]string) error {
	rels := make([]string, 0, len(installed))
	for _, fsPath := range installed {
		rel, err := filepath.Rel(prefix, fsPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		rels = append(rels, filepath.ToSlash(rel))
	}
	sort.Strings(rels)

	if err := os.MkdirAll(filepath.Dir(manifestPath), 0o755); err != nil {
		return errs.ErrChildProcessFailed.WithCause(err).WithMessagef("creating manifest dir for %s", manifestPath)
	}

	content := strings.Join(rels, "\n")
	if len(rels) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(manifestPath, []byte(content), 0o644); err != nil {
		return errs.ErrChildProcessFailed.WithCause(err).WithMessagef("writing manifest %s", manifestPath)
	}
	return nil
}

// readManifest reads a manifest file back into a sorted slice of
// relative paths.
func readManifest(manifestPath string) ([]string, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimRight(string(data), "\n")
	if trimmed == "" {
		return nil, nil
	}
	return strings.Split(trimmed, "\n"), nil
}

// adjustManifest drops entries whose target does not exist under
// tempdir, re-sorts, and deletes the manifest file if it ends up empty,
//.F step 7.
func adjustManifest(manifestPath, tempdir string) error {
	entries, err := readManifest(manifestPath)
	if err != nil {
		return errs.ErrChildProcessFailed.WithCause(err).WithMessagef("reading manifest %s", manifestPath)
	}

	var kept []string
	for _, rel := range entries {
		if _, err := os.Stat(filepath.Join(tempdir, rel)); err == nil {
			kept = append(kept, rel)
		}
	}
	sort.Strings(kept)

	if len(kept) == 0 {
		return os.Remove(manifestPath)
	}

	content := strings.Join(kept, "\n") + "\n"
	return os.WriteFile(manifestPath, []byte(content), 0o644)
}
