package bundlesync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitswalk/releng/internal/errs"
	"github.com/bitswalk/releng/internal/machinespec"
	"github.com/bitswalk/releng/internal/params"
	"github.com/ulikunitz/xz"
)

// SourceState reports whether Sync removed an outdated tree at the
// location before fetching (Modified) or not (Pristine). A fresh fetch
// into an absent location is Pristine.
type SourceState int

const (
	StatePristine SourceState = iota
	StateModified
)

// Progress is a single structured event surfaced through the on_progress
// callback during Sync.
type Progress struct {
	Message string
}

// ProgressFunc receives Progress events. A nil func is a valid no-op.
type ProgressFunc func(Progress)

func report(fn ProgressFunc, format string, args ...interface{}) {
	if fn == nil {
		return
	}
	fn(Progress{Message: fmt.Sprintf(format, args...)})
}

const templateSentinel = "@FRIDA_TOOLROOT@"
const templateSuffix = ".frida.in"
const versionFileName = "VERSION.txt"

// Syncer materializes bundles into a local directory.
type Syncer struct {
	RootURL string
	Fetcher Fetcher
}

// NewSyncer builds a Syncer against rootURL, selecting HTTPFetcher or
// S3Fetcher automatically via FetcherForRoot.
func NewSyncer(rootURL string, s3cfg *S3Config) *Syncer {
	return &Syncer{RootURL: rootURL, Fetcher: FetcherForRoot(rootURL, s3cfg)}
}

// BundleParameters computes the (url, filename) pair for a bundle at a
// given version on a given machine.
func (s *Syncer) BundleParameters(bundle params.Bundle, machine machinespec.Spec, version string) (url, filename string) {
	identifier := machine.Identifier()
	if bundle == params.BundleToolchain && machine.OS == "windows" &&
		(machine.Arch == "x86" || machine.Arch == "x86_64") {
		identifier = "windows-x86"
	}
	filename = fmt.Sprintf("%s-%s.tar.xz", strings.ToLower(bundle.String()), identifier)
	url = fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.RootURL, "/"), version, filename)
	return url, filename
}

// Sync fetches, extracts, and rewrites a bundle into location if the
// locally recorded version differs from version, following an 8-step
// fetch/extract/template-rewrite/atomic-rename protocol.
func (s *Syncer) Sync(ctx context.Context, bundle params.Bundle, machine machinespec.Spec, location, version string, onProgress ProgressFunc) (SourceState, error) {
	state := StatePristine

	// Step 2: version gate.
	if dirExists(location) {
		existingVersion, err := readVersionFile(location)
		if err == nil && strings.TrimSpace(existingVersion) == version {
			report(onProgress, "bundle at %s already at version %s", location, version)
			return StatePristine, nil
		}
		if err := os.RemoveAll(location); err != nil {
			return StateModified, errs.ErrNetwork.WithCause(err).WithMessagef("removing stale tree at %s", location)
		}
		state = StateModified
	}

	// Step 3: URL/filename resolution.
	url, filename := s.BundleParameters(bundle, machine, version)

	parent := filepath.Dir(location)
	localStaged := filepath.Join(parent, filename)

	var archivePath string
	var cleanupArchive func()

	if fileExists(localStaged) {
		report(onProgress, "using locally staged archive %s", localStaged)
		archivePath = localStaged
		cleanupArchive = func() {}
	} else {
		report(onProgress, "downloading %s", url)
		tmp, err := os.CreateTemp(parent, ".bundlesync-archive-*")
		if err != nil {
			return state, errs.ErrNetwork.WithCause(err).WithMessage("creating temp archive file")
		}
		tmpPath := tmp.Name()
		cleanupArchive = func() { os.Remove(tmpPath) }

		if err := s.Fetcher.Get(ctx, url, tmp); err != nil {
			tmp.Close()
			cleanupArchive()
			return state, err
		}
		if err := tmp.Close(); err != nil {
			cleanupArchive()
			return state, errs.ErrNetwork.WithCause(err).WithMessage("closing temp archive file")
		}
		archivePath = tmpPath
	}
	defer cleanupArchive()

	// Step 5: extract into a sibling staging directory.
	stagingDir := filepath.Join(parent, "_"+filepath.Base(location))
	if err := os.RemoveAll(stagingDir); err != nil {
		return state, errs.ErrNetwork.WithCause(err).WithMessagef("clearing staging dir %s", stagingDir)
	}
	if err := extractTarXz(archivePath, stagingDir); err != nil {
		os.RemoveAll(stagingDir)
		return state, err
	}

	// Step 6: template rewrite.
	if err := rewriteTemplates(stagingDir, location); err != nil {
		os.RemoveAll(stagingDir)
		return state, err
	}

	// Step 7: atomic rename onto location.
	if err := os.Rename(stagingDir, location); err != nil {
		os.RemoveAll(stagingDir)
		return state, errs.ErrNetwork.WithCause(err).WithMessagef("renaming %s to %s", stagingDir, location)
	}

	report(onProgress, "synced %s to %s", bundle.String(), location)
	return state, nil
}

// Wait exposes the 5-minute HEAD-polling auxiliary operation for a
// (bundle, machine) pair at version.
func (s *Syncer) Wait(ctx context.Context, bundle params.Bundle, machine machinespec.Spec, version string) error {
	url, _ := s.BundleParameters(bundle, machine, version)
	return Wait(ctx, s.Fetcher, url)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func readVersionFile(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, versionFileName))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func extractTarXz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return errs.ErrNetwork.WithCause(err).WithMessagef("opening archive %s", archivePath)
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return errs.ErrNetwork.WithCause(err).WithMessagef("decoding xz stream in %s", archivePath)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return errs.ErrNetwork.WithCause(err).WithMessagef("creating staging dir %s", destDir)
	}

	return untar(xr, destDir)
}

func rewriteTemplates(stagingDir, finalLocation string) error {
	replacement := filepath.ToSlash(finalLocation)

	return walkFiles(stagingDir, func(path string) error {
		if !strings.HasSuffix(path, templateSuffix) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return errs.ErrNetwork.WithCause(err).WithMessagef("reading template file %s", path)
		}
		rewritten := strings.ReplaceAll(string(data), templateSentinel, replacement)

		if err := os.WriteFile(path, []byte(rewritten), filePerm(path)); err != nil {
			return errs.ErrNetwork.WithCause(err).WithMessagef("writing template file %s", path)
		}

		finalPath := strings.TrimSuffix(path, templateSuffix)
		if err := os.Rename(path, finalPath); err != nil {
			return errs.ErrNetwork.WithCause(err).WithMessagef("renaming %s to %s", path, finalPath)
		}
		return nil
	})
}

func filePerm(path string) os.FileMode {
	info, err := os.Stat(path)
	if err != nil {
		return 0o644
	}
	return info.Mode()
}

// walkFiles calls fn for every regular file under root. It snapshots the
// tree before visiting so renames performed by fn mid-walk are safe.
func walkFiles(root string, fn func(path string) error) error {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return errs.ErrNetwork.WithCause(err).WithMessagef("walking %s", root)
	}
	for _, path := range files {
		if err := fn(path); err != nil {
			return err
		}
	}
	return nil
}
