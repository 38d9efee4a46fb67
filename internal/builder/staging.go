package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitswalk/releng/internal/bundlesync"
	"github.com/bitswalk/releng/internal/errs"
	"github.com/bitswalk/releng/internal/params"
)

// excludedToolchainBinNames is the well-known set of tool basenames
// excluded from a toolchain-related bin/ staging pass.F
// staging rules.
var excludedToolchainBinNames = map[string]bool{
	"gdbus": true, "gio": true, "gobject-query": true, "gsettings": true,
}

// isSDKRelated implements the SDK-related include/exclude predicate for
// a path rel (relative to <prefix>).F staging rules.
func isSDKRelated(rel string) bool {
	if hasPathComponent(rel, "share") {
		return false
	}
	if strings.HasSuffix(rel, ".vapi") || strings.HasSuffix(rel, ".deps") {
		return true
	}
	if isUnder(rel, "bin") {
		base := filepath.Base(rel)
		return strings.HasPrefix(base, "v8-mksnapshot-")
	}
	return !strings.HasSuffix(rel, ".pdb")
}

// isToolchainRelated implements the toolchain-related include/exclude
// predicate.F staging rules.
func isToolchainRelated(rel string) bool {
	if strings.HasSuffix(rel, ".vapi") || strings.HasSuffix(rel, ".deps") {
		return true
	}
	if isUnder(rel, "manifest") {
		return true
	}
	if isUnder(rel, "bin") {
		base := filepath.Base(rel)
		if strings.HasSuffix(base, ".pdb") {
			return false
		}
		if excludedToolchainBinNames[base] {
			return false
		}
		if strings.HasPrefix(base, "gspawn-") {
			return false
		}
		return true
	}
	return false
}

// windowsMixinKeepStems is the set of bin/ basenames (without extension)
// kept by the Windows toolchain mixin.F staging rules.
var windowsMixinKeepStems = map[string]bool{
	"bison": true, "flex": true, "m4": true, "nasm": true, "vswhere": true,
}

// isWindowsMixinRelated decides whether a path from the build machine's
// toolchain prefix is copied into the host-toolchain tempdir's Windows
// mixin overlay.F staging rules.
func isWindowsMixinRelated(rel string) bool {
	if rel == "VERSION.txt" {
		return false
	}
	if isUnder(rel, "manifest") {
		return false
	}
	if strings.HasSuffix(rel, ".vapi") || strings.HasSuffix(rel, ".deps") {
		return false
	}
	base := filepath.Base(rel)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.HasPrefix(stem, "vala") || strings.HasPrefix(stem, "vapi") || strings.HasPrefix(stem, "gen-introspect") {
		return false
	}
	if isUnder(rel, "bin") && strings.HasPrefix(base, "vala-gen-introspect") {
		return false
	}
	if !isUnder(rel, "bin") {
		return true
	}
	if windowsMixinKeepStems[stem] {
		return true
	}
	return strings.HasPrefix(base, "msys-")
}

func hasPathComponent(rel, component string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == component {
			return true
		}
	}
	return false
}

func isUnder(rel, dir string) bool {
	slashed := filepath.ToSlash(rel)
	return slashed == dir || strings.HasPrefix(slashed, dir+"/")
}

// stageTree copies every regular file under srcPrefix into destDir for
// which include returns true. Symlinks are skipped (not followed, not
// recreated).F step 6.
func stageTree(srcPrefix, destDir string, include func(rel string) bool) error {
	return filepath.Walk(srcPrefix, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == srcPrefix {
			return nil
		}
		rel, relErr := filepath.Rel(srcPrefix, path)
		if relErr != nil {
			return relErr
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if !include(rel) {
			return nil
		}

		dest := filepath.Join(destDir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		return copyFile(path, dest, info.Mode())
	})
}

func copyFile(src, dest string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, mode)
}

// packageArchive stages the built output tree into a filtered copy,
// adjusts manifests, rewrites install-prefix paths, writes VERSION.txt,
// and produces the final tar.xz archive.
func (b *Builder) packageArchive(ctx context.Context, selected map[string]params.Package) (string, error) {
	tempdir, err := os.MkdirTemp(b.opts.CacheDir, fmt.Sprintf("%s-stage-*", b.opts.Bundle))
	if err != nil {
		return "", errs.ErrChildProcessFailed.WithCause(err).WithMessage("creating staging tempdir")
	}
	defer os.RemoveAll(tempdir)

	prefix := b.outPrefix(b.opts.HostMachine)

	var include func(rel string) bool
	if b.opts.Bundle == params.BundleToolchain {
		include = isToolchainRelated
	} else {
		include = isSDKRelated
	}
	if err := stageTree(prefix, tempdir, include); err != nil {
		return "", errs.ErrChildProcessFailed.WithCause(err).WithMessagef("staging %s", prefix)
	}

	if b.opts.Bundle == params.BundleToolchain && b.opts.HostMachine.OS == "windows" {
		buildPrefix := b.outPrefix(b.opts.BuildMachine)
		if err := stageTree(buildPrefix, tempdir, isWindowsMixinRelated); err != nil {
			return "", errs.ErrChildProcessFailed.WithCause(err).WithMessagef("staging windows mixin from %s", buildPrefix)
		}
	}

	if err := adjustManifests(tempdir); err != nil {
		return "", err
	}

	if err := rewriteStagedPaths(tempdir, prefix, b.opts.HostMachine.OS == "windows"); err != nil {
		return "", err
	}

	versionPath := filepath.Join(tempdir, "VERSION.txt")
	if err := os.WriteFile(versionPath, []byte(b.opts.Parameters.DepsVersion+"\n"), 0o644); err != nil {
		return "", errs.ErrChildProcessFailed.WithCause(err).WithMessagef("writing %s", versionPath)
	}

	archiveName := fmt.Sprintf("%s-%s.tar.xz", b.opts.Bundle, b.opts.HostMachine.Identifier())
	archivePath := filepath.Join(b.opts.CacheDir, archiveName)
	if err := bundlesync.WriteTarXz(tempdir, archivePath); err != nil {
		return "", err
	}

	b.progress("packaged %s", archivePath)
	return archivePath, nil
}

// adjustManifests applies adjustManifest to every <tempdir>/manifest/*.pkg
// file.F step 7.
func adjustManifests(tempdir string) error {
	manifestDir := filepath.Join(tempdir, "manifest")
	entries, err := os.ReadDir(manifestDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.ErrChildProcessFailed.WithCause(err).WithMessagef("reading %s", manifestDir)
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".pkg") {
			continue
		}
		if err := adjustManifest(filepath.Join(manifestDir, e.Name()), tempdir); err != nil {
			return err
		}
	}
	return nil
}

// rewriteStagedPaths replaces the install-prefix string in every
// readable staged file with a relocation token, renaming non-.pc files
// to a .frida.in suffix after the rewrite so a later install step knows
// to template them.
func rewriteStagedPaths(tempdir, prefix string, alsoRewritePosix bool) error {
	posixPrefix := filepath.ToSlash(prefix)

	var files []string
	err := filepath.Walk(tempdir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return errs.ErrChildProcessFailed.WithCause(err).WithMessagef("walking %s", tempdir)
	}

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		content := string(data)
		if !strings.Contains(content, prefix) && !(alsoRewritePosix && strings.Contains(content, posixPrefix)) {
			continue
		}

		isPC := strings.HasSuffix(path, ".pc")
		token := "@FRIDA_TOOLROOT@"
		if isPC {
			token = "${frida_sdk_prefix}"
		}

		rewritten := strings.ReplaceAll(content, prefix, token)
		if alsoRewritePosix {
			rewritten = strings.ReplaceAll(rewritten, posixPrefix, token)
		}

		info, statErr := os.Stat(path)
		mode := os.FileMode(0o644)
		if statErr == nil {
			mode = info.Mode()
		}
		if err := os.WriteFile(path, []byte(rewritten), mode); err != nil {
			return errs.ErrChildProcessFailed.WithCause(err).WithMessagef("rewriting %s", path)
		}

		if !isPC {
			newPath := path + ".frida.in"
			if err := os.Rename(path, newPath); err != nil {
				return errs.ErrChildProcessFailed.WithCause(err).WithMessagef("renaming %s", path)
			}
		}
	}
	return nil
}
