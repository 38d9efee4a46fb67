package builder

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bitswalk/releng/internal/errs"
)

// GitCloner is the default Cloner, shelling out to the git binary and
// capturing both stdout and stderr so a failure can be reported with
// the command's own output attached.
type GitCloner struct{}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return errs.ErrChildProcessFailed.WithCause(err).WithMessagef(
			"git %s: %s", strings.Join(args, " "), stderr.String())
	}
	return nil
}

// HeadCommit returns the currently checked-out commit SHA, or "" (no
// error) if cloneDir does not exist yet.
func (GitCloner) HeadCommit(cloneDir string) (string, error) {
	if _, err := os.Stat(filepath.Join(cloneDir, ".git")); err != nil {
		return "", nil
	}
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = cloneDir
	out, err := cmd.Output()
	if err != nil {
		return "", errs.ErrChildProcessFailed.WithCause(err).WithMessage("git rev-parse HEAD")
	}
	return strings.TrimSpace(string(out)), nil
}

// ShallowClone performs init/add-origin/fetch --depth 1/checkout/
// submodule-update, pinning the clone to a single commit without history.
func (GitCloner) ShallowClone(ctx context.Context, cloneDir, url, commit string) error {
	if err := os.MkdirAll(cloneDir, 0o755); err != nil {
		return errs.ErrChildProcessFailed.WithCause(err).WithMessagef("creating clone dir %s", cloneDir)
	}

	if err := runGit(ctx, cloneDir, "init"); err != nil {
		return err
	}
	if err := runGit(ctx, cloneDir, "remote", "add", "origin", url); err != nil {
		return err
	}
	if err := runGit(ctx, cloneDir, "fetch", "--depth", "1", "origin", commit); err != nil {
		return err
	}
	if err := runGit(ctx, cloneDir, "checkout", "FETCH_HEAD"); err != nil {
		return err
	}
	if err := runGit(ctx, cloneDir, "submodule", "update", "--init", "--recursive", "--depth", "1"); err != nil {
		return err
	}
	return nil
}
