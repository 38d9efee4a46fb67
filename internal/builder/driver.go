package builder

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"

	"github.com/bitswalk/releng/internal/errs"
)

// ExternalDriver shells out to the external build driver binary
// (treated as a black box). Its setup/install/introspect
// subcommands are the entire interface this package depends on.
type ExternalDriver struct {
	// Binary is the build-driver executable name, e.g. "meson".
	Binary string
}

func (d ExternalDriver) binary() string {
	if d.Binary != "" {
		return d.Binary
	}
	return "meson"
}

func (d ExternalDriver) run(ctx context.Context, env map[string]string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, d.binary(), args...)
	if env != nil {
		cmd.Env = mergeOSEnviron(env)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), errs.ErrChildProcessFailed.WithCause(err).WithMessagef(
			"%s %s: %s", d.binary(), strings.Join(args, " "), stderr.String())
	}
	return stdout.Bytes(), nil
}

func mergeOSEnviron(overlay map[string]string) []string {
	base := os.Environ()
	seen := make(map[string]bool, len(overlay))
	out := make([]string, 0, len(base)+len(overlay))
	for k, v := range overlay {
		out = append(out, k+"="+v)
		seen[k] = true
	}
	for _, kv := range base {
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		if seen[kv[:idx]] {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// Setup invokes `<driver> setup <buildDir> <sourceDir> <args...>`.
func (d ExternalDriver) Setup(ctx context.Context, sourceDir, buildDir string, args []string, env map[string]string) error {
	full := append([]string{"setup", buildDir, sourceDir}, args...)
	_, err := d.run(ctx, env, full...)
	return err
}

// Install invokes `<driver> install -C <buildDir>`.
func (d ExternalDriver) Install(ctx context.Context, buildDir string, env map[string]string) error {
	_, err := d.run(ctx, env, "install", "-C", buildDir)
	return err
}

// IntrospectInstalled runs `<driver> introspect --installed -C <buildDir>`
// and decodes its JSON output: a map of logical install name to on-disk
// path.
func (d ExternalDriver) IntrospectInstalled(ctx context.Context, buildDir string, env map[string]string) (map[string]string, error) {
	out, err := d.run(ctx, env, "introspect", "--installed", "-C", buildDir)
	if err != nil {
		return nil, err
	}
	var installed map[string]string
	if err := json.Unmarshal(out, &installed); err != nil {
		return nil, errs.ErrChildProcessFailed.WithCause(err).WithMessage("decoding introspect --installed output")
	}
	return installed, nil
}
