// Package builder implements the cross-compiling build orchestrator:
// candidate selection, topological ordering, per-package clone+build,
// manifest-gated idempotence, staging, path rewriting, and final
// tar+xz packaging.
//
// Grounded on bitswalk/ldf's build/manager.go (stage pipeline, per-unit
// banners — collapsed here to a single-threaded model),
// build/stage_download.go and build/toolchain.go (toolchain dependency
// checking, environment-variable assembly pattern reused for the
// build-driver invocation env), and build/arch.go (host/target pair
// validation, generalized to the machine-spec pair this package uses
// instead of a 2x2 table).
package builder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bitswalk/releng/internal/bundlesync"
	"github.com/bitswalk/releng/internal/errs"
	"github.com/bitswalk/releng/internal/logs"
	"github.com/bitswalk/releng/internal/machineconfig"
	"github.com/bitswalk/releng/internal/machinespec"
	"github.com/bitswalk/releng/internal/params"
	"github.com/bitswalk/releng/internal/progress"
)

var log = logs.NewDefault()

// SetLogger sets the logger used by the builder package.
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}

// Driver abstracts the external build driver (the black-box meson-like
// tool): setup/install/introspect are the three subcommands the Builder
// invokes, with no other knowledge of the driver's internals.
type Driver interface {
	Setup(ctx context.Context, sourceDir, buildDir string, args []string, env map[string]string) error
	Install(ctx context.Context, buildDir string, env map[string]string) error
	IntrospectInstalled(ctx context.Context, buildDir string, env map[string]string) (map[string]string, error)
}

// Cloner abstracts git operations so tests can substitute a fake.
type Cloner interface {
	// HeadCommit returns the currently checked-out commit, or "" if
	// cloneDir does not exist.
	HeadCommit(cloneDir string) (string, error)
	// ShallowClone clones url at commit into cloneDir, including
	// submodules.
	ShallowClone(ctx context.Context, cloneDir, url, commit string) error
}

// Options configures one end-to-end Build invocation.
type Options struct {
	Bundle        params.Bundle
	BuildMachine  machinespec.Spec
	HostMachine   machinespec.Spec
	ExplicitIDs   []string
	ExcludedIDs   map[string]bool
	Verbose       bool
	CacheDir      string
	BootstrapVer  string
	Parameters    *params.Parameters
	Syncer        *bundlesync.Syncer
	Driver        Driver
	Cloner        Cloner
	Initializer   machineconfig.EnvInitializer
	BaseEnviron   map[string]string
	Reporter      progress.Reporter
}

// Builder orchestrates an end-to-end bundle build.
type Builder struct {
	opts     Options
	buildCfg *machineconfig.MachineConfig
	hostCfg  *machineconfig.MachineConfig
}

// New constructs a Builder from Options, defaulting machine specs and
// the default_library setting.
func New(opts Options) *Builder {
	if opts.ExcludedIDs == nil {
		opts.ExcludedIDs = map[string]bool{}
	}
	opts.HostMachine = opts.HostMachine.DefaultMissing("")
	opts.BuildMachine = opts.BuildMachine.DefaultMissing("").MaybeAdaptToHost(opts.HostMachine)
	return &Builder{opts: opts}
}

const defaultLibrary = "static"

func (b *Builder) progress(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Info(msg)
	if b.opts.Reporter != nil {
		b.opts.Reporter.Report(msg)
	}
}

func (b *Builder) workdir() string {
	return filepath.Join(b.opts.CacheDir, "src")
}

func (b *Builder) outPrefix(machine machinespec.Spec) string {
	return filepath.Join(b.workdir(), fmt.Sprintf("_%s.out", b.opts.Bundle), machine.Identifier())
}

func (b *Builder) tmpBuildDir(machine machinespec.Spec, pkgID string) string {
	return filepath.Join(b.workdir(), fmt.Sprintf("_%s.tmp", b.opts.Bundle), machine.Identifier(), pkgID)
}

func (b *Builder) cloneDir(pkgID string) string {
	return filepath.Join(b.workdir(), pkgID)
}

func (b *Builder) manifestPath(machine machinespec.Spec, pkgID string) string {
	return filepath.Join(b.outPrefix(machine), "manifest", pkgID+".pkg")
}

// selectAndOrder resolves the candidate set for the current bundle and
// scope, applies explicit/excluded overrides, and topologically orders
// the result.
func (b *Builder) selectAndOrder() ([]string, map[string]bool, map[string]params.Package, error) {
	scope := params.Scope{Bundle: b.opts.Bundle, Machine: b.opts.HostMachine}
	candidates := params.CandidateSet(b.opts.Parameters.Packages, scope)

	var selected map[string]params.Package
	switch {
	case len(b.opts.ExplicitIDs) > 0:
		selected = params.TransitiveClose(candidates, b.opts.ExplicitIDs, scope)
	case b.opts.Bundle == params.BundleToolchain:
		selected = params.SelectForToolchain(candidates, scope)
	default:
		selected = params.SelectForSDK(candidates)
	}

	selected = params.ExcludeIDs(selected, b.opts.ExcludedIDs)

	result, err := params.Resolve(selected, scope)
	if err != nil {
		return nil, nil, nil, err
	}
	return result.Order, result.AlsoForBuild, selected, nil
}

// Build runs the full pipeline  and returns the path of
// the produced archive.
func (b *Builder) Build(ctx context.Context) (string, error) {
	order, alsoForBuild, selected, err := b.selectAndOrder()
	if err != nil {
		return "", err
	}

	if err := b.prepare(ctx); err != nil {
		return "", err
	}

	for _, id := range order {
		pkg := selected[id]
		if err := b.buildOne(ctx, pkg, alsoForBuild[id]); err != nil {
			return "", err
		}
	}

	return b.packageArchive(ctx, selected)
}

// prepare ensures the toolchain bundle for build_machine is present,
// wiping stale build state if the sync was Modified, then generates the
// native/cross machine-description files every package build consumes.
func (b *Builder) prepare(ctx context.Context) error {
	toolchainDir := filepath.Join(b.opts.CacheDir, "toolchain-"+b.opts.BuildMachine.Identifier())
	state, err := b.opts.Syncer.Sync(ctx, params.BundleToolchain, b.opts.BuildMachine, toolchainDir, b.opts.BootstrapVer,
		func(p bundlesync.Progress) { b.progress("%s", p.Message) })
	if err != nil {
		return err
	}
	if state == bundlesync.StateModified {
		b.progress("toolchain bundle updated; clearing stale build state")
		if err := os.RemoveAll(filepath.Join(b.workdir(), fmt.Sprintf("_%s.out", b.opts.Bundle))); err != nil {
			return errs.ErrChildProcessFailed.WithCause(err).WithMessage("clearing stale output prefix")
		}
		if err := os.RemoveAll(filepath.Join(b.workdir(), fmt.Sprintf("_%s.tmp", b.opts.Bundle))); err != nil {
			return errs.ErrChildProcessFailed.WithCause(err).WithMessage("clearing stale tmp dir")
		}
	}
	return b.ensureMachineConfigs()
}

// ensureMachineConfigs generates the build/host machine-description
// files once per Builder and caches them; safe to call repeatedly.
func (b *Builder) ensureMachineConfigs() error {
	if b.buildCfg != nil && b.hostCfg != nil {
		return nil
	}

	toolchainDir := filepath.Join(b.opts.CacheDir, "toolchain-"+b.opts.BuildMachine.Identifier())
	menv := mergeEnviron(processEnviron(), b.opts.BaseEnviron)

	buildDesc := machineconfig.Description{
		Machine:         b.opts.BuildMachine,
		BuildMachine:    b.opts.BuildMachine,
		IsCross:         !b.opts.HostMachine.Equal(b.opts.BuildMachine),
		Environ:         menv,
		ToolchainPrefix: toolchainDir,
		CallMeson:       []string{"setup"},
		DefaultLibrary:  defaultLibrary,
		OutDir:          filepath.Join(b.opts.CacheDir, "mconfig"),
	}
	hostDesc := buildDesc
	hostDesc.Machine = b.opts.HostMachine

	initializer := b.opts.Initializer
	if initializer == nil {
		initializer = machineconfig.GenericInitializer{}
	}

	buildCfg, hostCfg, err := machineconfig.GenerateMachineConfigs(buildDesc, hostDesc, initializer, exec.LookPath)
	if err != nil {
		return err
	}
	b.buildCfg = buildCfg
	b.hostCfg = hostCfg
	return nil
}

// machineConfigFor returns the generated MachineConfig for machine and
// the meson flag (--native-file or --cross-file) it should be passed
// under: cross iff machine is the host and the host differs from the
// build machine.
func (b *Builder) machineConfigFor(machine machinespec.Spec) (*machineconfig.MachineConfig, string) {
	if machine.Identifier() == b.opts.HostMachine.Identifier() && !b.opts.HostMachine.Equal(b.opts.BuildMachine) {
		return b.hostCfg, "--cross-file"
	}
	if machine.Identifier() == b.opts.HostMachine.Identifier() {
		return b.hostCfg, "--native-file"
	}
	return b.buildCfg, "--native-file"
}

// processEnviron reads the current process environment into a map, the
// base menv that machine-config generation layers extras onto.
func processEnviron() map[string]string {
	out := map[string]string{}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			out[kv[:i]] = kv[i+1:]
		}
	}
	return out
}

func mergeEnviron(base, overlay map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// buildOne clones (if needed) and builds a single package for its
// required machines.
func (b *Builder) buildOne(ctx context.Context, pkg params.Package, alsoForBuild bool) error {
	if b.opts.Reporter != nil {
		b.opts.Reporter.Section(fmt.Sprintf("%s (%s)", pkg.Name, pkg.Identifier))
	} else {
		log.Info(fmt.Sprintf("=== %s (%s) ===", pkg.Name, pkg.Identifier))
	}

	clone := b.cloneDir(pkg.Identifier)
	if head, err := b.opts.Cloner.HeadCommit(clone); err == nil && head != "" {
		if head != pkg.Version {
			b.progress("warning: %s checked out at %s, expected %s", pkg.Identifier, head, pkg.Version)
		}
	} else {
		if err := b.opts.Cloner.ShallowClone(ctx, clone, pkg.DisplayURL, pkg.Version); err != nil {
			return err
		}
	}

	machines := []machinespec.Spec{b.opts.HostMachine}
	if alsoForBuild {
		machines = append(machines, b.opts.BuildMachine)
	}

	for _, machine := range machines {
		if err := b.buildForMachine(ctx, pkg, clone, machine); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) buildForMachine(ctx context.Context, pkg params.Package, cloneDir string, machine machinespec.Spec) error {
	manifest := b.manifestPath(machine, pkg.Identifier)
	if fileExists(manifest) {
		b.progress("%s already built for %s, skipping", pkg.Identifier, machine.Identifier())
		return nil
	}

	if err := b.ensureMachineConfigs(); err != nil {
		return err
	}

	buildDir := b.tmpBuildDir(machine, pkg.Identifier)
	if err := os.RemoveAll(buildDir); err != nil {
		return errs.ErrChildProcessFailed.WithCause(err).WithMessagef("clearing build dir %s", buildDir)
	}

	prefix := b.outPrefix(machine)
	isCross := machine.Identifier() != b.opts.BuildMachine.Identifier()

	cfg, fileFlag := b.machineConfigFor(machine)

	args := []string{
		fileFlag, cfg.MachineFilePath,
		fmt.Sprintf("-Dprefix=%s", prefix),
		fmt.Sprintf("-Dlibdir=%s", filepath.Join(prefix, "lib")),
		fmt.Sprintf("-Dpkg_config_path=%s", filepath.Join(prefix, machine.LibDataDir(), "pkgconfig")),
	}
	if isCross {
		buildPrefix := b.outPrefix(b.opts.BuildMachine)
		args = append(args, fmt.Sprintf("-Dbuild.pkg_config_path=%s", filepath.Join(buildPrefix, b.opts.BuildMachine.LibDataDir(), "pkgconfig")))
	}
	args = append(args, "-Ddefault_library=static", "-Dbackend=ninja")
	args = append(args, machine.MesonOptimizationOptions()...)
	args = append(args, fmt.Sprintf("-Dstrip=%t", machine.ToolchainCanStrip()))

	scope := params.Scope{Bundle: b.opts.Bundle, Machine: machine}
	args = append(args, pkg.ResolvedOptions(scope)...)

	env := cfg.MakeMergedEnvironment(b.opts.BaseEnviron)

	if err := b.opts.Driver.Setup(ctx, cloneDir, buildDir, args, env); err != nil {
		return err
	}
	if err := b.opts.Driver.Install(ctx, buildDir, env); err != nil {
		return err
	}
	installed, err := b.opts.Driver.IntrospectInstalled(ctx, buildDir, env)
	if err != nil {
		return err
	}

	if err := writeManifest(manifest, prefix, installed); err != nil {
		return err
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
