// Package configure implements the top-level helper a downstream
// project's configure step invokes: pick defaults, ensure the prebuilt
// bundles the selection needs, generate machine configs, invoke the
// external build driver's setup, and persist the result for the
// sibling "make" wrapper to pick up again without recomputing it.
//
// Grounded on bitswalk/ldf's build/manager.go for the overall
// orchestrate-then-persist shape and on ldfd/db/database.go (via
// internal/statedb) for the persisted record itself.
package configure

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/bitswalk/releng/internal/bundlesync"
	"github.com/bitswalk/releng/internal/errs"
	"github.com/bitswalk/releng/internal/logs"
	"github.com/bitswalk/releng/internal/machineconfig"
	"github.com/bitswalk/releng/internal/machinespec"
	"github.com/bitswalk/releng/internal/params"
	"github.com/bitswalk/releng/internal/progress"
	"github.com/bitswalk/releng/internal/statedb"
)

var log = logs.NewDefault()

// SetLogger sets the logger used by the configure package.
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}

// SetupDriver is the subset of the build driver the Configurator needs:
// a single setup invocation with the generated machine files and -D
// options.
type SetupDriver interface {
	Setup(ctx context.Context, sourceDir, buildDir string, args []string, env map[string]string) error
}

const (
	prebuildToolchain = "toolchain"
	prebuildSDK       = "sdk"
)

// Options configures one Configure invocation.
type Options struct {
	SourceDir        string
	BuildDir         string
	Prefix           string
	Shared           bool
	Strip            bool
	BuildMachine     machinespec.Spec
	HostMachine      machinespec.Spec
	AllowedPrebuilds []string // subset of {"toolchain", "sdk"}; nil means both
	ExtraOptions     []string // project-specific -D options, forwarded verbatim
	CacheDir         string
	BootstrapVer     string
	Parameters       *params.Parameters
	Syncer           *bundlesync.Syncer
	Driver           SetupDriver
	Initializer      machineconfig.EnvInitializer
	BaseEnviron      map[string]string
	Reporter         progress.Reporter
	StateDBPath      string // defaults to <CacheDir>/frida-env.dat
}

// EnvRecord is the build-state record persisted across Configure
// invocations and consumed by the sibling "make" wrapper.
type EnvRecord struct {
	MesonMode        string
	BuildCfg         *machineconfig.MachineConfig
	HostCfg          *machineconfig.MachineConfig
	AllowedPrebuilds []string
	DepsDir          string
}

const envRecordKey = "env"

// Configurator runs the pick-defaults / ensure-bundles / generate-configs
// / setup / persist pipeline.
type Configurator struct {
	opts Options
}

// New constructs a Configurator from Options, defaulting machine specs,
// prefix, and the allowed-prebuild set.
func New(opts Options) *Configurator {
	opts.HostMachine = opts.HostMachine.DefaultMissing("")
	opts.BuildMachine = opts.BuildMachine.DefaultMissing("").MaybeAdaptToHost(opts.HostMachine)
	if opts.Prefix == "" {
		opts.Prefix = "/usr/local"
	}
	if opts.AllowedPrebuilds == nil {
		opts.AllowedPrebuilds = []string{prebuildToolchain, prebuildSDK}
	}
	if opts.StateDBPath == "" {
		opts.StateDBPath = filepath.Join(opts.CacheDir, "frida-env.dat")
	}
	return &Configurator{opts: opts}
}

func (c *Configurator) allows(prebuild string) bool {
	for _, p := range c.opts.AllowedPrebuilds {
		if p == prebuild {
			return true
		}
	}
	return false
}

func (c *Configurator) report(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Info(msg)
	if c.opts.Reporter != nil {
		c.opts.Reporter.Report(msg)
	}
}

func (c *Configurator) defaultLibrary() string {
	if c.opts.Shared {
		return "shared"
	}
	return "static"
}

// Configure runs the full pipeline and returns the persisted record.
func (c *Configurator) Configure(ctx context.Context) (*EnvRecord, error) {
	depsDir := filepath.Join(c.opts.CacheDir, "deps")

	toolchainDir := filepath.Join(depsDir, "toolchain-"+c.opts.BuildMachine.Identifier())
	if c.allows(prebuildToolchain) {
		if err := c.ensureBundle(ctx, params.BundleToolchain, c.opts.BuildMachine, toolchainDir,
			errs.ErrToolchainNotFound); err != nil {
			return nil, err
		}
	}

	sdkDir := filepath.Join(depsDir, "sdk-"+c.opts.HostMachine.Identifier())
	if c.allows(prebuildSDK) {
		if err := c.ensureBundle(ctx, params.BundleSDK, c.opts.HostMachine, sdkDir,
			errs.ErrSDKNotFound); err != nil {
			return nil, err
		}
	}

	c.report("generating machine configuration files")

	callMeson := []string{"setup", c.opts.BuildDir, c.opts.SourceDir}

	buildDesc := machineconfig.Description{
		Machine:         c.opts.BuildMachine,
		BuildMachine:    c.opts.BuildMachine,
		IsCross:         !c.opts.BuildMachine.Equal(c.opts.HostMachine),
		Environ:         c.opts.BaseEnviron,
		ToolchainPrefix: toolchainDir,
		SDKPrefix:       sdkDir,
		CallMeson:       callMeson,
		DefaultLibrary:  c.defaultLibrary(),
		OutDir:          c.opts.BuildDir,
	}
	hostDesc := buildDesc
	hostDesc.Machine = c.opts.HostMachine

	initializer := c.opts.Initializer
	if initializer == nil {
		initializer = machineconfig.GenericInitializer{}
	}

	buildCfg, hostCfg, err := machineconfig.GenerateMachineConfigs(buildDesc, hostDesc, initializer, exec.LookPath)
	if err != nil {
		return nil, err
	}

	if err := c.runSetup(ctx, hostCfg); err != nil {
		return nil, err
	}

	record := &EnvRecord{
		MesonMode:        "native",
		BuildCfg:         buildCfg,
		HostCfg:          hostCfg,
		AllowedPrebuilds: c.opts.AllowedPrebuilds,
		DepsDir:          depsDir,
	}
	if buildDesc.IsCross {
		record.MesonMode = "cross"
	}

	if err := c.persist(record); err != nil {
		return nil, err
	}

	return record, nil
}

// ensureBundle syncs the given bundle for machine into dir, rewriting a
// bundle-not-found into the configurator-specific, actionable error.
func (c *Configurator) ensureBundle(ctx context.Context, bundle params.Bundle, machine machinespec.Spec, dir string, notFound *errs.Error) error {
	_, err := c.opts.Syncer.Sync(ctx, bundle, machine, dir, c.opts.BootstrapVer,
		func(p bundlesync.Progress) { c.report("%s", p.Message) })
	if err == nil {
		return nil
	}
	if errors.Is(err, errs.ErrBundleNotFound) {
		return notFound.WithMessagef("no prebuilt %s bundle for %s at version %s; build it from source first",
			bundle, machine.Identifier(), c.opts.BootstrapVer)
	}
	return err
}

// runSetup invokes the build driver's setup with the host machine file
// and the fixed set of -D options this helper owns.
func (c *Configurator) runSetup(ctx context.Context, hostCfg *machineconfig.MachineConfig) error {
	args := []string{
		"--native-file", hostCfg.MachineFilePath,
		fmt.Sprintf("-Dprefix=%s", c.opts.Prefix),
		fmt.Sprintf("-Ddefault_library=%s", c.defaultLibrary()),
	}
	args = append(args, c.opts.HostMachine.MesonOptimizationOptions()...)
	if c.opts.Strip && c.opts.HostMachine.ToolchainCanStrip() {
		args = append(args, "-Dstrip=true")
	}
	args = append(args, c.opts.ExtraOptions...)

	env := hostCfg.MakeMergedEnvironment(c.opts.BaseEnviron)

	c.report("invoking build driver setup")
	return c.opts.Driver.Setup(ctx, c.opts.SourceDir, c.opts.BuildDir, args, env)
}

// persist writes the record to the state database, overwriting any
// record from a prior invocation.
func (c *Configurator) persist(record *EnvRecord) error {
	store, err := statedb.Open(c.opts.StateDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.PutGob(envRecordKey, record)
}

// Load reads back the most recently persisted EnvRecord from path.
func Load(path string) (*EnvRecord, bool, error) {
	store, err := statedb.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer store.Close()

	var record EnvRecord
	ok, err := store.GetGob(envRecordKey, &record)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &record, true, nil
}
