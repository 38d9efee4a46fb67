// Package machineconfig generates the machine-description files the
// external build driver consumes to parameterize cross builds, and
// merges per-machine environments for driver invocation.
//
// Grounded on bitswalk/ldf's build/arch.go: generalized from its fixed
// 2x2 host/target toolchain registry into a pluggable-initializer design
// (an EnvInitializer per platform family instead of a lookup table keyed
// on a closed architecture pair enum).
package machineconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bitswalk/releng/internal/errs"
	"github.com/bitswalk/releng/internal/machinespec"
	"github.com/bmatcuk/doublestar/v4"
)

// MachineConfig is the output consumed by downstream build-driver
// invocations: the path of the written machine-description file plus the
// binary search path and environment overlay it implies.
type MachineConfig struct {
	MachineFilePath string
	BinPath         []string
	Environ         map[string]string
}

// MakeMergedEnvironment prepends BinPath to PATH and merges Environ on
// top of base.
func (c *MachineConfig) MakeMergedEnvironment(base map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(c.Environ)+1)
	for k, v := range base {
		merged[k] = v
	}
	if len(c.BinPath) > 0 {
		existing := merged["PATH"]
		parts := append(append([]string{}, c.BinPath...), existing)
		merged["PATH"] = strings.Join(nonEmpty(parts), string(os.PathListSeparator))
	}
	for k, v := range c.Environ {
		merged[k] = v
	}
	return merged
}

func nonEmpty(parts []string) []string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// hostToolchainEnvVars is the fixed set of host-side toolchain
// environment variables stripped from build_environ in the cross case.
var hostToolchainEnvVars = []string{
	"CC", "CXX", "OBJC", "OBJCXX", "AR", "NM", "RANLIB", "STRIP", "LD", "AS",
	"CMAKE", "QMAKE", "PKG_CONFIG", "MAKE", "VAPIGEN", "LLVM_CONFIG",
	"CFLAGS", "CXXFLAGS", "OBJCFLAGS", "LDFLAGS",
}

// StripHostToolchainEnv implements the cross-case build_environ
// transform: remove the fixed host-toolchain variable set, and rename
// any `*_FOR_BUILD` variable by dropping the suffix.
func StripHostToolchainEnv(environ map[string]string) map[string]string {
	strip := make(map[string]bool, len(hostToolchainEnvVars))
	for _, k := range hostToolchainEnvVars {
		strip[k] = true
	}

	out := make(map[string]string, len(environ))
	for k, v := range environ {
		if strings.HasSuffix(k, "_FOR_BUILD") {
			out[strings.TrimSuffix(k, "_FOR_BUILD")] = v
			continue
		}
		if strip[k] {
			continue
		}
		out[k] = v
	}
	return out
}

// EnvInitializer fills in compiler/library-path details that depend on
// the target platform family. Init returns the binpath, environment and
// call_meson wrapper args to use; GenericInitializer copies environ
// rather than mutating it.
type EnvInitializer interface {
	Init(machine machinespec.Spec, sdkPrefix string, buildMachine machinespec.Spec, isCross bool, environ map[string]string, callMeson []string, cfg *Description) ([]string, map[string]string, []string, error)
}

// ErrNotImplemented is returned by platform initializers this port does
// not implement (the explicit out-of-scope note on platform SDK
// auto-detection).
var ErrNotImplemented = errs.New(errs.DomainMachine, "not_implemented", errs.ExitFatal,
	"platform-specific environment initializer not implemented")

// AppleInitializer is a stub: Apple SDK auto-detection is out of scope
// here.
type AppleInitializer struct{}

func (AppleInitializer) Init(machinespec.Spec, string, machinespec.Spec, bool, map[string]string, []string, *Description) ([]string, map[string]string, []string, error) {
	return nil, nil, nil, ErrNotImplemented
}

// AndroidInitializer is a stub: Android NDK auto-detection is out of
// scope.
type AndroidInitializer struct{}

func (AndroidInitializer) Init(machinespec.Spec, string, machinespec.Spec, bool, map[string]string, []string, *Description) ([]string, map[string]string, []string, error) {
	return nil, nil, nil, ErrNotImplemented
}

// GenericInitializer handles the common Unix-like case: if an SDK prefix
// is supplied, it appends the prefix's include/lib directories to
// CFLAGS, CXXFLAGS and LDFLAGS. It returns an empty binpath and does not
// probe PATH for compilers.
type GenericInitializer struct{}

func (GenericInitializer) Init(machine machinespec.Spec, sdkPrefix string, buildMachine machinespec.Spec, isCross bool, environ map[string]string, callMeson []string, cfg *Description) ([]string, map[string]string, []string, error) {
	binpath := []string{}
	env := make(map[string]string, len(environ))
	for k, v := range environ {
		env[k] = v
	}

	if sdkPrefix != "" {
		includeDir := filepath.Join(sdkPrefix, "include")
		libDir := filepath.Join(sdkPrefix, "lib")
		env["CFLAGS"] = strings.TrimSpace(env["CFLAGS"] + " -I" + includeDir)
		env["CXXFLAGS"] = strings.TrimSpace(env["CXXFLAGS"] + " -I" + includeDir)
		env["LDFLAGS"] = strings.TrimSpace(env["LDFLAGS"] + " -L" + libDir)
	}

	return binpath, env, callMeson, nil
}

// Description carries everything the machine-description writer and
// EnvInitializer need for one machine.
type Description struct {
	Machine           machinespec.Spec
	BuildMachine      machinespec.Spec
	IsCross           bool
	Environ           map[string]string
	ToolchainPrefix   string
	SDKPrefix         string
	CallMeson         []string
	DefaultLibrary    string
	FridaCanRunHost   bool
	QEMUSysroot       string
	OutDir            string
}

// toolchainProbeTools is the fixed list probed under
// <toolchain_prefix>/bin.
var toolchainProbeTools = []string{
	"ninja", "gdbus-codegen", "gio-querymodules", "glib-compile-resources",
	"glib-compile-schemas", "glib-genmarshal", "glib-mkenums", "flex", "bison", "nasm",
}

// probeToolchainBinaries locates the fixed tool set under
// <toolchain_prefix>/bin using doublestar glob matching (mirrors
// EngFlow/gazelle_cc's use of doublestar for recursive path matching,
// generalized here to a flat but suffix-aware single-directory probe).
func probeToolchainBinaries(toolchainPrefix string, exeSuffix string) (map[string]string, error) {
	found := make(map[string]string)
	binDir := filepath.Join(toolchainPrefix, "bin")

	entries, err := os.ReadDir(binDir)
	if err != nil {
		if os.IsNotExist(err) {
			return found, nil
		}
		return nil, errs.New(errs.DomainMachine, "toolchain_probe_failed", errs.ExitFatal,
			fmt.Sprintf("reading %s", binDir)).WithCause(err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	for _, tool := range toolchainProbeTools {
		pattern := tool + exeSuffix
		for _, name := range names {
			matched, err := doublestar.Match(pattern, name)
			if err != nil {
				return nil, err
			}
			if matched {
				found[tool] = filepath.Join(binDir, name)
				break
			}
		}
	}
	return found, nil
}

// qemuArchOverrides maps a machinespec arch to the name used in the
// qemu-<arch> binary.
var qemuArchOverrides = map[string]string{
	"armeabi": "arm",
	"armhf":   "arm",
	"armbe8":  "armeb",
	"arm64":   "aarch64",
}

func qemuArchName(arch string) string {
	if name, ok := qemuArchOverrides[arch]; ok {
		return name
	}
	return arch
}

// resolveExeWrapper decides whether cross-built binaries need a wrapper
// to run on the build machine, and what that wrapper invocation looks
// like. pathLookup abstracts exec.LookPath so tests can stub it.
func resolveExeWrapper(d Description, pathLookup func(string) (string, error)) (needsWrapper bool, wrapperArgs []string, err error) {
	if d.FridaCanRunHost || d.Machine.Identifier() == d.BuildMachine.Identifier() {
		return false, nil, nil
	}
	if d.QEMUSysroot == "" {
		return true, nil, nil
	}

	qemuName := "qemu-" + qemuArchName(d.Machine.Arch)
	path, lookErr := pathLookup(qemuName)
	if lookErr != nil {
		return true, nil, errs.ErrQEMUNotFound.WithMessagef("%s not found on PATH", qemuName)
	}
	return true, []string{path, "-L", d.QEMUSysroot}, nil
}

// sectionWriter accumulates a hierarchical machine-description document
// with a fixed section order.
type sectionWriter struct {
	sections []string
	lines    map[string][]string
}

func newSectionWriter() *sectionWriter {
	return &sectionWriter{lines: make(map[string][]string)}
}

func (w *sectionWriter) add(section, line string) {
	if _, ok := w.lines[section]; !ok {
		w.sections = append(w.sections, section)
	}
	w.lines[section] = append(w.lines[section], line)
}

func (w *sectionWriter) render() string {
	var b strings.Builder
	for _, section := range w.sections {
		fmt.Fprintf(&b, "[%s]\n", section)
		lines := append([]string{}, w.lines[section]...)
		sort.Strings(lines)
		for _, l := range lines {
			b.WriteString(l)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// GenerateMachineConfigs writes the build and host machine-description
// files and returns their MachineConfigs.
func GenerateMachineConfigs(buildDesc, hostDesc Description, initializer EnvInitializer, pathLookup func(string) (string, error)) (buildCfg, hostCfg *MachineConfig, err error) {
	if hostDesc.IsCross {
		buildDesc.Environ = StripHostToolchainEnv(buildDesc.Environ)
	}

	buildCfg, err = writeOne(buildDesc, initializer, pathLookup)
	if err != nil {
		return nil, nil, err
	}
	hostCfg, err = writeOne(hostDesc, initializer, pathLookup)
	if err != nil {
		return nil, nil, err
	}
	return buildCfg, hostCfg, nil
}

func writeOne(d Description, initializer EnvInitializer, pathLookup func(string) (string, error)) (*MachineConfig, error) {
	binpath, env, _, err := initializer.Init(d.Machine, d.SDKPrefix, d.BuildMachine, d.IsCross, d.Environ, d.CallMeson, &d)
	if err != nil {
		return nil, err
	}

	w := newSectionWriter()

	w.add("host_machine", fmt.Sprintf("system = '%s'", d.Machine.System()))
	w.add("host_machine", fmt.Sprintf("subsystem = '%s'", d.Machine.Subsystem()))
	w.add("host_machine", fmt.Sprintf("kernel = '%s'", d.Machine.Kernel()))
	w.add("host_machine", fmt.Sprintf("cpu_family = '%s'", d.Machine.CPUFamily()))
	w.add("host_machine", fmt.Sprintf("cpu = '%s'", d.Machine.CPU()))
	w.add("host_machine", fmt.Sprintf("endian = '%s'", d.Machine.Endian()))

	if d.ToolchainPrefix != "" {
		tools, err := probeToolchainBinaries(d.ToolchainPrefix, d.Machine.ExecutableSuffix())
		if err != nil {
			return nil, err
		}
		for name, path := range tools {
			w.add("binaries", fmt.Sprintf("%s = '%s'", name, filepath.ToSlash(path)))
		}
		if bisonPath, ok := tools["bison"]; ok {
			w.add("properties", fmt.Sprintf("bison_pkgdatadir = '%s'", filepath.ToSlash(filepath.Dir(bisonPath))))
			w.add("properties", "m4 = 'm4'")
		}

		pkgConfigPath := filepath.Join(d.ToolchainPrefix, "bin", "pkg-config"+d.Machine.ExecutableSuffix())
		if fileExists(pkgConfigPath) {
			args := []string{filepath.ToSlash(pkgConfigPath)}
			if d.DefaultLibrary == "static" {
				args = append(args, "--static")
			}
			if d.SDKPrefix != "" {
				args = append(args, "--define-variable=frida_sdk_prefix="+filepath.ToSlash(d.SDKPrefix))
			}
			w.add("binaries", fmt.Sprintf("pkg-config = %s", quoteList(args)))
			if d.SDKPrefix != "" {
				w.add("built-in options", fmt.Sprintf(
					"pkg_config_path = ['%s']", filepath.ToSlash(filepath.Join(d.SDKPrefix, d.Machine.LibDataDir(), "pkgconfig"))))
			}
		}

		valaDir, vapiDir, ok := detectVala(d.ToolchainPrefix, d.Machine.ExecutableSuffix())
		if ok {
			w.add("binaries", fmt.Sprintf("vala = '%s'", filepath.ToSlash(valaDir)))
			if d.SDKPrefix != "" {
				w.add("built-in options", fmt.Sprintf("vala_args = ['--vapidir=%s']", filepath.ToSlash(filepath.Join(d.SDKPrefix, "share", "vala", "vapi"))))
			} else {
				_ = vapiDir
			}
		}
	}

	needsWrapper, wrapperArgs, err := resolveExeWrapper(d, pathLookup)
	if err != nil {
		return nil, err
	}
	w.add("properties", fmt.Sprintf("needs_exe_wrapper = %s", boolLiteral(needsWrapper)))
	if len(wrapperArgs) > 0 {
		w.add("binaries", fmt.Sprintf("exe_wrapper = %s", quoteList(wrapperArgs)))
	}

	if err := os.MkdirAll(d.OutDir, 0o755); err != nil {
		return nil, errs.New(errs.DomainMachine, "write_failed", errs.ExitFatal,
			fmt.Sprintf("creating %s", d.OutDir)).WithCause(err)
	}
	path := filepath.Join(d.OutDir, d.Machine.Identifier()+".txt")
	if err := os.WriteFile(path, []byte(w.render()), 0o644); err != nil {
		return nil, errs.New(errs.DomainMachine, "write_failed", errs.ExitFatal,
			fmt.Sprintf("writing %s", path)).WithCause(err)
	}

	return &MachineConfig{MachineFilePath: path, BinPath: binpath, Environ: env}, nil
}

func detectVala(toolchainPrefix, exeSuffix string) (valacPath, vapiDir string, ok bool) {
	shareDir := filepath.Join(toolchainPrefix, "share")
	entries, err := os.ReadDir(shareDir)
	if err != nil {
		return "", "", false
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "vala-") {
			continue
		}
		api := strings.TrimPrefix(e.Name(), "vala-")
		candidate := filepath.Join(toolchainPrefix, "bin", "valac-"+api+exeSuffix)
		if fileExists(candidate) {
			return candidate, filepath.Join(shareDir, e.Name(), "vapi"), true
		}
	}
	return "", "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "'" + s + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func boolLiteral(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
