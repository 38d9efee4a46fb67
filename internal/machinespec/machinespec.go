// Package machinespec implements the canonical (os, arch, config, triplet)
// target descriptor used throughout releng: the param model's `when`
// predicates, the machine-config generator, and the builder all key off of
// it. Grounded on bitswalk/ldf's build/arch.go (host/target arch table,
// exec.LookPath-based environment probing), generalized from its fixed
// 2-architecture registry to the full attribute algebra the param model and
// machine-config generator require.
package machinespec

import (
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
)

// Spec is the canonical target descriptor.
type Spec struct {
	OS      string
	Arch    string
	Config  string // optional, "" when unset
	Triplet string // optional, "" when unset
}

var kernels = map[string]string{
	"windows": "nt",
	"macos":   "xnu",
	"ios":     "xnu",
	"watchos": "xnu",
	"tvos":    "xnu",
	"qnx":     "nto",
}

var cpuFamilies = map[string]string{
	"armbe8":     "arm",
	"armeabi":    "arm",
	"armhf":      "arm",
	"arm64":      "aarch64",
	"arm64e":     "aarch64",
	"arm64eoabi": "aarch64",
	"mipsel":     "mips",
	"mips64el":   "mips64",
}

var cpuTypes = map[string]string{
	"arm":        "armv7",
	"armbe8":     "armv6",
	"armhf":      "armv7hf",
	"armeabi":    "armv7eabi",
	"arm64":      "aarch64",
	"arm64e":     "aarch64",
	"arm64eoabi": "aarch64",
}

var cpuTypesPerOSOverride = map[string]map[string]string{
	"linux": {
		"arm":      "armv5t",
		"armbe8":   "armv6t",
		"armhf":    "armv7a",
		"mips":     "mips1",
		"mipsel":   "mips1",
		"mips64":   "mips64r2",
		"mips64el": "mips64r2",
	},
	"android": {
		"x86": "i686",
	},
	"qnx": {
		"arm":     "armv6",
		"armeabi": "armv7",
	},
}

var bigEndianArchs = map[string]bool{
	"armbe8": true,
	"mips":   true,
	"mips64": true,
	"s390x":  true,
}

var pointerSize8Archs = map[string]bool{
	"x86_64": true,
	"s390x":  true,
}

var appleOSes = map[string]bool{
	"macos":   true,
	"ios":     true,
	"watchos": true,
	"tvos":    true,
}

// Identifier returns the canonical "os-arch[-config]" form. Two specs are
// considered equal iff their identifiers match.
func (m Spec) Identifier() string {
	parts := []string{m.OS, m.Arch}
	if m.Config != "" {
		parts = append(parts, m.Config)
	}
	return strings.Join(parts, "-")
}

// Equal reports whether two specs share the same Identifier.
func (m Spec) Equal(other Spec) bool {
	return m.Identifier() == other.Identifier()
}

// OSDashArch returns "os-arch".
func (m Spec) OSDashArch() string {
	return m.OS + "-" + m.Arch
}

// OSDashConfig returns "os[-config]".
func (m Spec) OSDashConfig() string {
	if m.Config != "" {
		return m.OS + "-" + m.Config
	}
	return m.OS
}

// ExecutableSuffix returns ".exe" on Windows, "" elsewhere.
func (m Spec) ExecutableSuffix() string {
	if m.OS == "windows" {
		return ".exe"
	}
	return ""
}

// IsApple reports whether OS is one of the Apple platforms.
func (m Spec) IsApple() bool {
	return appleOSes[m.OS]
}

// System returns "darwin" for Apple platforms, else OS.
func (m Spec) System() string {
	if m.IsApple() {
		return "darwin"
	}
	return m.OS
}

// Subsystem returns OSDashConfig for Apple platforms, else OS.
func (m Spec) Subsystem() string {
	if m.IsApple() {
		return m.OSDashConfig()
	}
	return m.OS
}

// Kernel returns the kernel name backing OS (falls back to OS itself).
func (m Spec) Kernel() string {
	if k, ok := kernels[m.OS]; ok {
		return k
	}
	return m.OS
}

// CPUFamily returns the architecture family (falls back to Arch itself).
func (m Spec) CPUFamily() string {
	if f, ok := cpuFamilies[m.Arch]; ok {
		return f
	}
	return m.Arch
}

// CPU returns the per-OS-overridden CPU type, else the generic one, else
// Arch itself.
func (m Spec) CPU() string {
	if overrides, ok := cpuTypesPerOSOverride[m.OS]; ok {
		if cpu, ok := overrides[m.Arch]; ok {
			return cpu
		}
	}
	if cpu, ok := cpuTypes[m.Arch]; ok {
		return cpu
	}
	return m.Arch
}

// Endian returns "big" or "little".
func (m Spec) Endian() string {
	if bigEndianArchs[m.Arch] {
		return "big"
	}
	return "little"
}

// PointerSize returns 8 or 4, per arch.
func (m Spec) PointerSize() int {
	if pointerSize8Archs[m.Arch] || strings.HasPrefix(m.Arch, "arm64") || strings.HasPrefix(m.Arch, "mips64") {
		return 8
	}
	return 4
}

// LibDataDir returns "libdata" on FreeBSD, else "lib".
func (m Spec) LibDataDir() string {
	if m.OS == "freebsd" {
		return "libdata"
	}
	return "lib"
}

// ToolchainIsMSVC reports whether the host toolchain is MSVC (Windows,
// and not the mingw config).
func (m Spec) ToolchainIsMSVC() bool {
	return m.OS == "windows" && m.Config != "mingw"
}

// ToolchainCanStrip reports whether the toolchain supports symbol
// stripping (everything but MSVC).
func (m Spec) ToolchainCanStrip() bool {
	return !m.ToolchainIsMSVC()
}

// MSVCPlatform returns "x64" or "x86".
func (m Spec) MSVCPlatform() string {
	if m.Arch == "x86_64" {
		return "x64"
	}
	return "x86"
}

// ConfigIsOptimized reports whether the config implies an optimized build:
// for MSVC, config is one of {md, mt}; for everything else, always true.
func (m Spec) ConfigIsOptimized() bool {
	if m.ToolchainIsMSVC() {
		return m.Config == "md" || m.Config == "mt"
	}
	return true
}

// MesonOptimizationOptions returns the pair of meson -D flags keyed on
// ConfigIsOptimized: [-Doptimization={s|0}, -Db_ndebug={true|false}].
func (m Spec) MesonOptimizationOptions() []string {
	if m.ConfigIsOptimized() {
		return []string{"-Doptimization=s", "-Db_ndebug=true"}
	}
	return []string{"-Doptimization=0", "-Db_ndebug=false"}
}

// DefaultMissing fills in Config when unset: for MSVC targets, Config
// defaults to recommendedVSCRT if given, else "mt".
func (m Spec) DefaultMissing(recommendedVSCRT string) Spec {
	if m.ToolchainIsMSVC() && m.Config == "" {
		cfg := recommendedVSCRT
		if cfg == "" {
			cfg = "mt"
		}
		m.Config = cfg
	}
	return m
}

// MaybeAdaptToHost adopts the host spec when it is interchangeable with m:
// when host is Windows on x86/x86_64 (the shared toolchain case), or when
// identifiers match and host carries triplet information m lacks.
func (m Spec) MaybeAdaptToHost(host Spec) Spec {
	if host.OS == "windows" && (host.Arch == "x86_64" || host.Arch == "x86") {
		return host
	}
	if m.Identifier() == host.Identifier() && host.Triplet != "" {
		return host
	}
	return m
}

var targetTripletArchPattern = regexp.MustCompile(`^(i.86|x86_64|arm(v\w+)?|armeb|aarch64(_be)?|mips\w*|s390x)$`)

// Parse accepts either the "os-arch[-config]" shorthand or a GNU-style
// triplet "arch-vendor-kernel-system" (3 or 4 dash-separated tokens whose
// first token matches a recognized architecture pattern).
func Parse(raw string) (Spec, error) {
	tokens := strings.Split(raw, "-")

	if len(tokens) == 3 || len(tokens) == 4 {
		arch := tokens[0]
		if targetTripletArchPattern.MatchString(arch) {
			kernel := tokens[len(tokens)-2]
			system := tokens[len(tokens)-1]

			var osName string
			switch kernel {
			case "w64":
				osName = "windows"
			case "nto":
				osName = "qnx"
			default:
				osName = kernel
			}

			switch {
			case strings.HasPrefix(arch, "i") && regexp.MustCompile(`^i.86$`).MatchString(arch):
				arch = "x86"
			case arch == "arm":
				if strings.HasSuffix(system, "eabihf") {
					arch = "armhf"
				} else if osName == "qnx" && strings.HasSuffix(system, "eabi") {
					arch = "armeabi"
				}
			case arch == "armeb":
				arch = "armbe8"
			case arch == "aarch64":
				arch = "arm64"
			case arch == "aarch64_be":
				arch = "arm64be"
			}

			if strings.HasSuffix(system, "_ilp32") {
				arch += "ilp32"
			}

			config := ""
			switch {
			case strings.HasPrefix(system, "musl"):
				config = "musl"
			case kernel == "w64":
				osName = "windows"
				config = "mingw"
			}

			return Spec{OS: osName, Arch: arch, Config: config, Triplet: raw}, nil
		}
	}

	parts := tokens
	if len(parts) < 2 {
		return Spec{}, fmt.Errorf("machinespec: invalid spec %q", raw)
	}
	osName, arch := parts[0], parts[1]
	config := ""
	if len(parts) > 2 {
		config = strings.ToLower(strings.Join(parts[2:], "-"))
	}
	return Spec{OS: osName, Arch: arch, Config: config}, nil
}

// WindowsArchDetector abstracts native-architecture detection on Windows,
// where the OS API is preferred and a legacy sysinfo call is the fallback.
// This stays behind an interface because the real implementation is
// platform-specific environment detection, out of scope here.
type WindowsArchDetector interface {
	NativeArch() (string, error)
}

// DetectLocal detects the MachineSpec of the machine running the current
// process. Linux musl detection sniffs `ldd --version` the way
// build/arch.go sniffs tool availability via exec.LookPath/exec.Command.
func DetectLocal(winArch WindowsArchDetector) Spec {
	osName := detectOS()
	arch := detectArch(osName, winArch)
	config := ""

	if osName == "linux" && isMusl() {
		config = "musl"
	}

	return Spec{OS: osName, Arch: arch, Config: config}
}

func detectOS() string {
	switch runtime.GOOS {
	case "darwin":
		return "macos"
	default:
		return runtime.GOOS
	}
}

func detectArch(osName string, winArch WindowsArchDetector) string {
	if osName == "windows" && winArch != nil {
		if arch, err := winArch.NativeArch(); err == nil && arch != "" {
			return arch
		}
	}
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm":
		return "armhf"
	case "arm64":
		return "arm64"
	default:
		return runtime.GOARCH
	}
}

func isMusl() bool {
	out, err := exec.Command("ldd", "--version").CombinedOutput()
	if err != nil {
		// ldd exits nonzero on musl systems but still prints to stderr;
		// CombinedOutput still captures it.
		if len(out) == 0 {
			return false
		}
	}
	return strings.Contains(strings.ToLower(string(out)), "musl")
}
