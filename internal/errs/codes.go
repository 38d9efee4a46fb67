package errs

// Common error codes reused across domains.
const (
	CodeNotFound    Code = "not_found"
	CodeInvalid     Code = "invalid"
	CodeUnavailable Code = "unavailable"
	CodeInternal    Code = "internal_error"
)

// Sync / bundle errors.
var (
	// ErrBundleNotFound is returned when the archive is absent at the
	// computed URL (HTTP 404 or equivalent for the active Fetcher).
	ErrBundleNotFound = New(DomainSync, "bundle_not_found", ExitRecoverable,
		"bundle not found")

	// ErrNetwork is returned for any non-404 transport failure while
	// fetching a bundle.
	ErrNetwork = New(DomainSync, "network_error", ExitFatal,
		"network error")
)

// Process / tooling errors.
var (
	// ErrChildProcessFailed is returned when an external command (build
	// driver, git, tar) exits nonzero.
	ErrChildProcessFailed = New(DomainBuilder, "child_process_failed", ExitFatal,
		"child process failed")

	// ErrQEMUNotFound is returned when FRIDA_QEMU_SYSROOT is set but no
	// qemu-<arch> binary is on PATH.
	ErrQEMUNotFound = New(DomainMachine, "qemu_not_found", ExitFatal,
		"qemu binary not found")
)

// Param model / resolver errors.
var (
	// ErrMissingDependency is returned when a declared dependency refers
	// to an unknown package id, or a required environment tool is absent.
	ErrMissingDependency = New(DomainResolver, "missing_dependency", ExitFatal,
		"missing dependency")

	// ErrDependencyCycle is returned when the package graph cannot be
	// topologically sorted.
	ErrDependencyCycle = New(DomainResolver, "dependency_cycle", ExitFatal,
		"dependency cycle")

	// ErrConfig is returned when the dependency description document is
	// malformed.
	ErrConfig = New(DomainParams, CodeInvalid, ExitFatal,
		"malformed dependency description")

	// ErrVersionParse is returned when git version-describe output does
	// not match the expected shape.
	ErrVersionParse = New(DomainParams, "version_parse_error", ExitFatal,
		"could not parse version")
)

// Configurator errors: thin wrappers around ErrBundleNotFound carrying
// remediation text for the downstream configure step.
var (
	ErrToolchainNotFound = New(DomainConfigure, "toolchain_not_found", ExitRecoverable,
		"prebuilt toolchain not found")

	ErrSDKNotFound = New(DomainConfigure, "sdk_not_found", ExitRecoverable,
		"prebuilt SDK not found")
)
