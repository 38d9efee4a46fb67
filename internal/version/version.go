// Package version provides version information for the releng CLI and
// library. Values are typically set at build time via ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Info holds version information for relengctl.
type Info struct {
	// Version is the full version string, e.g. "v1.0.0-4f9f297".
	Version string

	// BuildDate is the ISO 8601 build timestamp.
	BuildDate string

	// GitCommit is the short git commit hash.
	GitCommit string
}

// Default values for unset version info.
var (
	DefaultVersion   = "dev"
	DefaultBuildDate = "unknown"
	DefaultGitCommit = "unknown"
)

// New creates a new Info with default values.
func New() *Info {
	return &Info{
		Version:   DefaultVersion,
		BuildDate: DefaultBuildDate,
		GitCommit: DefaultGitCommit,
	}
}

// GoVersion returns the Go runtime version.
func GoVersion() string {
	return runtime.Version()
}

// String returns the full version string.
func (i *Info) String() string {
	return i.Version
}

// Short returns a short version string (version + commit).
func (i *Info) Short() string {
	return fmt.Sprintf("%s-%s", i.Version, i.GitCommit)
}

// Full returns a detailed multi-line version string.
func (i *Info) Full() string {
	return fmt.Sprintf(`relengctl %s
  Build Date: %s
  Git Commit: %s
  Go Version: %s`,
		i.Version,
		i.BuildDate,
		i.GitCommit,
		GoVersion(),
	)
}

// Map returns version info as a map, useful for structured output.
func (i *Info) Map() map[string]string {
	return map[string]string{
		"version":    i.Version,
		"build_date": i.BuildDate,
		"git_commit": i.GitCommit,
		"go_version": GoVersion(),
	}
}
