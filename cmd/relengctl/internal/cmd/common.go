package cmd

import (
	"os"
	"strings"

	"github.com/bitswalk/releng/internal/bundlesync"
	"github.com/bitswalk/releng/internal/machinespec"
	"github.com/bitswalk/releng/internal/params"
	"github.com/spf13/cobra"
)

// registerBundleSourceFlags registers the flags common to every command
// that syncs or builds a bundle: root URL, cache directory, bootstrap
// version, the deps description document, host and build machines, and
// the S3 endpoint, region and bucket for s3:// roots.
func registerBundleSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("root-url", "", "root URL bundles are fetched from (https:// or s3://)")
	cmd.Flags().String("cache-dir", "", "local cache directory for synced bundles and build state")
	cmd.Flags().String("bootstrap-version", "", "deps version to sync/build against")
	cmd.Flags().String("deps", "", "path to the dependency description TOML document")
	cmd.Flags().String("host", "", "host machine spec (os-arch[-config] or GNU triplet)")
	cmd.Flags().String("build", "", "build machine spec, defaults to the host machine")

	cmd.Flags().String("s3-endpoint", "", "S3 endpoint, for s3:// roots")
	cmd.Flags().String("s3-region", "", "S3 region, for s3:// roots")
	cmd.Flags().String("s3-bucket", "", "S3 bucket, for s3:// roots")
}

func s3ConfigFromFlags(cmd *cobra.Command) *bundlesync.S3Config {
	endpoint, _ := cmd.Flags().GetString("s3-endpoint")
	region, _ := cmd.Flags().GetString("s3-region")
	bucket, _ := cmd.Flags().GetString("s3-bucket")
	if endpoint == "" && region == "" && bucket == "" {
		return nil
	}
	return &bundlesync.S3Config{
		Endpoint:        endpoint,
		Region:          region,
		Bucket:          bucket,
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
	}
}

func machineFromFlag(cmd *cobra.Command, flagName string, fallback machinespec.Spec) (machinespec.Spec, error) {
	raw, _ := cmd.Flags().GetString(flagName)
	if raw == "" {
		return fallback, nil
	}
	return machinespec.Parse(raw)
}

func loadParameters(cmd *cobra.Command) (*params.Parameters, error) {
	path, _ := cmd.Flags().GetString("deps")
	if path == "" {
		return &params.Parameters{Packages: map[string]params.Package{}}, nil
	}
	return params.Load(path)
}

// resolveBootstrapVersion returns the --bootstrap-version flag value, or
// falls back to the Param Model's deps_version when the flag is unset.
func resolveBootstrapVersion(cmd *cobra.Command, parameters *params.Parameters) string {
	version, _ := cmd.Flags().GetString("bootstrap-version")
	if version != "" {
		return version
	}
	if parameters != nil {
		return parameters.DepsVersion
	}
	return ""
}

func bundleFromFlag(cmd *cobra.Command) (params.Bundle, error) {
	raw, _ := cmd.Flags().GetString("bundle")
	switch strings.ToLower(raw) {
	case "toolchain":
		return params.BundleToolchain, nil
	case "sdk", "":
		return params.BundleSDK, nil
	default:
		return params.BundleSDK, &invalidBundleError{raw}
	}
}

type invalidBundleError struct{ value string }

func (e *invalidBundleError) Error() string {
	return "invalid --bundle value " + e.value + ", want \"toolchain\" or \"sdk\""
}

func splitCommaList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
