package cmd

import (
	"fmt"

	"github.com/bitswalk/releng/internal/builder"
	"github.com/bitswalk/releng/internal/bundlesync"
	"github.com/bitswalk/releng/internal/configure"
	"github.com/bitswalk/releng/internal/machinespec"
	"github.com/bitswalk/releng/internal/progress"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Run the project configure step",
	Long: `configure ensures the prebuilt bundles the selection needs are present,
generates machine-description files, invokes the build driver's setup, and
persists the result for the sibling make wrapper.`,
	Args: cobra.ArbitraryArgs,
	RunE: runConfigure,
}

func init() {
	registerBundleSourceFlags(configureCmd)
	configureCmd.Flags().String("source-dir", ".", "project source directory")
	configureCmd.Flags().String("build-dir", "build", "build driver output directory")
	configureCmd.Flags().String("prefix", "/usr/local", "install prefix")
	configureCmd.Flags().Bool("shared", false, "build shared libraries instead of static")
	configureCmd.Flags().Bool("strip", false, "strip installed binaries, where the toolchain supports it")
	configureCmd.Flags().String("allowed-prebuilds", "toolchain,sdk", "comma-separated subset of {toolchain, sdk} to fetch prebuilt")
	configureCmd.Flags().String("driver", "meson", "external build driver binary")
}

func runConfigure(cmd *cobra.Command, args []string) error {
	cacheDir, _ := cmd.Flags().GetString("cache-dir")
	rootURL, _ := cmd.Flags().GetString("root-url")
	sourceDir, _ := cmd.Flags().GetString("source-dir")
	buildDir, _ := cmd.Flags().GetString("build-dir")
	prefix, _ := cmd.Flags().GetString("prefix")
	shared, _ := cmd.Flags().GetBool("shared")
	strip, _ := cmd.Flags().GetBool("strip")
	allowedPrebuilds, _ := cmd.Flags().GetString("allowed-prebuilds")
	driverBinary, _ := cmd.Flags().GetString("driver")

	host, err := machineFromFlag(cmd, "host", machinespec.DetectLocal(nil))
	if err != nil {
		return err
	}
	buildMachine, err := machineFromFlag(cmd, "build", host)
	if err != nil {
		return err
	}

	parameters, err := loadParameters(cmd)
	if err != nil {
		return err
	}
	bootstrapVer := resolveBootstrapVersion(cmd, parameters)

	c := configure.New(configure.Options{
		SourceDir:        sourceDir,
		BuildDir:         buildDir,
		Prefix:           prefix,
		Shared:           shared,
		Strip:            strip,
		BuildMachine:     buildMachine,
		HostMachine:      host,
		AllowedPrebuilds: splitCommaList(allowedPrebuilds),
		ExtraOptions:     args,
		CacheDir:         cacheDir,
		BootstrapVer:     bootstrapVer,
		Parameters:       parameters,
		Syncer:           bundlesync.NewSyncer(rootURL, s3ConfigFromFlags(cmd)),
		Driver:           builder.ExternalDriver{Binary: driverBinary},
		Reporter:         progress.NewConsole(log),
	})

	record, err := c.Configure(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("configured %s build in %s (meson_mode=%s)\n", host.Identifier(), buildDir, record.MesonMode)
	return nil
}
