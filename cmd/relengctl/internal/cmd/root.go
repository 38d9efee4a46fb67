package cmd

import (
	"fmt"
	"os"

	"github.com/bitswalk/releng/internal/cliutil"
	"github.com/bitswalk/releng/internal/errs"
	"github.com/bitswalk/releng/internal/logs"
	"github.com/bitswalk/releng/internal/version"
	"github.com/spf13/cobra"
)

// VersionInfo holds version information, set at build time via ldflags.
var VersionInfo = version.New()

// Linker variables, set via ldflags at build time.
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

var cfgFile string

var log *logs.Logger

var rootCmd = &cobra.Command{
	Use:   "relengctl",
	Short: "Release-engineering coordinator for native toolchain and SDK bundles",
	Long: `relengctl drives the release-engineering pipeline for a native project's
prebuilt toolchain and SDK bundles: syncing them from a remote root, building
them from source when no prebuilt is available, and running the project's
configure step against whichever one ends up on disk.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		if err := initConfig(); err != nil {
			return err
		}
		log = cliutil.InitLogger("relengctl")
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	VersionInfo.Version = Version
	VersionInfo.BuildDate = BuildDate
	VersionInfo.GitCommit = GitCommit

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitClassOf(err) == errs.ExitRecoverable {
			fmt.Fprintln(os.Stderr, "this failure is recoverable: building the bundle from source is a viable fallback")
		}
		os.Exit(1)
	}
}

func init() {
	cliutil.RegisterConfigFlag(rootCmd, &cfgFile, "/etc/releng/relengctl.yaml")
	cliutil.RegisterLogFlags(rootCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(machineCmd)
}

func initConfig() error {
	opts := cliutil.DefaultConfigOptions("relengctl", "RELENGCTL")
	opts.ConfigFile = cfgFile
	return cliutil.InitConfig(opts)
}

// exitClassOf returns the errs.ExitClass associated with err, used by
// Execute when deciding how to report a failed command.
func exitClassOf(err error) errs.ExitClass {
	return errs.GetExitClass(err)
}
