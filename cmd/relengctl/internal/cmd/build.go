package cmd

import (
	"fmt"

	"github.com/bitswalk/releng/internal/builder"
	"github.com/bitswalk/releng/internal/bundlesync"
	"github.com/bitswalk/releng/internal/machinespec"
	"github.com/bitswalk/releng/internal/progress"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a toolchain or SDK bundle from source",
	Long: `build clones and builds every package the selected bundle needs, in
topological order, then packages the result into a tar.xz archive next to
the cache directory's other bundles.`,
	RunE: runBuild,
}

func init() {
	registerBundleSourceFlags(buildCmd)
	buildCmd.Flags().String("bundle", "sdk", "which bundle to build: toolchain or sdk")
	buildCmd.Flags().String("ids", "", "comma-separated package ids to build explicitly, instead of the default selection")
	buildCmd.Flags().String("exclude", "", "comma-separated package ids to exclude from the default selection")
	buildCmd.Flags().String("driver", "meson", "external build driver binary")
}

func runBuild(cmd *cobra.Command, args []string) error {
	bundle, err := bundleFromFlag(cmd)
	if err != nil {
		return err
	}
	cacheDir, _ := cmd.Flags().GetString("cache-dir")
	rootURL, _ := cmd.Flags().GetString("root-url")
	driverBinary, _ := cmd.Flags().GetString("driver")
	ids, _ := cmd.Flags().GetString("ids")
	exclude, _ := cmd.Flags().GetString("exclude")

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

	excludedIDs := map[string]bool{}
	for _, id := range splitCommaList(exclude) {
		excludedIDs[id] = true
	}

	b := builder.New(builder.Options{
		Bundle:       bundle,
		BuildMachine: buildMachine,
		HostMachine:  host,
		ExplicitIDs:  splitCommaList(ids),
		ExcludedIDs:  excludedIDs,
		CacheDir:     cacheDir,
		BootstrapVer: bootstrapVer,
		Parameters:   parameters,
		Syncer:       bundlesync.NewSyncer(rootURL, s3ConfigFromFlags(cmd)),
		Driver:       builder.ExternalDriver{Binary: driverBinary},
		Cloner:       builder.GitCloner{},
		Reporter:     progress.NewConsole(log),
	})

	archivePath, err := b.Build(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("built %s\n", archivePath)
	return nil
}
