package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/bitswalk/releng/internal/bundlesync"
	"github.com/bitswalk/releng/internal/machinespec"
	"github.com/bitswalk/releng/internal/progress"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync a prebuilt bundle into the local cache",
	Long: `sync fetches the toolchain or SDK bundle for the given machine and
version if it is not already present at that version, extracting it and
rewriting its template tokens in place.`,
	RunE: runSync,
}

func init() {
	registerBundleSourceFlags(syncCmd)
	syncCmd.Flags().String("bundle", "sdk", "which bundle to sync: toolchain or sdk")
	syncCmd.Flags().Bool("wait", false, "poll until the bundle exists at the remote before syncing")
}

func runSync(cmd *cobra.Command, args []string) error {
	bundle, err := bundleFromFlag(cmd)
	if err != nil {
		return err
	}
	cacheDir, _ := cmd.Flags().GetString("cache-dir")
	rootURL, _ := cmd.Flags().GetString("root-url")

	parameters, err := loadParameters(cmd)
	if err != nil {
		return err
	}
	bootstrapVer := resolveBootstrapVersion(cmd, parameters)

	host, err := machineFromFlag(cmd, "host", machinespec.DetectLocal(nil))
	if err != nil {
		return err
	}

	syncer := bundlesync.NewSyncer(rootURL, s3ConfigFromFlags(cmd))
	reporter := progress.NewConsole(log)

	location := filepath.Join(cacheDir, fmt.Sprintf("%s-%s", bundle, host.Identifier()))

	if wait, _ := cmd.Flags().GetBool("wait"); wait {
		reporter.Report("waiting for bundle to appear at remote")
		if err := syncer.Wait(cmd.Context(), bundle, host, bootstrapVer); err != nil {
			return err
		}
	}

	state, err := syncer.Sync(cmd.Context(), bundle, host, location, bootstrapVer,
		func(p bundlesync.Progress) { reporter.Report(p.Message) })
	if err != nil {
		return err
	}

	if state == bundlesync.StateModified {
		fmt.Printf("synced %s bundle to %s, replacing an outdated tree\n", bundle, location)
	} else {
		fmt.Printf("%s bundle at version %s in %s\n", bundle, bootstrapVer, location)
	}
	return nil
}
