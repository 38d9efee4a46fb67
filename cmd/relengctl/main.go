// Command relengctl is the coordinator CLI: it syncs prebuilt bundles,
// drives the cross-compiling builder, and runs the configure step for
// the downstream project's build driver.
package main

import "github.com/bitswalk/releng/cmd/relengctl/internal/cmd"

func main() {
	cmd.Execute()
}
