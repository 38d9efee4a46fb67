package cmd

import (
	"fmt"

	"github.com/bitswalk/releng/internal/machinespec"
	"github.com/spf13/cobra"
)

var machineCmd = &cobra.Command{
	Use:   "machine",
	Short: "Inspect machine specs",
}

var machineDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Print the detected local machine spec",
	RunE: func(cmd *cobra.Command, args []string) error {
		m := machinespec.DetectLocal(nil)
		printMachine(m)
		return nil
	},
}

var machineParseCmd = &cobra.Command{
	Use:   "parse <spec-or-triplet>",
	Short: "Parse and normalize a machine spec or GNU triplet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := machinespec.Parse(args[0])
		if err != nil {
			return err
		}
		printMachine(m)
		return nil
	},
}

func init() {
	machineCmd.AddCommand(machineDetectCmd)
	machineCmd.AddCommand(machineParseCmd)
}

func printMachine(m machinespec.Spec) {
	fmt.Printf("identifier:   %s\n", m.Identifier())
	fmt.Printf("os:           %s\n", m.OS)
	fmt.Printf("arch:         %s\n", m.Arch)
	fmt.Printf("config:       %s\n", m.Config)
	fmt.Printf("system:       %s\n", m.System())
	fmt.Printf("cpu_family:   %s\n", m.CPUFamily())
	fmt.Printf("cpu:          %s\n", m.CPU())
	fmt.Printf("endian:       %s\n", m.Endian())
}
