// cxitool builds a signed CTR Executable Image from an ARM32 ELF, a YAML
// capability spec, and optional icon/banner/RomFS assets.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakcron/cxitool/pkg/log"
)

func main() {
	root := &cobra.Command{
		Use:           "cxitool",
		Short:         "Build and inspect CXI (.cxi) containers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newBuildCommand())
	root.AddCommand(newLayoutCommand())
	root.AddCommand(newVerifyCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the cxitool version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

// version is overridden at link time via -ldflags "-X main.version=...".
var version = "dev"
