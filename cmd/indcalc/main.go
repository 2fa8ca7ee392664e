// Command indcalc computes the indicator catalogue for a price file
// offline and publishes parameter changes to running chart servers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "indcalc",
		Short:         "Technical indicator calculator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(computeCmd(), paramsCmd())
	return cmd
}
