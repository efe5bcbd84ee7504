package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/dipole/pkg/logger"
)

var version = "0.1.0-dev"

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "dipole",
		Short: "Distributed trial runner for evoked dipole simulations",
		Long: `dipole fans a network configuration out to a pool of workers, runs
independent stochastic trials with per-trial derived seeds, and reduces the
per-trial dipole signals to a single averaged response.`,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newShowCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the dipole version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("dipole %s\n", version)
		},
	}
}
