package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "sirocco-orch",
		Short: "Sirocco run orchestrator - batch driver for radiative transfer models",
		Long: `sirocco-orch runs batches of sirocco radiative transfer models.
It discovers parameter files, launches the simulation one model at a time,
tails its output, decides convergence from the diagnostic files, and
optionally restarts converged models for their spectrum cycles.`,
	}

	// Batch runs report how many models failed through the process exit
	// status.
	exitStatus int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(exitStatus)
}
