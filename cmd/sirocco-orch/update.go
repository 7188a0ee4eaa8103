package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sirocco-rt/sirocco-orch/internal/updater"
)

// version is set at build time via -ldflags
var version = "dev"

func init() {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("sirocco-orch %s\n", version)

			latest, err := updater.CheckLatestVersion()
			if err != nil {
				return nil // Offline is fine
			}
			if updater.NeedsUpdate(version, latest) {
				fmt.Printf("A newer version is available: %s (run 'sirocco-orch update')\n", latest)
			}
			return nil
		},
	}
	rootCmd.AddCommand(versionCmd)

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Update to the latest release",
		RunE: func(cmd *cobra.Command, args []string) error {
			latest, err := updater.CheckLatestVersion()
			if err != nil {
				return err
			}
			if !updater.NeedsUpdate(version, latest) {
				fmt.Printf("Already up to date (%s)\n", version)
				return nil
			}

			fmt.Printf("Updating %s -> %s\n", version, latest)
			if err := updater.SelfUpdate(latest); err != nil {
				return err
			}
			fmt.Println("Updated successfully")
			return nil
		},
	}
	rootCmd.AddCommand(updateCmd)
}
