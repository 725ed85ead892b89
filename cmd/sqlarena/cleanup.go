package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sqlarena/sqlarena/pkg/runner"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove all sqlarena-managed containers",
	Long: `Stop and remove every container carrying the sqlarena label,
running or not. Use after interrupted runs or after setup.`,
	RunE: cleanupContainers,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}

func cleanupContainers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	r, err := runner.New(log, cfg)
	if err != nil {
		return fmt.Errorf("creating runner: %w", err)
	}

	removed, err := r.Cleanup(ctx)
	if err != nil {
		return fmt.Errorf("cleaning up containers: %w", err)
	}

	log.WithField("removed", removed).Info("Cleanup complete")

	return nil
}
