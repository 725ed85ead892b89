package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sqlarena/sqlarena/pkg/runner"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Apply the workload setup statements to every system",
	Long: `Bring every configured system up, run the workload's setup
statements (schema and data loading) against each healthy one, and
tear everything down.`,
	RunE: loadSystems,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func loadSystems(cmd *cobra.Command, args []string) error {
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

	if err := r.Load(ctx); err != nil {
		return fmt.Errorf("loading workload: %w", err)
	}

	log.Info("Workload setup applied")

	return nil
}
