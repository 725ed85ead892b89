package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sqlarena/sqlarena/pkg/runner"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that every configured system can become healthy",
	Long: `Bring every configured system up, report a per-system health
verdict, and tear everything down again. No workload is executed.`,
	RunE: probeSystems,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func probeSystems(cmd *cobra.Command, args []string) error {
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

	outcomes, err := r.Probe(ctx)
	if err != nil {
		return fmt.Errorf("probing systems: %w", err)
	}

	unhealthy := 0

	for _, o := range outcomes {
		entry := log.WithField("system", o.System.Name).
			WithField("state", o.State)

		if o.Healthy() {
			entry.Info("System healthy")

			continue
		}

		unhealthy++

		entry.WithField("reason", o.Reason).Error("System unhealthy")
	}

	if unhealthy > 0 {
		return fmt.Errorf("%d of %d systems unhealthy", unhealthy, len(outcomes))
	}

	return nil
}
