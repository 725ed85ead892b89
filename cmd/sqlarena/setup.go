package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sqlarena/sqlarena/pkg/runner"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Install and start all systems, leaving them running",
	Long: `Bring every configured system up and leave it running so it can be
inspected or loaded manually. Use cleanup to remove container-installed
systems afterwards.`,
	RunE: setupSystems,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func setupSystems(cmd *cobra.Command, args []string) error {
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

	outcomes, err := r.Setup(ctx)
	if err != nil {
		return fmt.Errorf("setting up systems: %w", err)
	}

	for _, o := range outcomes {
		if o.Healthy() {
			log.WithField("system", o.System.Name).Info("System running")

			continue
		}

		log.WithField("system", o.System.Name).
			WithField("reason", o.Reason).
			Error("System failed to come up")
	}

	return nil
}
