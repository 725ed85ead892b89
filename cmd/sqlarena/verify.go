package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sqlarena/sqlarena/pkg/runner"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run every query once per system and check for failures",
	Long: `Execute a single measured run per query per system, with no
warmup. Exits nonzero if any system fails to come up or any query
fails. Useful as a smoke test before a long benchmark run.`,
	RunE: verifySystems,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func verifySystems(cmd *cobra.Command, args []string) error {
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

	ok, samples, err := r.Verify(ctx)
	if err != nil {
		return fmt.Errorf("verifying systems: %w", err)
	}

	for _, s := range samples {
		entry := log.WithField("system", s.System.Name).
			WithField("query", s.Query)

		if s.Success {
			entry.WithField("elapsed_ms", s.ElapsedMS).Info("Query ok")

			continue
		}

		entry.WithField("error", s.Error).Error("Query failed")
	}

	if !ok {
		return fmt.Errorf("verification failed")
	}

	log.Info("All systems verified")

	return nil
}
