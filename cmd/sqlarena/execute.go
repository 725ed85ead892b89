package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sqlarena/sqlarena/pkg/runner"
)

var executeSystem string

var executeCmd = &cobra.Command{
	Use:   "execute <query>",
	Short: "Run one ad-hoc query against a single system",
	Long: `Bring up the named system, execute the given query once, print
the outcome, and tear the system down. Bypasses statistics; meant for
debugging workloads and connectivity.`,
	Args: cobra.ExactArgs(1),
	RunE: executeQuery,
}

func init() {
	rootCmd.AddCommand(executeCmd)
	executeCmd.Flags().StringVar(&executeSystem, "system", "",
		"name of the configured system to run against")
	_ = executeCmd.MarkFlagRequired("system")
}

func executeQuery(cmd *cobra.Command, args []string) error {
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

	result, err := r.Execute(ctx, executeSystem, args[0])
	if err != nil {
		return err
	}

	if !result.Success {
		return fmt.Errorf("query failed after %.1f ms: %s", result.ElapsedMS, result.Error)
	}

	log.WithField("elapsed_ms", result.ElapsedMS).
		WithField("rows", result.RowsReturned).
		Info("Query completed")

	return nil
}
