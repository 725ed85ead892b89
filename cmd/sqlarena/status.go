package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sqlarena/sqlarena/pkg/history"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List indexed benchmark runs",
	RunE:  showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func showStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	store := history.NewStore(log, &cfg.History)

	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("starting history store: %w", err)
	}
	defer func() { _ = store.Stop() }()

	runs, err := store.ListRuns(ctx)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		log.Info("No runs indexed yet")

		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s  %s  workload=%s  systems=%d  winner=%s  baseline=%s\n",
			run.RunID,
			time.Unix(run.StartedAt, 0).Format("2006-01-02 15:04:05"),
			run.Workload,
			run.SystemsTotal,
			orDash(run.Winner),
			orDash(run.BaselineSystem),
		)
	}

	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
