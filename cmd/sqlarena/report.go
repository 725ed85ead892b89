package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sqlarena/sqlarena/pkg/history"
	"github.com/sqlarena/sqlarena/pkg/report"
)

var reportIndex bool

var reportCmd = &cobra.Command{
	Use:   "report <report.json>",
	Short: "Re-render summary files from an existing report",
	Long: `Load a report.json produced by a previous run and regenerate the
markdown summary and CSV exports next to it. With --index the run is
also written into the history store.`,
	Args: cobra.ExactArgs(1),
	RunE: renderReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().BoolVar(&reportIndex, "index", false,
		"index the run into the history store")
}

func renderReport(cmd *cobra.Command, args []string) error {
	rep, err := report.Load(args[0])
	if err != nil {
		return err
	}

	dir := filepath.Dir(args[0])

	mdPath, err := rep.WriteMarkdown(dir)
	if err != nil {
		return err
	}

	log.WithField("file", mdPath).Info("Markdown summary written")

	csvPaths, err := rep.WriteCSV(dir)
	if err != nil {
		return err
	}

	for _, p := range csvPaths {
		log.WithField("file", p).Info("CSV export written")
	}

	if !reportIndex {
		return nil
	}

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

	run, err := history.RunFromReport(rep, args[0])
	if err != nil {
		return err
	}

	if err := store.UpsertRun(ctx, run); err != nil {
		return err
	}

	log.WithField("run_id", run.RunID).Info("Run indexed")

	return nil
}
