package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sqlarena/sqlarena/pkg/config"
	"github.com/sqlarena/sqlarena/pkg/history"
	"github.com/sqlarena/sqlarena/pkg/runner"
	"github.com/sqlarena/sqlarena/pkg/upload"
)

var (
	runIndex  bool
	runUpload bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full benchmark",
	Long: `Bring up all configured systems, execute the query workload with
warmup and measured runs, aggregate the timings, and write the run
report (JSON, markdown summary, CSV) into the results directory.`,
	RunE: runBenchmark,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runIndex, "index", false,
		"index the finished run into the history store")
	runCmd.Flags().BoolVar(&runUpload, "upload", false,
		"upload the run directory to configured S3 storage")
}

func runBenchmark(cmd *cobra.Command, args []string) error {
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

	result, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("running benchmark: %w", err)
	}

	for _, f := range result.Files {
		log.WithField("file", f).Info("Report file written")
	}

	if runIndex {
		if err := indexRun(ctx, cfg, result); err != nil {
			log.WithError(err).Error("Failed to index run")
		}
	}

	if runUpload {
		if err := uploadRun(ctx, cfg, result); err != nil {
			log.WithError(err).Error("Failed to upload run")
		}
	}

	return nil
}

func indexRun(ctx context.Context, cfg *config.Config, result *runner.Result) error {
	store := history.NewStore(log, &cfg.History)

	if err := store.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = store.Stop() }()

	run, err := history.RunFromReport(result.Report, result.ReportPath)
	if err != nil {
		return err
	}

	if err := store.UpsertRun(ctx, run); err != nil {
		return err
	}

	log.WithField("run_id", run.RunID).Info("Run indexed")

	return nil
}

func uploadRun(ctx context.Context, cfg *config.Config, result *runner.Result) error {
	if cfg.Upload.S3 == nil || !cfg.Upload.S3.Enabled {
		return fmt.Errorf("s3 upload is not configured")
	}

	u, err := upload.NewS3Uploader(log, cfg.Upload.S3)
	if err != nil {
		return err
	}

	_, err = u.UploadRun(ctx, result.Report, result.Files)

	return err
}
