package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sqlarena/sqlarena/pkg/report"
	"github.com/sqlarena/sqlarena/pkg/upload"
)

var packageCmd = &cobra.Command{
	Use:   "package <run-dir>",
	Short: "Upload a finished run directory to S3-compatible storage",
	Long: `Upload the artifacts of a finished run to the configured S3
bucket, keyed by the run's workload and run ID taken from its
report.json. A preflight write is performed first so misconfiguration
fails before any real upload starts.`,
	Args: cobra.ExactArgs(1),
	RunE: packageResults,
}

func init() {
	rootCmd.AddCommand(packageCmd)
}

func packageResults(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Upload.S3 == nil || !cfg.Upload.S3.Enabled {
		return fmt.Errorf("s3 upload is not configured")
	}

	dir := args[0]

	rep, err := report.Load(filepath.Join(dir, report.JSONFileName))
	if err != nil {
		return fmt.Errorf("reading run report: %w", err)
	}

	files, err := runArtifacts(dir)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	u, err := upload.NewS3Uploader(log, cfg.Upload.S3)
	if err != nil {
		return fmt.Errorf("creating uploader: %w", err)
	}

	if err := u.Preflight(ctx); err != nil {
		return fmt.Errorf("upload preflight: %w", err)
	}

	keys, err := u.UploadRun(ctx, rep, files)
	if err != nil {
		return fmt.Errorf("uploading run artifacts: %w", err)
	}

	for _, key := range keys {
		log.WithField("key", key).Info("Artifact uploaded")
	}

	return nil
}

// runArtifacts lists the regular files in a run directory.
func runArtifacts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading run directory: %w", err)
	}

	files := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		files = append(files, filepath.Join(dir, e.Name()))
	}

	return files, nil
}
