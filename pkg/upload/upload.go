// Package upload ships the artifacts of a finished benchmark run to
// S3-compatible storage.
package upload

import (
	"context"

	"github.com/sqlarena/sqlarena/pkg/report"
)

// Uploader publishes run artifacts to remote storage.
type Uploader interface {
	// Preflight writes a small marker object so credential or bucket
	// problems surface before any artifact is sent.
	Preflight(ctx context.Context) error

	// UploadRun uploads the given artifact files. Keys are derived from
	// the report's workload and run ID, so re-uploading a run replaces
	// its earlier artifacts in place. Returns the object keys written.
	UploadRun(ctx context.Context, rep *report.Report, files []string) ([]string, error)
}
