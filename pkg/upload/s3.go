package upload

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/sqlarena/sqlarena/pkg/config"
	"github.com/sqlarena/sqlarena/pkg/report"
)

// defaultPrefix is the key prefix used when the config leaves it empty.
const defaultPrefix = "sqlarena"

// s3Uploader implements Uploader for S3-compatible storage.
type s3Uploader struct {
	log    logrus.FieldLogger
	cfg    *config.S3UploadConfig
	client *s3.Client
}

// Ensure interface compliance.
var _ Uploader = (*s3Uploader)(nil)

// NewS3Uploader creates an uploader from the given configuration.
func NewS3Uploader(
	log logrus.FieldLogger,
	cfg *config.S3UploadConfig,
) (Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("upload bucket is required")
	}

	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.ForcePathStyle,
	}

	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	if cfg.EndpointURL != "" {
		opts.BaseEndpoint = aws.String(cfg.EndpointURL)
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)
	}

	return &s3Uploader{
		log:    log.WithField("component", "s3-uploader"),
		cfg:    cfg,
		client: s3.New(opts),
	}, nil
}

// Preflight writes a timestamped marker under the configured prefix.
func (u *s3Uploader) Preflight(ctx context.Context) error {
	stamp := time.Now().UTC().Format(time.RFC3339)
	key := basePrefix(u.cfg.Prefix) + "/.write-check"

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(stamp),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing marker object to s3://%s/%s: %w", u.cfg.Bucket, key, err)
	}

	return nil
}

// UploadRun uploads each artifact file under the run's key prefix.
func (u *s3Uploader) UploadRun(ctx context.Context, rep *report.Report, files []string) ([]string, error) {
	keys := make([]string, 0, len(files))

	for _, file := range files {
		key := runKey(u.cfg.Prefix, rep, file)

		if err := u.putFile(ctx, file, key); err != nil {
			return keys, fmt.Errorf("uploading %s: %w", filepath.Base(file), err)
		}

		keys = append(keys, key)
	}

	u.log.WithFields(logrus.Fields{
		"run_id": rep.RunID,
		"files":  len(keys),
		"bucket": u.cfg.Bucket,
	}).Info("Run artifacts uploaded")

	return keys, nil
}

// putFile streams one local file into the bucket.
func (u *s3Uploader) putFile(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer func() { _ = f.Close() }()

	u.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": u.cfg.Bucket,
	}).Debug("Uploading artifact")

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(artifactContentType(localPath)),
	})
	if err != nil {
		return fmt.Errorf("PutObject: %w", err)
	}

	return nil
}

// runKey places an artifact at <prefix>/<workload>/<run_id>/<basename>.
func runKey(prefix string, rep *report.Report, file string) string {
	return strings.Join([]string{
		basePrefix(prefix),
		workloadSlug(rep.Workload),
		rep.RunID,
		filepath.Base(file),
	}, "/")
}

func basePrefix(prefix string) string {
	if prefix == "" {
		return defaultPrefix
	}

	return strings.Trim(prefix, "/")
}

// workloadSlug reduces a workload name to a single key segment. Workloads
// loaded from files are often referred to by path.
func workloadSlug(name string) string {
	slug := filepath.Base(name)
	slug = strings.TrimSuffix(slug, filepath.Ext(slug))

	if slug == "" || slug == "." {
		return "workload"
	}

	return slug
}

// artifactContentType maps the known run artifacts to their MIME types,
// falling back to extension sniffing for anything else in the directory.
func artifactContentType(file string) string {
	switch filepath.Ext(file) {
	case ".json":
		return "application/json"
	case ".md":
		return "text/markdown"
	case ".csv":
		return "text/csv"
	}

	if ct := mime.TypeByExtension(filepath.Ext(file)); ct != "" {
		return ct
	}

	return "application/octet-stream"
}
