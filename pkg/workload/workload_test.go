package workload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlarena/sqlarena/pkg/config"
)

func baseConfig() *config.Config {
	warmup := 2

	return &config.Config{
		Benchmark: config.BenchmarkConfig{
			WarmupRuns:     &warmup,
			MeasuredRuns:   5,
			TimeoutSeconds: 60,
		},
	}
}

func TestBuiltinSuite(t *testing.T) {
	wl, err := New(logrus.New(), baseConfig())
	require.NoError(t, err)

	assert.Equal(t, "tpch-lite", wl.Name())
	require.NotEmpty(t, wl.Queries())

	for _, q := range wl.Queries() {
		assert.NotEmpty(t, q.Name)
		assert.NotEmpty(t, q.Text)
		assert.Equal(t, 2, q.WarmupRuns)
		assert.Equal(t, 5, q.MeasuredRuns)
		assert.InDelta(t, 60.0, q.TimeoutSeconds, 1e-9)
	}
}

func TestFilterByPrefix(t *testing.T) {
	cfg := baseConfig()
	cfg.Benchmark.Filter = "q1"

	wl, err := New(logrus.New(), cfg)
	require.NoError(t, err)

	require.NotEmpty(t, wl.Queries())

	for _, q := range wl.Queries() {
		assert.Contains(t, q.Name, "q1")
	}
}

func TestFilterMatchingNothingFailsValidation(t *testing.T) {
	cfg := baseConfig()
	cfg.Benchmark.Filter = "no-such-query"

	_, err := New(logrus.New(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no queries")
}

func TestFileWorkload(t *testing.T) {
	content := `
name: custom-suite
defaults:
  warmup_runs: 1
  measured_runs: 3
  timeout_seconds: 10
setup:
  - name: schema
    text: CREATE TABLE t (id INT)
queries:
  - name: count-all
    text: SELECT COUNT(*) FROM t
  - name: slow-scan
    text: SELECT * FROM t
    measured_runs: 7
    timeout_seconds: 120
`

	path := filepath.Join(t.TempDir(), "workload.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := baseConfig()
	cfg.Workload.File = path

	wl, err := New(logrus.New(), cfg)
	require.NoError(t, err)

	assert.Equal(t, "custom-suite", wl.Name())

	require.Len(t, wl.Setup(), 1)
	assert.Equal(t, "schema", wl.Setup()[0].Name)

	queries := wl.Queries()
	require.Len(t, queries, 2)

	// File defaults fill unset values.
	assert.Equal(t, 1, queries[0].WarmupRuns)
	assert.Equal(t, 3, queries[0].MeasuredRuns)
	assert.InDelta(t, 10.0, queries[0].TimeoutSeconds, 1e-9)

	// Per-query values win over defaults.
	assert.Equal(t, 7, queries[1].MeasuredRuns)
	assert.InDelta(t, 120.0, queries[1].TimeoutSeconds, 1e-9)
}

func TestFileWorkloadExplicitZeroWarmup(t *testing.T) {
	content := `
name: cold-suite
defaults:
  warmup_runs: 3
  measured_runs: 2
  timeout_seconds: 10
queries:
  - name: cold-scan
    text: SELECT * FROM t
    warmup_runs: 0
  - name: warm-scan
    text: SELECT COUNT(*) FROM t
`

	path := filepath.Join(t.TempDir(), "workload.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := baseConfig()
	cfg.Workload.File = path

	wl, err := New(logrus.New(), cfg)
	require.NoError(t, err)

	queries := wl.Queries()
	require.Len(t, queries, 2)

	// An explicit zero opts the query out of warmups even with a
	// nonzero file-level default.
	assert.Equal(t, 0, queries[0].WarmupRuns)
	assert.Equal(t, 3, queries[1].WarmupRuns)
}

func TestFileWorkloadMissing(t *testing.T) {
	cfg := baseConfig()
	cfg.Workload.File = "/nonexistent/workload.yaml"

	_, err := New(logrus.New(), cfg)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		queries     []QuerySpec
		errContains string
	}{
		{
			name:        "empty workload",
			queries:     nil,
			errContains: "no queries",
		},
		{
			name: "missing name",
			queries: []QuerySpec{
				{Text: "SELECT 1", MeasuredRuns: 1, TimeoutSeconds: 1},
			},
			errContains: "name is required",
		},
		{
			name: "duplicate name",
			queries: []QuerySpec{
				{Name: "q1", Text: "SELECT 1", MeasuredRuns: 1, TimeoutSeconds: 1},
				{Name: "q1", Text: "SELECT 2", MeasuredRuns: 1, TimeoutSeconds: 1},
			},
			errContains: "duplicate name",
		},
		{
			name: "missing text",
			queries: []QuerySpec{
				{Name: "q1", MeasuredRuns: 1, TimeoutSeconds: 1},
			},
			errContains: "text is required",
		},
		{
			name: "zero measured runs",
			queries: []QuerySpec{
				{Name: "q1", Text: "SELECT 1", TimeoutSeconds: 1},
			},
			errContains: "measured_runs",
		},
		{
			name: "negative warmup",
			queries: []QuerySpec{
				{Name: "q1", Text: "SELECT 1", MeasuredRuns: 1, WarmupRuns: -1, TimeoutSeconds: 1},
			},
			errContains: "warmup_runs",
		},
		{
			name: "zero timeout",
			queries: []QuerySpec{
				{Name: "q1", Text: "SELECT 1", MeasuredRuns: 1},
			},
			errContains: "timeout_seconds",
		},
		{
			name: "valid",
			queries: []QuerySpec{
				{Name: "q1", Text: "SELECT 1", MeasuredRuns: 1, TimeoutSeconds: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate(tt.queries)

			if tt.errContains == "" {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}
